package workflow

import (
	"context"
	"testing"

	"github.com/kestrelcode/auditcore/internal/core"
	"github.com/stretchr/testify/assert"
)

func TestInitStep_EmptyCode(t *testing.T) {
	items := InitStep{}.Run(context.Background(), Input{Code: "   "})
	assert.Len(t, items, 1)
	assert.Equal(t, core.SeverityMajor, items[0].Severity)
}

func TestInitStep_Truncated(t *testing.T) {
	items := InitStep{}.Run(context.Background(), Input{Code: "func f() {"})
	assert.Len(t, items, 1)
	assert.Equal(t, core.SeverityMinor, items[0].Severity)
}

func TestReproStep_FindsEntryPoint(t *testing.T) {
	assert.Empty(t, ReproStep{}.Run(context.Background(), Input{Code: "func main() {}"}))
	assert.Len(t, ReproStep{}.Run(context.Background(), Input{Code: "func helper() {}"}), 1)
}

func TestStaticStep_FlagsPanicAndTODO(t *testing.T) {
	code := "func f() {\n\tpanic(\"no\")\n\t// TODO: fix this\n}"
	items := StaticStep{}.Run(context.Background(), Input{Code: code})
	assert.GreaterOrEqual(t, len(items), 2)
}

func TestTestsStep_NoTestFound(t *testing.T) {
	items := TestsStep{}.Run(context.Background(), Input{Code: "func main() {}"})
	assert.Len(t, items, 1)
}

func TestTestsStep_TestFound(t *testing.T) {
	items := TestsStep{}.Run(context.Background(), Input{Code: "func TestFoo(t *testing.T) {}"})
	assert.Empty(t, items)
}

func TestDynamicStep_FlagsSideEffects(t *testing.T) {
	items := DynamicStep{}.Run(context.Background(), Input{Code: `exec.Command("rm", "-rf", "/")`})
	assert.Len(t, items, 1)
	assert.Equal(t, core.SeverityMajor, items[0].Severity)
}

func TestConformStep_FlagsMixedIndentation(t *testing.T) {
	code := "\tif true {\n    return\n\t}"
	items := ConformStep{}.Run(context.Background(), Input{Code: code})
	assert.NotEmpty(t, items)
}

func TestTraceStep_NoLogging(t *testing.T) {
	items := TraceStep{}.Run(context.Background(), Input{Code: "func main() {}"})
	assert.Len(t, items, 1)
}

func TestTraceStep_HasLogging(t *testing.T) {
	items := TraceStep{}.Run(context.Background(), Input{Code: `log.Println("hi")`})
	assert.Empty(t, items)
}

func TestVerdictStep_SummarizesWhenPriorFindingsExist(t *testing.T) {
	items := VerdictStep{}.Run(context.Background(), Input{
		PriorEvidence: []core.EvidenceItem{{Severity: core.SeverityMajor}},
	})
	assert.Len(t, items, 1)
}

func TestVerdictStep_SilentWhenClean(t *testing.T) {
	items := VerdictStep{}.Run(context.Background(), Input{
		PriorEvidence: []core.EvidenceItem{{Severity: core.SeverityMinor}},
	})
	assert.NotEmpty(t, items)

	items = VerdictStep{}.Run(context.Background(), Input{})
	assert.Empty(t, items)
}

type panicStep struct{}

func (panicStep) Name() string { return "panic-step" }
func (panicStep) Run(ctx context.Context, in Input) []core.EvidenceItem {
	panic("boom")
}

func TestRunAll_RecoversPanickingStep(t *testing.T) {
	steps := []Step{panicStep{}, TraceStep{}}
	items := RunAll(context.Background(), steps, Input{Code: "func main() {}"})

	assert.GreaterOrEqual(t, len(items), 2)
	assert.Equal(t, "panic-step", items[0].Location)
	assert.Equal(t, core.SeverityMajor, items[0].Severity)
}

func TestDefault_ReturnsEightSteps(t *testing.T) {
	assert.Len(t, Default(), 8)
}
