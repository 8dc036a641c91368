package completion

import (
	"strconv"
	"strings"
	"testing"

	"github.com/kestrelcode/auditcore/internal/core"
	"github.com/stretchr/testify/assert"
)

// summaryWords returns n generic tokens ("w1".."wn") joined by spaces, so two
// calls can be combined to produce a pair of summaries with a precise Jaccard
// similarity: 49 shared tokens plus one token unique to the longer summary
// gives an intersection of 49 over a union of 50, i.e. 0.98 — the exact
// value spec.md §8 scenario 4 names.
func summaryWords(n int) string {
	words := make([]string, n)
	for i := 0; i < n; i++ {
		words[i] = "w" + strconv.Itoa(i)
	}
	return strings.Join(words, " ")
}

func TestDetect_StagnationAtLoop12WithJaccard098(t *testing.T) {
	shared := summaryWords(49)
	longer := shared + " extra"

	code := "func f() {\n\treturn 1\n}"
	history := []core.IterationRecord{
		{NormalizedCode: code, Review: core.Review{Summary: shared, Overall: 60}},  // loop 10
		{NormalizedCode: code, Review: core.Review{Summary: longer, Overall: 60}},  // loop 11
		{NormalizedCode: code, Review: core.Review{Summary: shared, Overall: 60}},  // loop 12
	}

	d := NewDetector(core.StagnationPolicy{StartLoop: 10, SimilarityThreshold: 0.95})
	state := d.Detect(history, 12)

	assert.True(t, state.Detected)
	assert.Equal(t, 12, state.DetectedAtLoop)
}

func TestDetect_NotBeforeStartLoop(t *testing.T) {
	shared := summaryWords(49)
	code := "func f() {}"
	history := []core.IterationRecord{
		{NormalizedCode: code, Review: core.Review{Summary: shared}},
		{NormalizedCode: code, Review: core.Review{Summary: shared}},
		{NormalizedCode: code, Review: core.Review{Summary: shared}},
	}

	d := NewDetector(core.StagnationPolicy{StartLoop: 10, SimilarityThreshold: 0.95})
	state := d.Detect(history, 5)

	assert.False(t, state.Detected)
}

func TestDetect_DissimilarCodeDoesNotStagnate(t *testing.T) {
	history := []core.IterationRecord{
		{NormalizedCode: "func a() { return 1 }", Review: core.Review{Summary: "looks fine", Overall: 40}},
		{NormalizedCode: "func b() { return 2 }", Review: core.Review{Summary: "still issues", Overall: 80}},
		{NormalizedCode: "func c() { return 3 }", Review: core.Review{Summary: "much better now", Overall: 90}},
	}

	d := NewDetector(core.StagnationPolicy{StartLoop: 10, SimilarityThreshold: 0.95})
	state := d.Detect(history, 12)

	assert.False(t, state.Detected)
}

func TestDetect_ScoreStagnationFallbackWhenSummariesDiffer(t *testing.T) {
	history := []core.IterationRecord{
		{NormalizedCode: "func a() {}", Review: core.Review{Summary: "alpha beta gamma", Overall: 70}},
		{NormalizedCode: "func b() {}", Review: core.Review{Summary: "delta epsilon zeta", Overall: 71}},
		{NormalizedCode: "func c() {}", Review: core.Review{Summary: "eta theta iota", Overall: 70}},
	}

	d := NewDetector(core.StagnationPolicy{StartLoop: 10, SimilarityThreshold: 0.95})
	state := d.Detect(history, 12)

	assert.True(t, state.Detected)
	assert.Contains(t, state.Recommendation, "score improvement")
}
