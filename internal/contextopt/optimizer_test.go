package contextopt

import (
	"strings"
	"testing"

	"github.com/kestrelcode/auditcore/internal/core"
	"github.com/stretchr/testify/assert"
)

func item(id string, priority core.ContextPriority, relevance float64, size int) core.ContextItem {
	return core.ContextItem{
		ID:             id,
		Content:        strings.Repeat("x", size),
		Type:           core.ContextCode,
		Priority:       priority,
		RelevanceScore: relevance,
		Size:           size,
	}
}

func TestOptimize_NeverDropsCritical(t *testing.T) {
	o := New(Config{MaxSize: 100, MinRelevance: 0.5}, nil)
	items := []core.ContextItem{
		item("crit", core.PriorityCritical, 0.1, 500), // low relevance, oversized
		item("low", core.PriorityLow, 0.2, 10),        // below min relevance
	}

	result := o.Optimize(items)

	var ids []string
	for _, it := range result.Items {
		ids = append(ids, it.ID)
	}
	assert.Contains(t, ids, "crit")
	assert.NotContains(t, ids, "low")
}

func TestOptimize_RespectsSizeBudgetForNonCritical(t *testing.T) {
	o := New(Config{MaxSize: 100, MinRelevance: 0.0}, nil)
	items := []core.ContextItem{
		item("a", core.PriorityHigh, 0.9, 60),
		item("b", core.PriorityHigh, 0.9, 60),
	}

	result := o.Optimize(items)

	nonCriticalTotal := 0
	for _, it := range result.Items {
		if it.Priority != core.PriorityCritical {
			nonCriticalTotal += it.Size
		}
	}
	assert.LessOrEqual(t, nonCriticalTotal, 80) // targetSize defaults to 0.8*maxSize
}

func TestOptimize_CompressionReducesCodeSize(t *testing.T) {
	o := New(Config{MaxSize: 10000, MinRelevance: 0.0, EnableCompression: true}, nil)
	content := "// a comment\nfunc main() {}\n// another\n"
	items := []core.ContextItem{
		{ID: "code", Content: strings.Repeat(content, 50), Type: core.ContextCode, Priority: core.PriorityMedium, RelevanceScore: 0.9, Size: len(content) * 50},
	}

	result := o.Optimize(items)
	assert.Contains(t, result.Compressed, "code")
	assert.Less(t, result.FinalSize, result.OriginalSize)
}

func TestOptimize_FiltersBelowMinRelevance(t *testing.T) {
	o := New(Config{MaxSize: 1000, MinRelevance: 0.5}, nil)
	items := []core.ContextItem{
		item("keep", core.PriorityMedium, 0.9, 10),
		item("drop", core.PriorityMedium, 0.1, 10),
	}

	result := o.Optimize(items)
	assert.Contains(t, result.Removed, "drop")
}
