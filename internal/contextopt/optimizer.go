// Package contextopt implements the Context Optimizer (spec.md §4.5):
// relevance- and priority-weighted pruning, compression, and summarization
// of context items down to a token/byte budget. Grounded on
// itsneelabh/gomind's orchestration scoring helpers (priority-weighted
// task selection in orchestration/tiered_capability_provider.go),
// generalized from capability-ranking to context-item ranking.
package contextopt

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/kestrelcode/auditcore/internal/core"
)

// priorityWeight mirrors spec.md §3's ContextPriority ordering.
var priorityWeight = map[core.ContextPriority]float64{
	core.PriorityCritical: 1.0,
	core.PriorityHigh:     0.8,
	core.PriorityMedium:   0.6,
	core.PriorityLow:      0.4,
	core.PriorityOptional: 0.2,
}

// typeWeight favors the items most load-bearing for a code audit.
var typeWeight = map[core.ContextItemType]float64{
	core.ContextSystemPrompt:   1.0,
	core.ContextCode:           0.9,
	core.ContextRequirements:   0.8,
	core.ContextTests:         0.7,
	core.ContextDesign:         0.6,
	core.ContextError:          0.6,
	core.ContextSteering:       0.5,
	core.ContextSessionHistory: 0.4,
	core.ContextDocumentation:  0.3,
	core.ContextMetadata:       0.2,
}

// Config bounds the Context Optimizer's behavior (spec.md §6 context.*).
type Config struct {
	MaxSize            int
	TargetSize         int // default 0.8 * MaxSize when zero
	MinRelevance       float64
	EnableCompression  bool
	EnableSummarization bool
}

// Result reports what the optimizer did, for observability and for the
// "size budget" testable property (spec.md §8).
type Result struct {
	Items            []core.ContextItem
	OriginalSize     int
	FinalSize        int
	CompressionRatio float64
	Removed          []string // IDs dropped for low relevance or budget overflow
	Compressed       []string // IDs that underwent a compression/summarization pass
}

// Optimizer selects, compresses, and summarizes context items to fit
// within a token/byte budget without ever dropping a critical item
// (spec.md §4.5, §8).
type Optimizer struct {
	config Config
	logger core.Logger
}

func New(config Config, logger core.Logger) *Optimizer {
	if config.TargetSize <= 0 {
		config.TargetSize = int(0.8 * float64(config.MaxSize))
	}
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &Optimizer{config: config, logger: logger}
}

// Optimize runs the five-step pipeline from spec.md §4.5.
func (o *Optimizer) Optimize(items []core.ContextItem) Result {
	originalSize := totalSize(items)
	target := o.config.TargetSize

	kept, removed := o.filterByRelevance(items)
	sortByScore(kept)

	compressed := make([]string, 0)
	if o.config.EnableCompression {
		for i := range kept {
			item := &kept[i]
			if item.Priority == core.PriorityCritical || item.Size <= 1024 {
				continue
			}
			before := item.Size
			item.Content = compress(item.Type, item.Content)
			item.Size = len(item.Content)
			if item.Size < before {
				compressed = append(compressed, item.ID)
			}
		}
	}

	selected, overBudgetDropped := greedySelect(kept, target)
	removed = append(removed, overBudgetDropped...)

	if o.config.EnableSummarization && totalSize(selected) > target {
		for i := range selected {
			item := &selected[i]
			if item.Priority == core.PriorityCritical || item.Size <= 2048 {
				continue
			}
			before := item.Size
			item.Content = summarize(item.Type, item.Content)
			item.Size = len(item.Content)
			if item.Size < before {
				compressed = append(compressed, item.ID)
			}
		}
	}

	finalSize := totalSize(selected)
	ratio := 1.0
	if originalSize > 0 {
		ratio = float64(finalSize) / float64(originalSize)
	}

	return Result{
		Items:            selected,
		OriginalSize:     originalSize,
		FinalSize:        finalSize,
		CompressionRatio: ratio,
		Removed:          removed,
		Compressed:       compressed,
	}
}

func (o *Optimizer) filterByRelevance(items []core.ContextItem) (kept []core.ContextItem, removed []string) {
	for _, item := range items {
		if item.Priority != core.PriorityCritical && item.RelevanceScore < o.config.MinRelevance {
			removed = append(removed, item.ID)
			continue
		}
		kept = append(kept, item)
	}
	return kept, removed
}

func score(item core.ContextItem) float64 {
	denom := math.Log(float64(item.Size) + 1)
	if denom <= 0 {
		denom = 1
	}
	return (priorityWeight[item.Priority] + typeWeight[item.Type]) * item.RelevanceScore / denom
}

func sortByScore(items []core.ContextItem) {
	sort.SliceStable(items, func(i, j int) bool {
		return score(items[i]) > score(items[j])
	})
}

// greedySelect walks items in score order, keeping each one that still fits
// the remaining budget and skipping (but not stopping at) each one that
// does not. Critical items are always included even past the budget, and
// their size still counts against it (spec.md §4.5:
// "the budget is soft for critical").
func greedySelect(items []core.ContextItem, target int) (selected []core.ContextItem, removed []string) {
	budget := target
	for _, item := range items {
		if item.Priority == core.PriorityCritical {
			selected = append(selected, item)
			budget -= item.Size
			continue
		}
		if item.Size > budget {
			removed = append(removed, item.ID)
			continue
		}
		selected = append(selected, item)
		budget -= item.Size
	}
	return selected, removed
}

func totalSize(items []core.ContextItem) int {
	total := 0
	for _, item := range items {
		total += item.Size
	}
	return total
}

var (
	lineComment    = regexp.MustCompile(`//[^\n]*`)
	blockComment   = regexp.MustCompile(`(?s)/\*.*?\*/`)
	extraWhite     = regexp.MustCompile(`\s+`)
	markdownChrome = regexp.MustCompile("(?m)^#{1,6}\\s*|\\*\\*|__|`")
	importOrSig    = regexp.MustCompile(`^\s*(import|func|def|class|type|interface)\b`)
)

var outcomeKeywords = []string{"error", "warning", "completed", "failed"}

// compress applies a type-specific byte-reduction pass (spec.md §4.5 step 3).
func compress(t core.ContextItemType, content string) string {
	switch t {
	case core.ContextCode, core.ContextTests:
		s := blockComment.ReplaceAllString(content, "")
		s = lineComment.ReplaceAllString(s, "")
		return extraWhite.ReplaceAllString(s, " ")
	case core.ContextDocumentation:
		return extraWhite.ReplaceAllString(markdownChrome.ReplaceAllString(content, ""), " ")
	case core.ContextSessionHistory:
		return filterLines(content, func(line string) bool {
			lower := strings.ToLower(line)
			for _, kw := range outcomeKeywords {
				if strings.Contains(lower, kw) {
					return true
				}
			}
			return false
		})
	default:
		return extraWhite.ReplaceAllString(content, " ")
	}
}

// summarize applies a type-specific lossy reduction for items that survive
// compression still over size (spec.md §4.5 step 5).
func summarize(t core.ContextItemType, content string) string {
	switch t {
	case core.ContextDocumentation:
		return filterLines(content, func(line string) bool {
			trimmed := strings.TrimSpace(line)
			return strings.HasPrefix(trimmed, "#") || strings.HasPrefix(trimmed, "-") || strings.HasPrefix(trimmed, "*")
		})
	case core.ContextCode, core.ContextTests:
		return filterLines(content, func(line string) bool {
			return importOrSig.MatchString(line)
		})
	default:
		return headTailEllipsis(content, 500)
	}
}

func filterLines(content string, keep func(string) bool) string {
	lines := strings.Split(content, "\n")
	var out []string
	for _, line := range lines {
		if keep(line) {
			out = append(out, line)
		}
	}
	if len(out) == 0 {
		return headTailEllipsis(content, 200)
	}
	return strings.Join(out, "\n")
}

func headTailEllipsis(content string, window int) string {
	if len(content) <= 2*window {
		return content
	}
	return fmt.Sprintf("%s\n...\n%s", content[:window], content[len(content)-window:])
}
