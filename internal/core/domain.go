package core

import "time"

// Thought is one turn of client input carrying code under review
// (spec.md §3).
type Thought struct {
	Number             int    `json:"number"`
	Text               string `json:"text"`
	TotalThoughts      int    `json:"totalThoughts"`
	NextThoughtNeeded  bool   `json:"nextThoughtNeeded"`
	SessionID          string `json:"sessionId,omitempty"`
	BranchID           string `json:"branchId,omitempty"`
}

// Verdict is the Judge's terminal recommendation for one review.
type Verdict string

const (
	VerdictPass   Verdict = "pass"
	VerdictRevise Verdict = "revise"
	VerdictReject Verdict = "reject"
)

// Dimension is one scored axis of a multi-dimensional review.
type Dimension struct {
	Name   string  `json:"name"`
	Score  int     `json:"score"`
	Weight float64 `json:"weight"`
}

// InlineComment anchors a review comment to a location in the submitted code.
type InlineComment struct {
	Path    string `json:"path"`
	Line    int    `json:"line"`
	Comment string `json:"comment"`
}

// JudgeCard is one model's contribution to a (possibly multi-model) review.
type JudgeCard struct {
	Model string `json:"model"`
	Score int    `json:"score"`
	Notes string `json:"notes"`
}

// Review is the Judge's structured output for one thought (spec.md §3).
// Scores are expected in [0,100]; ValidateBounds enforces that as a
// protocol error per spec.md §3.
type Review struct {
	Overall    int             `json:"overall"`
	Verdict    Verdict         `json:"verdict"`
	Dimensions []Dimension     `json:"dimensions"`
	Inline     []InlineComment `json:"inline"`
	Summary    string          `json:"summary"`
	JudgeCards []JudgeCard     `json:"judgeCards"`
}

// ValidateBounds reports the first out-of-range score found, or nil.
func (r *Review) ValidateBounds() error {
	if r.Overall < 0 || r.Overall > 100 {
		return NewAuditError("Review.ValidateBounds", "JudgeProtocolError", "Major", false,
			"clamp or re-request the review", ErrJudgeProtocolError)
	}
	for _, d := range r.Dimensions {
		if d.Score < 0 || d.Score > 100 {
			return NewAuditError("Review.ValidateBounds", "JudgeProtocolError", "Major", false,
				"clamp or re-request the review", ErrJudgeProtocolError)
		}
		if d.Weight < 0 || d.Weight > 1 {
			return NewAuditError("Review.ValidateBounds", "JudgeProtocolError", "Major", false,
				"clamp or re-request the review", ErrJudgeProtocolError)
		}
	}
	return nil
}

// Severity classifies an EvidenceItem.
type Severity string

const (
	SeverityCritical Severity = "Critical"
	SeverityMajor    Severity = "Major"
	SeverityMinor    Severity = "Minor"
)

// EvidenceItem is one finding contributed by a workflow-step collaborator
// (spec.md §3). internal/engine folds accumulated items into review.Inline
// as "Severity: description" comments.
type EvidenceItem struct {
	Type          string   `json:"type"`
	Severity      Severity `json:"severity"`
	Location      string   `json:"location"`
	Description   string   `json:"description"`
	Proof         string   `json:"proof"`
	SuggestedFix  string   `json:"suggestedFix"`
}

// CompletionStatus is the session-level termination state.
type CompletionStatus string

const (
	CompletionInProgress CompletionStatus = "in_progress"
	CompletionCompleted  CompletionStatus = "completed"
	CompletionTerminated CompletionStatus = "terminated"
)

// CompletionState is the session's current completion record.
type CompletionState struct {
	Status          CompletionStatus `json:"status"`
	Reason          string           `json:"reason"`
	Tier            string           `json:"tier,omitempty"`
	KillSwitch      string           `json:"killSwitch,omitempty"`
	TargetThreshold int              `json:"targetThreshold,omitempty"`
}

// StagnationState records whether a session has stopped making progress.
type StagnationState struct {
	Detected        bool   `json:"detected"`
	DetectedAtLoop  int    `json:"detectedAtLoop,omitempty"`
	Recommendation  string `json:"recommendation,omitempty"`
}

// IterationRecord is one completed audit in a session's history
// (spec.md §3: "Iteration / Loop").
type IterationRecord struct {
	Loop            int       `json:"loop"`
	Thought         Thought   `json:"thought"`
	Review          Review    `json:"review"`
	CodeFingerprint string    `json:"codeFingerprint,omitempty"`
	NormalizedCode  string    `json:"normalizedCode,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}

// Session is the authoritative per-conversation audit record (spec.md §3).
// Invariants enforced by internal/session.Store, not by this struct itself:
//   - CurrentLoop == len(History)
//   - History is append-only
//   - once Completion.Status != in_progress, no further audits are accepted
type Session struct {
	ID          string            `json:"id"`
	BranchID    string            `json:"branchId,omitempty"`
	History     []IterationRecord `json:"history"`
	CurrentLoop int               `json:"currentLoop"`
	LastReview  *Review           `json:"lastReview,omitempty"`
	Stagnation  StagnationState   `json:"stagnation"`
	Completion  CompletionState   `json:"completion"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
}

// Tier is a (score, minLoops) pair that authorizes completion.
type Tier struct {
	Score    int `json:"score"`
	MinLoops int `json:"minLoops"`
}

// HardStop forces termination after maxLoops regardless of score.
type HardStop struct {
	MaxLoops int `json:"maxLoops"`
}

// StagnationPolicy configures when repeated similarity counts as stagnation.
type StagnationPolicy struct {
	StartLoop           int     `json:"startLoop"`
	SimilarityThreshold float64 `json:"similarityThreshold"`
}

// CompletionCriteria is the full tiered-termination configuration
// (spec.md §3).
type CompletionCriteria struct {
	Tier1      Tier             `json:"tier1"`
	Tier2      Tier             `json:"tier2"`
	Tier3      Tier             `json:"tier3"`
	HardStop   HardStop         `json:"hardStop"`
	Stagnation StagnationPolicy `json:"stagnation"`
}

// DefaultCompletionCriteria returns the values given verbatim in spec.md §3.
func DefaultCompletionCriteria() CompletionCriteria {
	return CompletionCriteria{
		Tier1:      Tier{Score: 95, MinLoops: 10},
		Tier2:      Tier{Score: 90, MinLoops: 15},
		Tier3:      Tier{Score: 85, MinLoops: 20},
		HardStop:   HardStop{MaxLoops: 25},
		Stagnation: StagnationPolicy{StartLoop: 10, SimilarityThreshold: 0.95},
	}
}

// Validate enforces the tier/loop/threshold invariants from spec.md §3.
func (c CompletionCriteria) Validate() error {
	switch {
	case !(c.Tier1.Score >= c.Tier2.Score && c.Tier2.Score >= c.Tier3.Score):
		return NewAuditError("CompletionCriteria.Validate", "ConfigurationInvalid", "Critical", false,
			"tier1.score >= tier2.score >= tier3.score", ErrConfigurationInvalid)
	case !(c.Tier1.MinLoops <= c.Tier2.MinLoops && c.Tier2.MinLoops <= c.Tier3.MinLoops && c.Tier3.MinLoops <= c.HardStop.MaxLoops):
		return NewAuditError("CompletionCriteria.Validate", "ConfigurationInvalid", "Critical", false,
			"tier1.minLoops <= tier2.minLoops <= tier3.minLoops <= hardStop.maxLoops", ErrConfigurationInvalid)
	}
	for _, score := range []int{c.Tier1.Score, c.Tier2.Score, c.Tier3.Score} {
		if score < 0 || score > 100 {
			return NewAuditError("CompletionCriteria.Validate", "ConfigurationInvalid", "Critical", false,
				"tier scores must be in [0,100]", ErrConfigurationInvalid)
		}
	}
	if c.Stagnation.SimilarityThreshold < 0 || c.Stagnation.SimilarityThreshold > 1 {
		return NewAuditError("CompletionCriteria.Validate", "ConfigurationInvalid", "Critical", false,
			"stagnation.similarityThreshold must be in [0,1]", ErrConfigurationInvalid)
	}
	return nil
}

// CacheEntry is one stored Review, content-addressed by code fingerprint
// (spec.md §3).
type CacheEntry struct {
	CodeHash       string    `json:"codeHash"`
	Review         Review    `json:"review"`
	CreatedAt      time.Time `json:"createdAt"`
	LastAccessedAt time.Time `json:"lastAccessedAt"`
	AccessCount    int64     `json:"accessCount"`
	Size           int       `json:"size"`
}

// ContextItemType classifies a ContextItem for type-weighted scoring.
type ContextItemType string

const (
	ContextSystemPrompt   ContextItemType = "system_prompt"
	ContextRequirements   ContextItemType = "requirements"
	ContextDesign         ContextItemType = "design"
	ContextCode           ContextItemType = "code"
	ContextTests          ContextItemType = "tests"
	ContextDocumentation  ContextItemType = "documentation"
	ContextSteering       ContextItemType = "steering"
	ContextSessionHistory ContextItemType = "session_history"
	ContextError          ContextItemType = "error"
	ContextMetadata       ContextItemType = "metadata"
)

// ContextPriority classifies a ContextItem for priority-weighted scoring.
// Critical items are never pruned (spec.md §3/§4.5/§8).
type ContextPriority string

const (
	PriorityCritical ContextPriority = "critical"
	PriorityHigh     ContextPriority = "high"
	PriorityMedium   ContextPriority = "medium"
	PriorityLow      ContextPriority = "low"
	PriorityOptional ContextPriority = "optional"
)

// ContextItem is one unit of prompt context subject to the Context
// Optimizer's pruning/compression/summarization passes (spec.md §3/§4.5).
type ContextItem struct {
	ID             string          `json:"id"`
	Content        string          `json:"content"`
	Type           ContextItemType `json:"type"`
	Priority       ContextPriority `json:"priority"`
	RelevanceScore float64         `json:"relevanceScore"`
	Size           int             `json:"size"`
}

// PromptVariables is the closed record of substitutions available to the
// Prompt Template Engine (spec.md §3).
type PromptVariables struct {
	IdentityName      string
	IdentityRole      string
	IdentityStance    string
	IdentityAuthority string

	ModelContextTokens int
	AuditTimeoutMS     int
	CurrentLoop        int
	MaxIterations      int
	StagnationThreshold float64

	QualityDimensionsRendered string
	CompletionTiersRendered   string
	KillSwitchesRendered      string

	ProjectContext   string
	SteeringRules    string
	SpecRequirements string
}

// ToMap renders PromptVariables into the ${NAME} substitution namespace
// used by internal/prompt.Engine.
func (v PromptVariables) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"IDENTITY_NAME":               v.IdentityName,
		"IDENTITY_ROLE":               v.IdentityRole,
		"IDENTITY_STANCE":             v.IdentityStance,
		"IDENTITY_AUTHORITY":          v.IdentityAuthority,
		"MODEL_CONTEXT_TOKENS":        v.ModelContextTokens,
		"AUDIT_TIMEOUT_MS":            v.AuditTimeoutMS,
		"CURRENT_LOOP":                v.CurrentLoop,
		"MAX_ITERATIONS":              v.MaxIterations,
		"STAGNATION_THRESHOLD":        v.StagnationThreshold,
		"QUALITY_DIMENSIONS_RENDERED": v.QualityDimensionsRendered,
		"COMPLETION_TIERS_RENDERED":   v.CompletionTiersRendered,
		"KILL_SWITCHES_RENDERED":      v.KillSwitchesRendered,
		"PROJECT_CONTEXT":             v.ProjectContext,
		"STEERING_RULES":              v.SteeringRules,
		"SPEC_REQUIREMENTS":           v.SpecRequirements,
	}
}

// NextActionTag is the tagged-sum discriminator for a NextAction
// (spec.md §9: "dynamic record shapes -> typed unions").
type NextActionTag string

const (
	NextActionComplete    NextActionTag = "complete"
	NextActionEscalate    NextActionTag = "escalate"
	NextActionFixCritical NextActionTag = "fix_critical"
	NextActionImprove     NextActionTag = "improve"
	NextActionContinue    NextActionTag = "continue"
)

// NextAction is one recommended follow-up synthesized by the
// Prompt-Driven Auditor (spec.md §4.11).
type NextAction struct {
	Tag         NextActionTag `json:"tag"`
	Priority    string        `json:"priority,omitempty"`
	Description string        `json:"description,omitempty"`
	Dimension   string        `json:"dimension,omitempty"`
}

// AuditOutcome is the Synchronous Audit Engine's top-level result
// (spec.md §4.10).
type AuditOutcome struct {
	Review     Review        `json:"review"`
	Success    bool          `json:"success"`
	TimedOut   bool          `json:"timedOut"`
	DurationMS int64         `json:"durationMs"`
	SessionID  string        `json:"sessionId,omitempty"`
	Error      *AuditError   `json:"error,omitempty"`
}
