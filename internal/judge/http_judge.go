package judge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kestrelcode/auditcore/internal/core"
)

// HTTPJudge invokes an external reviewer process over HTTP, grounded on
// itsneelabh/gomind's providers.BaseClient (ai/providers/base.go): an
// http.Client with a fixed timeout, structured request/response logging,
// and status-code-driven error classification. Retries for Transient
// failures are the caller's responsibility (internal/resilience), per
// spec.md §4.1 — "Unavailable and Timeout are surfaced immediately".
type HTTPJudge struct {
	Endpoint   string
	HTTPClient *http.Client
	Logger     core.Logger
}

// NewHTTPJudge builds a Judge Adapter over endpoint, bounding every call to
// timeout. A positive AuditRequest.TimeoutMS adds a per-call deadline on
// top of it; whichever of the two is shorter applies.
func NewHTTPJudge(endpoint string, timeout time.Duration, logger core.Logger) *HTTPJudge {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &HTTPJudge{
		Endpoint:   endpoint,
		HTTPClient: &http.Client{Timeout: timeout},
		Logger:     logger,
	}
}

type judgeWireRequest struct {
	SessionID     string `json:"sessionId,omitempty"`
	ThoughtNumber int    `json:"thoughtNumber"`
	Prompt        string `json:"prompt"`
	Code          string `json:"code"`
}

// Invoke POSTs the audit request and decodes a core.Review, classifying
// failures into the spec.md §4.1 taxonomy.
func (j *HTTPJudge) Invoke(ctx context.Context, req AuditRequest) (*core.Review, error) {
	if req.TimeoutMS > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(req.TimeoutMS)*time.Millisecond)
		defer cancel()
	}

	body, err := json.Marshal(judgeWireRequest{
		SessionID:     req.SessionID,
		ThoughtNumber: req.ThoughtNumber,
		Prompt:        req.RenderedPrompt,
		Code:          req.Code,
	})
	if err != nil {
		return nil, core.NewAuditError("judge.invoke", "JudgeProtocolError", "Critical", false, "", fmt.Errorf("encode request: %w", core.ErrJudgeProtocolError))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, j.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, core.NewAuditError("judge.invoke", "JudgeUnavailable", "Critical", false, "check endpoint configuration", fmt.Errorf("%w: %v", core.ErrJudgeUnavailable, err))
	}
	httpReq.Header.Set("Content-Type", "application/json")

	j.Logger.Debug("judge request", map[string]interface{}{
		"session_id":     req.SessionID,
		"thought_number": req.ThoughtNumber,
		"prompt_length":  len(req.RenderedPrompt),
	})

	start := time.Now()
	resp, err := j.HTTPClient.Do(httpReq)
	if err != nil {
		var te interface{ Timeout() bool }
		if ctx.Err() != nil || (errors.As(err, &te) && te.Timeout()) {
			return nil, core.NewAuditError("judge.invoke", "JudgeTimeout", "Major", false, "increase audit.timeoutMs or investigate Judge latency", fmt.Errorf("%w: %v", core.ErrJudgeTimeout, err))
		}
		return nil, core.NewAuditError("judge.invoke", "JudgeUnavailable", "Critical", false, "verify the Judge process is reachable", fmt.Errorf("%w: %v", core.ErrJudgeUnavailable, err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, core.NewAuditError("judge.invoke", "JudgeProtocolError", "Major", true, "", fmt.Errorf("%w: read body: %v", core.ErrJudgeProtocolError, err))
	}

	j.Logger.Debug("judge response", map[string]interface{}{
		"status":      resp.StatusCode,
		"duration_ms": time.Since(start).Milliseconds(),
	})

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, core.NewAuditError("judge.invoke", "JudgeTransient", "Major", true, "retry with backoff", fmt.Errorf("%w: status %d: %s", core.ErrJudgeTransient, resp.StatusCode, truncate(raw, 200)))
	case resp.StatusCode >= 400:
		return nil, core.NewAuditError("judge.invoke", "JudgeProtocolError", "Major", false, "", fmt.Errorf("%w: status %d: %s", core.ErrJudgeProtocolError, resp.StatusCode, truncate(raw, 200)))
	}

	var review core.Review
	if err := json.Unmarshal(raw, &review); err != nil {
		return nil, core.NewAuditError("judge.invoke", "JudgeProtocolError", "Critical", false, "", fmt.Errorf("%w: malformed review: %v", core.ErrJudgeProtocolError, err))
	}
	if err := review.ValidateBounds(); err != nil {
		return nil, err
	}
	return &review, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
