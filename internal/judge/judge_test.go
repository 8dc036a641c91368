package judge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kestrelcode/auditcore/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockJudge_ScoresByHeuristic(t *testing.T) {
	m := NewMockJudge()
	review, err := m.Invoke(context.Background(), AuditRequest{Code: "func main() {}"})
	require.NoError(t, err)
	// 14 characters is under the 20-character short-submission cutoff: 90 - 20.
	assert.Equal(t, core.VerdictRevise, review.Verdict)
	assert.Equal(t, 70, review.Overall)
}

func TestMockJudge_PenalizesTodos(t *testing.T) {
	m := NewMockJudge()
	review, err := m.Invoke(context.Background(), AuditRequest{Code: "// TODO fix this\n// FIXME broken"})
	require.NoError(t, err)
	assert.Equal(t, 70, review.Overall)
}

func TestMockJudge_ReturnsConfiguredError(t *testing.T) {
	m := &MockJudge{Err: core.ErrJudgeUnavailable}
	_, err := m.Invoke(context.Background(), AuditRequest{})
	assert.ErrorIs(t, err, core.ErrJudgeUnavailable)
}

func TestHTTPJudge_Invoke_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(core.Review{
			Overall: 88,
			Verdict: core.VerdictRevise,
			Summary: "looks mostly fine",
		})
	}))
	defer srv.Close()

	j := NewHTTPJudge(srv.URL, time.Second, nil)
	review, err := j.Invoke(context.Background(), AuditRequest{Code: "package main"})
	require.NoError(t, err)
	assert.Equal(t, 88, review.Overall)
	assert.Equal(t, core.VerdictRevise, review.Verdict)
}

func TestHTTPJudge_Invoke_ServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	j := NewHTTPJudge(srv.URL, time.Second, nil)
	_, err := j.Invoke(context.Background(), AuditRequest{})
	assert.ErrorIs(t, err, core.ErrJudgeTransient)
}

func TestHTTPJudge_Invoke_BadRequestIsProtocolError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	j := NewHTTPJudge(srv.URL, time.Second, nil)
	_, err := j.Invoke(context.Background(), AuditRequest{})
	assert.ErrorIs(t, err, core.ErrJudgeProtocolError)
}

func TestHTTPJudge_Invoke_OutOfBoundsScoreRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(core.Review{Overall: 150, Verdict: core.VerdictPass})
	}))
	defer srv.Close()

	j := NewHTTPJudge(srv.URL, time.Second, nil)
	_, err := j.Invoke(context.Background(), AuditRequest{})
	assert.ErrorIs(t, err, core.ErrJudgeProtocolError)
}

func TestHTTPJudge_Invoke_TimeoutSurfacedImmediately(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
	}))
	defer srv.Close()

	j := NewHTTPJudge(srv.URL, 5*time.Millisecond, nil)
	_, err := j.Invoke(context.Background(), AuditRequest{})
	assert.ErrorIs(t, err, core.ErrJudgeTimeout)
}
