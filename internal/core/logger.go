package core

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"
)

// ProductionLogger is the default Logger implementation: structured JSON
// under Kubernetes (KUBERNETES_SERVICE_HOST set) or an explicit
// AUDITCORE_LOG_FORMAT=json, human-readable text otherwise. Error logs are
// rate-limited so a Judge outage producing one failure per audit doesn't
// flood stdout.
type ProductionLogger struct {
	level       string
	format      string
	serviceName string
	component   string
	output      *os.File
	mu          sync.Mutex
	errorLimit  *rateLimiter
}

// NewProductionLogger builds a logger for serviceName at the given level
// ("DEBUG"|"INFO"|"WARN"|"ERROR") and format ("text"|"json"). An empty
// format auto-detects Kubernetes.
func NewProductionLogger(serviceName, level, format string) *ProductionLogger {
	if level == "" {
		level = "INFO"
	}
	if format == "" {
		format = "text"
		if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
			format = "json"
		}
	}
	return &ProductionLogger{
		level:       strings.ToUpper(level),
		format:      format,
		serviceName: serviceName,
		output:      os.Stdout,
		errorLimit:  newRateLimiter(time.Second),
	}
}

// WithComponent returns a logger that tags every line with component,
// without mutating the receiver (ComponentAwareLogger, spec.md ambient
// stack expansion).
func (p *ProductionLogger) WithComponent(component string) Logger {
	clone := *p
	clone.component = component
	return &clone
}

func (p *ProductionLogger) Info(msg string, fields map[string]interface{})  { p.log("INFO", msg, fields) }
func (p *ProductionLogger) Warn(msg string, fields map[string]interface{})  { p.log("WARN", msg, fields) }
func (p *ProductionLogger) Debug(msg string, fields map[string]interface{}) { p.log("DEBUG", msg, fields) }

func (p *ProductionLogger) Error(msg string, fields map[string]interface{}) {
	if !p.errorLimit.Allow() {
		return
	}
	p.log("ERROR", msg, fields)
}

func (p *ProductionLogger) InfoWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	p.log("INFO", msg, withBaggage(ctx, fields))
}
func (p *ProductionLogger) WarnWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	p.log("WARN", msg, withBaggage(ctx, fields))
}
func (p *ProductionLogger) DebugWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	p.log("DEBUG", msg, withBaggage(ctx, fields))
}
func (p *ProductionLogger) ErrorWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	if !p.errorLimit.Allow() {
		return
	}
	p.log("ERROR", msg, withBaggage(ctx, fields))
}

func withBaggage(ctx context.Context, fields map[string]interface{}) map[string]interface{} {
	if sid, ok := ctx.Value(sessionIDKey{}).(string); ok && sid != "" {
		merged := make(map[string]interface{}, len(fields)+1)
		for k, v := range fields {
			merged[k] = v
		}
		merged["sessionId"] = sid
		return merged
	}
	return fields
}

// sessionIDKey lets callers thread a session id into context for log
// correlation without importing the session package from core.
type sessionIDKey struct{}

// WithSessionID returns a context carrying sessionID for log correlation.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionIDKey{}, sessionID)
}

func (p *ProductionLogger) log(level, msg string, fields map[string]interface{}) {
	if !p.shouldLog(level) {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	ts := time.Now().Format(time.RFC3339)
	if p.format == "json" {
		entry := map[string]interface{}{
			"timestamp": ts,
			"level":     level,
			"service":   p.serviceName,
			"component": p.component,
			"message":   msg,
		}
		for k, v := range fields {
			entry[k] = v
		}
		if data, err := json.Marshal(entry); err == nil {
			fmt.Fprintln(p.output, string(data))
		}
		return
	}

	var b strings.Builder
	for k, v := range fields {
		fmt.Fprintf(&b, " %s=%v", k, v)
	}
	fmt.Fprintf(p.output, "%s [%s] [%s:%s] %s%s\n", ts, level, p.serviceName, p.component, msg, b.String())
}

func (p *ProductionLogger) shouldLog(level string) bool {
	order := map[string]int{"DEBUG": 0, "INFO": 1, "WARN": 2, "ERROR": 3}
	cur, ok1 := order[p.level]
	msg, ok2 := order[level]
	if !ok1 || !ok2 {
		return true
	}
	return msg >= cur
}

// rateLimiter allows at most one event per window, dropping the rest. It is
// the same shape as the teacher's telemetry.RateLimiter, kept private to
// core since logger.go is the only consumer here.
type rateLimiter struct {
	mu       sync.Mutex
	window   time.Duration
	lastSeen time.Time
}

func newRateLimiter(window time.Duration) *rateLimiter {
	return &rateLimiter{window: window}
}

func (r *rateLimiter) Allow() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	if now.Sub(r.lastSeen) < r.window {
		return false
	}
	r.lastSeen = now
	return true
}
