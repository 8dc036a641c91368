// Command auditengine is a minimal stdio demonstration harness for the
// audit engine (spec.md §4: this library deliberately has no MCP or HTTP
// transport of its own). It wires every singleton from Config the way
// spec.md §9 describes ("process-wide mutable singletons owned by a
// top-level executor value"), reads one JSON-encoded Thought per line from
// stdin, and writes one JSON-encoded auditor.Result per line to stdout.
// Grounded on itsneelabh/gomind's cmd/example/main.go for the
// construct-then-run shape of a small main package.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/kestrelcode/auditcore/internal/auditor"
	"github.com/kestrelcode/auditcore/internal/cache"
	"github.com/kestrelcode/auditcore/internal/completion"
	"github.com/kestrelcode/auditcore/internal/core"
	"github.com/kestrelcode/auditcore/internal/engine"
	"github.com/kestrelcode/auditcore/internal/judge"
	"github.com/kestrelcode/auditcore/internal/prompt"
	"github.com/kestrelcode/auditcore/internal/queue"
	"github.com/kestrelcode/auditcore/internal/resilience"
	"github.com/kestrelcode/auditcore/internal/resourcemgr"
	"github.com/kestrelcode/auditcore/internal/session"
	"github.com/kestrelcode/auditcore/internal/telemetry"
)

func main() {
	cfg, err := core.NewConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "auditcore: invalid configuration:", err)
		os.Exit(1)
	}

	logger := core.NewProductionLogger("auditcore", cfg.Logging.Level, cfg.Logging.Format)
	cfg, err = core.NewConfig(core.WithLogger(logger))
	if err != nil {
		fmt.Fprintln(os.Stderr, "auditcore: invalid configuration:", err)
		os.Exit(1)
	}

	a, resMgr, sessions, err := build(cfg, logger)
	if err != nil {
		logger.Error("failed to build audit engine", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}
	defer resMgr.Close()
	if closer, ok := sessions.(io.Closer); ok {
		defer closer.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	resMgr.StartWatermarkLoop(ctx, time.Duration(cfg.Resources.GCIntervalMS)*time.Millisecond)

	runLoop(ctx, a, os.Stdin, os.Stdout, logger)
}

// build wires every process-wide singleton spec.md §9 describes: the
// audit cache (the only LRU cache it builds), the audit queue, the session store selected by
// Session.Backend, a (resilience-wrapped) Judge Adapter, the prompt
// engine, the completion evaluator/detector, the Resource Manager, and
// finally the Engine and the Prompt-Driven Auditor around it.
func build(cfg *core.Config, logger core.Logger) (*auditor.Auditor, *resourcemgr.Manager, session.Store, error) {
	meter := telemetry.NewMeter("auditcore")

	auditCache := cache.NewLRUCache[core.Review](
		cfg.Cache.Audit.MaxEntries,
		time.Duration(cfg.Cache.Audit.MaxAgeMS)*time.Millisecond,
		cfg.Cache.Audit.MaxMemoryBytes,
	)

	sessions, err := buildSessionStore(cfg)
	if err != nil {
		return nil, nil, nil, err
	}

	resMgr := resourcemgr.New(cfg.Resources, logger, meter)
	wireSessionCleanup(resMgr, sessions, cfg)

	auditQueue := queue.NewAuditQueue(cfg.Audit.QueueMaxConcurrent, logger)

	judgeAdapter := buildJudge(cfg, logger)

	promptEngine, err := prompt.NewEngine(cfg.Prompt.TemplatePath, logger)
	if err != nil {
		return nil, nil, nil, err
	}

	evaluator, err := completion.NewEvaluator(cfg.Completion)
	if err != nil {
		return nil, nil, nil, err
	}
	detector := completion.NewDetector(cfg.Completion.Stagnation)

	eng := engine.New(engine.Config{
		Judge:                judgeAdapter,
		Queue:                auditQueue,
		Sessions:             nil, // the Auditor owns the single canonical session append
		AuditCache:           auditCache,
		Logger:               logger,
		Timeout:              cfg.AuditTimeout(),
		Enabled:              cfg.Audit.Enabled,
		RequireLanguageFence: cfg.Audit.RequireLanguageFence,
		Resources:            resMgr,
	})

	aud := auditor.New(auditor.Config{
		Engine:     eng,
		Sessions:   sessions,
		Completion: evaluator,
		Stagnation: detector,
		Prompt:     promptEngine,
		Logger:     logger,
		Identity:   cfg.Identity,
		Quality: auditor.QualityConfig{
			ModelContextTokens:  cfg.Context.MaxSize,
			MaxIterations:       cfg.Completion.HardStop.MaxLoops,
			StagnationThreshold: cfg.Completion.Stagnation.SimilarityThreshold,
			QualityDimensions:   "correctness, maintainability, security",
			CompletionTiers:     renderTiers(cfg.Completion),
			KillSwitches:        renderKillSwitches(cfg.Completion),
		},
	})

	return aud, resMgr, sessions, nil
}

func buildSessionStore(cfg *core.Config) (session.Store, error) {
	switch cfg.Session.Backend {
	case "file":
		return session.NewFileStore(cfg.Session.StateDirectory)
	case "redis":
		return session.NewRedisStore(cfg.Session.RedisURL, "auditcore:session", time.Duration(cfg.Session.MaxAgeMS)*time.Millisecond)
	default:
		return session.NewInMemoryStore(), nil
	}
}

// wireSessionCleanup registers a low-priority cleanup task that sweeps
// sessions older than Session.MaxAgeMS, so the Resource Manager's cleanup
// chain (spec.md §5) actually reclaims the Session Store's own memory
// under pressure instead of only ever freeing caches.
func wireSessionCleanup(resMgr *resourcemgr.Manager, sessions session.Store, cfg *core.Config) {
	maxAge := time.Duration(cfg.Session.MaxAgeMS) * time.Millisecond
	resMgr.RegisterCleanup(resourcemgr.CleanupTask{
		Name:     "session-sweep",
		Priority: 1,
		Critical: false,
		Fn: func(ctx context.Context) error {
			_, err := sessions.Sweep(ctx, maxAge)
			return err
		},
	})
}

// buildJudge selects an HTTPJudge if AUDITCORE_JUDGE_ENDPOINT is set,
// falling back to the deterministic MockJudge otherwise (useful for
// demonstration and for the test suite's own end-to-end runs), and wraps
// either in a ResilientJudge per spec.md §4.1.
func buildJudge(cfg *core.Config, logger core.Logger) judge.Adapter {
	var inner judge.Adapter
	if endpoint := os.Getenv("AUDITCORE_JUDGE_ENDPOINT"); endpoint != "" {
		inner = judge.NewHTTPJudge(endpoint, cfg.AuditTimeout(), logger)
	} else {
		inner = judge.NewMockJudge()
	}

	retryCfg := resilience.DefaultRetryConfig()
	retryCfg.MaxAttempts = cfg.Audit.JudgeRetryAttempts

	breaker := resilience.New(resilience.DefaultConfig("judge"))
	return judge.NewResilientJudge(inner, breaker, retryCfg, logger)
}

func renderTiers(c core.CompletionCriteria) string {
	return fmt.Sprintf(
		"Tier 1: score>=%d for %d loops. Tier 2: score>=%d for %d loops. Tier 3: score>=%d for %d loops. Hard stop at loop %d.",
		c.Tier1.Score, c.Tier1.MinLoops, c.Tier2.Score, c.Tier2.MinLoops, c.Tier3.Score, c.Tier3.MinLoops, c.HardStop.MaxLoops,
	)
}

func renderKillSwitches(c core.CompletionCriteria) string {
	return "Terminate early on stagnation (similarity >= " + strconv.FormatFloat(c.Stagnation.SimilarityThreshold, 'f', 2, 64) +
		" after loop " + strconv.Itoa(c.Stagnation.StartLoop) + ") or when the hard stop loop is reached."
}

// runLoop reads one JSON core.Thought per line from r and writes one JSON
// auditor.Result (or a JSON error envelope) per line to w, until r is
// exhausted or ctx is canceled.
func runLoop(ctx context.Context, a *auditor.Auditor, r *os.File, w *os.File, logger core.Logger) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	encoder := json.NewEncoder(w)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var thought core.Thought
		if err := json.Unmarshal(line, &thought); err != nil {
			_ = encoder.Encode(errorEnvelope{Error: "invalid request: " + err.Error()})
			continue
		}

		result, err := a.Audit(ctx, thought)
		if err != nil {
			logger.Warn("audit failed", map[string]interface{}{"error": err.Error()})
			_ = encoder.Encode(errorEnvelope{Error: err.Error()})
			continue
		}
		if err := encoder.Encode(result); err != nil {
			logger.Error("failed to encode result", map[string]interface{}{"error": err.Error()})
		}
	}
}

type errorEnvelope struct {
	Error string `json:"error"`
}
