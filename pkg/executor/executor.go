// Package executor runs a validated test plan against the live target with
// bounded parallelism. One failing check never aborts the run: exceptions
// and timeouts become error-status result rows.
package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"mcpsentry/pkg/detectors"
	"mcpsentry/pkg/discovery"
	"mcpsentry/pkg/logger"
	"mcpsentry/pkg/planner"
	"mcpsentry/pkg/registry"
)

type Status string

const (
	StatusPass  Status = "pass"
	StatusFail  Status = "fail"
	StatusError Status = "error"
)

// TestResult is one executed check. Severity always comes from the
// registry's default for the check, never from the execution itself.
type TestResult struct {
	Category registry.Category   `json:"category"`
	Check    string              `json:"check"`
	Target   discovery.TargetRef `json:"target"`
	Status   Status              `json:"status"`
	Severity registry.Severity   `json:"severity"`
	Evidence string              `json:"evidence"`
	Latency  time.Duration       `json:"latency"`
}

// ResultSink receives each result as soon as its check completes. A sink
// write failure is fatal to the run: result durability is the correctness
// baseline.
type ResultSink interface {
	Write(result TestResult) error
}

// Summary aggregates a finished (or cancelled) execution.
type Summary struct {
	Total      int `json:"total"`
	Dispatched int `json:"dispatched"`
	Passed     int `json:"passed"`
	Failed     int `json:"failed"`
	Errors     int `json:"errors"`
}

// Config bounds one execution.
type Config struct {
	MaxParallel   int
	CheckTimeout  time.Duration
	ProgressEvery int
}

// ProgressFunc is invoked on a fixed cadence (every ProgressEvery completed
// checks, and once at the end), not per check.
type ProgressFunc func(completed, total int)

type Executor struct {
	client     discovery.TargetClient
	reg        *registry.Registry
	scanner    *detectors.Scanner
	sink       ResultSink
	cfg        Config
	onProgress ProgressFunc
	logger     *logger.Logger
}

func New(client discovery.TargetClient, reg *registry.Registry, scanner *detectors.Scanner, sink ResultSink, cfg Config, onProgress ProgressFunc) *Executor {
	if cfg.MaxParallel < 1 {
		cfg.MaxParallel = 1
	}
	if cfg.CheckTimeout <= 0 {
		cfg.CheckTimeout = 30 * time.Second
	}
	if cfg.ProgressEvery < 1 {
		cfg.ProgressEvery = 5
	}
	return &Executor{
		client:     client,
		reg:        reg,
		scanner:    scanner,
		sink:       sink,
		cfg:        cfg,
		onProgress: onProgress,
		logger:     logger.NewLogger(logrus.InfoLevel),
	}
}

// Run executes the plan. cancelled is checked before dispatching each
// check; already-dispatched checks complete normally and their results are
// kept. Returns an error only on sink write failure or context death —
// individual check failures are absorbed into result rows.
func (e *Executor) Run(ctx context.Context, snapshot *discovery.Snapshot, plan []planner.PlanEntry, cancelled func() bool) (*Summary, error) {
	total := len(plan)
	sem := semaphore.NewWeighted(int64(e.cfg.MaxParallel))

	var wg sync.WaitGroup
	var mu sync.Mutex
	summary := &Summary{Total: total}
	completed := 0
	var sinkErr error

	for _, entry := range plan {
		if cancelled != nil && cancelled() {
			e.logger.Info("Cancellation observed, no further checks dispatched", logger.Fields{
				"dispatched": summary.Dispatched,
				"total":      total,
			})
			break
		}
		mu.Lock()
		failed := sinkErr
		mu.Unlock()
		if failed != nil {
			break
		}

		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		summary.Dispatched++

		wg.Add(1)
		go func(entry planner.PlanEntry) {
			defer wg.Done()
			defer sem.Release(1)

			result := e.runCheck(ctx, snapshot, entry)

			mu.Lock()
			defer mu.Unlock()

			if err := e.sink.Write(result); err != nil {
				if sinkErr == nil {
					sinkErr = fmt.Errorf("persist result for %s/%s: %w", entry.Category, entry.Check, err)
				}
				return
			}

			switch result.Status {
			case StatusPass:
				summary.Passed++
			case StatusFail:
				summary.Failed++
			default:
				summary.Errors++
			}

			completed++
			if e.onProgress != nil && (completed%e.cfg.ProgressEvery == 0 || completed == total) {
				e.onProgress(completed, total)
			}
		}(entry)
	}

	wg.Wait()

	if sinkErr != nil {
		return summary, sinkErr
	}
	return summary, nil
}

// runCheck executes one plan entry with its own timeout, converting panics
// and errors into error-status results.
func (e *Executor) runCheck(ctx context.Context, snapshot *discovery.Snapshot, entry planner.PlanEntry) (result TestResult) {
	check, ok := e.reg.Lookup(entry.Category, entry.Check)
	if !ok {
		// The planner validates before execution; reaching this means the
		// plan was corrupted in storage.
		return TestResult{
			Category: entry.Category,
			Check:    entry.Check,
			Target:   entry.Target,
			Status:   StatusError,
			Evidence: "check not present in registry",
		}
	}

	result = TestResult{
		Category: entry.Category,
		Check:    entry.Check,
		Target:   entry.Target,
		Severity: check.Severity,
	}

	start := time.Now()
	defer func() {
		result.Latency = time.Since(start)
		if r := recover(); r != nil {
			e.logger.Error("Panic in check execution", logger.Fields{
				"check": entry.Check, "target": entry.Target.Name, "panic": r,
			})
			result.Status = StatusError
			result.Evidence = fmt.Sprintf("panic during check execution: %v", r)
		}
	}()

	checkCtx, cancel := context.WithTimeout(ctx, e.cfg.CheckTimeout)
	defer cancel()

	outcome, err := check.Run(checkCtx, registry.CheckInput{
		Client:   e.client,
		Snapshot: snapshot,
		Target:   entry.Target,
		Params:   entry.Params,
	})
	if err != nil {
		result.Status = StatusError
		if checkCtx.Err() == context.DeadlineExceeded {
			result.Evidence = fmt.Sprintf("check timed out after %s", e.cfg.CheckTimeout)
		} else {
			result.Evidence = fmt.Sprintf("check raised: %v", err)
		}
		return result
	}

	// A check that folded a deadline expiry into its own verdict is still
	// a timeout, not a finding.
	if checkCtx.Err() == context.DeadlineExceeded {
		result.Status = StatusError
		result.Evidence = fmt.Sprintf("check timed out after %s", e.cfg.CheckTimeout)
		return result
	}

	result.Evidence = outcome.Evidence

	// Sensitive-data detectors run over every response captured by a
	// leakage-category check; any match overrides a structural pass.
	if entry.Category == registry.CategoryDataLeakage && e.scanner != nil && outcome.Response != "" {
		if matches := e.scanner.Scan(outcome.Response); len(matches) > 0 {
			result.Status = StatusFail
			result.Evidence = leakEvidence(outcome.Evidence, matches)
			return result
		}
	}

	if outcome.Passed {
		result.Status = StatusPass
	} else {
		result.Status = StatusFail
	}
	return result
}

func leakEvidence(base string, matches []detectors.Match) string {
	evidence := base
	for _, m := range matches {
		evidence += fmt.Sprintf("; detector %s (%s/%s) matched near %q", m.Pattern, m.Kind, m.Severity, m.Excerpt)
	}
	return evidence
}
