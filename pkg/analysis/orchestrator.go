package analysis

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/evidencepack/pkg/observability"
)

// Defaults.
const (
	DefaultWorkers = 4
	DefaultTimeout = 5 * time.Minute
)

// Skip reasons.
const (
	ReasonNotApplicable = "no matching stack detected"
	ReasonDisabled      = "disabled by configuration"
)

// Orchestrator schedules analyzers. The zero value is usable.
type Orchestrator struct {
	// Workers bounds concurrent invocations (default 4).
	Workers int
	// Timeout bounds each invocation (default 5m).
	Timeout time.Duration
	// Timeouts overrides Timeout per analyzer name.
	Timeouts map[string]time.Duration
	// Disabled analyzers are skipped without being invoked.
	Disabled []string
	Logger   *log.Logger
}

// Run invokes analyzers and returns one result per analyzer, sorted by
// name. Independent analyzers run first, concurrently; analyzers with
// DependsOn run in a second wave and see their dependency's result.
//
// If ctx is cancelled, Run returns ctx.Err() and no results.
func (o *Orchestrator) Run(ctx context.Context, req Request, analyzers []Analyzer) ([]Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	logger := o.logger()

	byName := make(map[string]Info, len(analyzers))
	for _, a := range analyzers {
		info := a.Info()
		if info.Name == "" {
			return nil, fmt.Errorf("analyzer with empty name")
		}
		if _, dup := byName[info.Name]; dup {
			return nil, fmt.Errorf("duplicate analyzer %q", info.Name)
		}
		byName[info.Name] = info
	}

	rs := &resultSet{m: make(map[string]Result, len(analyzers))}
	var independent, dependent []Analyzer
	for _, a := range analyzers {
		info := a.Info()
		if reason, skip := o.precheck(info, req); skip {
			rs.put(o.skip(ctx, info.Name, reason))
			continue
		}
		if info.DependsOn != "" {
			dependent = append(dependent, a)
		} else {
			independent = append(independent, a)
		}
	}

	o.wave(ctx, req, independent, rs)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var second []Analyzer
	upstream := map[string]*Result{}
	for _, a := range dependent {
		info := a.Info()
		dep, known := byName[info.DependsOn]
		switch {
		case !known:
			rs.put(o.skip(ctx, info.Name, fmt.Sprintf("unknown dependency %s", info.DependsOn)))
			continue
		case dep.DependsOn != "":
			rs.put(o.skip(ctx, info.Name, fmt.Sprintf("dependency %s is itself dependent", info.DependsOn)))
			continue
		}
		up, ok := rs.get(info.DependsOn)
		if !ok || !up.Usable() {
			rs.put(o.skip(ctx, info.Name, fmt.Sprintf("dependency %s did not succeed", info.DependsOn)))
			continue
		}
		upstream[info.Name] = &up
		second = append(second, a)
	}

	o.waveWith(ctx, req, second, rs, upstream)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	results := rs.sorted()
	logger.Debug("analysis complete", "analyzers", len(results))
	return results, nil
}

func (o *Orchestrator) precheck(info Info, req Request) (string, bool) {
	if slices.Contains(o.Disabled, info.Name) {
		return ReasonDisabled, true
	}
	if !info.Generic && !req.Profile.HasAnyRuntime(info.Runtimes...) {
		return ReasonNotApplicable, true
	}
	if info.Credential != "" && !req.Credentials.Configured(info.Credential) {
		return fmt.Sprintf("credential %s not configured", info.Credential), true
	}
	return "", false
}

func (o *Orchestrator) skip(ctx context.Context, name, reason string) Result {
	r := Skipped(reason)
	r.Analyzer = name
	o.logger().Debug("analyzer skipped", "analyzer", name, "reason", reason)
	observability.Analyzers().OnAnalyzerComplete(ctx, name, string(r.Status), 0)
	return r
}

func (o *Orchestrator) wave(ctx context.Context, req Request, analyzers []Analyzer, rs *resultSet) {
	o.waveWith(ctx, req, analyzers, rs, nil)
}

func (o *Orchestrator) waveWith(ctx context.Context, req Request, analyzers []Analyzer, rs *resultSet, upstream map[string]*Result) {
	if len(analyzers) == 0 {
		return
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.workers())
	for _, a := range analyzers {
		g.Go(func() error {
			r := req
			r.Upstream = upstream[a.Info().Name]
			rs.put(o.invoke(gctx, a, r))
			return nil
		})
	}
	_ = g.Wait()
}

// invoke runs one analyzer under its timeout and converts panics and
// invalid statuses into failed results.
func (o *Orchestrator) invoke(ctx context.Context, a Analyzer, req Request) Result {
	info := a.Info()
	timeout := o.timeoutFor(info)
	logger := o.logger().With("analyzer", info.Name)
	if req.Logger == nil {
		req.Logger = logger
	}

	observability.Analyzers().OnAnalyzerStart(ctx, info.Name)
	start := time.Now()

	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan Result, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- Failedf("panic: %v", p)
			}
		}()
		done <- a.Invoke(tctx, req)
	}()

	var res Result
	select {
	case res = <-done:
		if errors.Is(tctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil && !res.Usable() {
			res = Failedf("timed out after %s", timeout)
		}
	case <-tctx.Done():
		if ctx.Err() != nil {
			res = Failed("cancelled")
		} else {
			res = Failedf("timed out after %s", timeout)
		}
	}
	if !res.Status.Valid() {
		res = Failedf("invalid result status %q", res.Status)
	}
	res.Analyzer = info.Name
	res.Duration = time.Since(start)

	switch res.Status {
	case StatusFailed:
		logger.Warn("analyzer failed", "reason", res.Reason, "duration", res.Duration)
	case StatusPartial:
		logger.Info("analyzer finished", "status", res.Status, "warnings", len(res.Warnings), "duration", res.Duration)
	default:
		logger.Info("analyzer finished", "status", res.Status, "duration", res.Duration)
	}
	observability.Analyzers().OnAnalyzerComplete(ctx, info.Name, string(res.Status), res.Duration)
	return res
}

func (o *Orchestrator) timeoutFor(info Info) time.Duration {
	if d, ok := o.Timeouts[info.Name]; ok && d > 0 {
		return d
	}
	if info.Timeout > 0 {
		return info.Timeout
	}
	if o.Timeout > 0 {
		return o.Timeout
	}
	return DefaultTimeout
}

func (o *Orchestrator) workers() int {
	if o.Workers > 0 {
		return o.Workers
	}
	return DefaultWorkers
}

func (o *Orchestrator) logger() *log.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return log.Default()
}

type resultSet struct {
	mu sync.Mutex
	m  map[string]Result
}

func (s *resultSet) put(r Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[r.Analyzer] = r
}

func (s *resultSet) get(name string) (Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.m[name]
	return r, ok
}

func (s *resultSet) sorted() []Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Result, 0, len(s.m))
	for _, r := range s.m {
		out = append(out, r)
	}
	slices.SortFunc(out, func(a, b Result) int { return cmp.Compare(a.Analyzer, b.Analyzer) })
	return out
}

// Names returns the analyzer names in order.
func Names(analyzers []Analyzer) []string {
	out := make([]string, len(analyzers))
	for i, a := range analyzers {
		out[i] = a.Info().Name
	}
	return out
}

// Summary formats status counts, e.g. "3 ok, 1 skipped".
func Summary(results []Result) string {
	counts := map[Status]int{}
	for _, r := range results {
		counts[r.Status]++
	}
	var parts []string
	for _, s := range []Status{StatusOK, StatusPartial, StatusFailed, StatusSkipped} {
		if counts[s] > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", counts[s], s))
		}
	}
	return strings.Join(parts, ", ")
}
