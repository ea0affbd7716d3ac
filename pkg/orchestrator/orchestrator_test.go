package orchestrator

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scanforge/scanforge/pkg/adapter"
	"github.com/scanforge/scanforge/pkg/finding"
	"github.com/scanforge/scanforge/pkg/metrics"
)

type fakeAdapter struct {
	name     string
	supports bool
	run      func(ctx context.Context, cfg adapter.Config) ([]finding.Finding, error)
}

func (f *fakeAdapter) Name() string                 { return f.name }
func (f *fakeAdapter) Kind() finding.Kind           { return finding.KindCode }
func (f *fakeAdapter) Supports(adapter.Target) bool { return f.supports }
func (f *fakeAdapter) Run(ctx context.Context, _ adapter.Target, cfg adapter.Config) ([]finding.Finding, error) {
	return f.run(ctx, cfg)
}

func returning(name string, n int, err error) *fakeAdapter {
	return &fakeAdapter{name: name, supports: true, run: func(context.Context, adapter.Config) ([]finding.Finding, error) {
		fs := make([]finding.Finding, n)
		for i := range fs {
			fs[i] = finding.Finding{Scanner: name, RuleID: "r", FilePath: "a.py", LineStart: i + 1, Severity: finding.Low}
		}
		return fs, err
	}}
}

func blocking(name string) *fakeAdapter {
	return &fakeAdapter{name: name, supports: true, run: func(ctx context.Context, _ adapter.Config) ([]finding.Finding, error) {
		<-ctx.Done()
		return nil, &adapter.ExecutionError{Scanner: name, Status: adapter.StatusTimeout, Err: ctx.Err()}
	}}
}

var target = adapter.Target{Path: "."}

func statusByName(res Result) map[string]Status {
	m := make(map[string]Status, len(res.Statuses))
	for _, s := range res.Statuses {
		m[s.Name] = s
	}
	return m
}

func TestRun_AllSucceed(t *testing.T) {
	res, err := Run(context.Background(), []adapter.Adapter{
		returning("semgrep", 2, nil),
		returning("bandit", 3, nil),
	}, target, Options{})
	require.NoError(t, err)
	assert.Len(t, res.Findings, 5)
	require.Len(t, res.Statuses, 2)
	assert.Equal(t, "bandit", res.Statuses[0].Name, "statuses sorted by name")
	assert.Equal(t, 3, res.Statuses[0].Findings)
	assert.True(t, res.Statuses[1].OK())
}

func TestRun_PartialIsOKAndMarked(t *testing.T) {
	partial := &adapter.PartialOutputError{Scanner: "bandit", Diagnostic: "1 of 3 entries unparseable"}
	res, err := Run(context.Background(), []adapter.Adapter{returning("bandit", 2, partial)}, target, Options{})
	require.NoError(t, err)
	st := res.Statuses[0]
	assert.Equal(t, adapter.StatusOK, st.Status)
	assert.True(t, st.Partial)
	assert.Len(t, res.Findings, 2)
}

func TestRun_CrashedKeepsFindings(t *testing.T) {
	crash := &adapter.ExecutionError{Scanner: "trivy", Status: adapter.StatusCrashed, ExitCode: 2}
	res, err := Run(context.Background(), []adapter.Adapter{
		returning("trivy", 1, crash),
		returning("bandit", 1, nil),
	}, target, Options{})
	require.NoError(t, err)
	st := statusByName(res)
	assert.Equal(t, adapter.StatusCrashed, st["trivy"].Status)
	assert.Contains(t, st["trivy"].Error, "exit 2")
	assert.Len(t, res.Findings, 2)
}

// Scenario: A ok, B ok, C exceeds its timeout. The run succeeds with the
// findings of A and B, and C reads as timeout.
func TestRun_AdapterTimeoutIsolated(t *testing.T) {
	res, err := Run(context.Background(), []adapter.Adapter{
		returning("a", 2, nil),
		returning("b", 1, nil),
		blocking("c"),
	}, target, Options{AdapterTimeout: 50 * time.Millisecond})
	require.NoError(t, err)
	st := statusByName(res)
	assert.Equal(t, adapter.StatusOK, st["a"].Status)
	assert.Equal(t, adapter.StatusOK, st["b"].Status)
	assert.Equal(t, adapter.StatusTimeout, st["c"].Status)
	assert.Equal(t, 0, st["c"].Findings)
	assert.Len(t, res.Findings, 3)
}

func TestRun_RunDeadlineCancelsRemaining(t *testing.T) {
	res, err := Run(context.Background(), []adapter.Adapter{
		blocking("a"),
		blocking("b"),
		blocking("c"),
	}, target, Options{MaxConcurrency: 1, RunDeadline: 50 * time.Millisecond})
	assert.ErrorIs(t, err, ErrAllAdaptersFailed)
	require.Len(t, res.Statuses, 3, "every adapter gets a status, even ones never started")
	for _, s := range res.Statuses {
		assert.Equal(t, adapter.StatusTimeout, s.Status, s.Name)
	}
}

func TestRun_CancelledErrorStillReadsTimeout(t *testing.T) {
	sloppy := &fakeAdapter{name: "x", supports: true, run: func(ctx context.Context, _ adapter.Config) ([]finding.Finding, error) {
		<-ctx.Done()
		return []finding.Finding{{Scanner: "x"}}, errors.New("pipe closed")
	}}
	res, err := Run(context.Background(), []adapter.Adapter{sloppy, returning("y", 0, nil)}, target,
		Options{AdapterTimeout: 20 * time.Millisecond})
	require.NoError(t, err)
	st := statusByName(res)
	assert.Equal(t, adapter.StatusTimeout, st["x"].Status)
	assert.Empty(t, res.Findings, "timed-out adapter findings are discarded")
}

func TestRun_AllFailed(t *testing.T) {
	missing := &adapter.ExecutionError{Scanner: "a", Status: adapter.StatusNotInstalled}
	res, err := Run(context.Background(), []adapter.Adapter{
		returning("a", 0, missing),
		returning("b", 0, errors.New("boom")),
	}, target, Options{})
	assert.ErrorIs(t, err, ErrAllAdaptersFailed)
	st := statusByName(res)
	assert.Equal(t, adapter.StatusNotInstalled, st["a"].Status)
	assert.Equal(t, adapter.StatusCrashed, st["b"].Status)
}

func TestRun_NoAdapters(t *testing.T) {
	_, err := Run(context.Background(), nil, target, Options{})
	assert.ErrorIs(t, err, ErrNoAdapters)

	unsupported := returning("nuclei", 1, nil)
	unsupported.supports = false
	_, err = Run(context.Background(), []adapter.Adapter{unsupported}, target, Options{})
	assert.ErrorIs(t, err, ErrNoAdapters)
}

func TestRun_PanicBecomesCrashed(t *testing.T) {
	bad := &fakeAdapter{name: "bad", supports: true, run: func(context.Context, adapter.Config) ([]finding.Finding, error) {
		panic("nil map")
	}}
	res, err := Run(context.Background(), []adapter.Adapter{bad, returning("ok", 1, nil)}, target, Options{})
	require.NoError(t, err)
	st := statusByName(res)
	assert.Equal(t, adapter.StatusCrashed, st["bad"].Status)
	assert.Contains(t, st["bad"].Error, "panic")
}

func TestRun_BoundedConcurrency(t *testing.T) {
	var cur, peak atomic.Int32
	mk := func(name string) adapter.Adapter {
		return &fakeAdapter{name: name, supports: true, run: func(context.Context, adapter.Config) ([]finding.Finding, error) {
			n := cur.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			cur.Add(-1)
			return nil, nil
		}}
	}
	adapters := []adapter.Adapter{mk("a"), mk("b"), mk("c"), mk("d"), mk("e"), mk("f")}
	_, err := Run(context.Background(), adapters, target, Options{MaxConcurrency: 2})
	require.NoError(t, err)
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestRun_PassesPerScannerConfig(t *testing.T) {
	var got adapter.Config
	a := &fakeAdapter{name: "semgrep", supports: true, run: func(_ context.Context, cfg adapter.Config) ([]finding.Finding, error) {
		got = cfg
		return nil, nil
	}}
	_, err := Run(context.Background(), []adapter.Adapter{a}, target, Options{
		Configs: map[string]adapter.Config{"semgrep": {Rulesets: []string{"p/ci"}}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"p/ci"}, got.Rulesets)
}

func TestRun_OnStatusAndMetrics(t *testing.T) {
	rec, err := metrics.New()
	require.NoError(t, err)
	var seen atomic.Int32
	_, err = Run(context.Background(), []adapter.Adapter{returning("a", 1, nil), returning("b", 1, nil)}, target, Options{
		Metrics:  rec,
		OnStatus: func(Status) { seen.Add(1) },
	})
	require.NoError(t, err)
	assert.Equal(t, int32(2), seen.Load())
}
