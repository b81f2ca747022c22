package jobs

import (
	"context"
	"errors"
	"testing"

	"CoopLedgerSaas/internal/config"
	"CoopLedgerSaas/internal/errs"
	"CoopLedgerSaas/internal/extraction"
	"CoopLedgerSaas/internal/matching"
	"CoopLedgerSaas/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakePending struct {
	ids    []int64
	err    error
	status model.StatementStatus
	limit  int
}

func (f *fakePending) StatementIDsByStatus(_ context.Context, status model.StatementStatus, limit int) ([]int64, error) {
	f.status, f.limit = status, limit
	return f.ids, f.err
}

type fakeExtractor struct{ calls [][]int64 }

func (f *fakeExtractor) Run(_ context.Context, ids []int64, _ func(extraction.Result)) []extraction.Result {
	f.calls = append(f.calls, ids)
	out := make([]extraction.Result, len(ids))
	for i, id := range ids {
		out[i] = extraction.Result{StatementID: id}
	}
	out[0].Err = errs.Validation("boom")
	return out
}

type fakeMatcher struct {
	thresholds []float64
	err        error
}

func (f *fakeMatcher) Run(_ context.Context, threshold float64) ([]matching.Result, error) {
	f.thresholds = append(f.thresholds, threshold)
	return nil, f.err
}

func TestSweepExtractsThenMatches(t *testing.T) {
	p := &fakePending{ids: []int64{4, 5}}
	x := &fakeExtractor{}
	m := &fakeMatcher{}
	s := NewCronService(config.JobsConfig{}, 0.75, p, x, m, zap.NewNop())

	require.NoError(t, s.Sweep(context.Background()))
	assert.Equal(t, model.StatementUploaded, p.status)
	assert.Equal(t, config.SweepBatchSize, p.limit)
	assert.Equal(t, [][]int64{{4, 5}}, x.calls)
	assert.Equal(t, []float64{0.75}, m.thresholds)
}

func TestSweepWithNothingPendingStillMatches(t *testing.T) {
	x := &fakeExtractor{}
	m := &fakeMatcher{}
	s := NewCronService(config.JobsConfig{}, 0.7, &fakePending{}, x, m, zap.NewNop())

	require.NoError(t, s.Sweep(context.Background()))
	assert.Empty(t, x.calls)
	assert.Len(t, m.thresholds, 1)
}

func TestSweepReportsErrors(t *testing.T) {
	s := NewCronService(config.JobsConfig{}, 0.7, &fakePending{err: errors.New("db down")}, &fakeExtractor{}, &fakeMatcher{}, zap.NewNop())
	assert.ErrorContains(t, s.Sweep(context.Background()), "db down")

	s = NewCronService(config.JobsConfig{}, 0.7, &fakePending{}, &fakeExtractor{}, &fakeMatcher{err: errors.New("roster")}, zap.NewNop())
	assert.ErrorContains(t, s.Sweep(context.Background()), "auto-match")
}

func TestStartRejectsBadSchedule(t *testing.T) {
	s := NewCronService(config.JobsConfig{Enabled: true, ExtractionSchedule: "not a schedule"}, 0.7, &fakePending{}, &fakeExtractor{}, &fakeMatcher{}, zap.NewNop())
	assert.Error(t, s.Start())
}

func TestStartStopLifecycle(t *testing.T) {
	s := NewCronService(config.JobsConfig{Enabled: true, TimeZone: "Asia/Kolkata"}, 0.7, &fakePending{}, &fakeExtractor{}, &fakeMatcher{}, zap.NewNop())
	require.NoError(t, s.Start())
	assert.Len(t, s.cron.Entries(), 1)
	assert.NoError(t, s.Stop())

	disabled := NewCronService(config.JobsConfig{}, 0.7, &fakePending{}, &fakeExtractor{}, &fakeMatcher{}, zap.NewNop())
	require.NoError(t, disabled.Start())
	assert.NoError(t, disabled.Stop())
}
