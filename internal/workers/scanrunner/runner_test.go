package scanrunner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cybersentinel/internal/adapters/memory"
	"cybersentinel/internal/domain"
	"cybersentinel/internal/logging"
	"cybersentinel/internal/progress"
	"cybersentinel/internal/seed"
	"cybersentinel/internal/services/discovery"
)

type fixture struct {
	store *memory.Store
	disc  *discovery.Service
	hub   *progress.Hub
	run   Runner
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	store := memory.New()
	disc, err := discovery.New(store, store, nil, 4, logging.Discard())
	require.NoError(t, err)
	require.NoError(t, disc.Import(context.Background(), seed.Default()))
	hub := progress.NewHub()
	proc := SimulatedProcessor{Jobs: store, Scans: store, Subdomains: store, Hub: hub, Step: time.Millisecond, Steps: 3}
	return fixture{
		store: store,
		disc:  disc,
		hub:   hub,
		run:   Runner{Repo: store, Processor: proc, Hub: hub, Log: logging.Discard()},
	}
}

func TestProcessInlineRescan(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	scanID, err := f.disc.Rescan(ctx, "7")
	require.NoError(t, err)
	events, cancel := f.hub.Subscribe(ctx, scanID)
	defer cancel()

	require.NoError(t, f.run.ProcessInline(ctx, scanID))

	scan, err := f.store.Get(ctx, scanID)
	require.NoError(t, err)
	assert.Equal(t, domain.ScanCompleted, scan.Status)
	assert.Equal(t, 1.0, scan.Progress)
	require.NotNil(t, scan.FinishedAt)

	var last progress.Event
	n := 0
	for ev := range events {
		last = ev
		n++
	}
	assert.Equal(t, domain.ScanCompleted, last.Status)
	assert.GreaterOrEqual(t, n, 2)

	recs, err := f.store.ListByRoot(ctx, "company.com")
	require.NoError(t, err)
	for _, r := range recs {
		if r.ID == "7" {
			assert.NotNil(t, r.LastScannedAt)
		} else {
			assert.Nil(t, r.LastScannedAt, r.Name)
		}
	}

	// the job is no longer queued
	err = f.run.ProcessInline(ctx, scanID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRunProcessesDiscoverAll(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	scanID, err := f.disc.DiscoverAll(ctx, "company.com")
	require.NoError(t, err)
	f.run.Run(ctx, 2, 5*time.Millisecond)

	assert.Eventually(t, func() bool {
		scan, err := f.store.Get(ctx, scanID)
		return err == nil && scan.Status == domain.ScanCompleted
	}, 2*time.Second, 10*time.Millisecond)

	recs, err := f.store.ListByRoot(ctx, "company.com")
	require.NoError(t, err)
	for _, r := range recs {
		assert.NotNil(t, r.LastScannedAt, r.Name)
	}
}

type failingProcessor struct{}

func (failingProcessor) Process(context.Context, string) error { return errors.New("resolver unavailable") }

func TestFailedJobIsRecorded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.run.Processor = failingProcessor{}

	scanID, err := f.disc.Rescan(ctx, "2")
	require.NoError(t, err)
	err = f.run.ProcessInline(ctx, scanID)
	require.Error(t, err)

	scan, err := f.store.Get(ctx, scanID)
	require.NoError(t, err)
	assert.Equal(t, domain.ScanFailed, scan.Status)
	assert.Equal(t, "resolver unavailable", scan.Error)
}

func TestProcessorStopsOnCancel(t *testing.T) {
	f := newFixture(t)
	scanID, err := f.disc.Rescan(context.Background(), "2")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	proc := SimulatedProcessor{Jobs: f.store, Scans: f.store, Subdomains: f.store, Step: time.Second, Steps: 4}
	err = proc.Process(ctx, scanID)
	assert.ErrorIs(t, err, context.Canceled)
}
