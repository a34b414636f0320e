package scanrunner

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"cybersentinel/internal/domain"
	"cybersentinel/internal/ports"
	"cybersentinel/internal/progress"
)

// ScanProcessor performs the scan work for a job's scan id.
type ScanProcessor interface {
	Process(ctx context.Context, scanID string) error
}

// SimulatedProcessor advances a scan in fixed steps without touching the
// network, then stamps every covered node as scanned.
type SimulatedProcessor struct {
	Jobs       ports.JobRepository
	Scans      ports.ScanRepository
	Subdomains ports.SubdomainRepository
	Hub        *progress.Hub
	Step       time.Duration
	Steps      int
}

func (p SimulatedProcessor) Process(ctx context.Context, scanID string) error {
	scan, err := p.Scans.Get(ctx, scanID)
	if err != nil {
		return err
	}
	steps := p.Steps
	if steps < 1 {
		steps = 4
	}
	for i := 0; i < steps; i++ {
		pct := float64(i) / float64(steps)
		if err := p.report(ctx, scanID, pct, "scanning "+scan.Target); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.Step):
		}
	}

	ids := []string{scan.SubdomainID}
	if scan.Kind == domain.ScanDiscover {
		recs, err := p.Subdomains.ListByRoot(ctx, scan.Root)
		if err != nil {
			return err
		}
		ids = ids[:0]
		for _, n := range recs {
			ids = append(ids, n.ID)
		}
	}
	if err := p.Subdomains.MarkScanned(ctx, ids, time.Now().UTC()); err != nil {
		return err
	}
	return p.report(ctx, scanID, 1, "")
}

func (p SimulatedProcessor) report(ctx context.Context, scanID string, pct float64, msg string) error {
	if err := p.Jobs.UpdateScanProgress(ctx, scanID, pct); err != nil {
		return err
	}
	if p.Hub != nil {
		p.Hub.Publish(progress.Event{ScanID: scanID, Status: domain.ScanRunning, Progress: pct, Message: msg})
	}
	return nil
}

// Runner claims queued jobs and hands them to a processor. Terminal states
// are published to the hub once the repository has recorded them.
type Runner struct {
	Repo      ports.JobRepository
	Processor ScanProcessor
	Hub       *progress.Hub
	Log       logrus.FieldLogger
}

// Run starts worker goroutines that claim jobs and process them. It returns
// immediately; workers stop when ctx is done.
func (r Runner) Run(ctx context.Context, concurrency int, pollInterval time.Duration) {
	if concurrency < 1 {
		return
	}
	jobsCh := make(chan domain.ScanJob, concurrency)

	// dispatcher loop
	go func() {
		ticker := time.NewTicker(pollInterval)
		defer ticker.Stop()
		defer close(jobsCh)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for {
					job, found, err := r.Repo.ClaimNext(ctx)
					if err != nil {
						r.Log.WithError(err).Error("job claim failed")
						break
					}
					if !found {
						break
					}
					select {
					case jobsCh <- job:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()

	// workers
	for i := 0; i < concurrency; i++ {
		go func(idx int) {
			for job := range jobsCh {
				log := r.Log.WithFields(logrus.Fields{"worker": idx, "job_id": job.ID, "scan_id": job.ScanID})
				if err := r.execute(ctx, job); err != nil {
					log.WithError(err).Warn("job failed")
					continue
				}
				log.Debug("job completed")
			}
		}(i)
	}
}

// ProcessInline starts and processes a specific scan synchronously using the
// same processor logic as the background workers.
func (r Runner) ProcessInline(ctx context.Context, scanID string) error {
	jobID, err := r.Repo.StartJobForScan(ctx, scanID)
	if err != nil {
		return err
	}
	return r.execute(ctx, domain.ScanJob{ID: jobID, ScanID: scanID})
}

func (r Runner) execute(ctx context.Context, job domain.ScanJob) error {
	if err := r.Processor.Process(ctx, job.ScanID); err != nil {
		// Record the failure even when ctx was cancelled mid-scan.
		if ferr := r.Repo.MarkFailed(context.WithoutCancel(ctx), job.ID, err.Error()); ferr != nil {
			r.Log.WithError(ferr).WithField("job_id", job.ID).Error("mark failed")
		}
		r.publish(job.ScanID, domain.ScanFailed, err.Error())
		return err
	}
	if err := r.Repo.MarkCompleted(ctx, job.ID); err != nil {
		return err
	}
	r.publish(job.ScanID, domain.ScanCompleted, "")
	return nil
}

func (r Runner) publish(scanID string, status domain.ScanStatus, msg string) {
	if r.Hub == nil {
		return
	}
	ev := progress.Event{ScanID: scanID, Status: status, Message: msg}
	if status == domain.ScanCompleted {
		ev.Progress = 1
	}
	r.Hub.Publish(ev)
}
