// Package memory keeps subdomains, scans and jobs in process. It backs local
// runs without DATABASE_URL and the service tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"cybersentinel/internal/domain"
	"cybersentinel/internal/subdomain"
)

type job struct {
	id       string
	scanID   string
	status   domain.ScanStatus
	attempts int
	queuedAt time.Time
}

type Store struct {
	mu     sync.Mutex
	trees  map[string]*subdomain.Tree
	rootOf map[string]string
	scans  map[string]domain.Scan
	jobs   []*job
	now    func() time.Time
}

func New() *Store {
	return &Store{
		trees:  make(map[string]*subdomain.Tree),
		rootOf: make(map[string]string),
		scans:  make(map[string]domain.Scan),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// SubdomainRepository

func (s *Store) ListByRoot(ctx context.Context, root string) ([]domain.Subdomain, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.trees[root]
	if !ok {
		return nil, nil
	}
	return t.Records(), nil
}

func (s *Store) RootOf(ctx context.Context, id string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	root, ok := s.rootOf[id]
	if !ok {
		return "", fmt.Errorf("%w: subdomain %s", domain.ErrNotFound, id)
	}
	return root, nil
}

func (s *Store) Insert(ctx context.Context, root string, n domain.Subdomain) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rootOf[n.ID]; ok {
		return fmt.Errorf("%w: id %s", domain.ErrDuplicate, n.ID)
	}
	t, ok := s.trees[root]
	if !ok {
		t, _ = subdomain.New(nil)
		s.trees[root] = t
	}
	if err := t.Add(n, n.ParentID); err != nil {
		return err
	}
	s.rootOf[n.ID] = root
	return nil
}

func (s *Store) DeleteSubtree(ctx context.Context, id string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	root, ok := s.rootOf[id]
	if !ok {
		return nil, fmt.Errorf("%w: subdomain %s", domain.ErrNotFound, id)
	}
	removed, err := s.trees[root].Remove(id)
	if err != nil {
		return nil, err
	}
	for _, rid := range removed {
		delete(s.rootOf, rid)
	}
	if s.trees[root].Len() == 0 {
		delete(s.trees, root)
	}
	return removed, nil
}

func (s *Store) MarkScanned(ctx context.Context, ids []string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		root, ok := s.rootOf[id]
		if !ok {
			continue
		}
		t := s.trees[root]
		n, _ := t.Get(id)
		ts := at
		n.LastScannedAt = &ts
		if err := t.Update(n); err != nil {
			return err
		}
	}
	return nil
}

// ScanRepository

func (s *Store) Create(ctx context.Context, scan domain.Scan) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	scan.ID = uuid.NewString()
	scan.Status = domain.ScanQueued
	scan.Progress = 0
	scan.QueuedAt = s.now()
	s.scans[scan.ID] = scan
	s.jobs = append(s.jobs, &job{id: uuid.NewString(), scanID: scan.ID, status: domain.ScanQueued, queuedAt: scan.QueuedAt})
	return scan.ID, nil
}

func (s *Store) Get(ctx context.Context, scanID string) (domain.Scan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	scan, ok := s.scans[scanID]
	if !ok {
		return domain.Scan{}, fmt.Errorf("%w: scan %s", domain.ErrNotFound, scanID)
	}
	return scan, nil
}

func (s *Store) LatestByRoot(ctx context.Context, root string) (bool, domain.Scan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var all []domain.Scan
	for _, sc := range s.scans {
		if sc.Root == root {
			all = append(all, sc)
		}
	}
	if len(all) == 0 {
		return false, domain.Scan{}, nil
	}
	sort.Slice(all, func(i, j int) bool { return all[i].QueuedAt.After(all[j].QueuedAt) })
	return true, all[0], nil
}

// JobRepository

func (s *Store) ClaimNext(ctx context.Context) (domain.ScanJob, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, j := range s.jobs {
		if j.status != domain.ScanQueued {
			continue
		}
		s.start(j)
		return domain.ScanJob{ID: j.id, ScanID: j.scanID}, true, nil
	}
	return domain.ScanJob{}, false, nil
}

func (s *Store) start(j *job) {
	j.status = domain.ScanRunning
	j.attempts++
	scan := s.scans[j.scanID]
	scan.Status = domain.ScanRunning
	if scan.StartedAt == nil {
		now := s.now()
		scan.StartedAt = &now
	}
	s.scans[j.scanID] = scan
}

func (s *Store) StartJobForScan(ctx context.Context, scanID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, j := range s.jobs {
		if j.scanID == scanID && j.status == domain.ScanQueued {
			s.start(j)
			return j.id, nil
		}
	}
	return "", fmt.Errorf("%w: queued job for scan %s", domain.ErrNotFound, scanID)
}

func (s *Store) UpdateScanProgress(ctx context.Context, scanID string, progress float64) error {
	if progress < 0 {
		progress = 0
	}
	if progress > 1 {
		progress = 1
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	scan, ok := s.scans[scanID]
	if !ok {
		return fmt.Errorf("%w: scan %s", domain.ErrNotFound, scanID)
	}
	scan.Progress = progress
	s.scans[scanID] = scan
	return nil
}

func (s *Store) MarkCompleted(ctx context.Context, jobID string) error {
	return s.finish(jobID, domain.ScanCompleted, "")
}

func (s *Store) MarkFailed(ctx context.Context, jobID string, reason string) error {
	return s.finish(jobID, domain.ScanFailed, reason)
}

func (s *Store) finish(jobID string, status domain.ScanStatus, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, j := range s.jobs {
		if j.id != jobID {
			continue
		}
		j.status = status
		scan := s.scans[j.scanID]
		scan.Status = status
		scan.Error = reason
		if status == domain.ScanCompleted {
			scan.Progress = 1
		}
		now := s.now()
		scan.FinishedAt = &now
		s.scans[j.scanID] = scan
		return nil
	}
	return fmt.Errorf("%w: job %s", domain.ErrNotFound, jobID)
}
