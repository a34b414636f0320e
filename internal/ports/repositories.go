package ports

import (
	"context"
	"time"

	"cybersentinel/internal/domain"
)

// SubdomainRepository stores discovered nodes grouped by registrable root
// (eTLD+1).
type SubdomainRepository interface {
	// ListByRoot returns every node under root, siblings ordered by position.
	ListByRoot(ctx context.Context, root string) ([]domain.Subdomain, error)
	// RootOf returns the registrable root a node belongs to.
	RootOf(ctx context.Context, id string) (string, error)
	Insert(ctx context.Context, root string, n domain.Subdomain) error
	// DeleteSubtree removes id and all of its descendants.
	DeleteSubtree(ctx context.Context, id string) (removed []string, err error)
	MarkScanned(ctx context.Context, ids []string, at time.Time) error
}

// ScanRepository manages scan records and job tracking.
type ScanRepository interface {
	Create(ctx context.Context, scan domain.Scan) (scanID string, err error)
	Get(ctx context.Context, scanID string) (domain.Scan, error)
	LatestByRoot(ctx context.Context, root string) (exists bool, scan domain.Scan, err error)
}
