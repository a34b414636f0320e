package ports

import (
	"context"
	"time"

	"cybersentinel/internal/domain"
	"cybersentinel/internal/subdomain"
)

// RescanRequested is published whenever a node or root is queued for a scan.
type RescanRequested struct {
	ScanID      string          `json:"scan_id"`
	Kind        domain.ScanKind `json:"kind"`
	Root        string          `json:"root"`
	SubdomainID string          `json:"subdomain_id,omitempty"`
	Target      string          `json:"target"`
	RequestedAt time.Time       `json:"requested_at"`
}

// RescanPublisher notifies downstream consumers about queued scans. Delivery
// is best effort.
type RescanPublisher interface {
	PublishRescan(ctx context.Context, msg RescanRequested) error
}

// NopPublisher drops every notification.
type NopPublisher struct{}

func (NopPublisher) PublishRescan(context.Context, RescanRequested) error { return nil }

// TreeView is one render of a root's hierarchy for a given view.
type TreeView struct {
	Root   string
	ViewID string
	Rows   []subdomain.Row
}

// DeleteIntent describes what a confirmed delete would remove.
type DeleteIntent struct {
	ID          string
	Name        string
	Descendants []string
}

// AddSubdomain is a request to attach a new node to a tree.
type AddSubdomain struct {
	Name     string
	ParentID string
	Risk     domain.Risk
	DNS      string
	Hosting  string
	IP       string
	Status   domain.Status
}

// Discovery manages domain hierarchies and their scans.
type Discovery interface {
	View(ctx context.Context, viewID, root string, opts subdomain.Options) (TreeView, error)
	Toggle(ctx context.Context, viewID, root, nodeID string) (expanded bool, err error)
	Add(ctx context.Context, req AddSubdomain) (domain.Subdomain, error)
	DeleteIntent(ctx context.Context, id string) (DeleteIntent, error)
	Delete(ctx context.Context, id, confirm string) (removed []string, err error)
	Rescan(ctx context.Context, id string) (scanID string, err error)
	DiscoverAll(ctx context.Context, root string) (scanID string, err error)
	ScanStatus(ctx context.Context, scanID string) (domain.Scan, error)
}

// Summaries provides the stats cards of a root.
type Summaries interface {
	Get(ctx context.Context, root string) (domain.Summary, error)
}
