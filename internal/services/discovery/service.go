package discovery

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/publicsuffix"

	"cybersentinel/internal/domain"
	"cybersentinel/internal/ports"
	"cybersentinel/internal/subdomain"
)

type Service struct {
	subdomains ports.SubdomainRepository
	scans      ports.ScanRepository
	publisher  ports.RescanPublisher
	views      *lru.Cache[string, *subdomain.ExpandState]
	log        logrus.FieldLogger
	now        func() time.Time
}

func New(subdomains ports.SubdomainRepository, scans ports.ScanRepository, publisher ports.RescanPublisher, viewCacheSize int, log logrus.FieldLogger) (*Service, error) {
	views, err := lru.New[string, *subdomain.ExpandState](viewCacheSize)
	if err != nil {
		return nil, err
	}
	if publisher == nil {
		publisher = ports.NopPublisher{}
	}
	return &Service{
		subdomains: subdomains,
		scans:      scans,
		publisher:  publisher,
		views:      views,
		log:        log,
		now:        func() time.Time { return time.Now().UTC() },
	}, nil
}

// RegistrableRoot maps any hostname to the eTLD+1 its tree is stored under.
func RegistrableRoot(name string) (string, error) {
	host, err := domain.NormalizeName(name)
	if err != nil {
		return "", err
	}
	registrable, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		registrable = host
	}
	return registrable, nil
}

func (s *Service) tree(ctx context.Context, root string) (*subdomain.Tree, error) {
	recs, err := s.subdomains.ListByRoot(ctx, root)
	if err != nil {
		return nil, err
	}
	return subdomain.New(recs)
}

// Tree loads every node stored under name's registrable root.
func (s *Service) Tree(ctx context.Context, name string) (*subdomain.Tree, string, error) {
	root, err := RegistrableRoot(name)
	if err != nil {
		return nil, "", err
	}
	t, err := s.tree(ctx, root)
	if err != nil {
		return nil, "", err
	}
	if t.Len() == 0 {
		return nil, "", fmt.Errorf("%w: no subdomains under %s", domain.ErrNotFound, root)
	}
	return t, root, nil
}

// state returns the expand state of a view, starting from defaults for ids
// never seen or already evicted.
func (s *Service) state(viewID string) *subdomain.ExpandState {
	if st, ok := s.views.Get(viewID); ok {
		return st
	}
	st := subdomain.NewExpandState()
	if prev, ok, _ := s.views.PeekOrAdd(viewID, st); ok {
		return prev
	}
	return st
}

// View renders root for viewID. An empty viewID opens a new view.
func (s *Service) View(ctx context.Context, viewID, root string, opts subdomain.Options) (ports.TreeView, error) {
	t, root, err := s.Tree(ctx, root)
	if err != nil {
		return ports.TreeView{}, err
	}
	if viewID == "" {
		viewID = uuid.NewString()
	}
	return ports.TreeView{
		Root:   root,
		ViewID: viewID,
		Rows:   subdomain.Render(t, s.state(viewID), opts),
	}, nil
}

func (s *Service) Toggle(ctx context.Context, viewID, root, nodeID string) (bool, error) {
	if viewID == "" {
		return false, fmt.Errorf("%w: view id is required", domain.ErrInvalidArgument)
	}
	t, _, err := s.Tree(ctx, root)
	if err != nil {
		return false, err
	}
	return s.state(viewID).Toggle(t, nodeID)
}

// Add attaches a new node under the deepest existing label-suffix ancestor,
// or under req.ParentID when given. An explicit parent must itself be a
// label suffix of the new name.
func (s *Service) Add(ctx context.Context, req ports.AddSubdomain) (domain.Subdomain, error) {
	name, err := domain.NormalizeName(req.Name)
	if err != nil {
		return domain.Subdomain{}, err
	}
	root, err := RegistrableRoot(name)
	if err != nil {
		return domain.Subdomain{}, err
	}
	t, err := s.tree(ctx, root)
	if err != nil {
		return domain.Subdomain{}, err
	}
	if _, ok := t.Lookup(name); ok {
		return domain.Subdomain{}, fmt.Errorf("%w: %s", domain.ErrDuplicate, name)
	}

	parentID := req.ParentID
	if parentID == "" {
		parentID = t.AttachPoint(name)
	} else {
		p, ok := t.Get(parentID)
		if !ok || !strings.HasSuffix(name, "."+p.Name) {
			return domain.Subdomain{}, fmt.Errorf("%w: %s cannot hold %s", domain.ErrInvalidParent, parentID, name)
		}
	}

	n := domain.Subdomain{
		ID:      uuid.NewString(),
		Name:    name,
		Risk:    req.Risk,
		DNS:     req.DNS,
		Hosting: req.Hosting,
		IP:      req.IP,
		Status:  req.Status,
	}
	if n.Risk == "" {
		n.Risk = domain.RiskLow
	}
	if n.Status == "" {
		n.Status = domain.StatusActive
	}
	if err := t.Add(n, parentID); err != nil {
		return domain.Subdomain{}, err
	}
	n, _ = t.Get(n.ID)
	if err := s.subdomains.Insert(ctx, root, n); err != nil {
		return domain.Subdomain{}, err
	}
	s.log.WithFields(logrus.Fields{"root": root, "subdomain": name, "parent_id": parentID}).Info("subdomain added")
	return n, nil
}

func (s *Service) nodeTree(ctx context.Context, id string) (*subdomain.Tree, string, domain.Subdomain, error) {
	root, err := s.subdomains.RootOf(ctx, id)
	if err != nil {
		return nil, "", domain.Subdomain{}, err
	}
	t, err := s.tree(ctx, root)
	if err != nil {
		return nil, "", domain.Subdomain{}, err
	}
	n, ok := t.Get(id)
	if !ok {
		return nil, "", domain.Subdomain{}, fmt.Errorf("%w: subdomain %s", domain.ErrNotFound, id)
	}
	return t, root, n, nil
}

// DeleteIntent reports what deleting id would remove, for confirmation.
func (s *Service) DeleteIntent(ctx context.Context, id string) (ports.DeleteIntent, error) {
	t, _, n, err := s.nodeTree(ctx, id)
	if err != nil {
		return ports.DeleteIntent{}, err
	}
	sub := t.Subtree(id)
	return ports.DeleteIntent{ID: n.ID, Name: n.Name, Descendants: sub[1:]}, nil
}

// Delete removes id and its subtree once confirm matches the node name.
func (s *Service) Delete(ctx context.Context, id, confirm string) ([]string, error) {
	_, root, n, err := s.nodeTree(ctx, id)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(strings.TrimSpace(confirm), n.Name) {
		return nil, fmt.Errorf("%w: expected %s", domain.ErrConfirmMismatch, n.Name)
	}
	removed, err := s.subdomains.DeleteSubtree(ctx, id)
	if err != nil {
		return nil, err
	}
	for _, key := range s.views.Keys() {
		if st, ok := s.views.Peek(key); ok {
			st.Prune(removed...)
		}
	}
	s.log.WithFields(logrus.Fields{"root": root, "subdomain": n.Name, "removed": len(removed)}).Info("subdomain removed")
	return removed, nil
}

// Rescan queues a scan of a single node. The tree is not changed; the
// notification is best effort.
func (s *Service) Rescan(ctx context.Context, id string) (string, error) {
	_, root, n, err := s.nodeTree(ctx, id)
	if err != nil {
		return "", err
	}
	return s.enqueue(ctx, domain.Scan{Kind: domain.ScanRescan, Root: root, SubdomainID: n.ID, Target: n.Name})
}

// DiscoverAll queues a scan covering every node under root.
func (s *Service) DiscoverAll(ctx context.Context, root string) (string, error) {
	_, root, err := s.Tree(ctx, root)
	if err != nil {
		return "", err
	}
	return s.enqueue(ctx, domain.Scan{Kind: domain.ScanDiscover, Root: root, Target: root})
}

func (s *Service) enqueue(ctx context.Context, scan domain.Scan) (string, error) {
	scanID, err := s.scans.Create(ctx, scan)
	if err != nil {
		return "", err
	}
	fields := logrus.Fields{"scan_id": scanID, "kind": scan.Kind, "target": scan.Target}
	msg := ports.RescanRequested{
		ScanID:      scanID,
		Kind:        scan.Kind,
		Root:        scan.Root,
		SubdomainID: scan.SubdomainID,
		Target:      scan.Target,
		RequestedAt: s.now(),
	}
	if err := s.publisher.PublishRescan(ctx, msg); err != nil {
		s.log.WithFields(fields).WithError(err).Warn("rescan notification not published")
	}
	s.log.WithFields(fields).Info("scan queued")
	return scanID, nil
}

func (s *Service) ScanStatus(ctx context.Context, scanID string) (domain.Scan, error) {
	return s.scans.Get(ctx, scanID)
}

// Import stores every node of t, parents first, under the registrable root
// of its top-level ancestor.
func (s *Service) Import(ctx context.Context, t *subdomain.Tree) error {
	for _, top := range t.Roots() {
		n, _ := t.Get(top)
		root, err := RegistrableRoot(n.Name)
		if err != nil {
			return err
		}
		var insertErr error
		t.Walk([]string{top}, func(n domain.Subdomain, _ int) bool {
			if insertErr != nil {
				return false
			}
			insertErr = s.subdomains.Insert(ctx, root, n)
			return insertErr == nil
		})
		if insertErr != nil {
			return fmt.Errorf("import %s: %w", root, insertErr)
		}
	}
	return nil
}

var _ ports.Discovery = (*Service)(nil)
