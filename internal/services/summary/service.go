package summary

import (
	"context"
	"fmt"

	"cybersentinel/internal/domain"
	"cybersentinel/internal/ports"
	"cybersentinel/internal/services/discovery"
)

type Service struct {
	subdomains ports.SubdomainRepository
	scans      ports.ScanRepository
}

// New builds the summary service. scans may be nil, in which case summaries
// carry no latest scan.
func New(subdomains ports.SubdomainRepository, scans ports.ScanRepository) *Service {
	return &Service{subdomains: subdomains, scans: scans}
}

// Get aggregates the nodes stored under name's registrable root.
func (s *Service) Get(ctx context.Context, name string) (domain.Summary, error) {
	root, err := discovery.RegistrableRoot(name)
	if err != nil {
		return domain.Summary{}, err
	}
	recs, err := s.subdomains.ListByRoot(ctx, root)
	if err != nil {
		return domain.Summary{}, err
	}
	if len(recs) == 0 {
		return domain.Summary{}, fmt.Errorf("%w: no subdomains under %s", domain.ErrNotFound, root)
	}
	sum := Compute(root, recs)
	if s.scans != nil {
		exists, scan, err := s.scans.LatestByRoot(ctx, root)
		if err != nil {
			return domain.Summary{}, err
		}
		if exists {
			sum.LatestScan = &scan
		}
	}
	return sum, nil
}

// Compute counts status, risk and DNS record types over recs.
func Compute(root string, recs []domain.Subdomain) domain.Summary {
	sum := domain.Summary{
		Root:         root,
		Total:        len(recs),
		ByRisk:       make(map[domain.Risk]int, len(domain.Risks)),
		ByRecordType: make(map[string]int),
	}
	for _, r := range domain.Risks {
		sum.ByRisk[r] = 0
	}
	for _, n := range recs {
		if n.Status == domain.StatusInactive {
			sum.Inactive++
		} else {
			sum.Active++
		}
		sum.ByRisk[n.Risk]++
		if n.DNS != "" {
			sum.ByRecordType[n.DNS]++
		}
		if n.LastScannedAt != nil && (sum.LastScannedAt == nil || n.LastScannedAt.After(*sum.LastScannedAt)) {
			ts := *n.LastScannedAt
			sum.LastScannedAt = &ts
		}
	}
	return sum
}

var _ ports.Summaries = (*Service)(nil)
