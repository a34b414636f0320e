package httpadapter

import (
	"time"

	"cybersentinel/internal/domain"
	"cybersentinel/internal/ports"
)

type errorResponse struct {
	Error string `json:"error"`
}

type toggleRequest struct {
	View   string `json:"view"`
	NodeID string `json:"node_id"`
}

type toggleResponse struct {
	NodeID   string `json:"node_id"`
	Expanded bool   `json:"expanded"`
}

type subdomainResponse struct {
	ID            string     `json:"id"`
	ParentID      string     `json:"parent_id,omitempty"`
	Name          string     `json:"name"`
	Risk          string     `json:"risk"`
	DNS           string     `json:"dns"`
	Hosting       string     `json:"hosting"`
	IP            string     `json:"ip"`
	Status        string     `json:"status"`
	Position      int        `json:"position"`
	LastScannedAt *time.Time `json:"last_scanned_at,omitempty"`
}

func toSubdomainResponse(n domain.Subdomain) subdomainResponse {
	return subdomainResponse{
		ID:            n.ID,
		ParentID:      n.ParentID,
		Name:          n.Name,
		Risk:          string(n.Risk),
		DNS:           n.DNS,
		Hosting:       n.Hosting,
		IP:            n.IP,
		Status:        string(n.Status),
		Position:      n.Position,
		LastScannedAt: n.LastScannedAt,
	}
}

type treeRow struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Risk          string     `json:"risk"`
	DNS           string     `json:"dns"`
	Hosting       string     `json:"hosting"`
	IP            string     `json:"ip"`
	Status        string     `json:"status"`
	Depth         int        `json:"depth"`
	Indent        int        `json:"indent"`
	HasChildren   bool       `json:"has_children"`
	Expanded      bool       `json:"expanded"`
	LastScannedAt *time.Time `json:"last_scanned_at,omitempty"`
}

type treeResponse struct {
	Root   string    `json:"root"`
	ViewID string    `json:"view_id"`
	Rows   []treeRow `json:"rows"`
}

func toTreeResponse(v ports.TreeView) treeResponse {
	out := treeResponse{Root: v.Root, ViewID: v.ViewID, Rows: make([]treeRow, 0, len(v.Rows))}
	for _, r := range v.Rows {
		out.Rows = append(out.Rows, treeRow{
			ID:            r.Node.ID,
			Name:          r.Node.Name,
			Risk:          string(r.Node.Risk),
			DNS:           r.Node.DNS,
			Hosting:       r.Node.Hosting,
			IP:            r.Node.IP,
			Status:        string(r.Node.Status),
			Depth:         r.Depth,
			Indent:        r.Indent,
			HasChildren:   r.HasChildren,
			Expanded:      r.Expanded,
			LastScannedAt: r.Node.LastScannedAt,
		})
	}
	return out
}

type summaryResponse struct {
	Root          string         `json:"root"`
	Total         int            `json:"total"`
	Active        int            `json:"active"`
	Inactive      int            `json:"inactive"`
	ByRisk        map[string]int `json:"by_risk"`
	ByRecordType  map[string]int `json:"by_record_type"`
	LastScannedAt *time.Time     `json:"last_scanned_at,omitempty"`
	LatestScan    *scanResponse  `json:"latest_scan,omitempty"`
}

func toSummaryResponse(s domain.Summary) summaryResponse {
	byRisk := make(map[string]int, len(domain.Risks))
	for _, r := range domain.Risks {
		byRisk[string(r)] = s.ByRisk[r]
	}
	byType := s.ByRecordType
	if byType == nil {
		byType = map[string]int{}
	}
	out := summaryResponse{
		Root:          s.Root,
		Total:         s.Total,
		Active:        s.Active,
		Inactive:      s.Inactive,
		ByRisk:        byRisk,
		ByRecordType:  byType,
		LastScannedAt: s.LastScannedAt,
	}
	if s.LatestScan != nil {
		scan := toScanResponse(*s.LatestScan)
		out.LatestScan = &scan
	}
	return out
}

type scanAcceptedResponse struct {
	ScanID string `json:"scan_id"`
}

type scanResponse struct {
	ID          string     `json:"id"`
	Kind        string     `json:"kind"`
	Root        string     `json:"root"`
	SubdomainID string     `json:"subdomain_id,omitempty"`
	Target      string     `json:"target"`
	Status      string     `json:"status"`
	Progress    float64    `json:"progress"`
	Error       string     `json:"error,omitempty"`
	QueuedAt    time.Time  `json:"queued_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
}

func toScanResponse(s domain.Scan) scanResponse {
	return scanResponse{
		ID:          s.ID,
		Kind:        string(s.Kind),
		Root:        s.Root,
		SubdomainID: s.SubdomainID,
		Target:      s.Target,
		Status:      string(s.Status),
		Progress:    s.Progress,
		Error:       s.Error,
		QueuedAt:    s.QueuedAt,
		StartedAt:   s.StartedAt,
		FinishedAt:  s.FinishedAt,
	}
}

type addSubdomainRequest struct {
	Name     string `json:"name"`
	ParentID string `json:"parent_id,omitempty"`
	Risk     string `json:"risk,omitempty"`
	DNS      string `json:"dns,omitempty"`
	Hosting  string `json:"hosting,omitempty"`
	IP       string `json:"ip,omitempty"`
	Status   string `json:"status,omitempty"`
}

// toPort leaves risk and status empty when omitted so the service applies
// its defaults.
func (b addSubdomainRequest) toPort() (ports.AddSubdomain, error) {
	req := ports.AddSubdomain{
		Name:     b.Name,
		ParentID: b.ParentID,
		DNS:      b.DNS,
		Hosting:  b.Hosting,
		IP:       b.IP,
	}
	if b.Risk != "" {
		risk, err := domain.ParseRisk(b.Risk)
		if err != nil {
			return req, badRequest(err.Error())
		}
		req.Risk = risk
	}
	if b.Status != "" {
		status, err := domain.ParseStatus(b.Status)
		if err != nil {
			return req, badRequest(err.Error())
		}
		req.Status = status
	}
	return req, nil
}

type deleteIntentResponse struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Descendants     []string `json:"descendants"`
	DescendantCount int      `json:"descendant_count"`
}

type deleteResponse struct {
	Removed []string `json:"removed"`
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
