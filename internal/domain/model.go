package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Core domain models used internally. HTTP request/response shapes live in
// the http adapter; keep these decoupled from the wire format.

var (
	ErrNotFound        = errors.New("not found")
	ErrDuplicate       = errors.New("already exists")
	ErrInvalidName     = errors.New("invalid domain name")
	ErrInvalidParent   = errors.New("invalid parent")
	ErrConfirmMismatch = errors.New("confirmation does not match")
	ErrInvalidArgument = errors.New("invalid argument")
)

type Risk string

const (
	RiskCritical Risk = "critical"
	RiskHigh     Risk = "high"
	RiskMedium   Risk = "medium"
	RiskLow      Risk = "low"
)

// Risks lists the classifications from most to least severe.
var Risks = []Risk{RiskCritical, RiskHigh, RiskMedium, RiskLow}

func ParseRisk(s string) (Risk, error) {
	r := Risk(strings.ToLower(strings.TrimSpace(s)))
	switch r {
	case RiskCritical, RiskHigh, RiskMedium, RiskLow:
		return r, nil
	}
	return "", fmt.Errorf("unknown risk %q", s)
}

type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	switch st {
	case StatusActive, StatusInactive:
		return st, nil
	}
	return "", fmt.Errorf("unknown status %q", s)
}

// Subdomain is one node of a discovered domain hierarchy. Risk is assigned
// per node and never derived from children.
type Subdomain struct {
	ID            string
	ParentID      string
	Name          string
	Risk          Risk
	DNS           string
	Hosting       string
	IP            string
	Status        Status
	Position      int
	LastScannedAt *time.Time
	LatestScan    *Scan
}

// NormalizeName lowercases and trims a hostname and rejects anything that is
// not a plausible FQDN.
func NormalizeName(raw string) (string, error) {
	name := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(raw)), ".")
	if name == "" || len(name) > 253 || !strings.Contains(name, ".") {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, raw)
	}
	for _, label := range strings.Split(name, ".") {
		if label == "" || len(label) > 63 {
			return "", fmt.Errorf("%w: %q", ErrInvalidName, raw)
		}
		if label[0] == '-' || label[len(label)-1] == '-' {
			return "", fmt.Errorf("%w: %q", ErrInvalidName, raw)
		}
		for _, c := range label {
			if !(c >= 'a' && c <= 'z') && !(c >= '0' && c <= '9') && c != '-' && c != '_' {
				return "", fmt.Errorf("%w: %q", ErrInvalidName, raw)
			}
		}
	}
	return name, nil
}

type ScanStatus string

const (
	ScanQueued    ScanStatus = "queued"
	ScanRunning   ScanStatus = "running"
	ScanCompleted ScanStatus = "completed"
	ScanFailed    ScanStatus = "failed"
)

func (s ScanStatus) Terminal() bool { return s == ScanCompleted || s == ScanFailed }

type ScanKind string

const (
	ScanRescan   ScanKind = "rescan"
	ScanDiscover ScanKind = "discover"
)

// Scan covers a single subdomain (rescan) or every node under a root (discover).
type Scan struct {
	ID          string
	Kind        ScanKind
	Root        string
	SubdomainID string
	Target      string
	Status      ScanStatus
	Progress    float64
	Error       string
	QueuedAt    time.Time
	StartedAt   *time.Time
	FinishedAt  *time.Time
}

type ScanJob struct {
	ID     string
	ScanID string
}

// Summary backs the stats cards and DNS distribution of the discovery view.
type Summary struct {
	Root          string
	Total         int
	Active        int
	Inactive      int
	ByRisk        map[Risk]int
	ByRecordType  map[string]int
	LastScannedAt *time.Time
	LatestScan    *Scan
}
