package services

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/veilpost/veilpost/protocol"
)

var ErrReportNotFound = errors.New("services: report not found")

// ReportStore persists submission records in their stored shape. The core
// writes records once on acceptance; the moderation collaborator patches
// status through UpdateStatus and never feeds anything back into the core.
type ReportStore interface {
	SaveReport(ctx context.Context, report *protocol.StoredReport) error
	GetReport(ctx context.Context, id string) (*protocol.StoredReport, error)
	ListReports(ctx context.Context) ([]*protocol.StoredReport, error)
	UpdateStatus(ctx context.Context, id string, status protocol.Status) error
}

// MemoryReportStore is an in-process ReportStore for tests and single-node
// deployments.
type MemoryReportStore struct {
	mu      sync.RWMutex
	reports map[string]*protocol.StoredReport
}

// NewMemoryReportStore creates an empty in-memory store.
func NewMemoryReportStore() *MemoryReportStore {
	return &MemoryReportStore{reports: make(map[string]*protocol.StoredReport)}
}

// SaveReport stores a copy of the report.
func (s *MemoryReportStore) SaveReport(ctx context.Context, report *protocol.StoredReport) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *report
	clone.ProofPublicSignals = append([]string(nil), report.ProofPublicSignals...)
	s.reports[report.ID] = &clone
	return nil
}

// GetReport returns the report with the given ID.
func (s *MemoryReportStore) GetReport(ctx context.Context, id string) (*protocol.StoredReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	report, ok := s.reports[id]
	if !ok {
		return nil, ErrReportNotFound
	}
	clone := *report
	return &clone, nil
}

// ListReports returns all reports ordered by timestamp, newest first.
func (s *MemoryReportStore) ListReports(ctx context.Context) ([]*protocol.StoredReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*protocol.StoredReport, 0, len(s.reports))
	for _, report := range s.reports {
		clone := *report
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out, nil
}

// UpdateStatus applies a moderation status transition.
func (s *MemoryReportStore) UpdateStatus(ctx context.Context, id string, status protocol.Status) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !status.Valid() {
		return errors.New("services: invalid status")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	report, ok := s.reports[id]
	if !ok {
		return ErrReportNotFound
	}
	report.Status = status
	return nil
}
