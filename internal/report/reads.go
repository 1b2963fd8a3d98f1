package report

import (
	"context"

	"github.com/sitewarden/sitewarden/pkg/types"
)

// Reports returns every ledger report in index order.
func (s *Service) Reports(ctx context.Context) (types.ReportPage, error) {
	all, err := s.enumerate(ctx)
	if err != nil {
		return types.ReportPage{}, err
	}
	return types.ReportPage{TotalReports: uint64(len(all)), Reports: all}, nil
}

// VerifiedReports returns only reports that have been adjudicated as
// verified, in index order.
func (s *Service) VerifiedReports(ctx context.Context) (types.ReportPage, error) {
	all, err := s.enumerate(ctx)
	if err != nil {
		return types.ReportPage{}, err
	}
	verified := make([]types.Report, 0, len(all))
	for _, r := range all {
		if r.Status == types.ReportStatusVerified {
			verified = append(verified, r)
		}
	}
	return types.ReportPage{TotalReports: uint64(len(verified)), Reports: verified}, nil
}

// PendingReports returns non-verified reports in index order, minus any
// the admin has dismissed. Dismissal is a local overlay: the ledger
// status of a dismissed report is untouched.
func (s *Service) PendingReports(ctx context.Context) (types.ReportPage, error) {
	all, err := s.enumerate(ctx)
	if err != nil {
		return types.ReportPage{}, err
	}
	pending := make([]types.Report, 0, len(all))
	for _, r := range all {
		if r.Status == types.ReportStatusVerified {
			continue
		}
		if s.overlay != nil {
			hidden, err := s.overlay.Contains(ctx, r.ID)
			if err != nil {
				return types.ReportPage{}, err
			}
			if hidden {
				continue
			}
		}
		pending = append(pending, r)
	}
	return types.ReportPage{TotalReports: uint64(len(pending)), Reports: pending}, nil
}

// enumerate fetches indices 0..count-1 one by one; the ledger exposes no
// range read. Reads are not serialized against writes and may trail an
// in-flight submission.
func (s *Service) enumerate(ctx context.Context) ([]types.Report, error) {
	count, err := s.store.Count(ctx)
	if err != nil {
		return nil, err
	}
	reports := make([]types.Report, 0, count)
	for i := uint64(0); i < count; i++ {
		r, err := s.store.Get(ctx, i)
		if err != nil {
			return nil, err
		}
		reports = append(reports, r)
	}
	return reports, nil
}
