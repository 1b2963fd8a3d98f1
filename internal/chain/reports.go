package chain

import (
	"context"
	"fmt"
	"time"

	"github.com/sitewarden/sitewarden/internal/evidence"
	"github.com/sitewarden/sitewarden/pkg/types"
)

// ReportStore is the client for the report ledger contract: the canonical,
// append-only record of threat reports. Reports are addressed by their
// dense zero-based insertion index.
type ReportStore struct {
	gw       *Gateway
	contract string
}

// NewReportStore binds a gateway to the report ledger contract address.
func NewReportStore(gw *Gateway, contract string) (*ReportStore, error) {
	if contract == "" {
		return nil, fmt.Errorf("report store contract address is empty")
	}
	return &ReportStore{gw: gw, contract: contract}, nil
}

// Submit appends a new report with status Reported. automated marks
// classifier-triggered submissions; user submissions pass the zero wallet
// as accused and register reward eligibility separately.
func (s *ReportStore) Submit(ctx context.Context, domain, accusedWallet string, ev evidence.Fingerprint, automated bool) (types.Receipt, error) {
	return s.gw.send(ctx, s.contract, "submitReport", []any{domain, accusedWallet, ev.Hex(), automated})
}

// Count returns the total number of reports ever appended.
func (s *ReportStore) Count(ctx context.Context) (uint64, error) {
	var n uint64
	if err := s.gw.call(ctx, s.contract, "totalReports", nil, &n); err != nil {
		return 0, err
	}
	return n, nil
}

type wireReport struct {
	Domain        string `json:"domain"`
	AccusedWallet string `json:"accusedWallet"`
	Reporter      string `json:"reporter"`
	EvidenceHash  string `json:"evidenceHash"`
	Timestamp     int64  `json:"timestamp"`
	Status        uint8  `json:"status"`
}

// Get reads the report at index. Returns ErrNotFound past the end.
func (s *ReportStore) Get(ctx context.Context, index uint64) (types.Report, error) {
	var w wireReport
	if err := s.gw.call(ctx, s.contract, "getReport", []any{index}, &w); err != nil {
		return types.Report{}, err
	}
	return types.Report{
		ID:            index,
		Domain:        w.Domain,
		AccusedWallet: w.AccusedWallet,
		Reporter:      w.Reporter,
		EvidenceHash:  w.EvidenceHash,
		Timestamp:     time.Unix(w.Timestamp, 0).UTC(),
		Status:        types.ReportStatus(w.Status),
	}, nil
}

// SetStatus transitions the report at index to the given status. The
// ledger only permits moving out of Reported; the orchestrator never
// issues this twice for the same index.
func (s *ReportStore) SetStatus(ctx context.Context, index uint64, status types.ReportStatus) (types.Receipt, error) {
	return s.gw.send(ctx, s.contract, "setReportStatus", []any{index, uint8(status)})
}

// WalletBanned reports whether the ledger currently bans the wallet.
func (s *ReportStore) WalletBanned(ctx context.Context, wallet string) (bool, error) {
	var banned bool
	if err := s.gw.call(ctx, s.contract, "isWalletBanned", []any{wallet}, &banned); err != nil {
		return false, err
	}
	return banned, nil
}

// URLBanned reports whether the ledger currently bans the URL.
func (s *ReportStore) URLBanned(ctx context.Context, url string) (bool, error) {
	var banned bool
	if err := s.gw.call(ctx, s.contract, "isUrlBanned", []any{url}, &banned); err != nil {
		return false, err
	}
	return banned, nil
}
