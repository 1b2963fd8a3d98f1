// Package report orchestrates the threat report lifecycle: gating
// candidate URLs through the classifier, recording accepted reports on
// the report ledger, adjudicating them, and fanning verified outcomes
// out to the rewards ledger and the local dismissal overlay.
package report

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/sitewarden/sitewarden/internal/chain"
	"github.com/sitewarden/sitewarden/internal/evidence"
	"github.com/sitewarden/sitewarden/internal/metrics"
	"github.com/sitewarden/sitewarden/pkg/types"
)

// Classifier produces a verdict for a candidate URL.
type Classifier interface {
	Classify(ctx context.Context, url string) (types.Verdict, error)
}

// ReportLedger is the client contract for the report ledger.
type ReportLedger interface {
	Submit(ctx context.Context, domain, accusedWallet string, ev evidence.Fingerprint, automated bool) (types.Receipt, error)
	Count(ctx context.Context) (uint64, error)
	Get(ctx context.Context, index uint64) (types.Report, error)
	SetStatus(ctx context.Context, index uint64, status types.ReportStatus) (types.Receipt, error)
	WalletBanned(ctx context.Context, wallet string) (bool, error)
	URLBanned(ctx context.Context, url string) (bool, error)
}

// RewardsLedger is the client contract for the rewards/ban ledger.
type RewardsLedger interface {
	ConfigureTarget(ctx context.Context) (types.Receipt, error)
	FlagThreat(ctx context.Context, accusedWallet, domain string, ev evidence.Fingerprint, reason string) (types.Receipt, error)
	RegisterReport(ctx context.Context, userWallet string, ev evidence.Fingerprint) (types.Receipt, error)
}

// Overlay is the dismissal membership check used to filter pending views.
type Overlay interface {
	Contains(ctx context.Context, reportID uint64) (bool, error)
}

const verifyReason = "Verified by admin"

// Service coordinates the classifier, the two ledgers and the dismissal
// overlay. It holds no report state of its own: every read re-queries the
// ledger.
type Service struct {
	classifier Classifier
	store      ReportLedger
	rewards    RewardsLedger
	overlay    Overlay
	metrics    *metrics.Collector
	logger     *slog.Logger

	// All chain writes go out under one signing identity, which the
	// ledger serializes. writeMu extends that serialization to the
	// multi-call critical sections (submit-then-count, the verify
	// sequence) so concurrent requests cannot interleave them.
	writeMu sync.Mutex
}

// NewService creates the orchestrator. metrics may be nil; pass nil for
// logger to disable logging.
func NewService(classifier Classifier, store ReportLedger, rewards RewardsLedger, overlay Overlay, collector *metrics.Collector, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Service{
		classifier: classifier,
		store:      store,
		rewards:    rewards,
		overlay:    overlay,
		metrics:    collector,
		logger:     logger,
	}
}

// SiteReportResult is the outcome of a classifier-gated site report.
type SiteReportResult struct {
	Verdict      types.Verdict `json:"verdict"`
	Submitted    bool          `json:"submitted"`
	Receipt      types.Receipt `json:"receipt,omitempty"`
	WalletBanned bool          `json:"walletBanned"`
	DomainBanned bool          `json:"domainBanned"`
}

// ReportSite runs the classifier-gated path: a benign verdict skips the
// ledger entirely, anything else submits an automated report naming the
// accused wallet, keyed by the hashed evidence scheme.
func (s *Service) ReportSite(ctx context.Context, url, accusedWallet string) (SiteReportResult, error) {
	verdict, err := s.classify(ctx, url)
	if err != nil {
		return SiteReportResult{}, err
	}
	if verdict.Benign() {
		s.logger.Info("report classified benign, skipping ledger submission", "url", url)
		return SiteReportResult{Verdict: verdict}, nil
	}

	ev := evidence.Hash(url)

	s.writeMu.Lock()
	receipt, err := s.store.Submit(ctx, url, accusedWallet, ev, true)
	s.writeMu.Unlock()
	s.countChainWrite("submitReport", err)
	if err != nil {
		return SiteReportResult{}, stepErr(StepSubmit, err)
	}
	s.metrics.IncReportSubmitted()
	s.logger.Info("report submitted", "url", url, "label", verdict.Label, "tx", receipt.TxHash)

	// Best-effort probes mirroring what operators watch after a
	// submission; failures here do not fail the report.
	res := SiteReportResult{Verdict: verdict, Submitted: true, Receipt: receipt}
	if banned, err := s.store.WalletBanned(ctx, accusedWallet); err == nil {
		res.WalletBanned = banned
	}
	if banned, err := s.store.URLBanned(ctx, url); err == nil {
		res.DomainBanned = banned
	}
	return res, nil
}

// UserReportResult is the outcome of a user-initiated report.
type UserReportResult struct {
	Verdict       types.Verdict `json:"verdict"`
	SubmitReceipt types.Receipt `json:"submitReceipt"`
	RewardReceipt types.Receipt `json:"rewardReceipt"`
}

// ReportByUser submits a user-initiated report. The verdict is recorded
// and returned but never gates the submission. The report ledger gets the
// zero wallet as accused; the user's reward eligibility is registered on
// the rewards ledger against the padded evidence, which verification will
// later recompute from the stored domain.
func (s *Service) ReportByUser(ctx context.Context, url, userWallet string) (UserReportResult, error) {
	ev, err := evidence.Pad(url)
	if err != nil {
		return UserReportResult{}, err
	}

	verdict, err := s.classify(ctx, url)
	if err != nil {
		return UserReportResult{}, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	submitReceipt, err := s.store.Submit(ctx, url, types.ZeroWallet, ev, false)
	s.countChainWrite("submitReport", err)
	if err != nil {
		return UserReportResult{}, stepErr(StepSubmit, err)
	}
	s.metrics.IncReportSubmitted()

	rewardReceipt, err := s.rewards.RegisterReport(ctx, userWallet, ev)
	s.countChainWrite("registerReport", err)
	if err != nil {
		// The report is on the ledger; only the reward registration is
		// missing. Surface the step so the caller can retry just that.
		return UserReportResult{}, stepErr(StepRegisterReward, err)
	}

	s.logger.Info("user report submitted", "url", url, "label", verdict.Label,
		"tx", submitReceipt.TxHash, "rewardTx", rewardReceipt.TxHash)
	return UserReportResult{Verdict: verdict, SubmitReceipt: submitReceipt, RewardReceipt: rewardReceipt}, nil
}

// ScreenListing gates a listing URL. Benign verdicts return nil and the
// listing may proceed with no ledger interaction. A threat verdict
// submits an automated report, auto-verifies it (a malicious listing
// attempt is pre-adjudicated), and returns ListingRejectedError.
func (s *Service) ScreenListing(ctx context.Context, url, creatorWallet string) error {
	verdict, err := s.classify(ctx, url)
	if err != nil {
		return err
	}
	if verdict.Benign() {
		return nil
	}

	ev := evidence.Hash(url)

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if _, err := s.store.Submit(ctx, url, creatorWallet, ev, true); err != nil {
		s.countChainWrite("submitReport", err)
		return stepErr(StepSubmit, err)
	}
	s.countChainWrite("submitReport", nil)
	s.metrics.IncReportSubmitted()

	// The lock makes count()-1 ours: no other writer can have appended
	// between our submit and this read.
	count, err := s.store.Count(ctx)
	if err != nil {
		return stepErr(StepReadReport, err)
	}
	if count == 0 {
		return stepErr(StepReadReport, errors.New("ledger count is zero after submission"))
	}
	reportID := count - 1

	if _, err := s.verifyLocked(ctx, reportID); err != nil {
		return err
	}
	s.logger.Warn("listing rejected as malicious", "url", url, "label", verdict.Label, "reportId", reportID)
	return &ListingRejectedError{Label: verdict.Label, ReportID: reportID}
}

// VerifyResult is the outcome of an admin adjudication.
type VerifyResult struct {
	ReportID      uint64        `json:"reportId"`
	FlagReceipt   types.Receipt `json:"flagReceipt"`
	StatusReceipt types.Receipt `json:"statusReceipt"`
}

// Verify adjudicates the report at id: flags the threat on the rewards
// ledger, then transitions the report to Verified. The two writes span
// two ledgers and are not atomic; a failure between them leaves the flag
// applied with the report still Reported, and the StepError tells the
// caller where to resume.
func (s *Service) Verify(ctx context.Context, id uint64) (VerifyResult, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.verifyLocked(ctx, id)
}

func (s *Service) verifyLocked(ctx context.Context, id uint64) (VerifyResult, error) {
	rep, err := s.store.Get(ctx, id)
	if err != nil {
		return VerifyResult{}, stepErr(StepReadReport, err)
	}
	if rep.Status != types.ReportStatusReported {
		return VerifyResult{}, stepErr(StepReadReport, ErrNotReported)
	}

	// The rewards ledger correlates by the padded scheme recomputed from
	// the stored domain, never by the hash stored on the report.
	ev, err := evidence.Pad(rep.Domain)
	if err != nil {
		return VerifyResult{}, stepErr(StepReadReport, err)
	}

	if _, err := s.rewards.ConfigureTarget(ctx); err != nil {
		s.countChainWrite("setRewardsContract", err)
		return VerifyResult{}, stepErr(StepConfigureRewards, err)
	}
	s.countChainWrite("setRewardsContract", nil)

	flagReceipt, err := s.rewards.FlagThreat(ctx, rep.AccusedWallet, rep.Domain, ev, verifyReason)
	s.countChainWrite("flagThreat", err)
	if err != nil {
		return VerifyResult{}, stepErr(StepFlagThreat, err)
	}

	statusReceipt, err := s.store.SetStatus(ctx, id, types.ReportStatusVerified)
	s.countChainWrite("setReportStatus", err)
	if err != nil {
		// Known partial-failure window: the ban/reward landed but the
		// report still reads Reported. Resume from set_status only.
		s.logger.Error("flag applied but status transition failed",
			"reportId", id, "flagTx", flagReceipt.TxHash, "error", err)
		return VerifyResult{}, stepErr(StepSetStatus, err)
	}

	s.metrics.IncReportVerified()
	s.logger.Info("report verified", "reportId", id, "domain", rep.Domain,
		"flagTx", flagReceipt.TxHash, "statusTx", statusReceipt.TxHash)
	return VerifyResult{ReportID: id, FlagReceipt: flagReceipt, StatusReceipt: statusReceipt}, nil
}

// Scan classifies a URL without touching either ledger.
func (s *Service) Scan(ctx context.Context, url string) (types.Verdict, error) {
	return s.classify(ctx, url)
}

func (s *Service) classify(ctx context.Context, url string) (types.Verdict, error) {
	verdict, err := s.classifier.Classify(ctx, url)
	if err != nil {
		return types.Verdict{}, stepErr(StepClassify, err)
	}
	s.metrics.IncClassification(verdict.Label)
	return verdict, nil
}

func (s *Service) countChainWrite(method string, err error) {
	outcome := "ok"
	switch {
	case err == nil:
	case errors.As(err, new(*chain.RejectedError)):
		outcome = "rejected"
	default:
		outcome = "unreachable"
	}
	s.metrics.IncChainWrite(method, outcome)
}
