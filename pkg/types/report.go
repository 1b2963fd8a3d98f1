package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// ReportStatus is the ledger-side lifecycle state of a threat report.
// The ledger stores it as a small integer; the names below are the
// serialization-boundary labels.
type ReportStatus uint8

const (
	ReportStatusReported ReportStatus = iota // initial state, awaiting adjudication
	ReportStatusVerified                     // adjudicated malicious; terminal
	ReportStatusRejected                     // adjudicated benign; terminal
)

var statusNames = [...]string{"Reported", "Verified", "Rejected"}

func (s ReportStatus) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return "Unknown"
}

// IsTerminal returns true once a report can no longer change status.
func (s ReportStatus) IsTerminal() bool {
	return s == ReportStatusVerified || s == ReportStatusRejected
}

func (s ReportStatus) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

func (s *ReportStatus) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err != nil {
		return err
	}
	for i, n := range statusNames {
		if n == name {
			*s = ReportStatus(i)
			return nil
		}
	}
	return fmt.Errorf("unknown report status %q", name)
}

// ZeroWallet is the placeholder identity used when a report names no
// accused party (user-initiated reports carry the reporter out-of-band
// via the rewards ledger instead).
const ZeroWallet = "0x0000000000000000000000000000000000000000"

// Report is a single ledger record. Immutable except Status; ID is the
// dense zero-based insertion index assigned by the ledger.
type Report struct {
	ID            uint64       `json:"id"`
	Domain        string       `json:"domain"`
	AccusedWallet string       `json:"accusedWallet"`
	Reporter      string       `json:"reporter"`
	EvidenceHash  string       `json:"evidenceHash"`
	Timestamp     time.Time    `json:"timestamp"`
	Status        ReportStatus `json:"status"`
}

// ReportPage is the projection returned by the read paths: a status
// partition of the ledger plus the count of entries in it.
type ReportPage struct {
	TotalReports uint64   `json:"totalReports"`
	Reports      []Report `json:"reports"`
}

// Verdict is the classifier's ephemeral output for one URL. Anything
// other than "benign" is treated as a threat label.
type Verdict struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence,omitempty"`
}

// Benign reports whether the verdict allows the gated action to proceed.
func (v Verdict) Benign() bool { return v.Label == "benign" }

// Receipt identifies an accepted ledger write.
type Receipt struct {
	TxHash      string `json:"txHash"`
	BlockNumber uint64 `json:"blockNumber,omitempty"`
	GasUsed     uint64 `json:"gasUsed,omitempty"`
}
