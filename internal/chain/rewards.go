package chain

import (
	"context"
	"fmt"

	"github.com/sitewarden/sitewarden/internal/evidence"
	"github.com/sitewarden/sitewarden/pkg/types"
)

// Rewards is the client for the rewards ledger contract, which bans
// flagged domains/wallets and credits reporters. Flags are keyed by the
// padded evidence fingerprint recomputed from the report's domain, so
// correlation only works if submission and verification use the same
// scheme.
type Rewards struct {
	gw            *Gateway
	contract      string
	storeContract string
}

// NewRewards binds a gateway to the rewards contract. storeContract is
// the report ledger address, needed for ConfigureTarget.
func NewRewards(gw *Gateway, contract, storeContract string) (*Rewards, error) {
	if contract == "" {
		return nil, fmt.Errorf("rewards contract address is empty")
	}
	if storeContract == "" {
		return nil, fmt.Errorf("report store contract address is empty")
	}
	return &Rewards{gw: gw, contract: contract, storeContract: storeContract}, nil
}

// ConfigureTarget points the report ledger at the rewards contract.
// Idempotent; the orchestrator issues it before every flag rather than
// trusting one-time setup.
func (r *Rewards) ConfigureTarget(ctx context.Context) (types.Receipt, error) {
	return r.gw.send(ctx, r.storeContract, "setRewardsContract", []any{r.contract})
}

// FlagThreat bans the domain and, unless it is the zero wallet, the
// accused wallet, and credits the reporter associated with the evidence.
func (r *Rewards) FlagThreat(ctx context.Context, accusedWallet, domain string, ev evidence.Fingerprint, reason string) (types.Receipt, error) {
	return r.gw.send(ctx, r.contract, "flagThreat", []any{accusedWallet, domain, ev.Hex(), reason})
}

// RegisterReport associates a user-initiated report's evidence with the
// rewardable wallet, independent of the report ledger's reporter field.
func (r *Rewards) RegisterReport(ctx context.Context, userWallet string, ev evidence.Fingerprint) (types.Receipt, error) {
	return r.gw.send(ctx, r.contract, "registerReport", []any{userWallet, ev.Hex()})
}
