// Package mock provides an in-memory ChainAdapter double, used by the
// orchestrator and ingestor test suites to script the end-to-end
// scenarios in spec.md §8 without a live chain.
package mock

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sync"

	"github.com/escion333/fusion-plus-xlm-sub000/internal/chainadapter"
	"github.com/escion333/fusion-plus-xlm-sub000/internal/chainmodel"
	"github.com/escion333/fusion-plus-xlm-sub000/internal/events"
	"github.com/escion333/fusion-plus-xlm-sub000/internal/money"
)

type escrowRecord struct {
	info chainadapter.EscrowInfo
}

// Adapter is a fully in-memory ChainAdapter. Tests drive chain state
// directly via its exported helper methods (AdvanceHeight, InjectEvent)
// and assert against what the orchestrator submitted.
type Adapter struct {
	mu sync.Mutex

	chain   chainmodel.ChainID
	height  uint64
	escrows map[string]*escrowRecord
	events  []events.EscrowEvent
	seq     int

	// Submitted records every call made against this adapter, for
	// assertions in orchestrator tests.
	Submitted []string

	// RevertWithdraw/RevertCancel, when non-empty, make the next
	// matching call return an EscrowReverted with that reason instead
	// of succeeding.
	RevertWithdraw map[string]string
	RevertCancel   map[string]string
}

// New builds an empty mock adapter for the given chain.
func New(chain chainmodel.ChainID) *Adapter {
	return &Adapter{
		chain:          chain,
		escrows:        make(map[string]*escrowRecord),
		RevertWithdraw: make(map[string]string),
		RevertCancel:   make(map[string]string),
	}
}

func (a *Adapter) ChainID() chainmodel.ChainID { return a.chain }

// AdvanceHeight moves the mock chain's confirmable height forward and
// returns the new value, for tests driving the ingestor loop.
func (a *Adapter) AdvanceHeight(n uint64) uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.height += n
	return a.height
}

func (a *Adapter) LatestHeight(ctx context.Context) (uint64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.height, nil
}

// InjectEvent appends a synthetic event at the given height to the
// adapter's event log, as if a transaction had landed on-chain.
func (a *Adapter) InjectEvent(e events.EscrowEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if e.TxID == "" {
		a.seq++
		e.TxID = fmt.Sprintf("tx-%d", a.seq)
	}
	a.events = append(a.events, e)
}

func (a *Adapter) PollEvents(ctx context.Context, fromHeight, toHeight uint64) ([]events.EscrowEvent, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []events.EscrowEvent
	for _, e := range a.events {
		if e.Height >= fromHeight && e.Height <= toHeight {
			out = append(out, e)
		}
	}
	return out, nil
}

func (a *Adapter) predictAddress(params chainadapter.DeployParams) string {
	h := sha256.Sum256(append([]byte(a.chain), params.OrderHash.Bytes()...))
	return fmt.Sprintf("%s-escrow-%x", a.chain, h[:8])
}

func (a *Adapter) PredictEscrow(ctx context.Context, params chainadapter.DeployParams) (string, error) {
	return a.predictAddress(params), nil
}

func (a *Adapter) DeployEscrow(ctx context.Context, params chainadapter.DeployParams) (string, chainadapter.SubmissionID, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	addr := a.predictAddress(params)
	a.escrows[addr] = &escrowRecord{info: chainadapter.EscrowInfo{Params: params, State: chainadapter.StateCreated}}
	a.Submitted = append(a.Submitted, fmt.Sprintf("deploy:%s", addr))
	return addr, chainadapter.SubmissionID("deploy-" + addr), nil
}

func (a *Adapter) FundEscrow(ctx context.Context, escrow string, amount money.Amount, asset string) (chainadapter.SubmissionID, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	rec, ok := a.escrows[escrow]
	if !ok {
		return "", fmt.Errorf("mock: unknown escrow %s", escrow)
	}
	rec.info.State = chainadapter.StateFunded
	a.Submitted = append(a.Submitted, fmt.Sprintf("fund:%s", escrow))
	return chainadapter.SubmissionID("fund-" + escrow), nil
}

func (a *Adapter) Withdraw(ctx context.Context, escrow string, preimage chainmodel.Preimage) (chainadapter.SubmissionID, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if reason, ok := a.RevertWithdraw[escrow]; ok {
		delete(a.RevertWithdraw, escrow)
		return "", &chainadapter.EscrowReverted{Reason: reason}
	}
	rec, ok := a.escrows[escrow]
	if !ok {
		return "", fmt.Errorf("mock: unknown escrow %s", escrow)
	}
	rec.info.State = chainadapter.StateWithdrawn
	a.Submitted = append(a.Submitted, fmt.Sprintf("withdraw:%s", escrow))
	return chainadapter.SubmissionID("withdraw-" + escrow), nil
}

func (a *Adapter) Cancel(ctx context.Context, escrow string) (chainadapter.SubmissionID, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if reason, ok := a.RevertCancel[escrow]; ok {
		delete(a.RevertCancel, escrow)
		return "", &chainadapter.EscrowReverted{Reason: reason}
	}
	rec, ok := a.escrows[escrow]
	if !ok {
		return "", fmt.Errorf("mock: unknown escrow %s", escrow)
	}
	rec.info.State = chainadapter.StateCancelled
	a.Submitted = append(a.Submitted, fmt.Sprintf("cancel:%s", escrow))
	return chainadapter.SubmissionID("cancel-" + escrow), nil
}

func (a *Adapter) GetEscrowState(ctx context.Context, escrow string) (chainadapter.EscrowInfo, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	rec, ok := a.escrows[escrow]
	if !ok {
		return chainadapter.EscrowInfo{}, fmt.Errorf("mock: unknown escrow %s", escrow)
	}
	return rec.info, nil
}

var _ chainadapter.ChainAdapter = (*Adapter)(nil)
