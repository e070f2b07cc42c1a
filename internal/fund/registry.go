package fund

import (
	"sync"

	"github.com/sasha-s/go-deadlock"
)

// fundLock is the serialization state of one fund.
type fundLock struct {
	mu       deadlock.Mutex
	inFlight map[string]uint64 // proposal_id -> reserved amount
	pending  map[string]uint64 // member_id -> shares being redeemed
	retired  bool
	refs     int // holders and waiters, guarded by Registry.mu
}

// Registry serializes mutations per fund and tracks balance reserved by
// executions awaiting venue confirmation or withdrawals awaiting the issuer.
// Different funds never contend.
// Lock state lives only while a fund is locked, awaited or has reservations.
type Registry struct {
	mu    sync.Mutex
	funds map[string]*fundLock
}

// NewRegistry creates an empty lock registry.
func NewRegistry() *Registry {
	return &Registry{funds: make(map[string]*fundLock)}
}

// Guard is a held fund lock. All reservation methods require it.
type Guard struct {
	fundID string
	lock   *fundLock
	reg    *Registry
}

// Lock blocks until the fund's lock is held.
func (r *Registry) Lock(fundID string) *Guard {
	for {
		r.mu.Lock()
		fl, ok := r.funds[fundID]
		if !ok {
			fl = &fundLock{inFlight: make(map[string]uint64), pending: make(map[string]uint64)}
			r.funds[fundID] = fl
		}
		fl.refs++
		r.mu.Unlock()

		fl.mu.Lock()
		if fl.retired {
			// Torn down while waiting; a fresh lock replaces it.
			fl.mu.Unlock()
			r.release(fundID, fl)
			continue
		}
		return &Guard{fundID: fundID, lock: fl, reg: r}
	}
}

// release drops one reference and forgets idle lock state, so ids that never
// named a live fund do not accumulate.
func (r *Registry) release(fundID string, fl *fundLock) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fl.refs--
	if fl.refs == 0 && len(fl.inFlight) == 0 && len(fl.pending) == 0 && r.funds[fundID] == fl {
		delete(r.funds, fundID)
	}
}

// Unlock releases the fund lock.
func (g *Guard) Unlock() {
	g.lock.mu.Unlock()
	g.reg.release(g.fundID, g.lock)
}

// Reserved returns the total balance claimed by in-flight executions and
// withdrawals.
func (g *Guard) Reserved() uint64 {
	var total uint64
	for _, amount := range g.lock.inFlight {
		total += amount
	}
	for _, amount := range g.lock.pending {
		total += amount
	}
	return total
}

// ReserveWithdrawal claims amount of the member's shares, and the same
// balance, while the issuer burns them.
func (g *Guard) ReserveWithdrawal(memberID string, amount uint64) {
	g.lock.pending[memberID] += amount
}

// ReleaseWithdrawal drops a claim taken by ReserveWithdrawal.
func (g *Guard) ReleaseWithdrawal(memberID string, amount uint64) {
	left := g.lock.pending[memberID] - min(amount, g.lock.pending[memberID])
	if left == 0 {
		delete(g.lock.pending, memberID)
		return
	}
	g.lock.pending[memberID] = left
}

// Withdrawing returns the member's shares claimed by in-flight withdrawals.
func (g *Guard) Withdrawing(memberID string) uint64 {
	return g.lock.pending[memberID]
}

// InFlight reports whether the proposal is awaiting venue confirmation.
func (g *Guard) InFlight(proposalID string) bool {
	_, ok := g.lock.inFlight[proposalID]
	return ok
}

// Reserve claims amount for the proposal's execution. Returns false if the
// proposal is already in flight.
func (g *Guard) Reserve(proposalID string, amount uint64) bool {
	if _, ok := g.lock.inFlight[proposalID]; ok {
		return false
	}
	g.lock.inFlight[proposalID] = amount
	return true
}

// Release drops the proposal's reservation.
func (g *Guard) Release(proposalID string) {
	delete(g.lock.inFlight, proposalID)
}

// Retire tears down the fund's lock state on archival. The guard stays held
// until Unlock; later Lock calls get a fresh lock.
func (g *Guard) Retire() {
	g.lock.retired = true
	g.reg.mu.Lock()
	if g.reg.funds[g.fundID] == g.lock {
		delete(g.reg.funds, g.fundID)
	}
	g.reg.mu.Unlock()
}

// Len returns the number of funds with live lock state.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.funds)
}

// Reserved returns the fund's in-flight reservation total without creating
// lock state. It waits for the fund lock if it is held.
func (r *Registry) Reserved(fundID string) uint64 {
	r.mu.Lock()
	fl, ok := r.funds[fundID]
	r.mu.Unlock()
	if !ok {
		return 0
	}

	fl.mu.Lock()
	defer fl.mu.Unlock()
	if fl.retired {
		return 0
	}
	g := Guard{fundID: fundID, lock: fl, reg: r}
	return g.Reserved()
}
