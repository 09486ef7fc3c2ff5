// Package memory provides an in-memory implementation of the raffle
// persistence store. It is the transactional engine for every backend: SQL
// stores hydrate it at startup and persist each unit's changes through a hook.
package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"raffleledger/pkg/domain"

	"github.com/google/uuid"
)

// Compile-time contract assertions ensuring memory.Store adheres to the domain persistence interfaces.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// Raffle aliases domain.Raffle.
	Raffle = domain.Raffle
	// Sale aliases domain.Sale.
	Sale = domain.Sale
	// Cost aliases domain.Cost.
	Cost = domain.Cost
	// HistoryLog aliases domain.HistoryLog.
	HistoryLog = domain.HistoryLog
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
)

// PersistHook receives the changes of a unit of work before it is committed in
// memory. Returning an error discards the unit.
type PersistHook func(ctx context.Context, changes []Change) error

type memoryState struct {
	raffles    map[string]Raffle
	history    map[string]HistoryLog
	historySeq int64
}

// State captures a point-in-time clone of the store contents.
type State struct {
	Raffles []Raffle     `json:"raffles"`
	History []HistoryLog `json:"history"`
}

func newMemoryState() memoryState {
	return memoryState{
		raffles: make(map[string]Raffle),
		history: make(map[string]HistoryLog),
	}
}

func (s memoryState) clone() memoryState {
	out := memoryState{
		raffles:    make(map[string]Raffle, len(s.raffles)),
		history:    make(map[string]HistoryLog, len(s.history)),
		historySeq: s.historySeq,
	}
	for k, v := range s.raffles {
		out.raffles[k] = v.Clone()
	}
	for k, v := range s.history {
		out.history[k] = v.Clone()
	}
	return out
}

// Store is an in-memory transactional store. Writers are serialised; each
// transaction works on a cloned state that replaces the live state on success.
type Store struct {
	mu    sync.RWMutex
	state memoryState
	nowFn func() time.Time
}

// NewStore constructs an empty store.
func NewStore() *Store {
	return &Store{
		state: newMemoryState(),
		nowFn: func() time.Time { return time.Now().UTC() },
	}
}

// SetNowFunc overrides the clock used to stamp history entries that arrive without a timestamp.
func (s *Store) SetNowFunc(fn func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fn != nil {
		s.nowFn = fn
	}
}

// ExportState returns a deep copy of the current contents.
func (s *Store) ExportState() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	view := newTransactionView(&s.state)
	return State{Raffles: view.ListRaffles(), History: view.ListHistory()}
}

// ImportState replaces the store contents with the provided state.
func (s *Store) ImportState(st State) {
	next := newMemoryState()
	for _, r := range st.Raffles {
		next.raffles[r.ID] = r.WithChildren()
	}
	for _, h := range st.History {
		next.history[h.ID] = h.Clone()
		if h.Seq > next.historySeq {
			next.historySeq = h.Seq
		}
	}
	s.mu.Lock()
	s.state = next
	s.mu.Unlock()
}

// RunInTransaction applies fn to a cloned state and commits it when fn succeeds.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) error {
	return s.RunInTransactionWithHook(ctx, fn, nil)
}

// RunInTransactionWithHook is RunInTransaction with a persistence step that
// runs after fn and before the in-memory commit.
func (s *Store) RunInTransactionWithHook(ctx context.Context, fn func(tx Transaction) error, hook PersistHook) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		state: s.state.clone(),
		now:   s.nowFn(),
	}
	if err := fn(tx); err != nil {
		return err
	}
	if hook != nil && len(tx.changes) > 0 {
		if err := hook(ctx, tx.Changes()); err != nil {
			return err
		}
	}
	s.state = tx.state
	return nil
}

// View exposes a read-only snapshot of the current state.
func (s *Store) View(ctx context.Context, fn func(TransactionView) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := s.state.clone()
	return fn(newTransactionView(&snapshot))
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error { return nil }

type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) TransactionView {
	return transactionView{state: state}
}

func (v transactionView) FindRaffle(id string) (Raffle, bool) {
	r, ok := v.state.raffles[id]
	if !ok {
		return Raffle{}, false
	}
	return r.Clone().WithChildren(), true
}

func (v transactionView) ListRaffles() []Raffle {
	out := make([]Raffle, 0, len(v.state.raffles))
	for _, r := range v.state.raffles {
		out = append(out, r.Clone().WithChildren())
	}
	slices.SortFunc(out, func(a, b Raffle) int {
		if c := cmp.Compare(b.Date, a.Date); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Title, b.Title); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

func (v transactionView) FindSale(raffleID, id string) (Sale, bool) {
	r, ok := v.state.raffles[raffleID]
	if !ok {
		return Sale{}, false
	}
	return r.FindSale(id)
}

func (v transactionView) FindCost(raffleID, id string) (Cost, bool) {
	r, ok := v.state.raffles[raffleID]
	if !ok {
		return Cost{}, false
	}
	return r.FindCost(id)
}

func (v transactionView) FindHistory(id string) (HistoryLog, bool) {
	h, ok := v.state.history[id]
	if !ok {
		return HistoryLog{}, false
	}
	return h.Clone(), true
}

func (v transactionView) ListHistory() []HistoryLog {
	out := make([]HistoryLog, 0, len(v.state.history))
	for _, h := range v.state.history {
		out = append(out, h.Clone())
	}
	slices.SortFunc(out, func(a, b HistoryLog) int {
		if c := b.Timestamp.Compare(a.Timestamp); c != 0 {
			return c
		}
		return cmp.Compare(b.Seq, a.Seq)
	})
	return out
}

type transaction struct {
	state   memoryState
	changes []Change
	now     time.Time
}

func (tx *transaction) view() transactionView {
	return transactionView{state: &tx.state}
}

func (tx *transaction) FindRaffle(id string) (Raffle, bool) { return tx.view().FindRaffle(id) }
func (tx *transaction) ListRaffles() []Raffle               { return tx.view().ListRaffles() }
func (tx *transaction) FindSale(raffleID, id string) (Sale, bool) {
	return tx.view().FindSale(raffleID, id)
}
func (tx *transaction) FindCost(raffleID, id string) (Cost, bool) {
	return tx.view().FindCost(raffleID, id)
}
func (tx *transaction) FindHistory(id string) (HistoryLog, bool) { return tx.view().FindHistory(id) }
func (tx *transaction) ListHistory() []HistoryLog                { return tx.view().ListHistory() }

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// Changes lists the writes recorded so far.
func (tx *transaction) Changes() []Change {
	out := make([]Change, len(tx.changes))
	copy(out, tx.changes)
	return out
}

func newID() string { return uuid.NewString() }

// entryExists reports whether any raffle already owns a sale or cost with id.
func (tx *transaction) entryExists(entity domain.EntityType, id string) bool {
	for _, r := range tx.state.raffles {
		switch entity {
		case domain.EntitySale:
			if _, ok := r.FindSale(id); ok {
				return true
			}
		case domain.EntityCost:
			if _, ok := r.FindCost(id); ok {
				return true
			}
		}
	}
	return false
}

func (tx *transaction) prepareSale(raffleID string, s Sale) (Sale, error) {
	if s.ID == "" {
		s.ID = newID()
	}
	s.RaffleID = raffleID
	if err := s.Validate(); err != nil {
		return Sale{}, err
	}
	return s, nil
}

func (tx *transaction) prepareCost(raffleID string, c Cost) (Cost, error) {
	if c.ID == "" {
		c.ID = newID()
	}
	c.RaffleID = raffleID
	c = c.Normalize()
	if err := c.Validate(); err != nil {
		return Cost{}, err
	}
	return c, nil
}

// InsertRaffle stores a raffle and any children it carries.
func (tx *transaction) InsertRaffle(r Raffle) (Raffle, error) {
	if r.ID == "" {
		r.ID = newID()
	}
	if _, exists := tx.state.raffles[r.ID]; exists {
		return Raffle{}, domain.ConflictError{Entity: domain.EntityRaffle, ID: r.ID}
	}
	if err := r.Validate(); err != nil {
		return Raffle{}, err
	}
	stored := r.Core().WithChildren()
	for _, s := range r.Sales {
		prepared, err := tx.prepareSale(r.ID, s)
		if err != nil {
			return Raffle{}, err
		}
		if tx.entryExists(domain.EntitySale, prepared.ID) || containsID(stored.Sales, prepared.ID, func(s Sale) string { return s.ID }) {
			return Raffle{}, domain.ConflictError{Entity: domain.EntitySale, ID: prepared.ID}
		}
		stored.Sales = append(stored.Sales, prepared)
	}
	for _, c := range r.Costs {
		prepared, err := tx.prepareCost(r.ID, c)
		if err != nil {
			return Raffle{}, err
		}
		if tx.entryExists(domain.EntityCost, prepared.ID) || containsID(stored.Costs, prepared.ID, func(c Cost) string { return c.ID }) {
			return Raffle{}, domain.ConflictError{Entity: domain.EntityCost, ID: prepared.ID}
		}
		stored.Costs = append(stored.Costs, prepared)
	}
	tx.state.raffles[r.ID] = stored
	tx.recordChange(Change{Entity: domain.EntityRaffle, Action: domain.ActionCreate, After: stored.Clone()})
	return stored.Clone(), nil
}

// UpdateRaffle mutates the raffle's own fields.
func (tx *transaction) UpdateRaffle(id string, mutator func(*Raffle) error) (Raffle, error) {
	current, ok := tx.state.raffles[id]
	if !ok {
		return Raffle{}, domain.NotFoundError{Entity: domain.EntityRaffle, ID: id}
	}
	before := current.Core()
	next := current.Core()
	if err := mutator(&next); err != nil {
		return Raffle{}, err
	}
	next.ID = id
	if err := next.Validate(); err != nil {
		return Raffle{}, err
	}
	updated := next.Core()
	updated.Sales = current.Sales
	updated.Costs = current.Costs
	tx.state.raffles[id] = updated
	tx.recordChange(Change{Entity: domain.EntityRaffle, Action: domain.ActionUpdate, Before: before, After: next.Core()})
	return updated.Clone(), nil
}

// DeleteRaffle removes a raffle together with its sales and costs.
func (tx *transaction) DeleteRaffle(id string) (Raffle, error) {
	current, ok := tx.state.raffles[id]
	if !ok {
		return Raffle{}, domain.NotFoundError{Entity: domain.EntityRaffle, ID: id}
	}
	delete(tx.state.raffles, id)
	tx.recordChange(Change{Entity: domain.EntityRaffle, Action: domain.ActionDelete, Before: current.Clone()})
	return current.Clone(), nil
}

func (tx *transaction) parent(raffleID string) (Raffle, error) {
	r, ok := tx.state.raffles[raffleID]
	if !ok {
		return Raffle{}, domain.NotFoundError{Entity: domain.EntityRaffle, ID: raffleID}
	}
	return r, nil
}

// InsertSale appends a sale to a raffle.
func (tx *transaction) InsertSale(raffleID string, s Sale) (Sale, error) {
	r, err := tx.parent(raffleID)
	if err != nil {
		return Sale{}, err
	}
	s, err = tx.prepareSale(raffleID, s)
	if err != nil {
		return Sale{}, err
	}
	if tx.entryExists(domain.EntitySale, s.ID) {
		return Sale{}, domain.ConflictError{Entity: domain.EntitySale, ID: s.ID}
	}
	r.Sales = append(slices.Clone(r.Sales), s)
	tx.state.raffles[raffleID] = r
	tx.recordChange(Change{Entity: domain.EntitySale, Action: domain.ActionCreate, After: s})
	return s, nil
}

// UpdateSale mutates a sale in place.
func (tx *transaction) UpdateSale(raffleID, id string, mutator func(*Sale) error) (Sale, error) {
	r, err := tx.parent(raffleID)
	if err != nil {
		return Sale{}, err
	}
	idx := slices.IndexFunc(r.Sales, func(s Sale) bool { return s.ID == id })
	if idx < 0 {
		return Sale{}, domain.NotFoundError{Entity: domain.EntitySale, ID: id}
	}
	before := r.Sales[idx]
	next := before
	if err := mutator(&next); err != nil {
		return Sale{}, err
	}
	next.ID = id
	next.RaffleID = raffleID
	if err := next.Validate(); err != nil {
		return Sale{}, err
	}
	r.Sales = slices.Clone(r.Sales)
	r.Sales[idx] = next
	tx.state.raffles[raffleID] = r
	tx.recordChange(Change{Entity: domain.EntitySale, Action: domain.ActionUpdate, Before: before, After: next})
	return next, nil
}

// DeleteSale removes a sale from its raffle.
func (tx *transaction) DeleteSale(raffleID, id string) (Sale, error) {
	r, err := tx.parent(raffleID)
	if err != nil {
		return Sale{}, err
	}
	idx := slices.IndexFunc(r.Sales, func(s Sale) bool { return s.ID == id })
	if idx < 0 {
		return Sale{}, domain.NotFoundError{Entity: domain.EntitySale, ID: id}
	}
	removed := r.Sales[idx]
	r.Sales = slices.Delete(slices.Clone(r.Sales), idx, idx+1)
	tx.state.raffles[raffleID] = r
	tx.recordChange(Change{Entity: domain.EntitySale, Action: domain.ActionDelete, Before: removed})
	return removed, nil
}

// InsertCost appends a cost to a raffle.
func (tx *transaction) InsertCost(raffleID string, c Cost) (Cost, error) {
	r, err := tx.parent(raffleID)
	if err != nil {
		return Cost{}, err
	}
	c, err = tx.prepareCost(raffleID, c)
	if err != nil {
		return Cost{}, err
	}
	if tx.entryExists(domain.EntityCost, c.ID) {
		return Cost{}, domain.ConflictError{Entity: domain.EntityCost, ID: c.ID}
	}
	r.Costs = append(slices.Clone(r.Costs), c)
	tx.state.raffles[raffleID] = r
	tx.recordChange(Change{Entity: domain.EntityCost, Action: domain.ActionCreate, After: c})
	return c, nil
}

// UpdateCost mutates a cost in place. Reimbursement fields are dropped when
// the resulting kind is not reimbursement.
func (tx *transaction) UpdateCost(raffleID, id string, mutator func(*Cost) error) (Cost, error) {
	r, err := tx.parent(raffleID)
	if err != nil {
		return Cost{}, err
	}
	idx := slices.IndexFunc(r.Costs, func(c Cost) bool { return c.ID == id })
	if idx < 0 {
		return Cost{}, domain.NotFoundError{Entity: domain.EntityCost, ID: id}
	}
	before := r.Costs[idx]
	next := before
	if err := mutator(&next); err != nil {
		return Cost{}, err
	}
	next.ID = id
	next.RaffleID = raffleID
	next = next.Normalize()
	if err := next.Validate(); err != nil {
		return Cost{}, err
	}
	r.Costs = slices.Clone(r.Costs)
	r.Costs[idx] = next
	tx.state.raffles[raffleID] = r
	tx.recordChange(Change{Entity: domain.EntityCost, Action: domain.ActionUpdate, Before: before, After: next})
	return next, nil
}

// DeleteCost removes a cost from its raffle.
func (tx *transaction) DeleteCost(raffleID, id string) (Cost, error) {
	r, err := tx.parent(raffleID)
	if err != nil {
		return Cost{}, err
	}
	idx := slices.IndexFunc(r.Costs, func(c Cost) bool { return c.ID == id })
	if idx < 0 {
		return Cost{}, domain.NotFoundError{Entity: domain.EntityCost, ID: id}
	}
	removed := r.Costs[idx]
	r.Costs = slices.Delete(slices.Clone(r.Costs), idx, idx+1)
	tx.state.raffles[raffleID] = r
	tx.recordChange(Change{Entity: domain.EntityCost, Action: domain.ActionDelete, Before: removed})
	return removed, nil
}

// AppendHistory stores a ledger entry and assigns its sequence number.
func (tx *transaction) AppendHistory(h HistoryLog) (HistoryLog, error) {
	if h.ID == "" {
		h.ID = newID()
	}
	if _, exists := tx.state.history[h.ID]; exists {
		return HistoryLog{}, domain.ConflictError{Entity: domain.EntityHistory, ID: h.ID}
	}
	if err := h.Validate(); err != nil {
		return HistoryLog{}, err
	}
	if h.Timestamp.IsZero() {
		h.Timestamp = tx.now
	}
	tx.state.historySeq++
	h.Seq = tx.state.historySeq
	h.Undone = false
	tx.state.history[h.ID] = h.Clone()
	tx.recordChange(Change{Entity: domain.EntityHistory, Action: domain.ActionCreate, After: h.Clone()})
	return h.Clone(), nil
}

// MarkHistoryUndone flips an active entry to undone.
func (tx *transaction) MarkHistoryUndone(id string) (HistoryLog, error) {
	current, ok := tx.state.history[id]
	if !ok {
		return HistoryLog{}, domain.NotFoundError{Entity: domain.EntityHistory, ID: id}
	}
	if current.Undone {
		return HistoryLog{}, domain.AlreadyUndoneError{LogID: id}
	}
	before := current.Clone()
	current.Undone = true
	tx.state.history[id] = current
	tx.recordChange(Change{Entity: domain.EntityHistory, Action: domain.ActionUpdate, Before: before, After: current.Clone()})
	return current.Clone(), nil
}

func containsID[T any](items []T, id string, key func(T) string) bool {
	for _, item := range items {
		if key(item) == id {
			return true
		}
	}
	return false
}
