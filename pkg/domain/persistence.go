package domain

import "context"

// Transaction exposes the entity and ledger writes a persistence
// implementation must support within an atomic scope. Writes validate the
// entity, enforce parent existence and return NotFoundError or ConflictError
// as appropriate. Business policy is not enforced here.
type Transaction interface {
	TransactionView
	// InsertRaffle stores a raffle together with any sales and costs it carries.
	InsertRaffle(Raffle) (Raffle, error)
	// UpdateRaffle rewrites the raffle's own fields; child lists are ignored.
	UpdateRaffle(id string, mutator func(*Raffle) error) (Raffle, error)
	// DeleteRaffle removes the raffle and cascades to its sales and costs,
	// returning the full raffle as it was before deletion.
	DeleteRaffle(id string) (Raffle, error)
	InsertSale(raffleID string, sale Sale) (Sale, error)
	UpdateSale(raffleID, id string, mutator func(*Sale) error) (Sale, error)
	DeleteSale(raffleID, id string) (Sale, error)
	InsertCost(raffleID string, cost Cost) (Cost, error)
	UpdateCost(raffleID, id string, mutator func(*Cost) error) (Cost, error)
	DeleteCost(raffleID, id string) (Cost, error)
	// AppendHistory stores a new ledger entry. Entries are never deleted.
	AppendHistory(HistoryLog) (HistoryLog, error)
	// MarkHistoryUndone flips the undone flag of an active entry.
	MarkHistoryUndone(id string) (HistoryLog, error)
	// Changes lists the writes performed so far in this transaction.
	Changes() []Change
}

// TransactionView provides read-only access to snapshot data for rules and readers.
type TransactionView interface {
	FindRaffle(id string) (Raffle, bool)
	ListRaffles() []Raffle
	FindSale(raffleID, id string) (Sale, bool)
	FindCost(raffleID, id string) (Cost, bool)
	FindHistory(id string) (HistoryLog, bool)
	// ListHistory returns entries newest first.
	ListHistory() []HistoryLog
}

// PersistentStore is the abstraction over durable backends used by the service.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) error
	View(ctx context.Context, fn func(TransactionView) error) error
	Close() error
}
