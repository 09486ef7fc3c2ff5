// Package sqlstore implements the relational backend shared by the SQLite and
// Postgres stores. The in-memory store remains the transactional engine: the
// tables hydrate it at startup and every unit of work is written to the
// database in a single SQL transaction before it is committed in memory.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"raffleledger/internal/infra/persistence/memory"
	"raffleledger/internal/infra/persistence/sqlbundle"
	"raffleledger/pkg/domain"
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.PersistentStore = (*Store)(nil)

// Store persists raffles, entries and history rows to a relational database.
type Store struct {
	*memory.Store
	db       *sql.DB
	dialect  sqlbundle.Dialect
	position int64
}

// Open applies the schema, hydrates state from the tables and returns a ready store.
// The caller owns db until Open succeeds; afterwards Close releases it.
func Open(ctx context.Context, db *sql.DB, dialect sqlbundle.Dialect) (*Store, error) {
	if err := ApplySchema(ctx, db, dialect); err != nil {
		return nil, err
	}
	s := &Store{Store: memory.NewStore(), db: db, dialect: dialect}
	state, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	s.Store.ImportState(state)
	return s, nil
}

// ApplySchema executes the dialect's idempotent DDL.
func ApplySchema(ctx context.Context, db *sql.DB, dialect sqlbundle.Dialect) error {
	for _, stmt := range sqlbundle.SplitStatements(sqlbundle.DDL(dialect)) {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return domain.NewStorageError("apply schema", err)
		}
	}
	return nil
}

// RunInTransaction applies fn in memory, writes its changes to the database and
// commits in memory only when the database commit succeeds.
func (s *Store) RunInTransaction(ctx context.Context, fn func(domain.Transaction) error) error {
	return s.Store.RunInTransactionWithHook(ctx, fn, s.persist)
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Dialect reports the SQL flavour in use.
func (s *Store) Dialect() sqlbundle.Dialect { return s.dialect }

// Close releases the database handle.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) q(query string) string {
	return sqlbundle.Rebind(s.dialect, query)
}

func (s *Store) persist(ctx context.Context, changes []domain.Change) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.NewStorageError("begin", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	for _, change := range changes {
		if err := s.apply(ctx, tx, change); err != nil {
			return domain.NewStorageError(fmt.Sprintf("%s %s", change.Action, change.Entity), err)
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.NewStorageError("commit", err)
	}
	committed = true
	return nil
}

func (s *Store) apply(ctx context.Context, tx *sql.Tx, change domain.Change) error {
	switch change.Entity {
	case domain.EntityRaffle:
		return s.applyRaffle(ctx, tx, change)
	case domain.EntitySale:
		switch change.Action {
		case domain.ActionCreate:
			return s.upsertSale(ctx, tx, change.After.(domain.Sale), true)
		case domain.ActionUpdate:
			return s.upsertSale(ctx, tx, change.After.(domain.Sale), false)
		case domain.ActionDelete:
			return s.exec(ctx, tx, `DELETE FROM sales WHERE id = ?`, change.Before.(domain.Sale).ID)
		}
	case domain.EntityCost:
		switch change.Action {
		case domain.ActionCreate:
			return s.upsertCost(ctx, tx, change.After.(domain.Cost), true)
		case domain.ActionUpdate:
			return s.upsertCost(ctx, tx, change.After.(domain.Cost), false)
		case domain.ActionDelete:
			return s.exec(ctx, tx, `DELETE FROM costs WHERE id = ?`, change.Before.(domain.Cost).ID)
		}
	case domain.EntityHistory:
		return s.upsertHistory(ctx, tx, change.After.(domain.HistoryLog))
	}
	return fmt.Errorf("unsupported change %s %s", change.Action, change.Entity)
}

func (s *Store) applyRaffle(ctx context.Context, tx *sql.Tx, change domain.Change) error {
	switch change.Action {
	case domain.ActionCreate:
		r := change.After.(domain.Raffle)
		if err := s.upsertRaffle(ctx, tx, r); err != nil {
			return err
		}
		for _, sale := range r.Sales {
			if err := s.upsertSale(ctx, tx, sale, true); err != nil {
				return err
			}
		}
		for _, cost := range r.Costs {
			if err := s.upsertCost(ctx, tx, cost, true); err != nil {
				return err
			}
		}
		return nil
	case domain.ActionUpdate:
		return s.upsertRaffle(ctx, tx, change.After.(domain.Raffle))
	case domain.ActionDelete:
		id := change.Before.(domain.Raffle).ID
		// Children are removed explicitly as well as through the cascading keys.
		if err := s.exec(ctx, tx, `DELETE FROM sales WHERE raffle_id = ?`, id); err != nil {
			return err
		}
		if err := s.exec(ctx, tx, `DELETE FROM costs WHERE raffle_id = ?`, id); err != nil {
			return err
		}
		return s.exec(ctx, tx, `DELETE FROM raffles WHERE id = ?`, id)
	}
	return fmt.Errorf("unsupported raffle action %s", change.Action)
}

func (s *Store) exec(ctx context.Context, tx *sql.Tx, query string, args ...any) error {
	_, err := tx.ExecContext(ctx, s.q(query), args...)
	return err
}

func (s *Store) nextPosition() int64 {
	s.position++
	return s.position
}

func (s *Store) upsertRaffle(ctx context.Context, tx *sql.Tx, r domain.Raffle) error {
	return s.exec(ctx, tx, `INSERT INTO raffles (id, title, category, date, ticket_price, is_finalized)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET title = excluded.title, category = excluded.category, date = excluded.date,
ticket_price = excluded.ticket_price, is_finalized = excluded.is_finalized`,
		r.ID, r.Title, string(r.Category), r.Date, r.TicketPrice, r.IsFinalized)
}

func (s *Store) upsertSale(ctx context.Context, tx *sql.Tx, sale domain.Sale, insert bool) error {
	var position int64
	if insert {
		position = s.nextPosition()
	}
	return s.exec(ctx, tx, `INSERT INTO sales (id, raffle_id, description, quantity, amount, position)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET description = excluded.description, quantity = excluded.quantity, amount = excluded.amount`,
		sale.ID, sale.RaffleID, sale.Description, sale.Quantity, sale.Amount, position)
}

func (s *Store) upsertCost(ctx context.Context, tx *sql.Tx, cost domain.Cost, insert bool) error {
	var position int64
	if insert {
		position = s.nextPosition()
	}
	return s.exec(ctx, tx, `INSERT INTO costs (id, raffle_id, description, amount, date, is_donation, is_reimbursement, notes, reimbursed_date, reimbursement_notes, position)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET description = excluded.description, amount = excluded.amount, date = excluded.date,
is_donation = excluded.is_donation, is_reimbursement = excluded.is_reimbursement, notes = excluded.notes,
reimbursed_date = excluded.reimbursed_date, reimbursement_notes = excluded.reimbursement_notes`,
		cost.ID, cost.RaffleID, cost.Description, cost.Amount, cost.Date, cost.IsDonation(), cost.IsReimbursement(),
		cost.Notes, cost.ReimbursedDate, cost.ReimbursementNotes, position)
}

func (s *Store) upsertHistory(ctx context.Context, tx *sql.Tx, h domain.HistoryLog) error {
	before, err := snapshotColumn(h.BeforeState)
	if err != nil {
		return err
	}
	after, err := snapshotColumn(h.AfterState)
	if err != nil {
		return err
	}
	var entityID any
	if h.EntityID != "" {
		entityID = h.EntityID
	}
	return s.exec(ctx, tx, `INSERT INTO history_logs (id, seq, action_type, raffle_id, raffle_title, description, entity_id, before_state, after_state, timestamp, undone)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET undone = excluded.undone`,
		h.ID, h.Seq, string(h.ActionType), h.RaffleID, h.RaffleTitle, h.Description, entityID, before, after,
		h.Timestamp.UnixMilli(), h.Undone)
}

func snapshotColumn(snap *domain.Snapshot) (any, error) {
	if snap == nil {
		return nil, nil
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return string(raw), nil
}

func (s *Store) load(ctx context.Context) (memory.State, error) {
	var state memory.State
	raffles, err := s.loadRaffles(ctx)
	if err != nil {
		return state, err
	}
	index := make(map[string]int, len(raffles))
	for i := range raffles {
		raffles[i] = raffles[i].WithChildren()
		index[raffles[i].ID] = i
	}
	sales, err := s.loadSales(ctx)
	if err != nil {
		return state, err
	}
	for _, sale := range sales {
		if i, ok := index[sale.RaffleID]; ok {
			raffles[i].Sales = append(raffles[i].Sales, sale)
		}
	}
	costs, err := s.loadCosts(ctx)
	if err != nil {
		return state, err
	}
	for _, cost := range costs {
		if i, ok := index[cost.RaffleID]; ok {
			raffles[i].Costs = append(raffles[i].Costs, cost)
		}
	}
	history, err := s.loadHistory(ctx)
	if err != nil {
		return state, err
	}
	state.Raffles = raffles
	state.History = history
	return state, nil
}

func (s *Store) loadRaffles(ctx context.Context) ([]domain.Raffle, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, title, category, date, ticket_price, is_finalized FROM raffles`)
	if err != nil {
		return nil, domain.NewStorageError("select raffles", err)
	}
	defer func() { _ = rows.Close() }()
	var out []domain.Raffle
	for rows.Next() {
		var r domain.Raffle
		var category string
		if err := rows.Scan(&r.ID, &r.Title, &category, &r.Date, &r.TicketPrice, &r.IsFinalized); err != nil {
			return nil, domain.NewStorageError("scan raffle", err)
		}
		r.Category = domain.Category(category)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewStorageError("iterate raffles", err)
	}
	return out, nil
}

func (s *Store) loadSales(ctx context.Context) ([]domain.Sale, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, raffle_id, description, quantity, amount, position FROM sales ORDER BY position`)
	if err != nil {
		return nil, domain.NewStorageError("select sales", err)
	}
	defer func() { _ = rows.Close() }()
	var out []domain.Sale
	for rows.Next() {
		var sale domain.Sale
		var position int64
		if err := rows.Scan(&sale.ID, &sale.RaffleID, &sale.Description, &sale.Quantity, &sale.Amount, &position); err != nil {
			return nil, domain.NewStorageError("scan sale", err)
		}
		s.observePosition(position)
		out = append(out, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewStorageError("iterate sales", err)
	}
	return out, nil
}

func (s *Store) loadCosts(ctx context.Context) ([]domain.Cost, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, raffle_id, description, amount, date, is_donation, is_reimbursement, notes, reimbursed_date, reimbursement_notes, position FROM costs ORDER BY position`)
	if err != nil {
		return nil, domain.NewStorageError("select costs", err)
	}
	defer func() { _ = rows.Close() }()
	var out []domain.Cost
	for rows.Next() {
		var cost domain.Cost
		var isDonation, isReimbursement bool
		var position int64
		if err := rows.Scan(&cost.ID, &cost.RaffleID, &cost.Description, &cost.Amount, &cost.Date, &isDonation, &isReimbursement,
			&cost.Notes, &cost.ReimbursedDate, &cost.ReimbursementNotes, &position); err != nil {
			return nil, domain.NewStorageError("scan cost", err)
		}
		kind, err := domain.CostKindFromFlags(isDonation, isReimbursement)
		if err != nil {
			return nil, domain.NewStorageError("decode cost "+cost.ID, err)
		}
		cost.Kind = kind
		s.observePosition(position)
		out = append(out, cost.Normalize())
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewStorageError("iterate costs", err)
	}
	return out, nil
}

func (s *Store) loadHistory(ctx context.Context) ([]domain.HistoryLog, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, seq, action_type, raffle_id, raffle_title, description, entity_id, before_state, after_state, timestamp, undone FROM history_logs`)
	if err != nil {
		return nil, domain.NewStorageError("select history", err)
	}
	defer func() { _ = rows.Close() }()
	var out []domain.HistoryLog
	for rows.Next() {
		var h domain.HistoryLog
		var action string
		var entityID, before, after sql.NullString
		var millis int64
		if err := rows.Scan(&h.ID, &h.Seq, &action, &h.RaffleID, &h.RaffleTitle, &h.Description, &entityID, &before, &after, &millis, &h.Undone); err != nil {
			return nil, domain.NewStorageError("scan history", err)
		}
		h.ActionType = domain.ActionType(action)
		h.EntityID = entityID.String
		h.Timestamp = time.UnixMilli(millis).UTC()
		kind, ok := h.ActionType.SnapshotKind()
		if !ok {
			return nil, domain.NewStorageError("decode history "+h.ID, fmt.Errorf("unknown action type %q", action))
		}
		if h.BeforeState, err = decodeColumn(kind, before); err != nil {
			return nil, domain.NewStorageError("decode history "+h.ID, err)
		}
		if h.AfterState, err = decodeColumn(kind, after); err != nil {
			return nil, domain.NewStorageError("decode history "+h.ID, err)
		}
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewStorageError("iterate history", err)
	}
	return out, nil
}

func decodeColumn(kind domain.SnapshotKind, col sql.NullString) (*domain.Snapshot, error) {
	if !col.Valid {
		return nil, nil
	}
	return domain.DecodeSnapshot(kind, []byte(col.String))
}

func (s *Store) observePosition(p int64) {
	if p > s.position {
		s.position = p
	}
}
