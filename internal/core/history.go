package core

import (
	"context"
	"fmt"

	"raffleledger/pkg/domain"
)

// HistoryFilter narrows ListHistory. A zero Limit returns every match.
type HistoryFilter struct {
	RaffleID      string
	IncludeUndone bool
	Limit         int
}

func (f HistoryFilter) matches(h HistoryLog) bool {
	if f.RaffleID != "" && h.RaffleID != f.RaffleID {
		return false
	}
	return f.IncludeUndone || !h.Undone
}

// ListHistory returns ledger entries newest first.
func (s *Service) ListHistory(ctx context.Context, filter HistoryFilter) ([]HistoryLog, error) {
	var out []HistoryLog
	err := s.run(ctx, opListHistory, func(ctx context.Context) (string, error) {
		return filter.RaffleID, s.store.View(ctx, func(view TransactionView) error {
			out = []HistoryLog{}
			for _, h := range view.ListHistory() {
				if !filter.matches(h) {
					continue
				}
				out = append(out, h)
				if filter.Limit > 0 && len(out) == filter.Limit {
					break
				}
			}
			return nil
		})
	})
	return out, err
}

// GetHistory returns one ledger entry.
func (s *Service) GetHistory(ctx context.Context, logID string) (HistoryLog, error) {
	var out HistoryLog
	err := s.run(ctx, opGetHistory, func(ctx context.Context) (string, error) {
		return logID, s.store.View(ctx, func(view TransactionView) error {
			h, ok := view.FindHistory(logID)
			if !ok {
				return domain.NotFoundError{Entity: EntityHistory, ID: logID}
			}
			out = h
			return nil
		})
	})
	return out, err
}

// Undo applies the inverse of an active ledger entry and marks it undone in
// the same transaction. Undo writes no ledger entry of its own and is not
// subject to business rules. A target that no longer exists fails with
// NotFoundError.
func (s *Service) Undo(ctx context.Context, logID string) (HistoryLog, error) {
	var undone HistoryLog
	err := s.run(ctx, opUndo, func(ctx context.Context) (string, error) {
		return logID, s.store.RunInTransaction(ctx, func(tx Transaction) error {
			entry, ok := tx.FindHistory(logID)
			if !ok {
				return domain.NotFoundError{Entity: EntityHistory, ID: logID}
			}
			if entry.Undone {
				return domain.AlreadyUndoneError{LogID: logID}
			}
			if err := applyInverse(tx, entry); err != nil {
				return err
			}
			var err error
			undone, err = tx.MarkHistoryUndone(logID)
			return err
		})
	})
	if err != nil {
		return HistoryLog{}, err
	}
	s.logger.Info("history entry undone", "log_id", logID, "action", undone.ActionType, "raffle_id", undone.RaffleID)
	return undone, nil
}

func applyInverse(tx Transaction, entry HistoryLog) error {
	switch entry.ActionType {
	case domain.ActionCreateRaffle:
		_, err := tx.DeleteRaffle(entry.RaffleID)
		return err

	case domain.ActionDeleteRaffle:
		before, err := requireRaffle(entry)
		if err != nil {
			return err
		}
		_, err = tx.InsertRaffle(before)
		return err

	case domain.ActionUpdateRaffle, domain.ActionToggleFinalizeRaffle:
		before, err := requireRaffle(entry)
		if err != nil {
			return err
		}
		_, err = tx.UpdateRaffle(entry.RaffleID, func(r *Raffle) error {
			r.Title = before.Title
			r.Category = before.Category
			r.Date = before.Date
			r.TicketPrice = before.TicketPrice
			r.IsFinalized = before.IsFinalized
			return nil
		})
		return err

	case domain.ActionAddSale:
		_, err := tx.DeleteSale(entry.RaffleID, targetID(entry))
		return err

	case domain.ActionAddCost:
		_, err := tx.DeleteCost(entry.RaffleID, targetID(entry))
		return err

	case domain.ActionDeleteSale:
		before, err := requireSale(entry)
		if err != nil {
			return err
		}
		_, err = tx.InsertSale(entry.RaffleID, before)
		return err

	case domain.ActionDeleteCost:
		before, err := requireCost(entry)
		if err != nil {
			return err
		}
		_, err = tx.InsertCost(entry.RaffleID, before)
		return err

	case domain.ActionUpdateSale:
		before, err := requireSale(entry)
		if err != nil {
			return err
		}
		_, err = tx.UpdateSale(entry.RaffleID, targetID(entry), func(sale *Sale) error {
			*sale = before
			return nil
		})
		return err

	case domain.ActionUpdateCost, domain.ActionAddReimbursement, domain.ActionDeleteReimbursement:
		before, err := requireCost(entry)
		if err != nil {
			return err
		}
		_, err = tx.UpdateCost(entry.RaffleID, targetID(entry), func(c *Cost) error {
			*c = before
			return nil
		})
		return err
	}
	return domain.NewValidationError("actionType", fmt.Sprintf("cannot undo action %q", entry.ActionType))
}

// targetID is the affected sale or cost. Entries written before entity ids
// were recorded fall back to the snapshot.
func targetID(entry HistoryLog) string {
	if entry.EntityID != "" {
		return entry.EntityID
	}
	if id := entry.AfterState.EntityID(); id != "" {
		return id
	}
	return entry.BeforeState.EntityID()
}

func missingBefore(entry HistoryLog) error {
	return domain.NewValidationError("beforeState", fmt.Sprintf("history entry %s has no prior state to restore", entry.ID))
}

func requireRaffle(entry HistoryLog) (Raffle, error) {
	if entry.BeforeState == nil || entry.BeforeState.Raffle == nil {
		return Raffle{}, missingBefore(entry)
	}
	return entry.BeforeState.Raffle.Clone(), nil
}

func requireSale(entry HistoryLog) (Sale, error) {
	if entry.BeforeState == nil || entry.BeforeState.Sale == nil {
		return Sale{}, missingBefore(entry)
	}
	return *entry.BeforeState.Sale, nil
}

func requireCost(entry HistoryLog) (Cost, error) {
	if entry.BeforeState == nil || entry.BeforeState.Cost == nil {
		return Cost{}, missingBefore(entry)
	}
	return *entry.BeforeState.Cost, nil
}
