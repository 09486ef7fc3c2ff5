package core

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"raffleledger/pkg/domain"
)

// RaffleInput carries the caller-editable raffle fields. Updates replace all of them.
type RaffleInput struct {
	Title       string          `json:"title"`
	Category    Category        `json:"category"`
	Date        Date            `json:"date"`
	TicketPrice decimal.Decimal `json:"ticketPrice"`
	IsFinalized bool            `json:"isFinalized"`
}

func (in RaffleInput) apply(r *Raffle) {
	r.Title = strings.TrimSpace(in.Title)
	r.Category = in.Category
	r.Date = in.Date
	r.TicketPrice = in.TicketPrice
	r.IsFinalized = in.IsFinalized
}

// CreateRaffle stores a new, unfinalized raffle with no entries.
func (s *Service) CreateRaffle(ctx context.Context, in RaffleInput) (Raffle, HistoryLog, error) {
	var created Raffle
	log, err := s.mutate(ctx, opCreateRaffle, func(tx Transaction) (ledgerRecord, error) {
		var r Raffle
		in.apply(&r)
		r.IsFinalized = false
		stored, err := tx.InsertRaffle(r)
		if err != nil {
			return ledgerRecord{}, err
		}
		created = stored.WithChildren()
		return ledgerRecord{
			action:      domain.ActionCreateRaffle,
			raffleID:    created.ID,
			raffleTitle: created.Title,
			after:       domain.RaffleSnapshot(created),
		}, nil
	})
	if err != nil {
		return Raffle{}, HistoryLog{}, err
	}
	return created, log, nil
}

// UpdateRaffle replaces the raffle's own fields. A change to the finalized flag
// is recorded as a finalize toggle.
func (s *Service) UpdateRaffle(ctx context.Context, id string, in RaffleInput) (Raffle, HistoryLog, error) {
	return s.updateRaffle(ctx, opUpdateRaffle, id, func(r *Raffle) error {
		in.apply(r)
		return nil
	})
}

// SetFinalized flips only the finalized flag.
func (s *Service) SetFinalized(ctx context.Context, id string, finalized bool) (Raffle, HistoryLog, error) {
	return s.updateRaffle(ctx, opSetFinalized, id, func(r *Raffle) error {
		r.IsFinalized = finalized
		return nil
	})
}

func (s *Service) updateRaffle(ctx context.Context, op, id string, mutator func(*Raffle) error) (Raffle, HistoryLog, error) {
	var updated Raffle
	log, err := s.mutate(ctx, op, func(tx Transaction) (ledgerRecord, error) {
		before, ok := tx.FindRaffle(id)
		if !ok {
			return ledgerRecord{}, domain.NotFoundError{Entity: EntityRaffle, ID: id}
		}
		after, err := tx.UpdateRaffle(id, mutator)
		if err != nil {
			return ledgerRecord{}, err
		}
		updated = after.WithChildren()
		return ledgerRecord{
			action:      domain.ClassifyRaffleUpdate(before, after),
			raffleID:    id,
			raffleTitle: after.Title,
			before:      domain.RaffleSnapshot(before.Core()),
			after:       domain.RaffleSnapshot(after.Core()),
		}, nil
	})
	if err != nil {
		return Raffle{}, HistoryLog{}, err
	}
	return updated, log, nil
}

// DeleteRaffle removes the raffle with all of its sales and costs. The ledger
// entry captures the complete raffle so the deletion can be undone.
func (s *Service) DeleteRaffle(ctx context.Context, id string) (HistoryLog, error) {
	return s.mutate(ctx, opDeleteRaffle, func(tx Transaction) (ledgerRecord, error) {
		removed, err := tx.DeleteRaffle(id)
		if err != nil {
			return ledgerRecord{}, err
		}
		removed = removed.WithChildren()
		return ledgerRecord{
			action:      domain.ActionDeleteRaffle,
			raffleID:    id,
			raffleTitle: removed.Title,
			before:      domain.RaffleSnapshot(removed),
		}, nil
	})
}

// ListRaffles returns every raffle with its sales and costs.
func (s *Service) ListRaffles(ctx context.Context) ([]Raffle, error) {
	var out []Raffle
	err := s.run(ctx, opListRaffles, func(ctx context.Context) (string, error) {
		return "", s.store.View(ctx, func(view TransactionView) error {
			raffles := view.ListRaffles()
			out = make([]Raffle, 0, len(raffles))
			for _, r := range raffles {
				out = append(out, r.WithChildren())
			}
			return nil
		})
	})
	return out, err
}

// GetRaffle returns one raffle with its sales and costs.
func (s *Service) GetRaffle(ctx context.Context, id string) (Raffle, error) {
	var out Raffle
	err := s.run(ctx, opGetRaffle, func(ctx context.Context) (string, error) {
		return id, s.store.View(ctx, func(view TransactionView) error {
			r, ok := view.FindRaffle(id)
			if !ok {
				return domain.NotFoundError{Entity: EntityRaffle, ID: id}
			}
			out = r.WithChildren()
			return nil
		})
	})
	return out, err
}
