package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"raffleledger/pkg/domain"
)

// EntryType selects the list an entry belongs to.
type EntryType string

// Entry types.
const (
	EntrySale EntryType = "sale"
	EntryCost EntryType = "cost"
)

// ParseEntryType validates a raw entry type.
func ParseEntryType(raw string) (EntryType, error) {
	switch t := EntryType(strings.ToLower(strings.TrimSpace(raw))); t {
	case EntrySale, EntryCost:
		return t, nil
	}
	return "", domain.NewValidationError("type", fmt.Sprintf("unknown entry type %q", raw))
}

// SaleInput describes a sale. A nil Amount is priced at quantity times the
// raffle's ticket price.
type SaleInput struct {
	ID          string           `json:"id,omitempty"`
	Description string           `json:"description"`
	Quantity    int              `json:"quantity"`
	Amount      *decimal.Decimal `json:"amount,omitempty"`
}

func (in SaleInput) sale(parent Raffle) Sale {
	amount := parent.TicketPrice.Mul(decimal.NewFromInt(int64(in.Quantity)))
	if in.Amount != nil {
		amount = *in.Amount
	}
	return Sale{
		ID:          in.ID,
		RaffleID:    parent.ID,
		Description: strings.TrimSpace(in.Description),
		Quantity:    in.Quantity,
		Amount:      amount,
	}
}

// CostInput describes a cost with the external pair of kind flags.
type CostInput struct {
	ID                 string          `json:"id,omitempty"`
	Description        string          `json:"description"`
	Amount             decimal.Decimal `json:"amount"`
	Date               Date            `json:"date,omitempty"`
	IsDonation         bool            `json:"isDonation"`
	IsReimbursement    bool            `json:"isReimbursement"`
	Notes              string          `json:"notes,omitempty"`
	ReimbursedDate     Date            `json:"reimbursedDate,omitempty"`
	ReimbursementNotes string          `json:"reimbursementNotes,omitempty"`
}

func (in CostInput) cost(raffleID string) (Cost, error) {
	kind, err := domain.CostKindFromFlags(in.IsDonation, in.IsReimbursement)
	if err != nil {
		return Cost{}, err
	}
	return Cost{
		ID:                 in.ID,
		RaffleID:           raffleID,
		Description:        strings.TrimSpace(in.Description),
		Amount:             in.Amount,
		Date:               in.Date,
		Kind:               kind,
		Notes:              in.Notes,
		ReimbursedDate:     in.ReimbursedDate,
		ReimbursementNotes: in.ReimbursementNotes,
	}.Normalize(), nil
}

// EntryInput carries the payload for the generic entry operations; the field
// matching the EntryType is used.
type EntryInput struct {
	Sale SaleInput
	Cost CostInput
}

// Entry is the stored result of a generic entry operation.
type Entry struct {
	Type EntryType `json:"type"`
	Sale *Sale     `json:"sale,omitempty"`
	Cost *Cost     `json:"cost,omitempty"`
}

// PendingReimbursement is a cost still owed back to whoever advanced it.
type PendingReimbursement struct {
	RaffleID    string `json:"raffleId"`
	RaffleTitle string `json:"raffleTitle"`
	Cost        Cost   `json:"cost"`
}

func parentRaffle(tx TransactionView, raffleID string) (Raffle, error) {
	r, ok := tx.FindRaffle(raffleID)
	if !ok {
		return Raffle{}, domain.NotFoundError{Entity: EntityRaffle, ID: raffleID}
	}
	return r, nil
}

// AddEntry appends a sale or cost to a raffle.
func (s *Service) AddEntry(ctx context.Context, raffleID string, typ EntryType, in EntryInput) (Entry, HistoryLog, error) {
	switch typ {
	case EntrySale:
		sale, log, err := s.AddSale(ctx, raffleID, in.Sale)
		if err != nil {
			return Entry{}, HistoryLog{}, err
		}
		return Entry{Type: typ, Sale: &sale}, log, nil
	case EntryCost:
		cost, log, err := s.AddCost(ctx, raffleID, in.Cost)
		if err != nil {
			return Entry{}, HistoryLog{}, err
		}
		return Entry{Type: typ, Cost: &cost}, log, nil
	}
	return Entry{}, HistoryLog{}, domain.NewValidationError("type", fmt.Sprintf("unknown entry type %q", typ))
}

// UpdateEntry replaces a sale or cost identified by entryID.
func (s *Service) UpdateEntry(ctx context.Context, raffleID string, typ EntryType, entryID string, in EntryInput) (Entry, HistoryLog, error) {
	switch typ {
	case EntrySale:
		sale, log, err := s.UpdateSale(ctx, raffleID, entryID, in.Sale)
		if err != nil {
			return Entry{}, HistoryLog{}, err
		}
		return Entry{Type: typ, Sale: &sale}, log, nil
	case EntryCost:
		cost, log, err := s.UpdateCost(ctx, raffleID, entryID, in.Cost)
		if err != nil {
			return Entry{}, HistoryLog{}, err
		}
		return Entry{Type: typ, Cost: &cost}, log, nil
	}
	return Entry{}, HistoryLog{}, domain.NewValidationError("type", fmt.Sprintf("unknown entry type %q", typ))
}

// DeleteEntry removes a sale or cost.
func (s *Service) DeleteEntry(ctx context.Context, raffleID string, typ EntryType, entryID string) (HistoryLog, error) {
	switch typ {
	case EntrySale:
		return s.DeleteSale(ctx, raffleID, entryID)
	case EntryCost:
		return s.DeleteCost(ctx, raffleID, entryID)
	}
	return HistoryLog{}, domain.NewValidationError("type", fmt.Sprintf("unknown entry type %q", typ))
}

// AddSale records tickets sold for a raffle.
func (s *Service) AddSale(ctx context.Context, raffleID string, in SaleInput) (Sale, HistoryLog, error) {
	var created Sale
	log, err := s.mutate(ctx, opAddSale, func(tx Transaction) (ledgerRecord, error) {
		parent, err := parentRaffle(tx, raffleID)
		if err != nil {
			return ledgerRecord{}, err
		}
		created, err = tx.InsertSale(raffleID, in.sale(parent))
		if err != nil {
			return ledgerRecord{}, err
		}
		return ledgerRecord{
			action:      domain.ActionAddSale,
			raffleID:    raffleID,
			raffleTitle: parent.Title,
			entityID:    created.ID,
			after:       domain.SaleSnapshot(created),
		}, nil
	})
	if err != nil {
		return Sale{}, HistoryLog{}, err
	}
	return created, log, nil
}

// UpdateSale replaces a sale's description, quantity and amount.
func (s *Service) UpdateSale(ctx context.Context, raffleID, saleID string, in SaleInput) (Sale, HistoryLog, error) {
	var updated Sale
	log, err := s.mutate(ctx, opUpdateSale, func(tx Transaction) (ledgerRecord, error) {
		parent, err := parentRaffle(tx, raffleID)
		if err != nil {
			return ledgerRecord{}, err
		}
		before, ok := parent.FindSale(saleID)
		if !ok {
			return ledgerRecord{}, domain.NotFoundError{Entity: EntitySale, ID: saleID}
		}
		next := in.sale(parent)
		updated, err = tx.UpdateSale(raffleID, saleID, func(sale *Sale) error {
			sale.Description = next.Description
			sale.Quantity = next.Quantity
			sale.Amount = next.Amount
			return nil
		})
		if err != nil {
			return ledgerRecord{}, err
		}
		return ledgerRecord{
			action:      domain.ActionUpdateSale,
			raffleID:    raffleID,
			raffleTitle: parent.Title,
			entityID:    saleID,
			before:      domain.SaleSnapshot(before),
			after:       domain.SaleSnapshot(updated),
		}, nil
	})
	if err != nil {
		return Sale{}, HistoryLog{}, err
	}
	return updated, log, nil
}

// DeleteSale removes a sale.
func (s *Service) DeleteSale(ctx context.Context, raffleID, saleID string) (HistoryLog, error) {
	return s.mutate(ctx, opDeleteSale, func(tx Transaction) (ledgerRecord, error) {
		parent, err := parentRaffle(tx, raffleID)
		if err != nil {
			return ledgerRecord{}, err
		}
		removed, err := tx.DeleteSale(raffleID, saleID)
		if err != nil {
			return ledgerRecord{}, err
		}
		return ledgerRecord{
			action:      domain.ActionDeleteSale,
			raffleID:    raffleID,
			raffleTitle: parent.Title,
			entityID:    saleID,
			before:      domain.SaleSnapshot(removed),
		}, nil
	})
}

// AddCost records an expense against a raffle.
func (s *Service) AddCost(ctx context.Context, raffleID string, in CostInput) (Cost, HistoryLog, error) {
	var created Cost
	log, err := s.mutate(ctx, opAddCost, func(tx Transaction) (ledgerRecord, error) {
		parent, err := parentRaffle(tx, raffleID)
		if err != nil {
			return ledgerRecord{}, err
		}
		cost, err := in.cost(raffleID)
		if err != nil {
			return ledgerRecord{}, err
		}
		created, err = tx.InsertCost(raffleID, cost)
		if err != nil {
			return ledgerRecord{}, err
		}
		return ledgerRecord{
			action:      domain.ActionAddCost,
			raffleID:    raffleID,
			raffleTitle: parent.Title,
			entityID:    created.ID,
			after:       domain.CostSnapshot(created),
		}, nil
	})
	if err != nil {
		return Cost{}, HistoryLog{}, err
	}
	return created, log, nil
}

// UpdateCost replaces every field of a cost. Setting or clearing the
// reimbursed date is recorded as adding or removing a reimbursement.
func (s *Service) UpdateCost(ctx context.Context, raffleID, costID string, in CostInput) (Cost, HistoryLog, error) {
	return s.updateCost(ctx, opUpdateCost, raffleID, costID, func(c *Cost) error {
		next, err := in.cost(raffleID)
		if err != nil {
			return err
		}
		next.ID = c.ID
		*c = next
		return nil
	})
}

// RecordReimbursement marks a reimbursable cost as repaid on date.
func (s *Service) RecordReimbursement(ctx context.Context, raffleID, costID string, date Date, notes string) (Cost, HistoryLog, error) {
	return s.updateCost(ctx, opRecordReimbursement, raffleID, costID, func(c *Cost) error {
		if !c.IsReimbursement() {
			return domain.NewValidationError("isReimbursement", "cost is not marked for reimbursement")
		}
		if date.IsZero() {
			return domain.NewValidationError("reimbursedDate", "reimbursed date is required")
		}
		c.ReimbursedDate = date
		c.ReimbursementNotes = strings.TrimSpace(notes)
		return nil
	})
}

// ClearReimbursement returns a reimbursed cost to pending.
func (s *Service) ClearReimbursement(ctx context.Context, raffleID, costID string) (Cost, HistoryLog, error) {
	return s.updateCost(ctx, opClearReimbursement, raffleID, costID, func(c *Cost) error {
		if !c.IsReimbursement() {
			return domain.NewValidationError("isReimbursement", "cost is not marked for reimbursement")
		}
		c.ReimbursedDate = ""
		c.ReimbursementNotes = ""
		return nil
	})
}

func (s *Service) updateCost(ctx context.Context, op, raffleID, costID string, mutator func(*Cost) error) (Cost, HistoryLog, error) {
	var updated Cost
	log, err := s.mutate(ctx, op, func(tx Transaction) (ledgerRecord, error) {
		parent, err := parentRaffle(tx, raffleID)
		if err != nil {
			return ledgerRecord{}, err
		}
		before, ok := parent.FindCost(costID)
		if !ok {
			return ledgerRecord{}, domain.NotFoundError{Entity: EntityCost, ID: costID}
		}
		updated, err = tx.UpdateCost(raffleID, costID, mutator)
		if err != nil {
			return ledgerRecord{}, err
		}
		return ledgerRecord{
			action:      domain.ClassifyCostUpdate(before, updated),
			raffleID:    raffleID,
			raffleTitle: parent.Title,
			entityID:    costID,
			before:      domain.CostSnapshot(before),
			after:       domain.CostSnapshot(updated),
		}, nil
	})
	if err != nil {
		return Cost{}, HistoryLog{}, err
	}
	return updated, log, nil
}

// DeleteCost removes a cost.
func (s *Service) DeleteCost(ctx context.Context, raffleID, costID string) (HistoryLog, error) {
	return s.mutate(ctx, opDeleteCost, func(tx Transaction) (ledgerRecord, error) {
		parent, err := parentRaffle(tx, raffleID)
		if err != nil {
			return ledgerRecord{}, err
		}
		removed, err := tx.DeleteCost(raffleID, costID)
		if err != nil {
			return ledgerRecord{}, err
		}
		return ledgerRecord{
			action:      domain.ActionDeleteCost,
			raffleID:    raffleID,
			raffleTitle: parent.Title,
			entityID:    costID,
			before:      domain.CostSnapshot(removed),
		}, nil
	})
}

// PendingReimbursements lists reimbursable costs without a reimbursed date
// across all raffles.
func (s *Service) PendingReimbursements(ctx context.Context) ([]PendingReimbursement, error) {
	var out []PendingReimbursement
	err := s.run(ctx, opPendingReimbursements, func(ctx context.Context) (string, error) {
		return "", s.store.View(ctx, func(view TransactionView) error {
			out = []PendingReimbursement{}
			for _, r := range view.ListRaffles() {
				for _, c := range r.PendingReimbursements() {
					out = append(out, PendingReimbursement{RaffleID: r.ID, RaffleTitle: r.Title, Cost: c})
				}
			}
			return nil
		})
	})
	return out, err
}
