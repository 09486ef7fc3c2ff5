package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// ActionType enumerates the mutations documented by the history ledger.
type ActionType string

// Ledger action types.
const (
	ActionCreateRaffle         ActionType = "CREATE_RAFFLE"
	ActionUpdateRaffle         ActionType = "UPDATE_RAFFLE"
	ActionDeleteRaffle         ActionType = "DELETE_RAFFLE"
	ActionToggleFinalizeRaffle ActionType = "TOGGLE_FINALIZE_RAFFLE"
	ActionAddSale              ActionType = "ADD_SALE"
	ActionUpdateSale           ActionType = "UPDATE_SALE"
	ActionDeleteSale           ActionType = "DELETE_SALE"
	ActionAddCost              ActionType = "ADD_COST"
	ActionUpdateCost           ActionType = "UPDATE_COST"
	ActionDeleteCost           ActionType = "DELETE_COST"
	ActionAddReimbursement     ActionType = "ADD_REIMBURSEMENT"
	ActionDeleteReimbursement  ActionType = "DELETE_REIMBURSEMENT"
)

// SnapshotKind returns the variant stored in before/after states for the action.
func (a ActionType) SnapshotKind() (SnapshotKind, bool) {
	switch a {
	case ActionCreateRaffle, ActionUpdateRaffle, ActionDeleteRaffle, ActionToggleFinalizeRaffle:
		return SnapshotRaffle, true
	case ActionAddSale, ActionUpdateSale, ActionDeleteSale:
		return SnapshotSale, true
	case ActionAddCost, ActionUpdateCost, ActionDeleteCost, ActionAddReimbursement, ActionDeleteReimbursement:
		return SnapshotCost, true
	}
	return "", false
}

// Valid reports whether a is part of the fixed action set.
func (a ActionType) Valid() bool {
	_, ok := a.SnapshotKind()
	return ok
}

// Entity returns the entity type targeted by the action.
func (a ActionType) Entity() EntityType {
	kind, _ := a.SnapshotKind()
	return EntityType(kind)
}

// ClassifyRaffleUpdate distinguishes finalize toggles from plain edits.
func ClassifyRaffleUpdate(before, after Raffle) ActionType {
	if before.IsFinalized != after.IsFinalized {
		return ActionToggleFinalizeRaffle
	}
	return ActionUpdateRaffle
}

// ClassifyCostUpdate derives the action from the reimbursed date transition.
func ClassifyCostUpdate(before, after Cost) ActionType {
	switch {
	case before.ReimbursedDate.IsZero() && !after.ReimbursedDate.IsZero():
		return ActionAddReimbursement
	case !before.ReimbursedDate.IsZero() && after.ReimbursedDate.IsZero():
		return ActionDeleteReimbursement
	default:
		return ActionUpdateCost
	}
}

// SnapshotKind tags the variant held by a Snapshot.
type SnapshotKind string

// Snapshot variants.
const (
	SnapshotRaffle SnapshotKind = "raffle"
	SnapshotSale   SnapshotKind = "sale"
	SnapshotCost   SnapshotKind = "cost"
)

// Snapshot is the captured state of one entity. Exactly one variant pointer is
// set and matches Kind. It serialises as the bare entity; the owning log's
// action type selects the variant when decoding.
type Snapshot struct {
	Kind   SnapshotKind
	Raffle *Raffle
	Sale   *Sale
	Cost   *Cost
}

// RaffleSnapshot captures a raffle.
func RaffleSnapshot(r Raffle) *Snapshot {
	r = r.Clone()
	return &Snapshot{Kind: SnapshotRaffle, Raffle: &r}
}

// SaleSnapshot captures a sale.
func SaleSnapshot(s Sale) *Snapshot {
	return &Snapshot{Kind: SnapshotSale, Sale: &s}
}

// CostSnapshot captures a cost.
func CostSnapshot(c Cost) *Snapshot {
	return &Snapshot{Kind: SnapshotCost, Cost: &c}
}

// Clone deep-copies the snapshot.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	switch s.Kind {
	case SnapshotRaffle:
		if s.Raffle != nil {
			return RaffleSnapshot(*s.Raffle)
		}
	case SnapshotSale:
		if s.Sale != nil {
			return SaleSnapshot(*s.Sale)
		}
	case SnapshotCost:
		if s.Cost != nil {
			return CostSnapshot(*s.Cost)
		}
	}
	out := *s
	return &out
}

// EntityID returns the identifier of the captured entity.
func (s *Snapshot) EntityID() string {
	if s == nil {
		return ""
	}
	switch {
	case s.Raffle != nil:
		return s.Raffle.ID
	case s.Sale != nil:
		return s.Sale.ID
	case s.Cost != nil:
		return s.Cost.ID
	}
	return ""
}

// MarshalJSON encodes the active variant.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	switch s.Kind {
	case SnapshotRaffle:
		return json.Marshal(s.Raffle)
	case SnapshotSale:
		return json.Marshal(s.Sale)
	case SnapshotCost:
		return json.Marshal(s.Cost)
	}
	return nil, fmt.Errorf("snapshot: unknown kind %q", s.Kind)
}

// DecodeSnapshot decodes raw JSON into the variant named by kind. Empty input
// and JSON null decode to nil.
func DecodeSnapshot(kind SnapshotKind, raw []byte) (*Snapshot, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	switch kind {
	case SnapshotRaffle:
		var r Raffle
		if err := json.Unmarshal(trimmed, &r); err != nil {
			return nil, fmt.Errorf("decode raffle snapshot: %w", err)
		}
		return &Snapshot{Kind: kind, Raffle: &r}, nil
	case SnapshotSale:
		var sale Sale
		if err := json.Unmarshal(trimmed, &sale); err != nil {
			return nil, fmt.Errorf("decode sale snapshot: %w", err)
		}
		return &Snapshot{Kind: kind, Sale: &sale}, nil
	case SnapshotCost:
		var c Cost
		if err := json.Unmarshal(trimmed, &c); err != nil {
			return nil, fmt.Errorf("decode cost snapshot: %w", err)
		}
		return &Snapshot{Kind: kind, Cost: &c}, nil
	}
	return nil, fmt.Errorf("snapshot: unknown kind %q", kind)
}

// HistoryLog documents one mutation and carries what is needed to reverse it.
type HistoryLog struct {
	ID          string     `json:"id"`
	Timestamp   time.Time  `json:"timestamp"`
	ActionType  ActionType `json:"actionType"`
	Description string     `json:"description"`
	RaffleID    string     `json:"raffleId"`
	RaffleTitle string     `json:"raffleTitle"`
	EntityID    string     `json:"entityId,omitempty"`
	BeforeState *Snapshot  `json:"beforeState,omitempty"`
	AfterState  *Snapshot  `json:"afterState,omitempty"`
	Undone      bool       `json:"undone"`
	// Seq orders entries recorded within the same instant.
	Seq int64 `json:"-"`
}

type historyLogJSON struct {
	ID          string          `json:"id"`
	Timestamp   time.Time       `json:"timestamp"`
	ActionType  ActionType      `json:"actionType"`
	Description string          `json:"description"`
	RaffleID    string          `json:"raffleId"`
	RaffleTitle string          `json:"raffleTitle"`
	EntityID    string          `json:"entityId,omitempty"`
	BeforeState json.RawMessage `json:"beforeState,omitempty"`
	AfterState  json.RawMessage `json:"afterState,omitempty"`
	Undone      bool            `json:"undone"`
}

// UnmarshalJSON decodes snapshots using the variant implied by the action type.
func (h *HistoryLog) UnmarshalJSON(data []byte) error {
	var aux historyLogJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	kind, ok := aux.ActionType.SnapshotKind()
	if !ok {
		return fmt.Errorf("history log %s: unknown action type %q", aux.ID, aux.ActionType)
	}
	before, err := DecodeSnapshot(kind, aux.BeforeState)
	if err != nil {
		return err
	}
	after, err := DecodeSnapshot(kind, aux.AfterState)
	if err != nil {
		return err
	}
	*h = HistoryLog{
		ID:          aux.ID,
		Timestamp:   aux.Timestamp,
		ActionType:  aux.ActionType,
		Description: aux.Description,
		RaffleID:    aux.RaffleID,
		RaffleTitle: aux.RaffleTitle,
		EntityID:    aux.EntityID,
		BeforeState: before,
		AfterState:  after,
		Undone:      aux.Undone,
	}
	return nil
}

// Clone deep-copies the log including its snapshots.
func (h HistoryLog) Clone() HistoryLog {
	h.BeforeState = h.BeforeState.Clone()
	h.AfterState = h.AfterState.Clone()
	return h
}

// Validate checks the fields every ledger entry must carry.
func (h HistoryLog) Validate() error {
	if !h.ActionType.Valid() {
		return NewValidationError("actionType", fmt.Sprintf("unknown action type %q", h.ActionType))
	}
	if h.RaffleID == "" {
		return NewValidationError("raffleId", "raffle id is required")
	}
	want, _ := h.ActionType.SnapshotKind()
	for _, snap := range []*Snapshot{h.BeforeState, h.AfterState} {
		if snap != nil && snap.Kind != want {
			return NewValidationError("snapshot", fmt.Sprintf("%s entries capture %s state, got %s", h.ActionType, want, snap.Kind))
		}
	}
	return nil
}

// DescribeAction renders the human-readable summary stored with a log entry.
func DescribeAction(action ActionType, raffleTitle string, before, after *Snapshot) string {
	subject := after
	if subject == nil {
		subject = before
	}
	switch action {
	case ActionCreateRaffle:
		return fmt.Sprintf("Raffle %q was created.", raffleTitle)
	case ActionUpdateRaffle:
		return fmt.Sprintf("Raffle %q details were updated.", raffleTitle)
	case ActionDeleteRaffle:
		return fmt.Sprintf("Raffle %q was deleted.", raffleTitle)
	case ActionToggleFinalizeRaffle:
		state := "active"
		if subject != nil && subject.Raffle != nil && subject.Raffle.IsFinalized {
			state = "finalized"
		}
		return fmt.Sprintf("Raffle %q was marked as %s.", raffleTitle, state)
	case ActionAddSale:
		return fmt.Sprintf("Sale of %d ticket(s) added to raffle %q.", saleQuantity(subject), raffleTitle)
	case ActionUpdateSale:
		return fmt.Sprintf("Sale on raffle %q was updated.", raffleTitle)
	case ActionDeleteSale:
		return fmt.Sprintf("Sale of %d ticket(s) was removed from raffle %q.", saleQuantity(subject), raffleTitle)
	case ActionAddCost:
		return fmt.Sprintf("Cost %q added to raffle %q.", costDescription(subject), raffleTitle)
	case ActionUpdateCost:
		return fmt.Sprintf("Cost %q on raffle %q was updated.", costDescription(subject), raffleTitle)
	case ActionDeleteCost:
		return fmt.Sprintf("Cost %q was removed from raffle %q.", costDescription(subject), raffleTitle)
	case ActionAddReimbursement:
		return fmt.Sprintf("Reimbursement for %q recorded on raffle %q.", costDescription(subject), raffleTitle)
	case ActionDeleteReimbursement:
		return fmt.Sprintf("Reimbursement record for %q removed on raffle %q.", costDescription(subject), raffleTitle)
	}
	return string(action)
}

func saleQuantity(s *Snapshot) int {
	if s == nil || s.Sale == nil {
		return 0
	}
	return s.Sale.Quantity
}

func costDescription(s *Snapshot) string {
	if s == nil || s.Cost == nil {
		return ""
	}
	return s.Cost.Description
}
