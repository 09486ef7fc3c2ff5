// Package domain defines the raffle bookkeeping entities, the history ledger
// records that document every mutation, and the persistence and rule
// contracts shared by the service and storage layers.
package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// MoneyScale is the number of decimal places money values may carry. The
// postgres schema stores amounts as NUMERIC(12,2).
const MoneyScale = 2

// validMoney reports whether d fits in MoneyScale decimal places.
func validMoney(d decimal.Decimal) bool {
	return d.Equal(d.Truncate(MoneyScale))
}

// jsonMoney encodes a decimal as a bare JSON number. Decoding accepts both
// numbers and quoted strings.
type jsonMoney struct {
	decimal.Decimal
}

func (m jsonMoney) MarshalJSON() ([]byte, error) {
	return []byte(m.String()), nil
}

// EntityType identifies the type of record stored in the core domain.
type EntityType string

// Supported entity type identifiers used in Change records and errors.
const (
	EntityRaffle  EntityType = "raffle"
	EntitySale    EntityType = "sale"
	EntityCost    EntityType = "cost"
	EntityHistory EntityType = "history_log"
)

// Category is one of the fixed raffle labels.
type Category string

// Raffle categories.
const (
	CategoryCaboclo    Category = "Caboclo"
	CategoryPretoVelho Category = "Preto Velho"
	CategoryExu        Category = "Exú"
	CategoryCriancas   Category = "Crianças"
	CategoryMata       Category = "Mata"
	CategoryPraia      Category = "Praia"
	CategoryOutro      Category = "Outro"
)

const (
	dateLayout          = "2006-01-02"
	maxDescriptionRunes = 255
)

var categories = []Category{
	CategoryCaboclo,
	CategoryPretoVelho,
	CategoryExu,
	CategoryCriancas,
	CategoryMata,
	CategoryPraia,
	CategoryOutro,
}

// Categories returns the accepted raffle categories in display order.
func Categories() []Category {
	return slices.Clone(categories)
}

// Valid reports whether c belongs to the fixed label set.
func (c Category) Valid() bool {
	return slices.Contains(categories, c)
}

// Date is a calendar day formatted as YYYY-MM-DD. The zero value means unset.
type Date string

// ParseDate validates and normalises a calendar date string.
func ParseDate(raw string) (Date, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return "", fmt.Errorf("invalid date %q: expected YYYY-MM-DD", raw)
	}
	return Date(t.Format(dateLayout)), nil
}

// DateOf truncates t to its calendar day.
func DateOf(t time.Time) Date {
	return Date(t.Format(dateLayout))
}

// IsZero reports whether the date is unset.
func (d Date) IsZero() bool { return d == "" }

func (d Date) String() string { return string(d) }

// Valid reports whether a non-empty date is a real calendar day.
func (d Date) Valid() bool {
	if d == "" {
		return true
	}
	_, err := time.Parse(dateLayout, string(d))
	return err == nil
}

// Value implements driver.Valuer. Unset dates are stored as NULL.
func (d Date) Value() (driver.Value, error) {
	if d == "" {
		return nil, nil
	}
	return string(d), nil
}

// Scan implements sql.Scanner for TEXT, DATE and NULL columns.
func (d *Date) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*d = ""
	case time.Time:
		*d = DateOf(v.UTC())
	case string:
		return d.scanString(v)
	case []byte:
		return d.scanString(string(v))
	default:
		return fmt.Errorf("cannot scan %T into Date", src)
	}
	return nil
}

func (d *Date) scanString(raw string) error {
	// Drivers may hand back a full timestamp for DATE columns.
	if len(raw) > len(dateLayout) {
		raw = raw[:len(dateLayout)]
	}
	parsed, err := ParseDate(raw)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Raffle is a fundraising draw with its nested sales and costs.
type Raffle struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Category    Category        `json:"category"`
	Date        Date            `json:"date"`
	TicketPrice decimal.Decimal `json:"ticketPrice"`
	IsFinalized bool            `json:"isFinalized"`
	Sales       []Sale          `json:"sales"`
	Costs       []Cost          `json:"costs"`
}

type raffleJSON struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Category    Category  `json:"category"`
	Date        Date      `json:"date"`
	TicketPrice jsonMoney `json:"ticketPrice"`
	IsFinalized bool      `json:"isFinalized"`
	Sales       *[]Sale   `json:"sales,omitempty"`
	Costs       *[]Cost   `json:"costs,omitempty"`
}

// MarshalJSON omits nil child lists so core-field snapshots stay distinguishable
// from a raffle whose lists are merely empty.
func (r Raffle) MarshalJSON() ([]byte, error) {
	aux := raffleJSON{
		ID:          r.ID,
		Title:       r.Title,
		Category:    r.Category,
		Date:        r.Date,
		TicketPrice: jsonMoney{r.TicketPrice},
		IsFinalized: r.IsFinalized,
	}
	if r.Sales != nil {
		aux.Sales = &r.Sales
	}
	if r.Costs != nil {
		aux.Costs = &r.Costs
	}
	return json.Marshal(aux)
}

// Core returns a copy carrying only the raffle's own fields.
func (r Raffle) Core() Raffle {
	r.Sales = nil
	r.Costs = nil
	return r
}

// WithChildren returns a copy whose child lists are non-nil.
func (r Raffle) WithChildren() Raffle {
	r.Sales = cloneSlice(r.Sales)
	r.Costs = cloneSlice(r.Costs)
	return r
}

// Clone deep-copies the raffle including its child lists.
func (r Raffle) Clone() Raffle {
	if r.Sales != nil {
		r.Sales = slices.Clone(r.Sales)
	}
	if r.Costs != nil {
		r.Costs = slices.Clone(r.Costs)
	}
	return r
}

// FindSale returns the sale with the given id.
func (r Raffle) FindSale(id string) (Sale, bool) {
	for _, s := range r.Sales {
		if s.ID == id {
			return s, true
		}
	}
	return Sale{}, false
}

// FindCost returns the cost with the given id.
func (r Raffle) FindCost(id string) (Cost, bool) {
	for _, c := range r.Costs {
		if c.ID == id {
			return c, true
		}
	}
	return Cost{}, false
}

// PendingReimbursements lists costs awaiting repayment.
func (r Raffle) PendingReimbursements() []Cost {
	var out []Cost
	for _, c := range r.Costs {
		if c.ReimbursementState() == ReimbursementPending {
			out = append(out, c)
		}
	}
	return out
}

// Validate checks the raffle's own fields.
func (r Raffle) Validate() error {
	if strings.TrimSpace(r.Title) == "" {
		return NewValidationError("title", "title is required")
	}
	if r.Category == "" {
		return NewValidationError("category", "category is required")
	}
	if !r.Category.Valid() {
		return NewValidationError("category", fmt.Sprintf("unknown category %q", r.Category))
	}
	if r.Date.IsZero() {
		return NewValidationError("date", "date is required")
	}
	if !r.Date.Valid() {
		return NewValidationError("date", fmt.Sprintf("invalid date %q", r.Date))
	}
	if r.TicketPrice.IsNegative() {
		return NewValidationError("ticketPrice", "ticket price must not be negative")
	}
	if !validMoney(r.TicketPrice) {
		return NewValidationError("ticketPrice", fmt.Sprintf("ticket price must have at most %d decimal places", MoneyScale))
	}
	return nil
}

// Sale records tickets sold for a raffle.
type Sale struct {
	ID          string          `json:"id"`
	RaffleID    string          `json:"raffleId"`
	Description string          `json:"description"`
	Quantity    int             `json:"quantity"`
	Amount      decimal.Decimal `json:"amount"`
}

type saleJSON struct {
	ID          string    `json:"id"`
	RaffleID    string    `json:"raffleId"`
	Description string    `json:"description"`
	Quantity    int       `json:"quantity"`
	Amount      jsonMoney `json:"amount"`
}

// MarshalJSON writes the amount as a JSON number.
func (s Sale) MarshalJSON() ([]byte, error) {
	return json.Marshal(saleJSON{
		ID:          s.ID,
		RaffleID:    s.RaffleID,
		Description: s.Description,
		Quantity:    s.Quantity,
		Amount:      jsonMoney{s.Amount},
	})
}

// Validate checks quantity and amount bounds.
func (s Sale) Validate() error {
	if s.Quantity <= 0 {
		return NewValidationError("quantity", "quantity must be a positive integer")
	}
	if s.Amount.IsNegative() {
		return NewValidationError("amount", "amount must not be negative")
	}
	if !validMoney(s.Amount) {
		return NewValidationError("amount", fmt.Sprintf("amount must have at most %d decimal places", MoneyScale))
	}
	if len([]rune(s.Description)) > maxDescriptionRunes {
		return NewValidationError("description", "description is too long")
	}
	return nil
}

// CostKind classifies a cost's cash treatment. A cost is at most one kind.
type CostKind string

// Cost kinds.
const (
	CostKindNone          CostKind = "none"
	CostKindDonation      CostKind = "donation"
	CostKindReimbursement CostKind = "reimbursement"
)

// CostKindFromFlags maps the external pair of flags onto a single kind.
func CostKindFromFlags(isDonation, isReimbursement bool) (CostKind, error) {
	switch {
	case isDonation && isReimbursement:
		return "", NewValidationError("isReimbursement", "a cost cannot be both a donation and a reimbursement")
	case isDonation:
		return CostKindDonation, nil
	case isReimbursement:
		return CostKindReimbursement, nil
	default:
		return CostKindNone, nil
	}
}

// Valid reports whether k is a known kind. The empty kind counts as none.
func (k CostKind) Valid() bool {
	switch k {
	case "", CostKindNone, CostKindDonation, CostKindReimbursement:
		return true
	}
	return false
}

// ReimbursementState is derived from a cost's kind and reimbursed date.
type ReimbursementState string

// Reimbursement states.
const (
	ReimbursementNotApplicable ReimbursementState = "not_reimbursable"
	ReimbursementPending       ReimbursementState = "pending"
	ReimbursementSettled       ReimbursementState = "reimbursed"
)

// Cost records an expense against a raffle.
type Cost struct {
	ID                 string
	RaffleID           string
	Description        string
	Amount             decimal.Decimal
	Date               Date
	Kind               CostKind
	Notes              string
	ReimbursedDate     Date
	ReimbursementNotes string
}

type costJSON struct {
	ID                 string    `json:"id"`
	RaffleID           string    `json:"raffleId"`
	Description        string    `json:"description"`
	Amount             jsonMoney `json:"amount"`
	Date               Date      `json:"date,omitempty"`
	IsDonation         bool      `json:"isDonation"`
	IsReimbursement    bool      `json:"isReimbursement"`
	Notes              string    `json:"notes,omitempty"`
	ReimbursedDate     Date      `json:"reimbursedDate,omitempty"`
	ReimbursementNotes string    `json:"reimbursementNotes,omitempty"`
}

// MarshalJSON emits the kind as the isDonation/isReimbursement pair.
func (c Cost) MarshalJSON() ([]byte, error) {
	return json.Marshal(costJSON{
		ID:                 c.ID,
		RaffleID:           c.RaffleID,
		Description:        c.Description,
		Amount:             jsonMoney{c.Amount},
		Date:               c.Date,
		IsDonation:         c.IsDonation(),
		IsReimbursement:    c.IsReimbursement(),
		Notes:              c.Notes,
		ReimbursedDate:     c.ReimbursedDate,
		ReimbursementNotes: c.ReimbursementNotes,
	})
}

// UnmarshalJSON rejects payloads that set both flags.
func (c *Cost) UnmarshalJSON(data []byte) error {
	var aux costJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	kind, err := CostKindFromFlags(aux.IsDonation, aux.IsReimbursement)
	if err != nil {
		return err
	}
	*c = Cost{
		ID:                 aux.ID,
		RaffleID:           aux.RaffleID,
		Description:        aux.Description,
		Amount:             aux.Amount.Decimal,
		Date:               aux.Date,
		Kind:               kind,
		Notes:              aux.Notes,
		ReimbursedDate:     aux.ReimbursedDate,
		ReimbursementNotes: aux.ReimbursementNotes,
	}
	return nil
}

// IsDonation reports whether the cost was donated.
func (c Cost) IsDonation() bool { return c.Kind == CostKindDonation }

// IsReimbursement reports whether the cost was advanced and must be repaid.
func (c Cost) IsReimbursement() bool { return c.Kind == CostKindReimbursement }

// ReimbursementState derives the three-way reimbursement state.
func (c Cost) ReimbursementState() ReimbursementState {
	switch {
	case !c.IsReimbursement():
		return ReimbursementNotApplicable
	case c.ReimbursedDate.IsZero():
		return ReimbursementPending
	default:
		return ReimbursementSettled
	}
}

// Normalize fills the default kind and drops reimbursement fields that do not
// apply to the cost's kind.
func (c Cost) Normalize() Cost {
	if c.Kind == "" {
		c.Kind = CostKindNone
	}
	if c.Kind != CostKindReimbursement {
		c.ReimbursedDate = ""
		c.ReimbursementNotes = ""
	}
	return c
}

// Validate checks amount, kind and date invariants.
func (c Cost) Validate() error {
	if strings.TrimSpace(c.Description) == "" {
		return NewValidationError("description", "description is required")
	}
	if !c.Kind.Valid() {
		return NewValidationError("kind", fmt.Sprintf("unknown cost kind %q", c.Kind))
	}
	if c.Amount.IsNegative() {
		return NewValidationError("amount", "amount must not be negative")
	}
	if c.Amount.IsZero() && !c.IsDonation() {
		return NewValidationError("amount", "amount may be zero only for donations")
	}
	if !validMoney(c.Amount) {
		return NewValidationError("amount", fmt.Sprintf("amount must have at most %d decimal places", MoneyScale))
	}
	if !c.Date.Valid() {
		return NewValidationError("date", fmt.Sprintf("invalid date %q", c.Date))
	}
	if !c.ReimbursedDate.Valid() {
		return NewValidationError("reimbursedDate", fmt.Sprintf("invalid date %q", c.ReimbursedDate))
	}
	if !c.IsReimbursement() && (!c.ReimbursedDate.IsZero() || c.ReimbursementNotes != "") {
		return NewValidationError("reimbursedDate", "only reimbursable costs can carry reimbursement details")
	}
	return nil
}

func cloneSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return slices.Clone(in)
}
