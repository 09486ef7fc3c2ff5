package domain

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func validRaffle() Raffle {
	return Raffle{
		ID:          "r1",
		Title:       "Spring draw",
		Category:    CategoryCaboclo,
		Date:        "2025-01-01",
		TicketPrice: decimal.NewFromInt(10),
	}
}

func TestRaffleValidate(t *testing.T) {
	cases := []struct {
		name  string
		edit  func(*Raffle)
		field string
	}{
		{"missing title", func(r *Raffle) { r.Title = "  " }, "title"},
		{"missing category", func(r *Raffle) { r.Category = "" }, "category"},
		{"unknown category", func(r *Raffle) { r.Category = "Lottery" }, "category"},
		{"missing date", func(r *Raffle) { r.Date = "" }, "date"},
		{"bad date", func(r *Raffle) { r.Date = "2025-13-01" }, "date"},
		{"negative price", func(r *Raffle) { r.TicketPrice = decimal.NewFromInt(-1) }, "ticketPrice"},
		{"sub-cent price", func(r *Raffle) { r.TicketPrice = decimal.RequireFromString("10.125") }, "ticketPrice"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := validRaffle()
			tc.edit(&r)
			err := r.Validate()
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if verr.Field != tc.field {
				t.Fatalf("expected field %s, got %s", tc.field, verr.Field)
			}
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("expected ErrValidation match")
			}
		})
	}
	if err := validRaffle().Validate(); err != nil {
		t.Fatalf("valid raffle rejected: %v", err)
	}
	free := validRaffle()
	free.TicketPrice = decimal.Zero
	if err := free.Validate(); err != nil {
		t.Fatalf("zero ticket price should be accepted: %v", err)
	}
}

func TestRaffleJSONDistinguishesCoreSnapshots(t *testing.T) {
	core, err := json.Marshal(validRaffle().Core())
	if err != nil {
		t.Fatalf("marshal core: %v", err)
	}
	if strings.Contains(string(core), "sales") || strings.Contains(string(core), "costs") {
		t.Fatalf("core snapshot should omit child lists: %s", core)
	}
	full, err := json.Marshal(validRaffle().WithChildren())
	if err != nil {
		t.Fatalf("marshal full: %v", err)
	}
	if !strings.Contains(string(full), `"sales":[]`) || !strings.Contains(string(full), `"costs":[]`) {
		t.Fatalf("expected empty child lists, got %s", full)
	}
	if !strings.Contains(string(full), `"ticketPrice":10`) {
		t.Fatalf("expected numeric ticket price, got %s", full)
	}

	var decoded Raffle
	if err := json.Unmarshal(core, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Sales != nil || decoded.Costs != nil {
		t.Fatalf("expected nil child lists after decoding core snapshot")
	}
	if !decoded.TicketPrice.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("unexpected ticket price %s", decoded.TicketPrice)
	}
}

func TestSaleValidate(t *testing.T) {
	sale := Sale{Quantity: 5, Amount: decimal.NewFromInt(50)}
	if err := sale.Validate(); err != nil {
		t.Fatalf("valid sale rejected: %v", err)
	}
	sale.Quantity = 0
	var verr *ValidationError
	if err := sale.Validate(); !errors.As(err, &verr) || verr.Field != "quantity" {
		t.Fatalf("expected quantity error, got %v", err)
	}
	sale.Quantity = 1
	sale.Amount = decimal.NewFromInt(-5)
	if err := sale.Validate(); !errors.As(err, &verr) || verr.Field != "amount" {
		t.Fatalf("expected amount error, got %v", err)
	}
}

func TestCostKindFlagsAreMutuallyExclusive(t *testing.T) {
	if _, err := CostKindFromFlags(true, true); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for both flags, got %v", err)
	}
	kind, err := CostKindFromFlags(true, false)
	if err != nil || kind != CostKindDonation {
		t.Fatalf("expected donation, got %s %v", kind, err)
	}
	c := Cost{Kind: kind}
	if !c.IsDonation() || c.IsReimbursement() {
		t.Fatalf("donation cost must not be reimbursable")
	}
	c.Kind = CostKindReimbursement
	if c.IsDonation() || !c.IsReimbursement() {
		t.Fatalf("reimbursable cost must not be a donation")
	}
}

func TestCostJSONFlags(t *testing.T) {
	c := Cost{ID: "c1", Description: "Prizes", Amount: decimal.NewFromInt(100), Kind: CostKindReimbursement}
	raw, err := json.Marshal(c)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(raw), `"isReimbursement":true`) || !strings.Contains(string(raw), `"isDonation":false`) {
		t.Fatalf("unexpected flags in %s", raw)
	}
	if strings.Contains(string(raw), "reimbursedDate") {
		t.Fatalf("unset reimbursed date should be omitted: %s", raw)
	}

	var both Cost
	err = json.Unmarshal([]byte(`{"description":"x","amount":1,"isDonation":true,"isReimbursement":true}`), &both)
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Field != "isReimbursement" {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCostNormalizeClearsReimbursementFields(t *testing.T) {
	c := Cost{
		Description:        "Prizes",
		Amount:             decimal.NewFromInt(10),
		Kind:               CostKindDonation,
		ReimbursedDate:     "2025-02-01",
		ReimbursementNotes: "paid",
	}
	if err := c.Validate(); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error before normalising, got %v", err)
	}
	n := c.Normalize()
	if !n.ReimbursedDate.IsZero() || n.ReimbursementNotes != "" {
		t.Fatalf("expected reimbursement fields cleared, got %+v", n)
	}
	if err := n.Validate(); err != nil {
		t.Fatalf("normalised cost rejected: %v", err)
	}
	if (Cost{}).Normalize().Kind != CostKindNone {
		t.Fatalf("expected empty kind to default to none")
	}
}

func TestCostValidateAmount(t *testing.T) {
	c := Cost{Description: "Prizes", Amount: decimal.Zero, Kind: CostKindNone}
	if err := c.Validate(); !errors.Is(err, ErrValidation) {
		t.Fatalf("zero amount should require donation, got %v", err)
	}
	c.Kind = CostKindDonation
	if err := c.Validate(); err != nil {
		t.Fatalf("zero donation rejected: %v", err)
	}
	c.Amount = decimal.NewFromInt(-1)
	if err := c.Validate(); !errors.Is(err, ErrValidation) {
		t.Fatalf("negative amount accepted")
	}
}

func TestMoneyScaleLimitedToCents(t *testing.T) {
	var verr *ValidationError
	sale := Sale{Quantity: 1, Amount: decimal.RequireFromString("0.001")}
	if err := sale.Validate(); !errors.As(err, &verr) || verr.Field != "amount" {
		t.Fatalf("expected sale amount error, got %v", err)
	}
	cost := Cost{Description: "Prizes", Kind: CostKindNone, Amount: decimal.RequireFromString("12.345")}
	if err := cost.Validate(); !errors.As(err, &verr) || verr.Field != "amount" {
		t.Fatalf("expected cost amount error, got %v", err)
	}

	// Trailing zeros do not count against the scale.
	cost.Amount = decimal.RequireFromString("12.300")
	if err := cost.Validate(); err != nil {
		t.Fatalf("12.300 rejected: %v", err)
	}
	r := validRaffle()
	r.TicketPrice = decimal.RequireFromString("10.12")
	if err := r.Validate(); err != nil {
		t.Fatalf("two decimal places rejected: %v", err)
	}
}

func TestMoneyMarshalsAsJSONNumbers(t *testing.T) {
	sale, err := json.Marshal(Sale{ID: "s1", Quantity: 2, Amount: decimal.RequireFromString("20.50")})
	if err != nil {
		t.Fatalf("marshal sale: %v", err)
	}
	if !strings.Contains(string(sale), `"amount":20.5`) {
		t.Fatalf("expected numeric sale amount, got %s", sale)
	}
	cost, err := json.Marshal(Cost{ID: "c1", Description: "Prizes", Kind: CostKindNone, Amount: decimal.NewFromInt(7)})
	if err != nil {
		t.Fatalf("marshal cost: %v", err)
	}
	if !strings.Contains(string(cost), `"amount":7`) {
		t.Fatalf("expected numeric cost amount, got %s", cost)
	}
	if decimal.MarshalJSONWithoutQuotes {
		t.Fatalf("package must not change the decimal library's global encoding")
	}

	var quoted Cost
	if err := json.Unmarshal([]byte(`{"description":"Prizes","amount":"3.25"}`), &quoted); err != nil {
		t.Fatalf("unmarshal quoted amount: %v", err)
	}
	if !quoted.Amount.Equal(decimal.RequireFromString("3.25")) {
		t.Fatalf("unexpected amount %s", quoted.Amount)
	}
	var decoded Sale
	if err := json.Unmarshal(sale, &decoded); err != nil {
		t.Fatalf("unmarshal sale: %v", err)
	}
	if !decoded.Amount.Equal(decimal.RequireFromString("20.5")) {
		t.Fatalf("unexpected sale amount %s", decoded.Amount)
	}
}

func TestReimbursementState(t *testing.T) {
	c := Cost{Kind: CostKindNone}
	if c.ReimbursementState() != ReimbursementNotApplicable {
		t.Fatalf("expected not reimbursable")
	}
	c.Kind = CostKindReimbursement
	if c.ReimbursementState() != ReimbursementPending {
		t.Fatalf("expected pending")
	}
	c.ReimbursedDate = "2025-02-01"
	if c.ReimbursementState() != ReimbursementSettled {
		t.Fatalf("expected reimbursed")
	}
	r := Raffle{Costs: []Cost{c, {ID: "p", Kind: CostKindReimbursement}}}
	if pending := r.PendingReimbursements(); len(pending) != 1 || pending[0].ID != "p" {
		t.Fatalf("unexpected pending list %+v", pending)
	}
}

func TestDateScanAndValue(t *testing.T) {
	var d Date
	if err := d.Scan(time.Date(2025, 3, 4, 0, 0, 0, 0, time.UTC)); err != nil || d != "2025-03-04" {
		t.Fatalf("scan time: %v %q", err, d)
	}
	if err := d.Scan([]byte("2025-03-05")); err != nil || d != "2025-03-05" {
		t.Fatalf("scan bytes: %v %q", err, d)
	}
	if err := d.Scan("2025-03-06T00:00:00Z"); err != nil || d != "2025-03-06" {
		t.Fatalf("scan timestamp string: %v %q", err, d)
	}
	if err := d.Scan(nil); err != nil || !d.IsZero() {
		t.Fatalf("scan nil: %v %q", err, d)
	}
	if err := d.Scan(42); err == nil {
		t.Fatalf("expected error scanning int")
	}
	v, err := Date("").Value()
	if err != nil || v != nil {
		t.Fatalf("expected NULL for unset date, got %v %v", v, err)
	}
	v, err = Date("2025-01-01").Value()
	if err != nil || v != "2025-01-01" {
		t.Fatalf("unexpected value %v %v", v, err)
	}
	if _, err := ParseDate("01/02/2025"); err == nil {
		t.Fatalf("expected parse failure")
	}
}
