package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"raffleledger/pkg/domain"

	"github.com/shopspring/decimal"
)

func newRaffle(title string) Raffle {
	return Raffle{
		Title:       title,
		Category:    domain.CategoryMata,
		Date:        "2025-01-01",
		TicketPrice: decimal.NewFromInt(10),
	}
}

func seedRaffle(t *testing.T, store *Store) Raffle {
	t.Helper()
	var created Raffle
	err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		var err error
		created, err = tx.InsertRaffle(newRaffle("Spring"))
		return err
	})
	if err != nil {
		t.Fatalf("insert raffle: %v", err)
	}
	return created
}

func TestInsertRaffleAssignsIDAndEmptyChildren(t *testing.T) {
	store := NewStore()
	created := seedRaffle(t, store)
	if created.ID == "" {
		t.Fatalf("expected generated id")
	}
	if created.Sales == nil || created.Costs == nil || len(created.Sales) != 0 || len(created.Costs) != 0 {
		t.Fatalf("expected empty non-nil children, got %+v", created)
	}
	err := store.View(context.Background(), func(v TransactionView) error {
		got, ok := v.FindRaffle(created.ID)
		if !ok || got.Title != "Spring" {
			t.Fatalf("raffle not visible after commit: %+v", got)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
}

func TestRunInTransactionRollsBackOnError(t *testing.T) {
	store := NewStore()
	created := seedRaffle(t, store)
	boom := errors.New("boom")
	err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		if _, err := tx.InsertSale(created.ID, Sale{Quantity: 1, Amount: decimal.NewFromInt(10)}); err != nil {
			return err
		}
		if _, err := tx.DeleteRaffle(created.ID); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	state := store.ExportState()
	if len(state.Raffles) != 1 || len(state.Raffles[0].Sales) != 0 {
		t.Fatalf("expected untouched state, got %+v", state.Raffles)
	}
}

func TestPersistHookFailureDiscardsUnit(t *testing.T) {
	store := NewStore()
	created := seedRaffle(t, store)
	var seen []Change
	hookErr := errors.New("disk gone")
	err := store.RunInTransactionWithHook(context.Background(), func(tx Transaction) error {
		_, err := tx.UpdateRaffle(created.ID, func(r *Raffle) error {
			r.Title = "Renamed"
			return nil
		})
		return err
	}, func(_ context.Context, changes []Change) error {
		seen = changes
		return hookErr
	})
	if !errors.Is(err, hookErr) {
		t.Fatalf("expected hook error, got %v", err)
	}
	if len(seen) != 1 || seen[0].Entity != domain.EntityRaffle || seen[0].Action != domain.ActionUpdate {
		t.Fatalf("unexpected changes passed to hook: %+v", seen)
	}
	state := store.ExportState()
	if state.Raffles[0].Title != "Spring" {
		t.Fatalf("expected title unchanged, got %s", state.Raffles[0].Title)
	}
}

func TestEntryLifecycle(t *testing.T) {
	store := NewStore()
	raffle := seedRaffle(t, store)
	ctx := context.Background()

	var sale Sale
	var cost Cost
	err := store.RunInTransaction(ctx, func(tx Transaction) error {
		var err error
		sale, err = tx.InsertSale(raffle.ID, Sale{Quantity: 5, Amount: decimal.NewFromInt(50)})
		if err != nil {
			return err
		}
		cost, err = tx.InsertCost(raffle.ID, Cost{Description: "Prizes", Amount: decimal.NewFromInt(100), Kind: domain.CostKindReimbursement})
		return err
	})
	if err != nil {
		t.Fatalf("insert entries: %v", err)
	}
	if sale.RaffleID != raffle.ID || cost.RaffleID != raffle.ID {
		t.Fatalf("expected parent ids to be set")
	}

	err = store.RunInTransaction(ctx, func(tx Transaction) error {
		updated, err := tx.UpdateCost(raffle.ID, cost.ID, func(c *Cost) error {
			c.Kind = domain.CostKindDonation
			c.ReimbursedDate = "2025-02-01"
			return nil
		})
		if err != nil {
			return err
		}
		if updated.IsReimbursement() || !updated.ReimbursedDate.IsZero() {
			t.Fatalf("donation must drop reimbursement fields: %+v", updated)
		}
		changes := tx.Changes()
		if len(changes) != 1 || changes[0].Before.(Cost).Kind != domain.CostKindReimbursement {
			t.Fatalf("unexpected changes %+v", changes)
		}
		_, err = tx.DeleteSale(raffle.ID, sale.ID)
		return err
	})
	if err != nil {
		t.Fatalf("update entries: %v", err)
	}

	_ = store.View(ctx, func(v TransactionView) error {
		if _, ok := v.FindSale(raffle.ID, sale.ID); ok {
			t.Fatalf("sale should be deleted")
		}
		got, ok := v.FindCost(raffle.ID, cost.ID)
		if !ok || !got.IsDonation() {
			t.Fatalf("expected donation cost, got %+v", got)
		}
		return nil
	})
}

func TestEntryErrors(t *testing.T) {
	store := NewStore()
	raffle := seedRaffle(t, store)
	ctx := context.Background()

	cases := map[string]func(tx Transaction) error{
		"sale on missing raffle": func(tx Transaction) error {
			_, err := tx.InsertSale("missing", Sale{Quantity: 1})
			return err
		},
		"update missing cost": func(tx Transaction) error {
			_, err := tx.UpdateCost(raffle.ID, "missing", func(*Cost) error { return nil })
			return err
		},
		"delete missing sale": func(tx Transaction) error {
			_, err := tx.DeleteSale(raffle.ID, "missing")
			return err
		},
		"delete missing raffle": func(tx Transaction) error {
			_, err := tx.DeleteRaffle("missing")
			return err
		},
	}
	for name, fn := range cases {
		err := store.RunInTransaction(ctx, fn)
		if !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("%s: expected not found, got %v", name, err)
		}
	}

	err := store.RunInTransaction(ctx, func(tx Transaction) error {
		_, err := tx.InsertSale(raffle.ID, Sale{Quantity: 0})
		return err
	})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	err = store.RunInTransaction(ctx, func(tx Transaction) error {
		_, err := tx.InsertRaffle(Raffle{ID: raffle.ID, Title: "dup", Category: domain.CategoryOutro, Date: "2025-01-01"})
		return err
	})
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestDeleteRaffleCascadesAndReinsertRestores(t *testing.T) {
	store := NewStore()
	raffle := seedRaffle(t, store)
	ctx := context.Background()
	err := store.RunInTransaction(ctx, func(tx Transaction) error {
		for i := 0; i < 2; i++ {
			if _, err := tx.InsertSale(raffle.ID, Sale{Quantity: i + 1, Amount: decimal.NewFromInt(int64(10 * (i + 1)))}); err != nil {
				return err
			}
		}
		for i := 0; i < 3; i++ {
			if _, err := tx.InsertCost(raffle.ID, Cost{Description: "c", Amount: decimal.NewFromInt(1)}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed entries: %v", err)
	}

	var removed Raffle
	err = store.RunInTransaction(ctx, func(tx Transaction) error {
		var err error
		removed, err = tx.DeleteRaffle(raffle.ID)
		return err
	})
	if err != nil {
		t.Fatalf("delete raffle: %v", err)
	}
	if len(removed.Sales) != 2 || len(removed.Costs) != 3 {
		t.Fatalf("expected removed raffle to carry children, got %d sales %d costs", len(removed.Sales), len(removed.Costs))
	}
	if got := store.ExportState(); len(got.Raffles) != 0 {
		t.Fatalf("expected no raffles after delete")
	}

	err = store.RunInTransaction(ctx, func(tx Transaction) error {
		_, err := tx.InsertRaffle(removed)
		return err
	})
	if err != nil {
		t.Fatalf("reinsert: %v", err)
	}
	state := store.ExportState()
	if len(state.Raffles) != 1 || state.Raffles[0].ID != raffle.ID {
		t.Fatalf("expected raffle restored with original id")
	}
	if len(state.Raffles[0].Sales) != 2 || len(state.Raffles[0].Costs) != 3 {
		t.Fatalf("expected children restored")
	}
	if state.Raffles[0].Sales[0].ID != removed.Sales[0].ID {
		t.Fatalf("expected sale ids preserved")
	}
}

func TestHistoryAppendOrderingAndUndoFlag(t *testing.T) {
	store := NewStore()
	fixed := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	store.SetNowFunc(func() time.Time { return fixed })
	ctx := context.Background()

	var first, second HistoryLog
	err := store.RunInTransaction(ctx, func(tx Transaction) error {
		var err error
		first, err = tx.AppendHistory(HistoryLog{ActionType: domain.ActionCreateRaffle, RaffleID: "r1"})
		if err != nil {
			return err
		}
		second, err = tx.AppendHistory(HistoryLog{ActionType: domain.ActionUpdateRaffle, RaffleID: "r1"})
		return err
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if !first.Timestamp.Equal(fixed) || second.Seq <= first.Seq {
		t.Fatalf("unexpected stamping %+v %+v", first, second)
	}

	_ = store.View(ctx, func(v TransactionView) error {
		logs := v.ListHistory()
		if len(logs) != 2 || logs[0].ID != second.ID {
			t.Fatalf("expected newest first, got %+v", logs)
		}
		return nil
	})

	err = store.RunInTransaction(ctx, func(tx Transaction) error {
		_, err := tx.MarkHistoryUndone(first.ID)
		return err
	})
	if err != nil {
		t.Fatalf("mark undone: %v", err)
	}
	err = store.RunInTransaction(ctx, func(tx Transaction) error {
		_, err := tx.MarkHistoryUndone(first.ID)
		return err
	})
	if !errors.Is(err, domain.ErrAlreadyUndone) {
		t.Fatalf("expected already undone, got %v", err)
	}

	err = store.RunInTransaction(ctx, func(tx Transaction) error {
		_, err := tx.AppendHistory(HistoryLog{ActionType: "NOPE", RaffleID: "r1"})
		return err
	})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error for unknown action, got %v", err)
	}
}

func TestImportStateRestoresSequence(t *testing.T) {
	store := NewStore()
	store.ImportState(State{
		Raffles: []Raffle{{ID: "r1", Title: "A", Category: domain.CategoryPraia, Date: "2025-01-01"}},
		History: []HistoryLog{{ID: "h1", ActionType: domain.ActionCreateRaffle, RaffleID: "r1", Seq: 41, Timestamp: time.Unix(0, 0).UTC()}},
	})
	var appended HistoryLog
	err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		var err error
		appended, err = tx.AppendHistory(HistoryLog{ActionType: domain.ActionUpdateRaffle, RaffleID: "r1"})
		return err
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if appended.Seq != 42 {
		t.Fatalf("expected seq 42, got %d", appended.Seq)
	}
	state := store.ExportState()
	if state.Raffles[0].Sales == nil {
		t.Fatalf("expected imported raffle to have non-nil sales")
	}
}

func TestCanceledContext(t *testing.T) {
	store := NewStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := store.RunInTransaction(ctx, func(Transaction) error { return nil }); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled, got %v", err)
	}
	if err := store.View(ctx, func(TransactionView) error { return nil }); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled, got %v", err)
	}
}
