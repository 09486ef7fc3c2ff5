package core

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"raffleledger/internal/infra/persistence/memory"
	"raffleledger/pkg/domain"
)

// steppingClock advances one second on every reading.
type steppingClock struct {
	mu  sync.Mutex
	now time.Time
}

func newSteppingClock() *steppingClock {
	return &steppingClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *steppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func newTestService(t *testing.T, opts ...Option) *Service {
	t.Helper()
	svc := NewService(memory.NewStore(), append([]Option{WithClock(newSteppingClock())}, opts...)...)
	t.Cleanup(func() { _ = svc.Close() })
	return svc
}

func raffleInput(title string) RaffleInput {
	return RaffleInput{
		Title:       title,
		Category:    domain.CategoryCaboclo,
		Date:        "2025-01-01",
		TicketPrice: decimal.NewFromInt(10),
	}
}

func mustCreateRaffle(t *testing.T, svc *Service, title string) Raffle {
	t.Helper()
	r, _, err := svc.CreateRaffle(context.Background(), raffleInput(title))
	if err != nil {
		t.Fatalf("CreateRaffle: %v", err)
	}
	return r
}

func mustAddSale(t *testing.T, svc *Service, raffleID string, qty int) Sale {
	t.Helper()
	sale, _, err := svc.AddSale(context.Background(), raffleID, SaleInput{Quantity: qty})
	if err != nil {
		t.Fatalf("AddSale: %v", err)
	}
	return sale
}

func mustAddCost(t *testing.T, svc *Service, raffleID string, in CostInput) Cost {
	t.Helper()
	cost, _, err := svc.AddCost(context.Background(), raffleID, in)
	if err != nil {
		t.Fatalf("AddCost: %v", err)
	}
	return cost
}

func mustGetRaffle(t *testing.T, svc *Service, id string) Raffle {
	t.Helper()
	r, err := svc.GetRaffle(context.Background(), id)
	if err != nil {
		t.Fatalf("GetRaffle(%s): %v", id, err)
	}
	return r
}

func asJSON(t *testing.T, v any) string {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(raw)
}

func historyCount(t *testing.T, svc *Service) int {
	t.Helper()
	logs, err := svc.ListHistory(context.Background(), HistoryFilter{IncludeUndone: true})
	if err != nil {
		t.Fatalf("ListHistory: %v", err)
	}
	return len(logs)
}

var errDiskFull = errors.New("disk full")

// flakyStore fails the persistence step of every unit while fail is set.
type flakyStore struct {
	*memory.Store
	fail bool
}

func (f *flakyStore) RunInTransaction(ctx context.Context, fn func(Transaction) error) error {
	return f.RunInTransactionWithHook(ctx, fn, func(context.Context, []Change) error {
		if f.fail {
			return domain.NewStorageError("persist", errDiskFull)
		}
		return nil
	})
}
