package core

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"raffleledger/pkg/domain"
)

func TestFinalizedRaffleCannotBeDeleted(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	r := mustCreateRaffle(t, svc, "Festa")
	if _, _, err := svc.SetFinalized(ctx, r.ID, true); err != nil {
		t.Fatalf("SetFinalized: %v", err)
	}

	_, err := svc.DeleteRaffle(ctx, r.ID)
	if !errors.Is(err, domain.ErrRuleViolation) {
		t.Fatalf("expected rule violation, got %v", err)
	}
	var violation RuleViolationError
	if !errors.As(err, &violation) {
		t.Fatalf("expected RuleViolationError, got %T", err)
	}
	if len(violation.Result.Violations) != 1 || violation.Result.Violations[0].Rule != "finalized_raffle_delete_guard" {
		t.Fatalf("unexpected violations %+v", violation.Result.Violations)
	}
	if !strings.Contains(err.Error(), "finalized") {
		t.Fatalf("expected message to mention finalization, got %q", err.Error())
	}
	mustGetRaffle(t, svc, r.ID)
	if n := historyCount(t, svc); n != 2 {
		t.Fatalf("blocked delete must not write history, got %d entries", n)
	}

	if _, _, err := svc.SetFinalized(ctx, r.ID, false); err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if _, err := svc.DeleteRaffle(ctx, r.ID); err != nil {
		t.Fatalf("delete after reopening: %v", err)
	}
}

func TestPendingReimbursementBlocksFinalizeAndDelete(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	r := mustCreateRaffle(t, svc, "Festa")
	cost := mustAddCost(t, svc, r.ID, CostInput{Description: "Gas", Amount: decimal.NewFromInt(15), IsReimbursement: true})

	if _, _, err := svc.SetFinalized(ctx, r.ID, true); !errors.Is(err, domain.ErrRuleViolation) {
		t.Fatalf("expected finalize to be blocked, got %v", err)
	}
	if got := mustGetRaffle(t, svc, r.ID); got.IsFinalized {
		t.Fatalf("blocked finalize must not persist")
	}
	if _, err := svc.DeleteRaffle(ctx, r.ID); !errors.Is(err, domain.ErrRuleViolation) {
		t.Fatalf("expected delete to be blocked, got %v", err)
	}

	in := raffleInput("Festa")
	in.IsFinalized = true
	if _, _, err := svc.UpdateRaffle(ctx, r.ID, in); !errors.Is(err, domain.ErrRuleViolation) {
		t.Fatalf("expected full update finalizing to be blocked, got %v", err)
	}

	if _, _, err := svc.RecordReimbursement(ctx, r.ID, cost.ID, "2025-01-10", ""); err != nil {
		t.Fatalf("RecordReimbursement: %v", err)
	}
	if _, log, err := svc.SetFinalized(ctx, r.ID, true); err != nil || log.ActionType != domain.ActionToggleFinalizeRaffle {
		t.Fatalf("expected finalize to succeed, got %s (%v)", log.ActionType, err)
	}
}

func TestUndoBypassesRules(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	r, create, err := svc.CreateRaffle(ctx, raffleInput("Festa"))
	if err != nil {
		t.Fatalf("CreateRaffle: %v", err)
	}
	if _, _, err := svc.SetFinalized(ctx, r.ID, true); err != nil {
		t.Fatalf("SetFinalized: %v", err)
	}
	if _, err := svc.Undo(ctx, create.ID); err != nil {
		t.Fatalf("undo of creation must not consult rules: %v", err)
	}
	if _, err := svc.GetRaffle(ctx, r.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected raffle removed, got %v", err)
	}
}

func TestNilRulesEngineDisablesPolicies(t *testing.T) {
	ctx := context.Background()
	svc := NewInMemoryService(nil, WithClock(newSteppingClock()))
	if svc.RulesEngine() != nil {
		t.Fatalf("expected no rules engine")
	}
	r := mustCreateRaffle(t, svc, "Festa")
	if _, _, err := svc.SetFinalized(ctx, r.ID, true); err != nil {
		t.Fatalf("SetFinalized: %v", err)
	}
	if _, err := svc.DeleteRaffle(ctx, r.ID); err != nil {
		t.Fatalf("expected delete without rules, got %v", err)
	}
}

type warnEverything struct{}

func (warnEverything) Name() string { return "warn_everything" }

func (warnEverything) Evaluate(_ context.Context, _ domain.TransactionView, changes []Change) (Result, error) {
	var res Result
	for _, c := range changes {
		res.Violations = append(res.Violations, Violation{Rule: "warn_everything", Severity: SeverityWarn, Entity: c.Entity})
	}
	return res, nil
}

type failingRule struct{}

func (failingRule) Name() string { return "failing" }

func (failingRule) Evaluate(context.Context, domain.TransactionView, []Change) (Result, error) {
	return Result{}, errors.New("rule backend offline")
}

func TestNonBlockingViolationsAllowMutation(t *testing.T) {
	engine := NewRulesEngine()
	engine.Register(warnEverything{})
	svc := NewInMemoryService(engine, WithClock(newSteppingClock()))
	if _, _, err := svc.CreateRaffle(context.Background(), raffleInput("Festa")); err != nil {
		t.Fatalf("warnings must not block: %v", err)
	}
	if len(svc.RulesEngine().Rules()) != 1 {
		t.Fatalf("expected the registered rule to be kept")
	}
}

func TestRuleErrorAbortsMutation(t *testing.T) {
	engine := NewRulesEngine()
	engine.Register(failingRule{})
	svc := NewInMemoryService(engine, WithClock(newSteppingClock()))
	_, _, err := svc.CreateRaffle(context.Background(), raffleInput("Festa"))
	if err == nil || !strings.Contains(err.Error(), "rule failing") {
		t.Fatalf("expected rule error, got %v", err)
	}
	if raffles, _ := svc.ListRaffles(context.Background()); len(raffles) != 0 {
		t.Fatalf("aborted mutation must not persist")
	}
}

func TestDefaultRulesEngineRegistersBuiltins(t *testing.T) {
	names := map[string]bool{}
	for _, rule := range NewDefaultRulesEngine().Rules() {
		names[rule.Name()] = true
	}
	if !names["finalized_raffle_delete_guard"] || !names["pending_reimbursement_guard"] {
		t.Fatalf("unexpected default rules %v", names)
	}
}
