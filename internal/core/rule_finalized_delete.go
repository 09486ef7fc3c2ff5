package core

import (
	"context"
	"fmt"

	"raffleledger/pkg/domain"
)

// NewFinalizedDeleteGuard blocks deleting a raffle that has been finalized.
func NewFinalizedDeleteGuard() domain.Rule {
	return finalizedDeleteGuard{}
}

type finalizedDeleteGuard struct{}

func (finalizedDeleteGuard) Name() string { return "finalized_raffle_delete_guard" }

func (g finalizedDeleteGuard) Evaluate(_ context.Context, _ domain.TransactionView, changes []domain.Change) (domain.Result, error) {
	var res domain.Result
	for _, change := range changes {
		if change.Entity != domain.EntityRaffle || change.Action != domain.ActionDelete {
			continue
		}
		before, ok := change.Before.(domain.Raffle)
		if !ok || !before.IsFinalized {
			continue
		}
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     g.Name(),
			Severity: domain.SeverityBlock,
			Message:  fmt.Sprintf("raffle %q is finalized and cannot be deleted", before.Title),
			Entity:   domain.EntityRaffle,
			EntityID: before.ID,
		})
	}
	return res, nil
}
