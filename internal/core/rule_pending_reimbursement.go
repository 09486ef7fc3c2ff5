package core

import (
	"context"
	"fmt"

	"raffleledger/pkg/domain"
)

// NewPendingReimbursementGuard blocks deleting or finalizing a raffle while
// any of its costs still awaits reimbursement.
func NewPendingReimbursementGuard() domain.Rule {
	return pendingReimbursementGuard{}
}

type pendingReimbursementGuard struct{}

func (pendingReimbursementGuard) Name() string { return "pending_reimbursement_guard" }

func (g pendingReimbursementGuard) Evaluate(_ context.Context, view domain.TransactionView, changes []domain.Change) (domain.Result, error) {
	var res domain.Result
	for _, change := range changes {
		if change.Entity != domain.EntityRaffle {
			continue
		}
		var (
			subject domain.Raffle
			verb    string
		)
		switch change.Action {
		case domain.ActionDelete:
			before, ok := change.Before.(domain.Raffle)
			if !ok {
				continue
			}
			subject, verb = before, "deleted"
		case domain.ActionUpdate:
			before, okBefore := change.Before.(domain.Raffle)
			after, okAfter := change.After.(domain.Raffle)
			if !okBefore || !okAfter || before.IsFinalized || !after.IsFinalized {
				continue
			}
			current, found := view.FindRaffle(after.ID)
			if !found {
				continue
			}
			subject, verb = current, "finalized"
		default:
			continue
		}
		pending := subject.PendingReimbursements()
		if len(pending) == 0 {
			continue
		}
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     g.Name(),
			Severity: domain.SeverityBlock,
			Message:  fmt.Sprintf("raffle %q has %d pending reimbursement(s) and cannot be %s", subject.Title, len(pending), verb),
			Entity:   domain.EntityRaffle,
			EntityID: subject.ID,
		})
	}
	return res, nil
}
