package core

import "raffleledger/pkg/domain"

type (
	EntityType         = domain.EntityType
	Raffle             = domain.Raffle
	Sale               = domain.Sale
	Cost               = domain.Cost
	Category           = domain.Category
	Date               = domain.Date
	HistoryLog         = domain.HistoryLog
	ActionType         = domain.ActionType
	Snapshot           = domain.Snapshot
	Severity           = domain.Severity
	Change             = domain.Change
	Action             = domain.Action
	Violation          = domain.Violation
	Result             = domain.Result
	Rule               = domain.Rule
	RulesEngine        = domain.RulesEngine
	RuleViolationError = domain.RuleViolationError
)

const (
	EntityRaffle  = domain.EntityRaffle
	EntitySale    = domain.EntitySale
	EntityCost    = domain.EntityCost
	EntityHistory = domain.EntityHistory
)

const (
	SeverityBlock = domain.SeverityBlock
	SeverityWarn  = domain.SeverityWarn
	SeverityLog   = domain.SeverityLog
)

const (
	ActionCreate = domain.ActionCreate
	ActionUpdate = domain.ActionUpdate
	ActionDelete = domain.ActionDelete
)
