package core

import "raffleledger/pkg/domain"

// NewRulesEngine constructs an engine with no rules registered.
func NewRulesEngine() *RulesEngine {
	return domain.NewRulesEngine()
}

// NewDefaultRulesEngine builds a rules engine with the built-in policy set.
func NewDefaultRulesEngine() *RulesEngine {
	engine := NewRulesEngine()
	engine.Register(NewFinalizedDeleteGuard())
	engine.Register(NewPendingReimbursementGuard())
	return engine
}
