package tools

import (
	"sync"

	"github.com/ternarybob/venator/internal/common"
	"github.com/ternarybob/venator/internal/models"
)

// defaultCost applies to tools missing from the configured cost table.
const defaultCost = 1

// Ledger tracks the credit balance. Costs come from configuration only;
// a tool is charged before execution and refunded on hard failure.
type Ledger struct {
	mu      sync.Mutex
	balance int
	costs   map[string]int
}

// NewLedger creates the ledger from the configured table.
func NewLedger(cfg common.CreditsConfig) *Ledger {
	costs := make(map[string]int, len(cfg.Costs))
	for tool, cost := range cfg.Costs {
		costs[tool] = cost
	}
	return &Ledger{balance: cfg.Balance, costs: costs}
}

// Cost returns the configured cost for a tool.
func (l *Ledger) Cost(tool string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if cost, ok := l.costs[tool]; ok {
		return cost
	}
	return defaultCost
}

// Charge deducts the tool's cost, failing without deduction when the
// balance is short.
func (l *Ledger) Charge(tool string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cost, ok := l.costs[tool]
	if !ok {
		cost = defaultCost
	}
	if cost > l.balance {
		return 0, models.NewError(models.KindCreditExhausted, "insufficient credits for %s (cost %d, balance %d)", tool, cost, l.balance)
	}
	l.balance -= cost
	return cost, nil
}

// Refund returns credits after a hard failure.
func (l *Ledger) Refund(amount int) {
	if amount <= 0 {
		return
	}
	l.mu.Lock()
	l.balance += amount
	l.mu.Unlock()
}

// Balance reports the remaining credits.
func (l *Ledger) Balance() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balance
}
