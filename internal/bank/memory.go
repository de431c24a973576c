package bank

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Memory is an in-process wallet store. Reject, when set, is consulted
// before every Transfer and lets tests simulate a recipient that refuses
// funds.
type Memory struct {
	mu       sync.Mutex
	balances map[string]int64

	Reject func(to string, amount int64) error
}

func NewMemory() *Memory {
	return &Memory{balances: make(map[string]int64)}
}

// Open creates the wallet with starter funds. Opening an existing wallet is
// a no-op.
func (m *Memory) Open(_ context.Context, id string, starter int64) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return ErrUnknownAccount
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.balances[id]; !ok {
		m.balances[id] = max(starter, 0)
	}
	return nil
}

func (m *Memory) Collect(_ context.Context, from string, amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	bal, ok := m.balances[from]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAccount, from)
	}
	if bal < amount {
		return fmt.Errorf("%w: have %d, need %d micros", ErrInsufficientFunds, bal, amount)
	}
	m.balances[from] = bal - amount
	return nil
}

// Transfer credits to, creating the wallet if needed.
func (m *Memory) Transfer(_ context.Context, to string, amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if m.Reject != nil {
		if err := m.Reject(to, amount); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	next, err := addBalance(m.balances[to], amount)
	if err != nil {
		return err
	}
	m.balances[to] = next
	return nil
}

func (m *Memory) Balance(_ context.Context, id string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	bal, ok := m.balances[id]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownAccount, id)
	}
	return bal, nil
}

// Total is the sum of all wallet balances.
func (m *Memory) Total() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var total int64
	for _, v := range m.balances {
		total += v
	}
	return total
}
