package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"slide-master/internal/domain"
)

// MemoryAccounts is a process-local account store for development and tests.
type MemoryAccounts struct {
	mu       sync.Mutex
	accounts map[string]domain.Account
}

func NewMemoryAccounts() *MemoryAccounts {
	return &MemoryAccounts{accounts: make(map[string]domain.Account)}
}

func (m *MemoryAccounts) Get(_ context.Context, requesterID string) (domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.accounts[requesterID]; ok {
		return a, nil
	}
	return domain.Account{RequesterID: requesterID}, nil
}

func (m *MemoryAccounts) ConditionalDecrement(_ context.Context, requesterID string) (int, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[requesterID]
	if !ok || a.Balance <= 0 {
		return a.Balance, false, nil
	}
	a.Balance--
	m.accounts[requesterID] = a
	return a.Balance, true, nil
}

func (m *MemoryAccounts) Credit(_ context.Context, requesterID string, amount int) (int, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("repository: Credit: amount must be positive, got %d", amount)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	a := m.accounts[requesterID]
	a.RequesterID = requesterID
	a.Balance += amount
	m.accounts[requesterID] = a
	return a.Balance, nil
}

func (m *MemoryAccounts) Ensure(_ context.Context, requesterID string, initial int) (domain.Account, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.accounts[requesterID]; ok {
		return a, false, nil
	}
	a := domain.Account{RequesterID: requesterID, Balance: initial}
	m.accounts[requesterID] = a
	return a, true, nil
}

func (m *MemoryAccounts) SetUnlimited(_ context.Context, requesterID string, unlimited bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := m.accounts[requesterID]
	a.RequesterID = requesterID
	a.Unlimited = unlimited
	m.accounts[requesterID] = a
	return nil
}

// MemoryInFlight is a process-local in-flight guard.
type MemoryInFlight struct {
	mu   sync.Mutex
	jobs map[string]string
}

func NewMemoryInFlight() *MemoryInFlight {
	return &MemoryInFlight{jobs: make(map[string]string)}
}

func (m *MemoryInFlight) Acquire(_ context.Context, requesterID, token string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, busy := m.jobs[requesterID]; busy {
		return false, nil
	}
	m.jobs[requesterID] = token
	return true, nil
}

// Release frees the guard only if token still owns it.
func (m *MemoryInFlight) Release(_ context.Context, requesterID, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.jobs[requesterID] == token {
		delete(m.jobs, requesterID)
	}
	return nil
}

type pendingTopic struct {
	topic   string
	expires time.Time
}

// MemoryTopics holds the topic a user typed until they pick a slide count.
type MemoryTopics struct {
	mu     sync.Mutex
	ttl    time.Duration
	now    func() time.Time
	topics map[string]pendingTopic
}

func NewMemoryTopics(ttl time.Duration) *MemoryTopics {
	return &MemoryTopics{ttl: ttl, now: time.Now, topics: make(map[string]pendingTopic)}
}

func (m *MemoryTopics) Save(_ context.Context, requesterID, topic string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := pendingTopic{topic: topic}
	if m.ttl > 0 {
		p.expires = m.now().Add(m.ttl)
	}
	m.topics[requesterID] = p
	return nil
}

// Take returns and forgets the pending topic.
func (m *MemoryTopics) Take(_ context.Context, requesterID string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.topics[requesterID]
	if !ok {
		return "", false, nil
	}
	delete(m.topics, requesterID)
	if !p.expires.IsZero() && m.now().After(p.expires) {
		return "", false, nil
	}
	return p.topic, true, nil
}
