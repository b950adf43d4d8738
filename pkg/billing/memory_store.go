package billing

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore is an in-process UserStore and SubscriptionStore.
// Suitable for tests and single-instance development setups.
type MemoryStore struct {
	mu            sync.RWMutex
	users         map[uuid.UUID]User
	subscriptions map[uuid.UUID]Subscription
}

// NewMemoryStore returns a store seeded with the given users.
func NewMemoryStore(users ...User) *MemoryStore {
	s := &MemoryStore{
		users:         make(map[uuid.UUID]User, len(users)),
		subscriptions: make(map[uuid.UUID]Subscription),
	}
	for _, u := range users {
		s.users[u.ID] = u
	}
	return s
}

// AddUser inserts or replaces a user.
func (s *MemoryStore) AddUser(u User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
}

// GetUser returns a copy of the user by ID.
func (s *MemoryStore) GetUser(_ context.Context, id uuid.UUID) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &u, nil
}

func (s *MemoryStore) FindUserByEmail(_ context.Context, email string) (*User, error) {
	return s.findOne(func(u User) bool { return email != "" && u.Email == email })
}

func (s *MemoryStore) FindUserByCustomerID(_ context.Context, customerID string) (*User, error) {
	return s.findOne(func(u User) bool { return customerID != "" && u.CustomerID == customerID })
}

func (s *MemoryStore) findOne(match func(User) bool) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var found *User
	for _, u := range s.users {
		if !match(u) {
			continue
		}
		if found != nil {
			return nil, ErrAmbiguousUser
		}
		found = &u
	}
	if found == nil {
		return nil, ErrUserNotFound
	}
	return found, nil
}

func (s *MemoryStore) LinkCustomerID(_ context.Context, userID uuid.UUID, customerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	u.CustomerID = strings.TrimSpace(customerID)
	s.users[userID] = u
	return nil
}

func (s *MemoryStore) GetSubscription(_ context.Context, userID uuid.UUID) (*Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.subscriptions[userID]
	if !ok {
		return nil, ErrSubscriptionNotFound
	}
	if sub.EndDate != nil {
		end := *sub.EndDate
		sub.EndDate = &end
	}
	return &sub, nil
}

func (s *MemoryStore) ActivateSubscription(_ context.Context, a Activation) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, exists := s.subscriptions[a.UserID]
	if exists && !sub.acceptsEventAt(a.EventAt) {
		return false, nil
	}
	sub.applyActivation(a)
	s.subscriptions[a.UserID] = sub
	return true, nil
}

func (s *MemoryStore) DeactivateSubscription(_ context.Context, d Deactivation) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, exists := s.subscriptions[d.UserID]
	if !exists {
		return false, ErrSubscriptionNotFound
	}
	if !sub.acceptsEventAt(d.EventAt) {
		return false, nil
	}
	sub.applyDeactivation(d)
	s.subscriptions[d.UserID] = sub
	return true, nil
}

// Count returns the number of stored subscriptions.
func (s *MemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subscriptions)
}
