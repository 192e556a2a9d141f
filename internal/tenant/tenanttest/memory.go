// AngelaMos | 2026
// memory.go

// Package tenanttest provides an in-memory tenant.Repository for tests.
package tenanttest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/carterperez-dev/templates/storefront-billing/internal/core"
	"github.com/carterperez-dev/templates/storefront-billing/internal/tenant"
)

type Store struct {
	mu      sync.Mutex
	members map[string]tenant.Membership
	subs    map[string]tenant.Subscription
	pages   map[string]tenant.PageCounts
	audit   []tenant.AuditEntry
	nextID  int64

	// Now stamps audit rows. Defaults to time.Now.
	Now func() time.Time
	// FailAudit makes AppendAudit return an error when set.
	FailAudit error
	// FailGetSubscription makes GetSubscription return an error when set.
	FailGetSubscription error
	// FailEnsure makes EnsureSubscription return an error when set.
	FailEnsure error
}

var _ tenant.Repository = (*Store)(nil)

func New() *Store {
	return &Store{
		members: make(map[string]tenant.Membership),
		subs:    make(map[string]tenant.Subscription),
		pages:   make(map[string]tenant.PageCounts),
		Now:     time.Now,
	}
}

// SeedHotel creates a hotel owned by userID with its default subscription.
func (s *Store) SeedHotel(userID string) string {
	m, err := s.CreateHotelForOwner(context.Background(), userID, "Test Hotel")
	if err != nil {
		panic(err)
	}
	return m.HotelID
}

func (s *Store) SetPages(hotelID string, counts tenant.PageCounts) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages[hotelID] = counts
}

// PutSubscription overwrites a row directly, bypassing the upsert rules.
func (s *Store) PutSubscription(sub tenant.Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs[sub.HotelID] = sub
}

// AddAudit inserts a row with an explicit timestamp.
func (s *Store) AddAudit(entry tenant.AuditEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	entry.ID = s.nextID
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.Now()
	}
	s.audit = append(s.audit, entry)
}

func (s *Store) Audit() []tenant.AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]tenant.AuditEntry, len(s.audit))
	copy(out, s.audit)
	return out
}

func (s *Store) AuditActions() []string {
	entries := s.Audit()
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Action)
	}
	return out
}

func (s *Store) EnsureSubscription(_ context.Context, hotelID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailEnsure != nil {
		return fmt.Errorf("ensure subscription: %w", s.FailEnsure)
	}
	s.ensureLocked(hotelID)
	return nil
}

func (s *Store) ensureLocked(hotelID string) {
	if _, ok := s.subs[hotelID]; ok {
		return
	}
	now := s.Now()
	s.subs[hotelID] = tenant.Subscription{
		HotelID:           hotelID,
		Plan:              tenant.PlanFree,
		Status:            tenant.StatusCanceled,
		MaxPublishedPages: 3,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

func (s *Store) GetSubscription(
	_ context.Context,
	hotelID string,
) (*tenant.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailGetSubscription != nil {
		return nil, fmt.Errorf("get subscription: %w", s.FailGetSubscription)
	}
	sub, ok := s.subs[hotelID]
	if !ok {
		return nil, fmt.Errorf("get subscription: %w", core.ErrNotFound)
	}
	return &sub, nil
}

func (s *Store) ApplySubscription(
	_ context.Context,
	hotelID string,
	u tenant.SubscriptionUpdate,
) (*tenant.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u.StripeSubscriptionID != "" {
		for id, other := range s.subs {
			if id != hotelID && other.SubscriptionID() == u.StripeSubscriptionID {
				return nil, fmt.Errorf("apply subscription: %w", core.ErrDuplicateKey)
			}
		}
	}

	s.ensureLocked(hotelID)
	sub := s.subs[hotelID]
	sub.Status = u.Status
	sub.Plan = u.Plan
	sub.MaxPublishedPages = u.MaxPublishedPages
	sub.CurrentPeriodEnd = nil
	if u.CurrentPeriodEnd != nil {
		t := *u.CurrentPeriodEnd
		sub.CurrentPeriodEnd = &t
	}
	if u.StripeCustomerID != "" {
		sub.StripeCustomerID = strPtr(u.StripeCustomerID)
	}
	if u.StripeSubscriptionID != "" {
		sub.StripeSubscriptionID = strPtr(u.StripeSubscriptionID)
	}
	if u.StripePriceID != "" {
		sub.StripePriceID = strPtr(u.StripePriceID)
	}
	sub.UpdatedAt = u.UpdatedAt
	s.subs[hotelID] = sub

	return &sub, nil
}

func (s *Store) SetCustomerID(_ context.Context, hotelID, customerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subs[hotelID]
	if !ok {
		return fmt.Errorf("set customer id: %w", core.ErrNotFound)
	}
	sub.StripeCustomerID = strPtr(customerID)
	sub.UpdatedAt = s.Now()
	s.subs[hotelID] = sub
	return nil
}

func (s *Store) FindHotelBySubscriptionID(
	_ context.Context,
	subscriptionID string,
) (string, error) {
	return s.find(subscriptionID, (*tenant.Subscription).SubscriptionID)
}

func (s *Store) FindHotelByCustomerID(
	_ context.Context,
	customerID string,
) (string, error) {
	return s.find(customerID, (*tenant.Subscription).CustomerID)
}

func (s *Store) find(value string, field func(*tenant.Subscription) string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if value == "" {
		return "", fmt.Errorf("find hotel: %w", core.ErrNotFound)
	}

	var (
		best   string
		bestAt time.Time
	)
	for id, sub := range s.subs {
		if field(&sub) == value && (best == "" || sub.UpdatedAt.After(bestAt)) {
			best, bestAt = id, sub.UpdatedAt
		}
	}
	if best == "" {
		return "", fmt.Errorf("find hotel: %w", core.ErrNotFound)
	}
	return best, nil
}

func (s *Store) GetMembershipByUser(
	_ context.Context,
	userID string,
) (*tenant.Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.members[userID]
	if !ok {
		return nil, fmt.Errorf("get membership: %w", core.ErrNotFound)
	}
	return &m, nil
}

func (s *Store) CreateHotelForOwner(
	_ context.Context,
	userID, _ string,
) (*tenant.Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.members[userID]; ok {
		return nil, fmt.Errorf("create hotel: %w", core.ErrDuplicateKey)
	}
	m := tenant.Membership{
		UserID:    userID,
		HotelID:   uuid.New().String(),
		Role:      tenant.RoleOwner,
		CreatedAt: s.Now(),
	}
	s.members[userID] = m
	s.ensureLocked(m.HotelID)
	return &m, nil
}

func (s *Store) AppendAudit(_ context.Context, entry tenant.AuditEntry) error {
	if s.FailAudit != nil {
		return s.FailAudit
	}
	s.AddAudit(entry)
	return nil
}

func (s *Store) CountAuditActions(
	_ context.Context,
	actions []string,
	since time.Time,
) (map[string]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[string]int, len(actions))
	for _, a := range actions {
		counts[a] = 0
	}
	for _, e := range s.audit {
		if _, ok := counts[e.Action]; ok && !e.CreatedAt.Before(since) {
			counts[e.Action]++
		}
	}
	return counts, nil
}

func (s *Store) RecentAudit(
	_ context.Context,
	hotelID, actionPrefix string,
	limit int,
) ([]tenant.AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []tenant.AuditEntry{}
	for _, e := range s.audit {
		if e.HotelID != nil && *e.HotelID == hotelID &&
			strings.HasPrefix(e.Action, actionPrefix) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) CountPages(_ context.Context, hotelID string) (tenant.PageCounts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pages[hotelID], nil
}

func (s *Store) Ping(context.Context) error {
	return nil
}

func strPtr(s string) *string {
	return &s
}
