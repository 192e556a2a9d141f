// AngelaMos | 2026
// service.go

package tenant

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/carterperez-dev/templates/storefront-billing/internal/core"
)

const defaultHotelName = "My Hotel"

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// EnsureScope returns the caller's membership, creating a hotel, the owner
// membership and the default subscription row on first use. The
// subscription row is ensured on every call.
func (s *Service) EnsureScope(
	ctx context.Context,
	userID, email string,
) (*Membership, error) {
	if userID == "" {
		return nil, fmt.Errorf("ensure scope: %w", core.ErrUnauthorized)
	}

	m, err := s.repo.GetMembershipByUser(ctx, userID)
	switch {
	case err == nil:
	case errors.Is(err, core.ErrNotFound):
		m, err = s.repo.CreateHotelForOwner(ctx, userID, HotelNameFor(email))
		if errors.Is(err, core.ErrDuplicateKey) {
			m, err = s.repo.GetMembershipByUser(ctx, userID)
		}
		if err != nil {
			return nil, fmt.Errorf("ensure scope: %w", err)
		}
	default:
		return nil, fmt.Errorf("ensure scope: %w", err)
	}

	if err := s.repo.EnsureSubscription(ctx, m.HotelID); err != nil {
		return nil, fmt.Errorf("ensure scope: %w", err)
	}

	return m, nil
}

func HotelNameFor(email string) string {
	local, _, ok := strings.Cut(strings.TrimSpace(email), "@")
	if !ok || local == "" {
		return defaultHotelName
	}
	return local + "'s Hotel"
}
