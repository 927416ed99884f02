// Package usecase contains application-level services.
package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/tesso57/feedwatch/internal/domain/subscription"
)

// SubscriptionRepository abstracts persistence for feed subscriptions.
type SubscriptionRepository interface {
	List(ctx context.Context, scope subscription.Scope) ([]subscription.Subscription, error)
	ListAll(ctx context.Context) ([]subscription.Subscription, error)
	Get(ctx context.Context, name string, scope subscription.Scope) (subscription.Subscription, bool, error)
	Add(ctx context.Context, url, name string, scope subscription.Scope) (subscription.Subscription, error)
	Remove(ctx context.Context, name string, scope subscription.Scope) (subscription.Subscription, bool, error)
	// Update persists a newer watermark and reports whether it advanced.
	Update(ctx context.Context, sub subscription.Subscription) (bool, error)
	ClearAll(ctx context.Context) error
}

// SubscriptionService provides subscription-related operations.
type SubscriptionService struct {
	Repo SubscriptionRepository
}

// NewSubscriptionService constructs a SubscriptionService.
func NewSubscriptionService(repo SubscriptionRepository) SubscriptionService {
	return SubscriptionService{Repo: repo}
}

// List returns the subscriptions of one scope.
func (s SubscriptionService) List(ctx context.Context, scope subscription.Scope) ([]subscription.Subscription, error) {
	return s.Repo.List(ctx, scope)
}

// Add validates url and name and registers a new subscription.
func (s SubscriptionService) Add(ctx context.Context, url, name string, scope subscription.Scope) (subscription.Subscription, error) {
	trimmed := strings.TrimSpace(url)
	if trimmed == "" {
		return subscription.Subscription{}, fmt.Errorf("feed url is empty")
	}
	if strings.ContainsAny(trimmed, " \t\r\n") {
		return subscription.Subscription{}, fmt.Errorf("feed url contains whitespace")
	}
	return s.Repo.Add(ctx, trimmed, strings.TrimSpace(name), scope)
}

// Remove deletes a subscription by name from the first scope that has it.
func (s SubscriptionService) Remove(ctx context.Context, name string, scopes ...subscription.Scope) (subscription.Subscription, bool, error) {
	name = strings.TrimSpace(name)
	for _, scope := range scopes {
		removed, ok, err := s.Repo.Remove(ctx, name, scope)
		if err != nil || ok {
			return removed, ok, err
		}
	}
	return subscription.Subscription{}, false, nil
}

// ClearAll drops every subscription of every scope.
func (s SubscriptionService) ClearAll(ctx context.Context) error {
	return s.Repo.ClearAll(ctx)
}
