package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sakif/contacts-api/internal/apperror"
	"github.com/sakif/contacts-api/internal/auth"
	"github.com/sakif/contacts-api/internal/model"
	"github.com/sakif/contacts-api/internal/repository"
)

// IdentityCache is the read-through cache the resolver consults before
// storage. Errors from it are never fatal.
type IdentityCache interface {
	Get(ctx context.Context, email string) (*model.Principal, bool, error)
	Set(ctx context.Context, p *model.Principal, ttl time.Duration) error
	Delete(ctx context.Context, email string) error
}

// IdentityResolver turns an access token into a principal:
//
//	verify token → cache get → (miss) storage lookup → cache set
//
// Each call does exactly one cache read, at most one storage read and at
// most one cache write. Concurrent misses for the same email may both
// write; the last write wins.
type IdentityResolver struct {
	tokens *auth.TokenService
	cache  IdentityCache
	users  repository.UserRepository
	ttl    time.Duration
	logger *slog.Logger
}

func NewIdentityResolver(
	tokens *auth.TokenService,
	cache IdentityCache,
	users repository.UserRepository,
	ttl time.Duration,
	logger *slog.Logger,
) *IdentityResolver {
	return &IdentityResolver{
		tokens: tokens,
		cache:  cache,
		users:  users,
		ttl:    ttl,
		logger: logger,
	}
}

// compile-time check that the resolver can back auth.RequireAuth
var _ auth.Resolver = (*IdentityResolver)(nil)

// Resolve returns the principal for a bearer access token.
//
// An invalid token and an unknown subject both yield
// apperror.Unauthenticated so callers cannot probe for accounts. Storage
// failures are returned wrapped and are not retried.
func (r *IdentityResolver) Resolve(ctx context.Context, bearer string) (*model.Principal, error) {
	email, err := r.tokens.Verify(auth.KindAccess, bearer)
	if err != nil {
		r.logger.DebugContext(ctx, "rejecting bearer token", slog.String("reason", err.Error()))
		return nil, apperror.Unauthenticated()
	}
	if email == "" {
		return nil, apperror.Unauthenticated()
	}

	p, hit, err := r.cache.Get(ctx, email)
	if err != nil {
		r.logger.WarnContext(ctx, "identity cache unavailable, falling back to storage",
			slog.String("error", err.Error()),
		)
	}
	if hit {
		return p, nil
	}

	user, err := r.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.Unauthenticated()
		}
		return nil, fmt.Errorf("service/identity: loading user: %w", err)
	}

	p = user.Principal()
	r.store(ctx, p)
	return p, nil
}

// Refresh overwrites the cached principal after user has been changed in
// storage, so the next request does not see the stale entry.
func (r *IdentityResolver) Refresh(ctx context.Context, user *model.User) {
	r.store(ctx, user.Principal())
}

// Forget drops the cached principal for email.
func (r *IdentityResolver) Forget(ctx context.Context, email string) {
	if err := r.cache.Delete(ctx, email); err != nil {
		r.logger.WarnContext(ctx, "evicting identity cache entry", slog.String("error", err.Error()))
	}
}

func (r *IdentityResolver) store(ctx context.Context, p *model.Principal) {
	// A cancelled request must not leave a half-written entry behind.
	if ctx.Err() != nil {
		return
	}
	if err := r.cache.Set(ctx, p, r.ttl); err != nil {
		r.logger.WarnContext(ctx, "populating identity cache", slog.String("error", err.Error()))
	}
}
