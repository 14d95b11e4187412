package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/sakif/contacts-api/internal/apperror"
	"github.com/sakif/contacts-api/internal/model"
	"github.com/sakif/contacts-api/internal/repository"
)

// MaxAvatarBytes caps avatar uploads.
const MaxAvatarBytes = 5 << 20

// AvatarUploader stores an image under publicID, replacing any earlier
// upload, and returns its public URL.
type AvatarUploader interface {
	Upload(ctx context.Context, publicID string, r io.Reader) (string, error)
}

// UserService covers the signed-in user's own profile and the admin view of
// other accounts.
type UserService struct {
	users    repository.UserRepository
	uploader AvatarUploader // nil when uploads are not configured
	identity *IdentityResolver
	logger   *slog.Logger
}

func NewUserService(
	users repository.UserRepository,
	uploader AvatarUploader,
	identity *IdentityResolver,
	logger *slog.Logger,
) *UserService {
	return &UserService{
		users:    users,
		uploader: uploader,
		identity: identity,
		logger:   logger,
	}
}

// Me returns the caller's principal as resolved for this request. It may
// lag storage by up to the cache TTL.
func (s *UserService) Me(_ context.Context, p *model.Principal) *model.Principal {
	return p
}

// UpdateAvatar uploads a new avatar for p and returns its URL.
func (s *UserService) UpdateAvatar(ctx context.Context, p *model.Principal, contentType string, r io.Reader) (string, error) {
	if s.uploader == nil {
		return "", apperror.Unavailable("avatar uploads are not configured")
	}
	if !strings.HasPrefix(contentType, "image/") {
		return "", apperror.ValidationFailed("file", "file must be an image")
	}

	user, err := s.users.GetUserByID(ctx, p.ID)
	if err != nil {
		return "", fmt.Errorf("service/users: loading user: %w", err)
	}

	url, err := s.uploader.Upload(ctx, "user_avatars/"+user.ID, r)
	if err != nil {
		return "", fmt.Errorf("service/users: uploading avatar: %w", err)
	}

	user.Avatar = &url
	if err := s.users.UpdateUser(ctx, user); err != nil {
		return "", fmt.Errorf("service/users: saving avatar: %w", err)
	}

	s.identity.Refresh(ctx, user)
	s.logger.InfoContext(ctx, "avatar updated", slog.String("userID", user.ID))
	return url, nil
}

// GetUser looks an account up by email for administrators.
func (s *UserService) GetUser(ctx context.Context, email string) (*model.User, error) {
	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("service/users: loading user: %w", err)
	}
	return user, nil
}

// DeleteUser removes an account and its contacts, and evicts its cached
// principal. Access tokens already issued stop resolving once the eviction
// lands.
func (s *UserService) DeleteUser(ctx context.Context, email string) error {
	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("service/users: loading user: %w", err)
	}
	if err := s.users.DeleteUser(ctx, user.ID); err != nil {
		return fmt.Errorf("service/users: deleting user: %w", err)
	}

	s.identity.Forget(ctx, user.Email)
	s.logger.InfoContext(ctx, "user deleted", slog.String("userID", user.ID))
	return nil
}
