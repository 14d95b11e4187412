package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/sakif/contacts-api/internal/apperror"
	"github.com/sakif/contacts-api/internal/auth"
	"github.com/sakif/contacts-api/internal/mail"
	"github.com/sakif/contacts-api/internal/metrics"
	"github.com/sakif/contacts-api/internal/model"
	"github.com/sakif/contacts-api/internal/repository"
)

const mailTimeout = 30 * time.Second

// AuthService runs the credential flows: signup, login, email verification
// and password reset.
type AuthService struct {
	users     repository.UserRepository
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	mailer    mail.Mailer
	identity  *IdentityResolver
	baseURL   string
	logger    *slog.Logger

	sending sync.WaitGroup
}

// NewAuthService wires the flows. baseURL is the public root used in
// emailed links, e.g. "https://contacts.example.com/".
func NewAuthService(
	users repository.UserRepository,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	mailer mail.Mailer,
	identity *IdentityResolver,
	baseURL string,
	logger *slog.Logger,
) *AuthService {
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return &AuthService{
		users:     users,
		tokens:    tokens,
		passwords: passwords,
		mailer:    mailer,
		identity:  identity,
		baseURL:   baseURL,
		logger:    logger,
	}
}

// SignupInput is what a public signup may set. The role is not among it:
// every self-registered account is a plain user.
type SignupInput struct {
	Username string
	Email    string
	Password string
}

type LoginResult struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// Signup registers a new, unconfirmed user and mails a verification link.
// The mail goes out in the background; a failed send is logged and does
// not undo the signup.
func (s *AuthService) Signup(ctx context.Context, in SignupInput) (*model.User, error) {
	username, err := requireText("username", in.Username, MaxUsernameLength)
	if err != nil {
		return nil, err
	}
	if err := validateEmail("email", in.Email); err != nil {
		return nil, err
	}
	if err := validatePassword(in.Password); err != nil {
		return nil, err
	}
	_, err = s.users.GetUserByEmail(ctx, in.Email)
	switch {
	case err == nil:
		metrics.AuthEvents.WithLabelValues("signup", "conflict").Inc()
		return nil, &apperror.AppError{Err: apperror.ErrConflict, Message: "email already registered", Field: "email"}
	case !errors.Is(err, apperror.ErrNotFound):
		return nil, fmt.Errorf("service/auth: checking email: %w", err)
	}

	hash, err := s.passwords.Hash(ctx, in.Password)
	if err != nil {
		return nil, fmt.Errorf("service/auth: hashing password: %w", err)
	}

	user := &model.User{
		Username:     username,
		Email:        in.Email,
		PasswordHash: hash,
		Role:         model.RoleUser,
	}
	// The insert can still lose a race with a concurrent signup; the UNIQUE
	// constraint turns that into a Conflict.
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			metrics.AuthEvents.WithLabelValues("signup", "conflict").Inc()
			return nil, &apperror.AppError{Err: apperror.ErrConflict, Message: "email already registered", Field: "email"}
		}
		return nil, fmt.Errorf("service/auth: creating user: %w", err)
	}

	metrics.AuthEvents.WithLabelValues("signup", "ok").Inc()
	s.logger.InfoContext(ctx, "user signed up", slog.String("userID", user.ID))

	s.sendVerification(ctx, user)
	return user, nil
}

// SeedAdmin makes sure an administrator account exists for email. It runs
// at startup from operator-supplied settings and is the only way to obtain
// the admin role. An existing account is promoted and confirmed in place;
// its password is left alone. A missing one is created confirmed, without
// a verification mail.
func (s *AuthService) SeedAdmin(ctx context.Context, username, email, password string) (*model.User, error) {
	if err := validateEmail("email", email); err != nil {
		return nil, err
	}

	user, err := s.users.GetUserByEmail(ctx, email)
	switch {
	case err == nil:
		if user.Role == model.RoleAdmin && user.Confirmed {
			return user, nil
		}
		user.Role = model.RoleAdmin
		user.Confirmed = true
		if err := s.users.UpdateUser(ctx, user); err != nil {
			return nil, fmt.Errorf("service/auth: promoting admin: %w", err)
		}
		s.identity.Refresh(ctx, user)
		s.logger.InfoContext(ctx, "promoted existing user to admin", slog.String("userID", user.ID))
		return user, nil
	case !errors.Is(err, apperror.ErrNotFound):
		return nil, fmt.Errorf("service/auth: checking admin: %w", err)
	}

	username, err = requireText("username", username, MaxUsernameLength)
	if err != nil {
		return nil, err
	}
	if err := validatePassword(password); err != nil {
		return nil, err
	}
	hash, err := s.passwords.Hash(ctx, password)
	if err != nil {
		return nil, fmt.Errorf("service/auth: hashing admin password: %w", err)
	}

	user = &model.User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Confirmed:    true,
		Role:         model.RoleAdmin,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("service/auth: creating admin: %w", err)
	}
	s.logger.InfoContext(ctx, "seeded admin", slog.String("userID", user.ID))
	return user, nil
}

// Login checks the password and issues an access token. An unknown email
// and a wrong password produce the same error and cost the same bcrypt work.
func (s *AuthService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, apperror.ErrNotFound) {
			return nil, fmt.Errorf("service/auth: loading user: %w", err)
		}
		s.passwords.VerifyDummy(ctx, password)
		metrics.AuthEvents.WithLabelValues("login", "rejected").Inc()
		return nil, apperror.Unauthenticated()
	}

	if !s.passwords.Verify(ctx, user.PasswordHash, password) {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		metrics.AuthEvents.WithLabelValues("login", "rejected").Inc()
		return nil, apperror.Unauthenticated()
	}

	token, err := s.tokens.GenerateAccess(user.Email)
	if err != nil {
		return nil, fmt.Errorf("service/auth: issuing access token: %w", err)
	}

	metrics.AuthEvents.WithLabelValues("login", "ok").Inc()
	return &LoginResult{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresIn:   int(s.tokens.TTL(auth.KindAccess).Seconds()),
	}, nil
}

// VerifyEmail confirms the account named by an email-verification token.
// Confirming an already confirmed account succeeds.
func (s *AuthService) VerifyEmail(ctx context.Context, token string) error {
	email, err := s.tokens.Verify(auth.KindEmailVerification, token)
	if err != nil {
		s.logger.DebugContext(ctx, "rejecting verification token", slog.String("reason", err.Error()))
		metrics.AuthEvents.WithLabelValues("verify_email", "invalid_token").Inc()
		return apperror.InvalidToken()
	}

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("service/auth: loading user: %w", err)
	}

	user.Confirmed = true
	if err := s.users.UpdateUser(ctx, user); err != nil {
		return fmt.Errorf("service/auth: confirming user: %w", err)
	}

	s.identity.Refresh(ctx, user)
	metrics.AuthEvents.WithLabelValues("verify_email", "ok").Inc()
	s.logger.InfoContext(ctx, "email verified", slog.String("userID", user.ID))
	return nil
}

// RequestEmailVerification mails a fresh verification link. It is a no-op
// for confirmed accounts.
func (s *AuthService) RequestEmailVerification(ctx context.Context, email string) error {
	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("service/auth: loading user: %w", err)
	}
	if user.Confirmed {
		return nil
	}

	s.sendVerification(ctx, user)
	return nil
}

// RequestPasswordReset mails a reset token. Unknown emails return NotFound.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) error {
	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("service/auth: loading user: %w", err)
	}

	token, err := s.tokens.GeneratePasswordReset(user.Email)
	if err != nil {
		return fmt.Errorf("service/auth: issuing reset token: %w", err)
	}

	metrics.AuthEvents.WithLabelValues("password_reset_request", "ok").Inc()
	s.sendAsync(ctx, mail.Message{
		Template: mail.TemplateResetPassword,
		To:       user.Email,
		Vars: map[string]string{
			"Username": user.Username,
			"Host":     s.baseURL,
			"Token":    token,
		},
	})
	return nil
}

// ResetPassword replaces the password of the account named by a
// password-reset token. Access tokens issued earlier stay valid until they
// expire.
func (s *AuthService) ResetPassword(ctx context.Context, token, newPassword string) error {
	email, err := s.tokens.Verify(auth.KindPasswordReset, token)
	if err != nil {
		s.logger.DebugContext(ctx, "rejecting reset token", slog.String("reason", err.Error()))
		metrics.AuthEvents.WithLabelValues("password_reset", "invalid_token").Inc()
		return apperror.InvalidToken()
	}

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("service/auth: loading user: %w", err)
	}

	if err := validatePassword(newPassword); err != nil {
		return err
	}
	hash, err := s.passwords.Hash(ctx, newPassword)
	if err != nil {
		return fmt.Errorf("service/auth: hashing password: %w", err)
	}

	user.PasswordHash = hash
	if err := s.users.UpdateUser(ctx, user); err != nil {
		return fmt.Errorf("service/auth: saving password: %w", err)
	}

	s.identity.Refresh(ctx, user)
	metrics.AuthEvents.WithLabelValues("password_reset", "ok").Inc()
	s.logger.InfoContext(ctx, "password reset", slog.String("userID", user.ID))
	return nil
}

// Wait blocks until every background mail send has finished.
func (s *AuthService) Wait() {
	s.sending.Wait()
}

func (s *AuthService) sendVerification(ctx context.Context, user *model.User) {
	token, err := s.tokens.GenerateEmailVerification(user.Email)
	if err != nil {
		s.logger.ErrorContext(ctx, "issuing verification token",
			slog.String("userID", user.ID),
			slog.String("error", err.Error()),
		)
		return
	}

	s.sendAsync(ctx, mail.Message{
		Template: mail.TemplateVerifyEmail,
		To:       user.Email,
		Vars: map[string]string{
			"Username": user.Username,
			"Link":     s.baseURL + "auth/verify-email/" + token,
		},
	})
}

// sendAsync hands msg to the mailer on its own goroutine. The send outlives
// the request that triggered it but is bounded by mailTimeout.
func (s *AuthService) sendAsync(ctx context.Context, msg mail.Message) {
	s.sending.Add(1)
	go func() {
		defer s.sending.Done()

		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), mailTimeout)
		defer cancel()

		if err := s.mailer.Send(ctx, msg); err != nil {
			s.logger.ErrorContext(ctx, "sending mail",
				slog.String("template", msg.Template),
				slog.String("to", msg.To),
				slog.String("error", err.Error()),
			)
		}
	}()
}
