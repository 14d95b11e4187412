package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/contacts-api/internal/apperror"
	"github.com/sakif/contacts-api/internal/handler"
	"github.com/sakif/contacts-api/internal/model"
	"github.com/sakif/contacts-api/internal/service"
)

// MockAuthFlows records the arguments of the last call and returns canned
// results.
type MockAuthFlows struct {
	CapturedSignup service.SignupInput
	CapturedEmail  string
	CapturedToken  string
	CapturedPass   string

	ReturnUser  *model.User
	ReturnLogin *service.LoginResult
	ReturnErr   error
}

func (m *MockAuthFlows) Signup(_ context.Context, in service.SignupInput) (*model.User, error) {
	m.CapturedSignup = in
	if m.ReturnErr != nil {
		return nil, m.ReturnErr
	}
	return m.ReturnUser, nil
}

func (m *MockAuthFlows) Login(_ context.Context, email, password string) (*service.LoginResult, error) {
	m.CapturedEmail, m.CapturedPass = email, password
	if m.ReturnErr != nil {
		return nil, m.ReturnErr
	}
	return m.ReturnLogin, nil
}

func (m *MockAuthFlows) VerifyEmail(_ context.Context, token string) error {
	m.CapturedToken = token
	return m.ReturnErr
}

func (m *MockAuthFlows) RequestEmailVerification(_ context.Context, email string) error {
	m.CapturedEmail = email
	return m.ReturnErr
}

func (m *MockAuthFlows) RequestPasswordReset(_ context.Context, email string) error {
	m.CapturedEmail = email
	return m.ReturnErr
}

func (m *MockAuthFlows) ResetPassword(_ context.Context, token, newPassword string) error {
	m.CapturedToken, m.CapturedPass = token, newPassword
	return m.ReturnErr
}

func authRouter(flows handler.AuthFlows) http.Handler {
	h := handler.NewAuthHandler(flows, discardLogger())
	r := chi.NewRouter()
	r.Post("/auth/signup", h.HandleSignup)
	r.Post("/auth/login", h.HandleLogin)
	r.Get("/auth/verify-email/{token}", h.HandleVerifyEmail)
	r.Post("/auth/request-verification", h.HandleRequestVerification)
	r.Post("/auth/request-password-reset", h.HandleRequestPasswordReset)
	r.Post("/auth/reset-password", h.HandleResetPassword)
	return r
}

func TestAuthHandler_Signup(t *testing.T) {
	t.Run("created", func(t *testing.T) {
		flows := &MockAuthFlows{ReturnUser: &model.User{Email: "alice@example.com"}}

		rr := serve(authRouter(flows), jsonRequest(http.MethodPost, "/auth/signup",
			`{"username":"alice","email":"alice@example.com","password":"s3cretpass"}`), nil)

		assert.Equal(t, http.StatusCreated, rr.Code)
		assert.JSONEq(t, `{"email":"alice@example.com"}`, rr.Body.String())
		assert.Equal(t, service.SignupInput{
			Username: "alice",
			Email:    "alice@example.com",
			Password: "s3cretpass",
		}, flows.CapturedSignup)
	})

	t.Run("duplicate email", func(t *testing.T) {
		flows := &MockAuthFlows{ReturnErr: &apperror.AppError{
			Err:     apperror.ErrConflict,
			Message: "email already registered",
			Field:   "email",
		}}

		rr := serve(authRouter(flows), jsonRequest(http.MethodPost, "/auth/signup",
			`{"username":"alice","email":"alice@example.com","password":"s3cretpass"}`), nil)

		assert.Equal(t, http.StatusConflict, rr.Code)
		res := decodeError(t, rr)
		assert.Equal(t, "conflict", res.Error)
		assert.Equal(t, "email", res.Field)
	})

	t.Run("malformed body", func(t *testing.T) {
		rr := serve(authRouter(&MockAuthFlows{}), jsonRequest(http.MethodPost, "/auth/signup", `{"email":`), nil)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, "validation_error", decodeError(t, rr).Error)
	})
}

func TestAuthHandler_Login(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		flows := &MockAuthFlows{ReturnLogin: &service.LoginResult{
			AccessToken: "tok",
			TokenType:   "bearer",
			ExpiresIn:   3600,
		}}

		rr := serve(authRouter(flows), jsonRequest(http.MethodPost, "/auth/login",
			`{"email":"alice@example.com","password":"s3cretpass"}`), nil)

		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "no-store", rr.Header().Get("Cache-Control"))
		assert.JSONEq(t, `{"access_token":"tok","token_type":"bearer","expires_in":3600}`, rr.Body.String())
		assert.Equal(t, "alice@example.com", flows.CapturedEmail)
		assert.Equal(t, "s3cretpass", flows.CapturedPass)
	})

	t.Run("bad credentials", func(t *testing.T) {
		flows := &MockAuthFlows{ReturnErr: apperror.Unauthenticated()}

		rr := serve(authRouter(flows), jsonRequest(http.MethodPost, "/auth/login",
			`{"email":"alice@example.com","password":"nope"}`), nil)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.Equal(t, "Bearer", rr.Header().Get("WWW-Authenticate"))
		assert.Equal(t, "could not validate credentials", decodeError(t, rr).Message)
	})

	t.Run("storage failure is not leaked", func(t *testing.T) {
		flows := &MockAuthFlows{ReturnErr: errors.New("sqlite: database is locked")}

		rr := serve(authRouter(flows), jsonRequest(http.MethodPost, "/auth/login",
			`{"email":"alice@example.com","password":"s3cretpass"}`), nil)

		assert.Equal(t, http.StatusInternalServerError, rr.Code)
		assert.NotContains(t, rr.Body.String(), "sqlite")
	})
}

func TestAuthHandler_VerifyEmail(t *testing.T) {
	t.Run("confirmed", func(t *testing.T) {
		flows := &MockAuthFlows{}

		rr := serve(authRouter(flows), jsonRequest(http.MethodGet, "/auth/verify-email/abc.def.ghi", ""), nil)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "abc.def.ghi", flows.CapturedToken)
		assert.JSONEq(t, `{"message":"Email successfully verified!"}`, rr.Body.String())
	})

	t.Run("invalid token", func(t *testing.T) {
		flows := &MockAuthFlows{ReturnErr: apperror.InvalidToken()}

		rr := serve(authRouter(flows), jsonRequest(http.MethodGet, "/auth/verify-email/garbage", ""), nil)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		res := decodeError(t, rr)
		assert.Equal(t, "invalid_token", res.Error)
		assert.Equal(t, "invalid or expired token", res.Message)
	})
}

func TestAuthHandler_RequestFlows(t *testing.T) {
	tests := []struct {
		name string
		path string
	}{
		{"request verification", "/auth/request-verification"},
		{"request password reset", "/auth/request-password-reset"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flows := &MockAuthFlows{}

			rr := serve(authRouter(flows), jsonRequest(http.MethodPost, tt.path, `{"email":"alice@example.com"}`), nil)

			assert.Equal(t, http.StatusAccepted, rr.Code)
			assert.Equal(t, "alice@example.com", flows.CapturedEmail)

			var res map[string]string
			require.NoError(t, json.NewDecoder(rr.Body).Decode(&res))
			assert.NotEmpty(t, res["message"])
		})

		t.Run(tt.name+" unknown email", func(t *testing.T) {
			flows := &MockAuthFlows{ReturnErr: apperror.NotFound("user", "ghost@example.com")}

			rr := serve(authRouter(flows), jsonRequest(http.MethodPost, tt.path, `{"email":"ghost@example.com"}`), nil)

			assert.Equal(t, http.StatusNotFound, rr.Code)
		})
	}
}

func TestAuthHandler_ResetPassword(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		flows := &MockAuthFlows{}

		rr := serve(authRouter(flows), jsonRequest(http.MethodPost, "/auth/reset-password",
			`{"token":"tok","new_password":"n3wpassword"}`), nil)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "tok", flows.CapturedToken)
		assert.Equal(t, "n3wpassword", flows.CapturedPass)
	})

	t.Run("weak password", func(t *testing.T) {
		flows := &MockAuthFlows{ReturnErr: apperror.ValidationFailed("new_password", "password must be at least 8 characters")}

		rr := serve(authRouter(flows), jsonRequest(http.MethodPost, "/auth/reset-password",
			`{"token":"tok","new_password":"short"}`), nil)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, "new_password", decodeError(t, rr).Field)
	})
}
