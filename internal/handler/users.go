package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/contacts-api/internal/apperror"
	"github.com/sakif/contacts-api/internal/model"
	"github.com/sakif/contacts-api/internal/service"
)

// UserManager is implemented by *service.UserService.
type UserManager interface {
	Me(ctx context.Context, p *model.Principal) *model.Principal
	UpdateAvatar(ctx context.Context, p *model.Principal, contentType string, r io.Reader) (string, error)
	GetUser(ctx context.Context, email string) (*model.User, error)
	DeleteUser(ctx context.Context, email string) error
}

// UserHandler serves /users and the admin view under /admin/users.
type UserHandler struct {
	users  UserManager
	logger *slog.Logger
}

func NewUserHandler(users UserManager, logger *slog.Logger) *UserHandler {
	return &UserHandler{users: users, logger: logger}
}

type userResponse struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Avatar    *string   `json:"avatar"`
	Confirmed bool      `json:"confirmed"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

// HandleMe: GET /users/me
func (h *UserHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	p := mustPrincipal(r)
	writeJSON(w, http.StatusOK, h.users.Me(r.Context(), p))
}

// HandleAvatar: POST /users/avatar, multipart field "file" → 201 {"avatar_url": ...}
func (h *UserHandler) HandleAvatar(w http.ResponseWriter, r *http.Request) {
	p := mustPrincipal(r)

	// Leave room for the multipart envelope around the file itself.
	const maxBody = service.MaxAvatarBytes + 64<<10
	if r.ContentLength > maxBody {
		writeTooLarge(w)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeTooLarge(w)
			return
		}
		writeError(w, r, h.logger, apperror.ValidationFailed("file", "a file field is required"))
		return
	}
	defer file.Close()

	if header.Size > service.MaxAvatarBytes {
		writeTooLarge(w)
		return
	}

	url, err := h.users.UpdateAvatar(r.Context(), p, header.Header.Get("Content-Type"), file)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"avatar_url": url})
}

// HandleGetUser: GET /admin/users/{email}
func (h *UserHandler) HandleGetUser(w http.ResponseWriter, r *http.Request) {
	u, err := h.users.GetUser(r.Context(), chi.URLParam(r, "email"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, userResponse{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		Avatar:    u.Avatar,
		Confirmed: u.Confirmed,
		Role:      u.Role,
		CreatedAt: u.CreatedAt,
	})
}

// HandleDeleteUser: DELETE /admin/users/{email} → 204
func (h *UserHandler) HandleDeleteUser(w http.ResponseWriter, r *http.Request) {
	if err := h.users.DeleteUser(r.Context(), chi.URLParam(r, "email")); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeTooLarge(w http.ResponseWriter) {
	writeJSON(w, http.StatusRequestEntityTooLarge, ErrorResponse{
		Error:   "too_large",
		Message: "avatar must be 5 MiB or smaller",
	})
}
