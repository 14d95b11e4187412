package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/contacts-api/internal/apperror"
	"github.com/sakif/contacts-api/internal/auth"
	"github.com/sakif/contacts-api/internal/model"
	"github.com/sakif/contacts-api/internal/repository"
	"github.com/sakif/contacts-api/internal/service"
)

// ContactManager is implemented by *service.ContactService.
type ContactManager interface {
	Create(ctx context.Context, userID string, in service.ContactInput) (*model.Contact, error)
	List(ctx context.Context, userID string, limit, offset int) ([]model.Contact, error)
	GetByID(ctx context.Context, userID, id string) (*model.Contact, error)
	Update(ctx context.Context, userID, id string, in service.ContactInput) (*model.Contact, error)
	Delete(ctx context.Context, userID, id string) error
	Search(ctx context.Context, userID string, filter repository.ContactFilter) ([]model.Contact, error)
	UpcomingBirthdays(ctx context.Context, userID string, days int) ([]model.Contact, error)
}

// ContactHandler serves /contacts. Every route requires a principal.
type ContactHandler struct {
	contacts ContactManager
	logger   *slog.Logger
}

func NewContactHandler(contacts ContactManager, logger *slog.Logger) *ContactHandler {
	return &ContactHandler{contacts: contacts, logger: logger}
}

type contactRequest struct {
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phoneNumber"`
	Birthday    string `json:"birthday"`
}

func (c contactRequest) input() service.ContactInput {
	return service.ContactInput{
		FirstName:   c.FirstName,
		LastName:    c.LastName,
		Email:       c.Email,
		PhoneNumber: c.PhoneNumber,
		Birthday:    c.Birthday,
	}
}

type contactResponse struct {
	ID          string    `json:"id"`
	FirstName   string    `json:"firstName"`
	LastName    string    `json:"lastName"`
	Email       string    `json:"email"`
	PhoneNumber string    `json:"phoneNumber"`
	Birthday    string    `json:"birthday,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func toContactResponse(c *model.Contact) contactResponse {
	return contactResponse{
		ID:          c.ID,
		FirstName:   c.FirstName,
		LastName:    c.LastName,
		Email:       c.Email,
		PhoneNumber: c.PhoneNumber,
		Birthday:    c.BirthdayString(),
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
}

func toContactResponses(contacts []model.Contact) []contactResponse {
	out := make([]contactResponse, 0, len(contacts))
	for i := range contacts {
		out = append(out, toContactResponse(&contacts[i]))
	}
	return out
}

// HandleCreate: POST /contacts → 201
func (h *ContactHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	p := mustPrincipal(r)

	var req contactRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	c, err := h.contacts.Create(r.Context(), p.ID, req.input())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toContactResponse(c))
}

// HandleList: GET /contacts?limit=&offset=
func (h *ContactHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	p := mustPrincipal(r)

	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	contacts, err := h.contacts.List(r.Context(), p.ID, limit, offset)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toContactResponses(contacts))
}

// HandleGet: GET /contacts/{id}
func (h *ContactHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	p := mustPrincipal(r)

	c, err := h.contacts.GetByID(r.Context(), p.ID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toContactResponse(c))
}

// HandleUpdate: PUT /contacts/{id}
func (h *ContactHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	p := mustPrincipal(r)

	var req contactRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	c, err := h.contacts.Update(r.Context(), p.ID, chi.URLParam(r, "id"), req.input())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toContactResponse(c))
}

// HandleDelete: DELETE /contacts/{id} → 204
func (h *ContactHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	p := mustPrincipal(r)

	if err := h.contacts.Delete(r.Context(), p.ID, chi.URLParam(r, "id")); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleSearch: GET /contacts/search?first_name=&last_name=&email=
func (h *ContactHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	p := mustPrincipal(r)
	q := r.URL.Query()

	contacts, err := h.contacts.Search(r.Context(), p.ID, repository.ContactFilter{
		FirstName: q.Get("first_name"),
		LastName:  q.Get("last_name"),
		Email:     q.Get("email"),
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toContactResponses(contacts))
}

// HandleUpcomingBirthdays: GET /contacts/upcoming-birthdays?days=
func (h *ContactHandler) HandleUpcomingBirthdays(w http.ResponseWriter, r *http.Request) {
	p := mustPrincipal(r)

	days, err := queryInt(r, "days")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	contacts, err := h.contacts.UpcomingBirthdays(r.Context(), p.ID, days)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toContactResponses(contacts))
}

// queryInt parses an optional non-negative integer query parameter. Absent
// means 0.
func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, apperror.ValidationFailed(name, name+" must be a non-negative integer")
	}
	return n, nil
}

// mustPrincipal returns the principal set by auth.RequireAuth. Routes using
// it are always mounted behind that middleware.
func mustPrincipal(r *http.Request) *model.Principal {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		panic("handler: route mounted without auth.RequireAuth")
	}
	return p
}
