package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/contacts-api/internal/apperror"
	"github.com/sakif/contacts-api/internal/handler"
	"github.com/sakif/contacts-api/internal/model"
	"github.com/sakif/contacts-api/internal/repository"
	"github.com/sakif/contacts-api/internal/service"
)

type MockContacts struct {
	CapturedUser   string
	CapturedID     string
	CapturedInput  service.ContactInput
	CapturedLimit  int
	CapturedOffset int
	CapturedFilter repository.ContactFilter
	CapturedDays   int

	ReturnContact  *model.Contact
	ReturnContacts []model.Contact
	ReturnErr      error
}

func (m *MockContacts) Create(_ context.Context, userID string, in service.ContactInput) (*model.Contact, error) {
	m.CapturedUser, m.CapturedInput = userID, in
	return m.ReturnContact, m.ReturnErr
}

func (m *MockContacts) List(_ context.Context, userID string, limit, offset int) ([]model.Contact, error) {
	m.CapturedUser, m.CapturedLimit, m.CapturedOffset = userID, limit, offset
	return m.ReturnContacts, m.ReturnErr
}

func (m *MockContacts) GetByID(_ context.Context, userID, id string) (*model.Contact, error) {
	m.CapturedUser, m.CapturedID = userID, id
	return m.ReturnContact, m.ReturnErr
}

func (m *MockContacts) Update(_ context.Context, userID, id string, in service.ContactInput) (*model.Contact, error) {
	m.CapturedUser, m.CapturedID, m.CapturedInput = userID, id, in
	return m.ReturnContact, m.ReturnErr
}

func (m *MockContacts) Delete(_ context.Context, userID, id string) error {
	m.CapturedUser, m.CapturedID = userID, id
	return m.ReturnErr
}

func (m *MockContacts) Search(_ context.Context, userID string, filter repository.ContactFilter) ([]model.Contact, error) {
	m.CapturedUser, m.CapturedFilter = userID, filter
	return m.ReturnContacts, m.ReturnErr
}

func (m *MockContacts) UpcomingBirthdays(_ context.Context, userID string, days int) ([]model.Contact, error) {
	m.CapturedUser, m.CapturedDays = userID, days
	return m.ReturnContacts, m.ReturnErr
}

func contactsRouter(contacts handler.ContactManager) http.Handler {
	h := handler.NewContactHandler(contacts, discardLogger())
	r := chi.NewRouter()
	r.Route("/contacts", func(r chi.Router) {
		r.Get("/", h.HandleList)
		r.Post("/", h.HandleCreate)
		r.Get("/search", h.HandleSearch)
		r.Get("/upcoming-birthdays", h.HandleUpcomingBirthdays)
		r.Get("/{id}", h.HandleGet)
		r.Put("/{id}", h.HandleUpdate)
		r.Delete("/{id}", h.HandleDelete)
	})
	return r
}

func sampleContact() *model.Contact {
	b := time.Date(1990, time.June, 15, 0, 0, 0, 0, time.UTC)
	return &model.Contact{
		ID:          "c1",
		UserID:      "u1",
		FirstName:   "Bob",
		LastName:    "Builder",
		Email:       "bob@example.com",
		PhoneNumber: "+15550100",
		Birthday:    &b,
		CreatedAt:   time.Date(2026, time.January, 1, 12, 0, 0, 0, time.UTC),
		UpdatedAt:   time.Date(2026, time.January, 1, 12, 0, 0, 0, time.UTC),
	}
}

const contactBody = `{"firstName":"Bob","lastName":"Builder","email":"bob@example.com","phoneNumber":"+15550100","birthday":"1990-06-15"}`

func TestContactHandler_Create(t *testing.T) {
	t.Run("created", func(t *testing.T) {
		contacts := &MockContacts{ReturnContact: sampleContact()}

		rr := serve(contactsRouter(contacts), jsonRequest(http.MethodPost, "/contacts/", contactBody), alice)

		require.Equal(t, http.StatusCreated, rr.Code)
		assert.Equal(t, "u1", contacts.CapturedUser)
		assert.Equal(t, service.ContactInput{
			FirstName:   "Bob",
			LastName:    "Builder",
			Email:       "bob@example.com",
			PhoneNumber: "+15550100",
			Birthday:    "1990-06-15",
		}, contacts.CapturedInput)

		var res map[string]any
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&res))
		assert.Equal(t, "c1", res["id"])
		assert.Equal(t, "1990-06-15", res["birthday"])
		assert.NotContains(t, res, "userId")
	})

	t.Run("validation error", func(t *testing.T) {
		contacts := &MockContacts{ReturnErr: apperror.ValidationFailed("email", "invalid email format")}

		rr := serve(contactsRouter(contacts), jsonRequest(http.MethodPost, "/contacts/", `{"email":"nope"}`), alice)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, "email", decodeError(t, rr).Field)
	})
}

func TestContactHandler_ListParsesPaging(t *testing.T) {
	t.Run("query parameters", func(t *testing.T) {
		contacts := &MockContacts{ReturnContacts: []model.Contact{*sampleContact()}}

		rr := serve(contactsRouter(contacts), jsonRequest(http.MethodGet, "/contacts/?limit=5&offset=10", ""), alice)

		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, 5, contacts.CapturedLimit)
		assert.Equal(t, 10, contacts.CapturedOffset)

		var res []map[string]any
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&res))
		assert.Len(t, res, 1)
	})

	t.Run("empty list is an array", func(t *testing.T) {
		rr := serve(contactsRouter(&MockContacts{}), jsonRequest(http.MethodGet, "/contacts/", ""), alice)

		require.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `[]`, rr.Body.String())
	})

	for _, q := range []string{"limit=abc", "offset=-1"} {
		t.Run("rejects "+q, func(t *testing.T) {
			rr := serve(contactsRouter(&MockContacts{}), jsonRequest(http.MethodGet, "/contacts/?"+q, ""), alice)
			assert.Equal(t, http.StatusBadRequest, rr.Code)
		})
	}
}

func TestContactHandler_GetUpdateDelete(t *testing.T) {
	t.Run("get", func(t *testing.T) {
		contacts := &MockContacts{ReturnContact: sampleContact()}

		rr := serve(contactsRouter(contacts), jsonRequest(http.MethodGet, "/contacts/c1", ""), alice)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "c1", contacts.CapturedID)
	})

	t.Run("get someone else's contact", func(t *testing.T) {
		contacts := &MockContacts{ReturnErr: apperror.NotFound("contact", "c9")}

		rr := serve(contactsRouter(contacts), jsonRequest(http.MethodGet, "/contacts/c9", ""), alice)

		assert.Equal(t, http.StatusNotFound, rr.Code)
		assert.Equal(t, "not_found", decodeError(t, rr).Error)
	})

	t.Run("update", func(t *testing.T) {
		contacts := &MockContacts{ReturnContact: sampleContact()}

		rr := serve(contactsRouter(contacts), jsonRequest(http.MethodPut, "/contacts/c1", contactBody), alice)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "c1", contacts.CapturedID)
		assert.Equal(t, "Builder", contacts.CapturedInput.LastName)
	})

	t.Run("delete", func(t *testing.T) {
		contacts := &MockContacts{}

		rr := serve(contactsRouter(contacts), jsonRequest(http.MethodDelete, "/contacts/c1", ""), alice)

		assert.Equal(t, http.StatusNoContent, rr.Code)
		assert.Empty(t, rr.Body.String())
		assert.Equal(t, "u1", contacts.CapturedUser)
	})
}

func TestContactHandler_Search(t *testing.T) {
	contacts := &MockContacts{}

	rr := serve(contactsRouter(contacts),
		jsonRequest(http.MethodGet, "/contacts/search?first_name=bo&last_name=Buil&email=example", ""), alice)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, repository.ContactFilter{
		FirstName: "bo",
		LastName:  "Buil",
		Email:     "example",
	}, contacts.CapturedFilter)
}

func TestContactHandler_UpcomingBirthdays(t *testing.T) {
	t.Run("explicit window", func(t *testing.T) {
		contacts := &MockContacts{ReturnContacts: []model.Contact{*sampleContact()}}

		rr := serve(contactsRouter(contacts), jsonRequest(http.MethodGet, "/contacts/upcoming-birthdays?days=30", ""), alice)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, 30, contacts.CapturedDays)
	})

	t.Run("default window", func(t *testing.T) {
		contacts := &MockContacts{}

		serve(contactsRouter(contacts), jsonRequest(http.MethodGet, "/contacts/upcoming-birthdays", ""), alice)

		assert.Equal(t, 0, contacts.CapturedDays)
	})
}

func TestContactHandler_PanicsWithoutPrincipal(t *testing.T) {
	assert.Panics(t, func() {
		serve(contactsRouter(&MockContacts{}), jsonRequest(http.MethodGet, "/contacts/", ""), nil)
	})
}
