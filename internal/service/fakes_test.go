package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/contacts-api/internal/apperror"
	"github.com/sakif/contacts-api/internal/auth"
	"github.com/sakif/contacts-api/internal/mail"
	"github.com/sakif/contacts-api/internal/model"
	"github.com/sakif/contacts-api/internal/repository"
)

// fakeUserRepo is an in-memory repository.UserRepository that counts reads.
type fakeUserRepo struct {
	mu      sync.Mutex
	byEmail map[string]*model.User
	reads   int

	getErr    error // returned by GetUserByEmail when set
	createErr error
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{byEmail: make(map[string]*model.User)}
}

func (f *fakeUserRepo) CreateUser(_ context.Context, u *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	if _, ok := f.byEmail[u.Email]; ok {
		return apperror.Conflict("user", u.Email)
	}
	u.ID = xid.New().String()
	u.CreatedAt = time.Now()
	u.UpdatedAt = u.CreatedAt
	if u.Role == "" {
		u.Role = model.RoleUser
	}
	cp := *u
	f.byEmail[u.Email] = &cp
	return nil
}

func (f *fakeUserRepo) GetUserByEmail(_ context.Context, email string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	if f.getErr != nil {
		return nil, f.getErr
	}
	u, ok := f.byEmail[email]
	if !ok {
		return nil, apperror.NotFound("user", email)
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUserRepo) GetUserByID(_ context.Context, id string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.byEmail {
		if u.ID == id {
			cp := *u
			return &cp, nil
		}
	}
	return nil, apperror.NotFound("user", id)
}

func (f *fakeUserRepo) UpdateUser(_ context.Context, u *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for email, existing := range f.byEmail {
		if existing.ID == u.ID {
			cp := *u
			f.byEmail[email] = &cp
			return nil
		}
	}
	return apperror.NotFound("user", u.ID)
}

func (f *fakeUserRepo) DeleteUser(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for email, u := range f.byEmail {
		if u.ID == id {
			delete(f.byEmail, email)
			return nil
		}
	}
	return apperror.NotFound("user", id)
}

func (f *fakeUserRepo) storageReads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads
}

func (f *fakeUserRepo) stored(email string) *model.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byEmail[email]
}

// fakeCache is an in-memory IdentityCache that records calls.
type fakeCache struct {
	mu      sync.Mutex
	entries map[string]model.Principal
	gets    int
	sets    int
	lastTTL time.Duration

	getErr error
	setErr error
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string]model.Principal)}
}

func (c *fakeCache) Get(_ context.Context, email string) (*model.Principal, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	if c.getErr != nil {
		return nil, false, c.getErr
	}
	p, ok := c.entries[email]
	if !ok {
		return nil, false, nil
	}
	return &p, true, nil
}

func (c *fakeCache) Set(_ context.Context, p *model.Principal, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sets++
	c.lastTTL = ttl
	if c.setErr != nil {
		return c.setErr
	}
	c.entries[p.Email] = *p
	return nil
}

func (c *fakeCache) Delete(_ context.Context, email string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, email)
	return nil
}

func (c *fakeCache) entry(email string) (model.Principal, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.entries[email]
	return p, ok
}

// fakeMailer records messages and can be told to fail.
type fakeMailer struct {
	mu   sync.Mutex
	sent []mail.Message
	err  error
}

func (m *fakeMailer) Send(_ context.Context, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *fakeMailer) messages() []mail.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mail.Message(nil), m.sent...)
}

// fakeContactRepo is an in-memory repository.ContactRepository.
type fakeContactRepo struct {
	contacts map[string]*model.Contact
	listErr  error
}

func newFakeContactRepo() *fakeContactRepo {
	return &fakeContactRepo{contacts: make(map[string]*model.Contact)}
}

func (f *fakeContactRepo) CreateContact(_ context.Context, c *model.Contact) error {
	for _, existing := range f.contacts {
		if existing.UserID == c.UserID && existing.Email == c.Email {
			return apperror.Conflict("contact", c.Email)
		}
	}
	c.ID = xid.New().String()
	c.CreatedAt = time.Now()
	c.UpdatedAt = c.CreatedAt
	cp := *c
	f.contacts[c.ID] = &cp
	return nil
}

func (f *fakeContactRepo) GetContact(_ context.Context, userID, id string) (*model.Contact, error) {
	c, ok := f.contacts[id]
	if !ok || c.UserID != userID {
		return nil, apperror.NotFound("contact", id)
	}
	cp := *c
	return &cp, nil
}

func (f *fakeContactRepo) ListContacts(_ context.Context, userID string, opts repository.ListOptions) ([]model.Contact, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	all := f.owned(userID)
	if opts.Offset >= len(all) {
		return []model.Contact{}, nil
	}
	all = all[opts.Offset:]
	if len(all) > opts.Limit {
		all = all[:opts.Limit]
	}
	return all, nil
}

func (f *fakeContactRepo) UpdateContact(_ context.Context, c *model.Contact) error {
	existing, ok := f.contacts[c.ID]
	if !ok || existing.UserID != c.UserID {
		return apperror.NotFound("contact", c.ID)
	}
	cp := *c
	f.contacts[c.ID] = &cp
	return nil
}

func (f *fakeContactRepo) DeleteContact(_ context.Context, userID, id string) error {
	c, ok := f.contacts[id]
	if !ok || c.UserID != userID {
		return apperror.NotFound("contact", id)
	}
	delete(f.contacts, id)
	return nil
}

func (f *fakeContactRepo) SearchContacts(_ context.Context, userID string, filter repository.ContactFilter) ([]model.Contact, error) {
	contains := func(s, sub string) bool {
		return sub == "" || strings.Contains(strings.ToLower(s), strings.ToLower(sub))
	}
	var out []model.Contact
	for _, c := range f.owned(userID) {
		if contains(c.FirstName, filter.FirstName) && contains(c.LastName, filter.LastName) && contains(c.Email, filter.Email) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeContactRepo) ListContactsWithBirthday(_ context.Context, userID string) ([]model.Contact, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []model.Contact
	for _, c := range f.owned(userID) {
		if c.Birthday != nil {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeContactRepo) owned(userID string) []model.Contact {
	var out []model.Contact
	for _, c := range f.contacts {
		if c.UserID == userID {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

var errStorageDown = errors.New("database is locked")

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestTokens(t *testing.T) *auth.TokenService {
	t.Helper()
	ts, err := auth.NewTokenService(auth.TokenConfig{Secret: "test-secret-at-least-16-chars!!"})
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	return ts
}
