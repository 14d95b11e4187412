package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/sakif/contacts-api/internal/apperror"
	"github.com/sakif/contacts-api/internal/model"
	"github.com/sakif/contacts-api/internal/repository"
)

const (
	DefaultBirthdayWindow = 7
	MaxBirthdayWindow     = 366
)

// ContactInput is the editable part of a contact. Birthday is YYYY-MM-DD
// or empty.
type ContactInput struct {
	FirstName   string
	LastName    string
	Email       string
	PhoneNumber string
	Birthday    string
}

// ContactService manages a user's address book. Every method is scoped to
// userID; another user's contact is reported as not found.
type ContactService struct {
	repo   repository.ContactRepository
	now    func() time.Time
	logger *slog.Logger
}

func NewContactService(repo repository.ContactRepository, logger *slog.Logger) *ContactService {
	return &ContactService{repo: repo, now: time.Now, logger: logger}
}

func (s *ContactService) Create(ctx context.Context, userID string, in ContactInput) (*model.Contact, error) {
	contact, err := in.toContact()
	if err != nil {
		return nil, err
	}
	contact.UserID = userID

	if err := s.repo.CreateContact(ctx, contact); err != nil {
		return nil, fmt.Errorf("service/contacts: creating contact: %w", err)
	}

	s.logger.InfoContext(ctx, "contact created",
		slog.String("userID", userID),
		slog.String("contactID", contact.ID),
	)
	return contact, nil
}

func (s *ContactService) List(ctx context.Context, userID string, limit, offset int) ([]model.Contact, error) {
	if offset < 0 {
		offset = 0
	}
	contacts, err := s.repo.ListContacts(ctx, userID, repository.ListOptions{
		Limit:  clampLimit(limit),
		Offset: offset,
	})
	if err != nil {
		return nil, fmt.Errorf("service/contacts: listing contacts: %w", err)
	}
	return contacts, nil
}

func (s *ContactService) GetByID(ctx context.Context, userID, id string) (*model.Contact, error) {
	if strings.TrimSpace(id) == "" {
		return nil, apperror.ValidationFailed("id", "contact ID is required")
	}
	contact, err := s.repo.GetContact(ctx, userID, id)
	if err != nil {
		return nil, fmt.Errorf("service/contacts: getting contact %s: %w", id, err)
	}
	return contact, nil
}

// Update replaces every editable field of the contact.
func (s *ContactService) Update(ctx context.Context, userID, id string, in ContactInput) (*model.Contact, error) {
	existing, err := s.GetByID(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	updated, err := in.toContact()
	if err != nil {
		return nil, err
	}
	updated.ID = existing.ID
	updated.UserID = userID
	updated.CreatedAt = existing.CreatedAt

	if err := s.repo.UpdateContact(ctx, updated); err != nil {
		return nil, fmt.Errorf("service/contacts: updating contact %s: %w", id, err)
	}
	return updated, nil
}

func (s *ContactService) Delete(ctx context.Context, userID, id string) error {
	if strings.TrimSpace(id) == "" {
		return apperror.ValidationFailed("id", "contact ID is required")
	}
	if err := s.repo.DeleteContact(ctx, userID, id); err != nil {
		return fmt.Errorf("service/contacts: deleting contact %s: %w", id, err)
	}

	s.logger.InfoContext(ctx, "contact deleted",
		slog.String("userID", userID),
		slog.String("contactID", id),
	)
	return nil
}

// Search matches each non-empty filter field as a case-insensitive
// substring. An empty filter matches every contact.
func (s *ContactService) Search(ctx context.Context, userID string, filter repository.ContactFilter) ([]model.Contact, error) {
	filter.FirstName = strings.TrimSpace(filter.FirstName)
	filter.LastName = strings.TrimSpace(filter.LastName)
	filter.Email = strings.TrimSpace(filter.Email)

	contacts, err := s.repo.SearchContacts(ctx, userID, filter)
	if err != nil {
		return nil, fmt.Errorf("service/contacts: searching contacts: %w", err)
	}
	return contacts, nil
}

// UpcomingBirthdays returns contacts whose next birthday falls within the
// next days days, today included, soonest first. days <= 0 means 7.
func (s *ContactService) UpcomingBirthdays(ctx context.Context, userID string, days int) ([]model.Contact, error) {
	if days <= 0 {
		days = DefaultBirthdayWindow
	}
	if days > MaxBirthdayWindow {
		return nil, apperror.ValidationFailed("days", fmt.Sprintf("days must be %d or fewer", MaxBirthdayWindow))
	}

	contacts, err := s.repo.ListContactsWithBirthday(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/contacts: listing birthdays: %w", err)
	}

	now := s.now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	last := today.AddDate(0, 0, days)

	type upcoming struct {
		contact model.Contact
		next    time.Time
	}
	var matches []upcoming
	for _, c := range contacts {
		next, ok := c.NextBirthday(today)
		if !ok || next.After(last) {
			continue
		}
		matches = append(matches, upcoming{contact: c, next: next})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].next.Before(matches[j].next)
	})

	out := make([]model.Contact, 0, len(matches))
	for _, m := range matches {
		out = append(out, m.contact)
	}
	return out, nil
}

func (in ContactInput) toContact() (*model.Contact, error) {
	first, err := requireText("firstName", in.FirstName, MaxNameLength)
	if err != nil {
		return nil, err
	}
	last, err := requireText("lastName", in.LastName, MaxNameLength)
	if err != nil {
		return nil, err
	}
	email := strings.TrimSpace(in.Email)
	if err := validateEmail("email", email); err != nil {
		return nil, err
	}
	phone, err := requireText("phoneNumber", in.PhoneNumber, MaxPhoneLength)
	if err != nil {
		return nil, err
	}

	c := &model.Contact{
		FirstName:   first,
		LastName:    last,
		Email:       email,
		PhoneNumber: phone,
	}

	if b := strings.TrimSpace(in.Birthday); b != "" {
		birthday, err := time.Parse(model.DateLayout, b)
		if err != nil {
			return nil, apperror.ValidationFailed("birthday", "birthday must be a date in YYYY-MM-DD format")
		}
		c.Birthday = &birthday
	}
	return c, nil
}
