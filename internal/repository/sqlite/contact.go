package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/contacts-api/internal/apperror"
	"github.com/sakif/contacts-api/internal/model"
	"github.com/sakif/contacts-api/internal/repository"
)

// compile-time check that *DB implements repository.ContactRepository
var _ repository.ContactRepository = (*DB)(nil)

const contactColumns = `id, user_id, first_name, last_name, email, phone_number, birthday, created_at, updated_at`

// CreateContact inserts a new contact for contact.UserID. ID and timestamps
// are set on the caller's struct.
func (db *DB) CreateContact(ctx context.Context, contact *model.Contact) error {
	contact.ID = xid.New().String()

	now := time.Now().UTC()
	contact.CreatedAt = now
	contact.UpdatedAt = now

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO contacts (`+contactColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		contact.ID,
		contact.UserID,
		contact.FirstName,
		contact.LastName,
		contact.Email,
		contact.PhoneNumber,
		birthdayValue(contact.Birthday),
		contact.CreatedAt,
		contact.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("contact", contact.Email)
		}
		return fmt.Errorf("sqlite: creating contact: %w", err)
	}

	return nil
}

// GetContact returns the contact with the given id if it belongs to userID.
// A contact owned by someone else is reported as not found.
func (db *DB) GetContact(ctx context.Context, userID, id string) (*model.Contact, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+contactColumns+`
		 FROM contacts
		 WHERE id = ? AND user_id = ?`,
		id, userID,
	)

	c, err := scanContact(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("contact", id)
		}
		return nil, fmt.Errorf("sqlite: getting contact %s: %w", id, err)
	}

	return c, nil
}

// ListContacts returns a page of the user's contacts, newest first.
func (db *DB) ListContacts(ctx context.Context, userID string, opts repository.ListOptions) ([]model.Contact, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+contactColumns+`
		 FROM contacts
		 WHERE user_id = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ? OFFSET ?`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing contacts: %w", err)
	}
	defer rows.Close()

	return collectContacts(rows, limit)
}

// UpdateContact replaces every editable field of an existing contact.
func (db *DB) UpdateContact(ctx context.Context, contact *model.Contact) error {
	contact.UpdatedAt = time.Now().UTC()

	result, err := db.conn.ExecContext(ctx,
		`UPDATE contacts
		 SET first_name = ?, last_name = ?, email = ?, phone_number = ?, birthday = ?, updated_at = ?
		 WHERE id = ? AND user_id = ?`,
		contact.FirstName,
		contact.LastName,
		contact.Email,
		contact.PhoneNumber,
		birthdayValue(contact.Birthday),
		contact.UpdatedAt,
		contact.ID,
		contact.UserID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("contact", contact.Email)
		}
		return fmt.Errorf("sqlite: updating contact %s: %w", contact.ID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("contact", contact.ID)
	}

	return nil
}

// DeleteContact removes one of the user's contacts.
func (db *DB) DeleteContact(ctx context.Context, userID, id string) error {
	result, err := db.conn.ExecContext(ctx,
		`DELETE FROM contacts WHERE id = ? AND user_id = ?`,
		id, userID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: deleting contact %s: %w", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("contact", id)
	}

	return nil
}

// SearchContacts matches each non-empty filter field as a case-insensitive
// substring. SQLite's LIKE is case-insensitive for ASCII.
//
// WHY BUILD THE WHERE CLAUSE BY HAND?
// Only column names from the fixed map below are ever concatenated into the
// SQL. User input always travels as a ? parameter, so it cannot change the
// statement. Inside the parameter, % and _ are still LIKE wildcards, which is
// what escapeLike is for: searching "50%" matches the literal text.
func (db *DB) SearchContacts(ctx context.Context, userID string, filter repository.ContactFilter) ([]model.Contact, error) {
	var (
		where = []string{"user_id = ?"}
		args  = []any{userID}
	)
	for column, value := range map[string]string{
		"first_name": filter.FirstName,
		"last_name":  filter.LastName,
		"email":      filter.Email,
	} {
		if value == "" {
			continue
		}
		where = append(where, column+` LIKE ? ESCAPE '\'`)
		args = append(args, "%"+escapeLike(value)+"%")
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+contactColumns+`
		 FROM contacts
		 WHERE `+strings.Join(where, " AND ")+`
		 ORDER BY last_name, first_name, id`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: searching contacts: %w", err)
	}
	defer rows.Close()

	return collectContacts(rows, 0)
}

// ListContactsWithBirthday returns every contact of the user that has a
// birthday on record. The date-window filtering is a service concern.
func (db *DB) ListContactsWithBirthday(ctx context.Context, userID string) ([]model.Contact, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+contactColumns+`
		 FROM contacts
		 WHERE user_id = ? AND birthday IS NOT NULL`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing contacts with birthday: %w", err)
	}
	defer rows.Close()

	return collectContacts(rows, 0)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanContact(row rowScanner) (*model.Contact, error) {
	var (
		c        model.Contact
		birthday sql.NullString
	)
	if err := row.Scan(
		&c.ID, &c.UserID, &c.FirstName, &c.LastName, &c.Email, &c.PhoneNumber,
		&birthday, &c.CreatedAt, &c.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if birthday.Valid {
		b, err := time.Parse(model.DateLayout, birthday.String)
		if err != nil {
			return nil, fmt.Errorf("parsing birthday %q: %w", birthday.String, err)
		}
		c.Birthday = &b
	}
	return &c, nil
}

func collectContacts(rows *sql.Rows, capacity int) ([]model.Contact, error) {
	contacts := make([]model.Contact, 0, capacity)
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning contact row: %w", err)
		}
		contacts = append(contacts, *c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating contacts: %w", err)
	}
	return contacts, nil
}

func birthdayValue(b *time.Time) sql.NullString {
	if b == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: b.Format(model.DateLayout), Valid: true}
}

// escapeLike makes \, % and _ match themselves under ESCAPE '\'.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
