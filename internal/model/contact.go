package model

import "time"

// DateLayout is the wire and storage format of Contact.Birthday.
const DateLayout = "2006-01-02"

// Contact is an address-book entry owned by exactly one user.
//
// Birthday is a calendar date with no time-of-day component. It is stored
// as midnight UTC and rendered as YYYY-MM-DD.
type Contact struct {
	ID          string     `json:"id"`
	UserID      string     `json:"-"`
	FirstName   string     `json:"firstName"`
	LastName    string     `json:"lastName"`
	Email       string     `json:"email"`
	PhoneNumber string     `json:"phoneNumber"`
	Birthday    *time.Time `json:"-"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// BirthdayString returns the birthday as YYYY-MM-DD, or "" when unset.
func (c *Contact) BirthdayString() string {
	if c.Birthday == nil {
		return ""
	}
	return c.Birthday.Format(DateLayout)
}

// NextBirthday returns the first occurrence of the contact's birthday on or
// after today. Feb 29 birthdays fall on Feb 28 in non-leap years.
func (c *Contact) NextBirthday(today time.Time) (time.Time, bool) {
	if c.Birthday == nil {
		return time.Time{}, false
	}
	today = time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)

	next := anniversary(*c.Birthday, today.Year())
	if next.Before(today) {
		next = anniversary(*c.Birthday, today.Year()+1)
	}
	return next, true
}

func anniversary(birthday time.Time, year int) time.Time {
	month, day := birthday.Month(), birthday.Day()
	if month == time.February && day == 29 && !isLeap(year) {
		day = 28
	}
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func isLeap(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}
