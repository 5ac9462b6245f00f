package core

import (
	"errors"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

type (
	// InvoiceItem is a single line item on an invoice.
	InvoiceItem struct {
		Name  string `json:"item_name"`
		Price Money  `json:"item_price"`
	}

	// Invoice is a recorded purchase: date, store, optional category and
	// the itemized lines. Category is empty when the user assigned none.
	Invoice struct {
		ID       int64         `json:"id"`
		Date     string        `json:"date"` // ISO-8601 calendar date
		Store    string        `json:"store"`
		Category string        `json:"category,omitempty"`
		Total    Money         `json:"total"`
		Items    []InvoiceItem `json:"items"`
	}
)

var (
	ErrInvalidDate   = errors.New("invalid date")
	ErrInvalidAmount = errors.New("invalid amount")
	ErrEmptyStore    = errors.New("empty store")
	ErrEmptyItemName = errors.New("empty item name")
)

// ParseDate parses an ISO-8601 calendar date (2006-01-02).
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, ErrInvalidDate
	}
	return t, nil
}

// FormatDate renders t as an ISO-8601 calendar date.
func FormatDate(t time.Time) string {
	return t.Format(dateLayout)
}

func (it InvoiceItem) Validate() error {
	if strings.TrimSpace(it.Name) == "" {
		return ErrEmptyItemName
	}
	if it.Price.Cents < 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (inv Invoice) Validate() error {
	if _, err := ParseDate(inv.Date); err != nil {
		return err
	}
	if strings.TrimSpace(inv.Store) == "" {
		return ErrEmptyStore
	}
	if len(inv.Store) > 200 {
		return errors.New("store name too long (max 200 characters)")
	}
	if inv.Total.Cents <= 0 {
		return ErrInvalidAmount
	}
	for _, it := range inv.Items {
		if err := it.Validate(); err != nil {
			return err
		}
	}
	return nil
}
