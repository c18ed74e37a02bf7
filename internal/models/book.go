package models

import (
	"fmt"
	"strings"
)

// Book is a catalog entry as returned by the backend.
type Book struct {
	ID            string  `json:"_id"`
	Title         string  `json:"title"`
	Author        string  `json:"author"`
	ISBN          string  `json:"isbn"`
	PublishedYear int     `json:"publishedYear"`
	Genre         string  `json:"genre"`
	Description   string  `json:"description"`
	Status        string  `json:"status,omitempty"`
	BorrowedBy    *string `json:"borrowedBy,omitempty"`
}

// String is used by log lines and the chat UI.
func (b Book) String() string {
	return fmt.Sprintf("%s · %s (%d)", b.Title, b.Author, b.PublishedYear)
}

// Borrower returns the borrower name or "" when the book is on the shelf.
func (b Book) Borrower() string {
	if b.BorrowedBy == nil {
		return ""
	}
	return *b.BorrowedBy
}

// IsBookCheckedOut trusts an explicit status first and only then falls back
// to the presence of a borrower.
func IsBookCheckedOut(b Book) bool {
	if b.Status != "" {
		return !strings.EqualFold(b.Status, "available")
	}
	return b.Borrower() != ""
}

// BookFormValues is the payload of create and update requests.
type BookFormValues struct {
	Title         string `json:"title"`
	Author        string `json:"author"`
	ISBN          string `json:"isbn"`
	PublishedYear int    `json:"publishedYear"`
	Genre         string `json:"genre"`
	Description   string `json:"description"`
}

// FormValues copies the editable fields of a book.
func (b Book) FormValues() BookFormValues {
	return BookFormValues{
		Title:         b.Title,
		Author:        b.Author,
		ISBN:          b.ISBN,
		PublishedYear: b.PublishedYear,
		Genre:         b.Genre,
		Description:   b.Description,
	}
}

// CheckoutFormValues is the payload of the checkout request.
type CheckoutFormValues struct {
	BorrowedBy string `json:"borrowedBy"`
}
