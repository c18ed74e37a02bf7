package forms

import (
	"strconv"

	"library_desk/internal/models"
)

const (
	FieldTitle         = "title"
	FieldAuthor        = "author"
	FieldISBN          = "isbn"
	FieldPublishedYear = "publishedYear"
	FieldGenre         = "genre"
	FieldDescription   = "description"
	FieldBorrowedBy    = "borrowedBy"
)

// Field describes one input of a form.
type Field struct {
	Name      string
	Label     string
	Multiline bool
	Numeric   bool
}

// BookFields is the book editor layout, in display order.
var BookFields = []Field{
	{Name: FieldTitle, Label: "Title"},
	{Name: FieldAuthor, Label: "Author"},
	{Name: FieldISBN, Label: "ISBN"},
	{Name: FieldPublishedYear, Label: "Published Year", Numeric: true},
	{Name: FieldGenre, Label: "Genre"},
	{Name: FieldDescription, Label: "Description", Multiline: true},
}

// BookInput holds the raw text of the book editor.
type BookInput struct {
	Title         string
	Author        string
	ISBN          string
	PublishedYear string
	Genre         string
	Description   string
}

// NewBookInput pre-fills the editor from existing values.
func NewBookInput(v models.BookFormValues) BookInput {
	return BookInput{
		Title:         v.Title,
		Author:        v.Author,
		ISBN:          v.ISBN,
		PublishedYear: strconv.Itoa(v.PublishedYear),
		Genre:         v.Genre,
		Description:   v.Description,
	}
}

// Get returns the raw value of a field by name.
func (in BookInput) Get(field string) string {
	switch field {
	case FieldTitle:
		return in.Title
	case FieldAuthor:
		return in.Author
	case FieldISBN:
		return in.ISBN
	case FieldPublishedYear:
		return in.PublishedYear
	case FieldGenre:
		return in.Genre
	case FieldDescription:
		return in.Description
	}
	return ""
}

// With returns a copy with one field replaced. Unknown names are ignored.
func (in BookInput) With(field, value string) BookInput {
	switch field {
	case FieldTitle:
		in.Title = value
	case FieldAuthor:
		in.Author = value
	case FieldISBN:
		in.ISBN = value
	case FieldPublishedYear:
		in.PublishedYear = value
	case FieldGenre:
		in.Genre = value
	case FieldDescription:
		in.Description = value
	}
	return in
}

// CheckoutInput holds the raw text of the checkout form.
type CheckoutInput struct {
	BorrowedBy string
}

// State is the bookkeeping shared by both forms: which fields the user has
// interacted with, the submission-level message and the submitting flag.
// It is a value; every method returns a modified copy.
type State struct {
	Touched    map[string]bool
	Errors     Errors
	Status     string
	Submitting bool
}

func (s State) Touch(fields ...string) State {
	touched := make(map[string]bool, len(s.Touched)+len(fields))
	for k, v := range s.Touched {
		touched[k] = v
	}
	for _, f := range fields {
		touched[f] = true
	}
	s.Touched = touched
	return s
}

func (s State) IsTouched(field string) bool {
	return s.Touched[field]
}

// VisibleErrors returns the stored errors of touched fields.
func (s State) VisibleErrors() Errors {
	return s.Visible(s.Errors)
}

// Visible filters errs down to the touched fields.
func (s State) Visible(errs Errors) Errors {
	out := Errors{}
	for field, msg := range errs {
		if s.Touched[field] {
			out[field] = msg
		}
	}
	return out
}

// BookForm is the state of an open book editor.
type BookForm struct {
	State
	Input BookInput
}

func NewBookForm(values models.BookFormValues) BookForm {
	return BookForm{Input: NewBookInput(values)}
}

// Set stores a value and marks the field as touched.
func (f BookForm) Set(field, value string) BookForm {
	f.Input = f.Input.With(field, value)
	f.State = f.State.Touch(field)
	return f
}

// TouchAll is applied on submit so every error becomes visible.
func (f BookForm) TouchAll() BookForm {
	names := make([]string, 0, len(BookFields))
	for _, field := range BookFields {
		names = append(names, field.Name)
	}
	f.State = f.State.Touch(names...)
	return f
}

// CheckoutForm is the state of an open checkout dialog.
type CheckoutForm struct {
	State
	Input CheckoutInput
}

func (f CheckoutForm) Set(value string) CheckoutForm {
	f.Input.BorrowedBy = value
	f.State = f.State.Touch(FieldBorrowedBy)
	return f
}

func (f CheckoutForm) TouchAll() CheckoutForm {
	f.State = f.State.Touch(FieldBorrowedBy)
	return f
}
