// Package view turns the list view state into render-ready props and HTML.
// Nothing here decides behaviour; it only mirrors the state.
package view

import (
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"

	"library_desk/internal/forms"
	"library_desk/internal/home"
	"library_desk/internal/models"
)

// Variant is the visual style of a button.
type Variant string

const (
	Primary   Variant = "primary"
	Secondary Variant = "secondary"
	Success   Variant = "success"
	Danger    Variant = "danger"
)

const (
	PageTitle         = "Mini Library Management System"
	PageSubtitle      = "Manage books, borrowing, and returns."
	SearchPlaceholder = "Search by title, author, ISBN, genre, description, borrower…"
	LoadingText       = "Loading books..."
	EmptyText         = "No books found."
	CheckedOutLabel   = "Checked Out"
	AvailableLabel    = "Available"
)

// Button is a clickable action. Action is the route it posts to.
type Button struct {
	Label    string
	Variant  Variant
	Disabled bool
	Action   string
	Confirm  string
}

// Class is the CSS class list of the button.
func (b Button) Class() string {
	v := b.Variant
	if v == "" {
		v = Secondary
	}
	return "app-button app-button--" + string(v)
}

type SearchInput struct {
	Value       string
	Placeholder string
}

type Option struct {
	Value    string
	Label    string
	Selected bool
}

type Toolbar struct {
	Search         SearchInput
	StatusOptions  []Option
	StatusDisabled bool
}

type Column struct {
	ID     string
	Header string
}

// Columns of the books table, in order.
var Columns = []Column{
	{ID: "title", Header: "Title"},
	{ID: "author", Header: "Author"},
	{ID: "isbn", Header: "ISBN"},
	{ID: "publishedYear", Header: "Year"},
	{ID: "genre", Header: "Genre"},
	{ID: "status", Header: "Status"},
	{ID: "actions", Header: "Actions"},
}

type Row struct {
	Book        models.Book
	CheckedOut  bool
	StatusLabel string
	Actions     []Button
}

type Pager struct {
	PageIndex   int
	PageNumber  int
	TotalPages  int
	TotalItems  int
	Summary     string
	Previous    Button
	Next        Button
	SizeOptions []Option
	SizeLocked  bool
}

type Table struct {
	Columns []Column
	Rows    []Row
	// Placeholder replaces all rows when set, spanning every column.
	Placeholder string
	Pager       Pager
}

type Header struct {
	Title    string
	Subtitle string
	Create   Button
}

type Field struct {
	forms.Field
	Value string
	Error string
}

type BookFormProps struct {
	Heading string
	Fields  []Field
	Status  string
	Cancel  Button
	Submit  Button
}

type CheckoutFormProps struct {
	BookTitle string
	Borrower  Field
	Status    string
	Cancel    Button
	Submit    Button
}

// Page is the full list view.
type Page struct {
	Header   Header
	Error    string
	Toolbar  Toolbar
	Table    Table
	BookForm *BookFormProps
	Checkout *CheckoutFormProps
}

// Build derives every prop of the page from s.
func Build(s home.State) Page {
	p := Page{
		Header:  BuildHeader(),
		Error:   s.Error,
		Toolbar: BuildToolbar(s),
		Table:   BuildTable(s),
	}
	if s.BookMode != home.ModeClosed {
		f := BuildBookForm(s)
		p.BookForm = &f
	}
	if s.CheckoutBook != nil {
		f := BuildCheckoutForm(s)
		p.Checkout = &f
	}
	return p
}

func BuildHeader() Header {
	return Header{
		Title:    PageTitle,
		Subtitle: PageSubtitle,
		Create:   Button{Label: "Create", Variant: Primary, Action: "/books/new"},
	}
}

func BuildToolbar(s home.State) Toolbar {
	t := Toolbar{
		Search:         SearchInput{Value: s.SearchInput, Placeholder: SearchPlaceholder},
		StatusDisabled: s.Loading,
	}
	for _, f := range models.StatusFilters {
		t.StatusOptions = append(t.StatusOptions, Option{
			Value:    string(f),
			Label:    f.Label(),
			Selected: f == s.Status,
		})
	}
	return t
}

// StatusLabel is the text of the status column.
func StatusLabel(b models.Book) string {
	if models.IsBookCheckedOut(b) {
		return CheckedOutLabel
	}
	return AvailableLabel
}

// RowActions are the buttons of one row: edit, delete and exactly one of
// check in / check out.
func RowActions(b models.Book, busy bool) []Button {
	base := "/books/" + b.ID
	actions := []Button{
		{Label: "Edit", Variant: Secondary, Disabled: busy, Action: base + "/edit"},
		{Label: "Delete", Variant: Danger, Disabled: busy, Action: base + "/delete", Confirm: home.DeletePrompt},
	}
	if models.IsBookCheckedOut(b) {
		actions = append(actions, Button{Label: "Check In", Variant: Success, Disabled: busy, Action: base + "/checkin"})
	} else {
		actions = append(actions, Button{Label: "Check Out", Variant: Primary, Disabled: busy, Action: base + "/checkout"})
	}
	return actions
}

func BuildTable(s home.State) Table {
	t := Table{
		Columns: Columns,
		Pager:   BuildPager(s),
	}

	switch {
	case s.Loading:
		t.Placeholder = LoadingText
	case len(s.Books) == 0:
		t.Placeholder = EmptyText
	default:
		for _, b := range s.Books {
			t.Rows = append(t.Rows, Row{
				Book:        b,
				CheckedOut:  models.IsBookCheckedOut(b),
				StatusLabel: StatusLabel(b),
				Actions:     RowActions(b, s.IsBusy(b.ID)),
			})
		}
	}
	return t
}

func BuildPager(s home.State) Pager {
	totalPages := max(s.TotalPages, 1)
	p := Pager{
		PageIndex:  s.PageIndex,
		PageNumber: s.PageIndex + 1,
		TotalPages: totalPages,
		TotalItems: s.TotalItems,
		Summary: fmt.Sprintf("Page %d of %d (%s total books)",
			s.PageIndex+1, totalPages, humanize.Comma(int64(s.TotalItems))),
		Previous: Button{
			Label:    "Previous",
			Disabled: !s.CanPrevious() || s.Loading,
			Action:   "/page?index=" + strconv.Itoa(s.PageIndex-1),
		},
		Next: Button{
			Label:    "Next",
			Disabled: !home.CanNext(s.PageIndex, totalPages) || s.Loading,
			Action:   "/page?index=" + strconv.Itoa(s.PageIndex+1),
		},
		SizeLocked: s.Loading,
	}
	for _, size := range models.PageSizes {
		p.SizeOptions = append(p.SizeOptions, Option{
			Value:    strconv.Itoa(size),
			Label:    strconv.Itoa(size),
			Selected: size == s.PageSize,
		})
	}
	return p
}

func BuildBookForm(s home.State) BookFormProps {
	form := s.BookForm
	visible := form.VisibleErrors()

	heading := "Create Book"
	if s.BookMode == home.ModeEdit {
		heading = "Edit Book"
	}

	props := BookFormProps{
		Heading: heading,
		Status:  form.Status,
		Cancel:  Button{Label: "Cancel", Variant: Secondary, Disabled: form.Submitting, Action: "/modal/cancel?form=book"},
		Submit:  Button{Label: "Save", Variant: Primary, Disabled: form.Submitting, Action: "/books"},
	}
	if form.Submitting {
		props.Submit.Label = "Saving..."
	}
	for _, f := range forms.BookFields {
		props.Fields = append(props.Fields, Field{
			Field: f,
			Value: form.Input.Get(f.Name),
			Error: visible[f.Name],
		})
	}
	return props
}

func BuildCheckoutForm(s home.State) CheckoutFormProps {
	form := s.CheckoutForm
	props := CheckoutFormProps{
		Borrower: Field{
			Field: forms.Field{Name: forms.FieldBorrowedBy, Label: "Borrowed By"},
			Value: form.Input.BorrowedBy,
			Error: form.VisibleErrors()[forms.FieldBorrowedBy],
		},
		Status: form.Status,
		Cancel: Button{Label: "Cancel", Variant: Secondary, Disabled: form.Submitting, Action: "/modal/cancel?form=checkout"},
		Submit: Button{Label: "Confirm", Variant: Primary, Disabled: form.Submitting, Action: "/checkout"},
	}
	if s.CheckoutBook != nil {
		props.BookTitle = s.CheckoutBook.Title
	}
	if form.Submitting {
		props.Submit.Label = "Checking out..."
	}
	return props
}

// ConfirmPage asks for confirmation without htmx, for browsers that posted
// a row action as a plain form.
type ConfirmPage struct {
	Title   string
	Prompt  string
	Confirm Button
}

func BuildDeleteConfirm(bookID, bookTitle string) ConfirmPage {
	title := "Delete Book"
	if bookTitle != "" {
		title = fmt.Sprintf("Delete %q", bookTitle)
	}
	return ConfirmPage{
		Title:   title,
		Prompt:  home.DeletePrompt,
		Confirm: Button{Label: "Delete", Variant: Danger, Action: "/books/" + bookID + "/delete"},
	}
}
