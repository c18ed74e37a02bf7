// Package home holds the list view of the catalog: its state, the pure
// transitions between states and the controller running request flows.
package home

import (
	"library_desk/internal/forms"
	"library_desk/internal/models"
)

// FormMode tells whether the book editor is closed, creating or editing.
type FormMode string

const (
	ModeClosed FormMode = ""
	ModeCreate FormMode = "create"
	ModeEdit   FormMode = "edit"
)

// FormKind addresses one of the two modal forms.
type FormKind int

const (
	BookEditor FormKind = iota
	CheckoutDialog
)

// Preferences are the parts of the state remembered between sessions.
type Preferences struct {
	PageSize int
	Status   models.StatusFilter
}

// State is everything the list view renders. Treat it as a value: Reduce
// never mutates its input and the controller only hands out copies.
type State struct {
	Books      []models.Book
	Loading    bool
	Error      string
	TotalPages int
	TotalItems int

	PageIndex int
	PageSize  int

	SearchInput string
	Search      string
	Status      models.StatusFilter

	// ActionID is the book whose row action (delete, check-in) is in flight.
	ActionID string

	BookMode FormMode
	Selected *models.Book
	BookForm forms.BookForm

	CheckoutBook *models.Book
	CheckoutForm forms.CheckoutForm

	fetchSeq uint64
}

// NewState builds the initial state from stored preferences. Invalid
// preferences fall back to the defaults.
func NewState(p Preferences) State {
	s := State{
		PageSize:   models.DefaultPageSize,
		Status:     models.StatusAll,
		TotalPages: 1,
	}
	if models.IsPageSize(p.PageSize) {
		s.PageSize = p.PageSize
	}
	if f, err := models.ParseStatusFilter(string(p.Status)); err == nil {
		s.Status = f
	}
	return s
}

// Query derives the list request parameters.
func (s State) Query() models.BooksQuery {
	q := models.BooksQuery{
		Page:   s.PageIndex + 1,
		Limit:  s.PageSize,
		Search: s.Search,
	}
	if s.Status != models.StatusAll {
		q.Status = string(s.Status)
	}
	return q
}

func (s State) Preferences() Preferences {
	return Preferences{PageSize: s.PageSize, Status: s.Status}
}

// IsBusy reports whether bookID has a row action in flight.
func (s State) IsBusy(bookID string) bool {
	return s.ActionID != "" && s.ActionID == bookID
}

// FindBook looks a book up on the current page.
func (s State) FindBook(bookID string) (models.Book, bool) {
	for _, b := range s.Books {
		if b.ID == bookID {
			return b, true
		}
	}
	return models.Book{}, false
}

// CanPrevious and CanNext ignore the loading flag; the view adds it.
func (s State) CanPrevious() bool {
	return s.PageIndex > 0
}

func (s State) CanNext() bool {
	return CanNext(s.PageIndex, s.TotalPages)
}

// TotalPages is ceil(totalItems/pageSize), never less than one.
func TotalPages(totalItems, pageSize int) int {
	if pageSize <= 0 || totalItems <= 0 {
		return 1
	}
	return max((totalItems+pageSize-1)/pageSize, 1)
}

func CanNext(pageIndex, totalPages int) bool {
	return pageIndex+1 < totalPages
}
