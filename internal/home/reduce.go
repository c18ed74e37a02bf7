package home

import (
	"library_desk/internal/forms"
	"library_desk/internal/models"
)

// Action is a single state transition.
type Action interface {
	action()
}

type (
	SearchTyped     struct{ Text string }
	SearchCommitted struct{ Term string }
	StatusChanged   struct{ Filter models.StatusFilter }
	PageChanged     struct{ Index int }
	PageSizeChanged struct{ Size int }

	FetchStarted   struct{}
	FetchSucceeded struct {
		Seq      uint64
		Response models.BooksResponse
	}
	FetchFailed struct {
		Seq     uint64
		Message string
	}

	RowActionStarted  struct{ BookID string }
	RowActionFailed   struct{ Message string }
	RowActionFinished struct{}

	CreateOpened   struct{ Year int }
	EditOpened     struct{ Book models.Book }
	CheckoutOpened struct{ Book models.Book }
	ModalClosed    struct{ Form FormKind }

	FieldChanged struct {
		Form   FormKind
		Field  string
		Value  string
		Errors forms.Errors
	}
	// FormTouched marks every field touched, used when validation rejects a submit.
	FormTouched struct {
		Form   FormKind
		Errors forms.Errors
	}
	SubmitStarted  struct{ Form FormKind }
	SubmitFailed   struct {
		Form    FormKind
		Message string
	}
	SubmitFinished struct{ Form FormKind }
)

func (SearchTyped) action()       {}
func (SearchCommitted) action()   {}
func (StatusChanged) action()     {}
func (PageChanged) action()       {}
func (PageSizeChanged) action()   {}
func (FetchStarted) action()      {}
func (FetchSucceeded) action()    {}
func (FetchFailed) action()       {}
func (RowActionStarted) action()  {}
func (RowActionFailed) action()   {}
func (RowActionFinished) action() {}
func (CreateOpened) action()      {}
func (EditOpened) action()        {}
func (CheckoutOpened) action()    {}
func (ModalClosed) action()       {}
func (FieldChanged) action()      {}
func (FormTouched) action()       {}
func (SubmitStarted) action()     {}
func (SubmitFailed) action()      {}
func (SubmitFinished) action()    {}

// Reduce applies a to s and returns the next state.
func Reduce(s State, a Action) State {
	switch a := a.(type) {
	case SearchTyped:
		s.SearchInput = a.Text

	case SearchCommitted:
		if a.Term == s.Search {
			return s
		}
		s.Search = a.Term
		s.PageIndex = 0

	case StatusChanged:
		if a.Filter == s.Status {
			return s
		}
		s.Status = a.Filter
		s.PageIndex = 0

	case PageChanged:
		s.PageIndex = min(max(a.Index, 0), max(s.TotalPages, 1)-1)

	case PageSizeChanged:
		if !models.IsPageSize(a.Size) {
			return s
		}
		s.PageSize = a.Size
		s.PageIndex = 0

	case FetchStarted:
		s.fetchSeq++
		s.Loading = true
		s.Error = ""

	case FetchSucceeded:
		if a.Seq != s.fetchSeq {
			return s
		}
		p := a.Response.Pagination
		pages := p.TotalPages
		if pages <= 0 {
			pages = TotalPages(p.TotalItems, s.PageSize)
		}
		s.Books = a.Response.Items
		s.TotalItems = p.TotalItems
		s.TotalPages = max(pages, 1)
		s.Loading = false

	case FetchFailed:
		if a.Seq != s.fetchSeq {
			return s
		}
		s.Error = a.Message
		s.Loading = false

	case RowActionStarted:
		s.ActionID = a.BookID
		s.Error = ""

	case RowActionFailed:
		s.Error = a.Message

	case RowActionFinished:
		s.ActionID = ""

	case CreateOpened:
		s.BookMode = ModeCreate
		s.Selected = nil
		s.BookForm = forms.NewBookForm(models.BookFormValues{PublishedYear: a.Year})

	case EditOpened:
		book := a.Book
		s.BookMode = ModeEdit
		s.Selected = &book
		s.BookForm = forms.NewBookForm(book.FormValues())

	case CheckoutOpened:
		book := a.Book
		s.CheckoutBook = &book
		s.CheckoutForm = forms.CheckoutForm{}

	case ModalClosed:
		if a.Form == BookEditor {
			s.BookMode = ModeClosed
			s.Selected = nil
			s.BookForm = forms.BookForm{}
		} else {
			s.CheckoutBook = nil
			s.CheckoutForm = forms.CheckoutForm{}
		}

	case FieldChanged:
		if a.Form == BookEditor {
			if s.BookMode == ModeClosed {
				return s
			}
			s.BookForm = s.BookForm.Set(a.Field, a.Value)
			s.BookForm.Errors = a.Errors
		} else {
			if s.CheckoutBook == nil {
				return s
			}
			s.CheckoutForm = s.CheckoutForm.Set(a.Value)
			s.CheckoutForm.Errors = a.Errors
		}

	case FormTouched:
		if a.Form == BookEditor {
			s.BookForm = s.BookForm.TouchAll()
			s.BookForm.Errors = a.Errors
		} else {
			s.CheckoutForm = s.CheckoutForm.TouchAll()
			s.CheckoutForm.Errors = a.Errors
		}

	case SubmitStarted:
		if (a.Form == BookEditor && s.BookForm.Submitting) || (a.Form == CheckoutDialog && s.CheckoutForm.Submitting) {
			return s
		}
		s.Error = ""
		if a.Form == BookEditor {
			s.BookForm.Submitting = true
			s.BookForm.Status = ""
		} else {
			s.CheckoutForm.Submitting = true
			s.CheckoutForm.Status = ""
		}

	case SubmitFailed:
		if a.Form == BookEditor {
			s.BookForm.Status = a.Message
		} else {
			s.CheckoutForm.Status = a.Message
		}

	case SubmitFinished:
		if a.Form == BookEditor {
			s.BookForm.Submitting = false
		} else {
			s.CheckoutForm.Submitting = false
		}
	}
	return s
}
