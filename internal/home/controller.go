package home

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"library_desk/internal/debounce"
	"library_desk/internal/forms"
	"library_desk/internal/models"
	"library_desk/internal/service"
)

// DeletePrompt is the question asked before a book is deleted.
const DeletePrompt = "Delete this book? This cannot be undone."

// DefaultDebounce is how long the search box must be quiet before the
// typed text becomes the search term.
const DefaultDebounce = 300 * time.Millisecond

var (
	ErrBookNotFound   = errors.New("book is not on the current page")
	ErrFormClosed     = errors.New("form is not open")
	ErrSubmitting     = errors.New("form is already submitting")
	ErrBadPageSize    = errors.New("unsupported page size")
	ErrDeleteDeclined = errors.New("delete was not confirmed")
)

// ValidationError is returned by submits rejected by the form schema.
type ValidationError struct {
	Errors forms.Errors
}

func (e *ValidationError) Error() string {
	fields := make([]string, 0, len(e.Errors))
	for f := range e.Errors {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	msgs := make([]string, 0, len(fields))
	for _, f := range fields {
		msgs = append(msgs, e.Errors[f])
	}
	return strings.Join(msgs, "; ")
}

// Catalog is the backend the controller talks to.
type Catalog interface {
	ListBooks(ctx context.Context, q models.BooksQuery) (models.BooksResponse, error)
	CreateBook(ctx context.Context, values models.BookFormValues) error
	UpdateBook(ctx context.Context, bookID string, values models.BookFormValues) error
	DeleteBook(ctx context.Context, bookID string) error
	CheckoutBook(ctx context.Context, bookID string, values models.CheckoutFormValues) error
	CheckinBook(ctx context.Context, bookID string) error
}

// Confirmer asks the user a yes/no question.
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) bool
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, prompt string) bool

func (f ConfirmFunc) Confirm(ctx context.Context, prompt string) bool { return f(ctx, prompt) }

// Options configure a Controller. Zero values pick the defaults.
type Options struct {
	Debounce    time.Duration
	Schema      *forms.Schema
	Logger      *zerolog.Logger
	Preferences Preferences
}

// Controller owns one list view. All transitions go through Reduce under
// the controller's lock; requests run on the caller's goroutine, except the
// fetch that follows a debounced search commit.
type Controller struct {
	catalog   Catalog
	schema    *forms.Schema
	log       zerolog.Logger
	debouncer *debounce.Debouncer

	ctx    context.Context
	cancel context.CancelFunc

	mu            sync.Mutex
	state         State
	busy          int
	searchPending bool
	searchGen     uint64

	notifyMu    sync.Mutex
	subscribers map[int]func(State)
	nextSubID   int
}

func NewController(catalog Catalog, opts Options) *Controller {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Schema == nil {
		opts.Schema = forms.NewSchema(nil)
	}
	log := zerolog.Nop()
	if opts.Logger != nil {
		log = *opts.Logger
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		catalog:     catalog,
		schema:      opts.Schema,
		log:         log,
		debouncer:   debounce.New(opts.Debounce),
		ctx:         ctx,
		cancel:      cancel,
		state:       NewState(opts.Preferences),
		subscribers: make(map[int]func(State)),
	}
}

// State returns a snapshot of the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Subscribe registers fn to receive the state after every transition.
// fn runs synchronously and must not call back into the controller's
// mutating methods. The returned func unsubscribes.
func (c *Controller) Subscribe(fn func(State)) func() {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	id := c.nextSubID
	c.nextSubID++
	c.subscribers[id] = fn
	return func() {
		c.notifyMu.Lock()
		defer c.notifyMu.Unlock()
		delete(c.subscribers, id)
	}
}

// Close cancels the pending search commit and any fetch it started.
func (c *Controller) Close() {
	c.debouncer.Stop()
	c.mu.Lock()
	c.searchPending = false
	c.mu.Unlock()
	c.cancel()
}

func (c *Controller) dispatch(a Action) (prev, next State) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.Lock()
	prev = c.state
	next = Reduce(prev, a)
	c.state = next
	c.mu.Unlock()

	for _, fn := range c.subscribers {
		fn(next)
	}
	return prev, next
}

// apply dispatches a and refetches when the derived query changed.
func (c *Controller) apply(ctx context.Context, a Action) State {
	prev, next := c.dispatch(a)
	if prev.Query() != next.Query() {
		c.load(ctx)
		return c.State()
	}
	return next
}

func (c *Controller) enter() {
	c.mu.Lock()
	c.busy++
	c.mu.Unlock()
}

func (c *Controller) leave() {
	c.mu.Lock()
	c.busy--
	c.mu.Unlock()
}

// Load fetches the current page. Front-ends call it once when the view opens.
func (c *Controller) Load(ctx context.Context) {
	c.load(ctx)
}

func (c *Controller) load(ctx context.Context) {
	c.enter()
	defer c.leave()

	_, started := c.dispatch(FetchStarted{})
	seq := started.fetchSeq
	query := started.Query()

	resp, err := c.catalog.ListBooks(ctx, query)
	if err != nil {
		c.log.Error().Err(err).Int("page", query.Page).Int("limit", query.Limit).Msg("list books failed")
		c.dispatch(FetchFailed{Seq: seq, Message: service.ErrorMessage(err)})
		return
	}

	_, next := c.dispatch(FetchSucceeded{Seq: seq, Response: resp})
	if next.fetchSeq != seq {
		c.log.Debug().Uint64("seq", seq).Msg("dropped stale list response")
	}
}

// SetSearchInput records the typed text and schedules its commit. Each
// call replaces the pending commit.
func (c *Controller) SetSearchInput(text string) {
	c.dispatch(SearchTyped{Text: text})

	c.mu.Lock()
	c.searchGen++
	gen := c.searchGen
	c.searchPending = true
	c.mu.Unlock()

	term := strings.TrimSpace(text)
	c.debouncer.Trigger(func() {
		c.apply(c.ctx, SearchCommitted{Term: term})

		c.mu.Lock()
		if c.searchGen == gen {
			c.searchPending = false
		}
		c.mu.Unlock()
	})
}

func (c *Controller) SetStatusFilter(ctx context.Context, f models.StatusFilter) State {
	return c.apply(ctx, StatusChanged{Filter: f})
}

func (c *Controller) SetPage(ctx context.Context, index int) State {
	return c.apply(ctx, PageChanged{Index: index})
}

func (c *Controller) NextPage(ctx context.Context) State {
	st := c.State()
	if !st.CanNext() {
		return st
	}
	return c.SetPage(ctx, st.PageIndex+1)
}

func (c *Controller) PreviousPage(ctx context.Context) State {
	st := c.State()
	if !st.CanPrevious() {
		return st
	}
	return c.SetPage(ctx, st.PageIndex-1)
}

// SetPageSize switches the page size and goes back to the first page.
func (c *Controller) SetPageSize(ctx context.Context, size int) (State, error) {
	if !models.IsPageSize(size) {
		return c.State(), fmt.Errorf("%w: %d", ErrBadPageSize, size)
	}
	return c.apply(ctx, PageSizeChanged{Size: size}), nil
}

// Delete asks confirm first; a declined prompt changes nothing.
func (c *Controller) Delete(ctx context.Context, bookID string, confirm Confirmer) error {
	if confirm == nil || !confirm.Confirm(ctx, DeletePrompt) {
		return ErrDeleteDeclined
	}
	return c.rowAction(ctx, bookID, "delete", c.catalog.DeleteBook)
}

// CheckIn returns a borrowed book.
func (c *Controller) CheckIn(ctx context.Context, bookID string) error {
	return c.rowAction(ctx, bookID, "checkin", c.catalog.CheckinBook)
}

func (c *Controller) rowAction(ctx context.Context, bookID, name string, call func(context.Context, string) error) error {
	c.enter()
	defer c.leave()

	c.dispatch(RowActionStarted{BookID: bookID})
	defer c.dispatch(RowActionFinished{})

	if err := call(ctx, bookID); err != nil {
		c.log.Error().Err(err).Str("book_id", bookID).Str("action", name).Msg("row action failed")
		c.dispatch(RowActionFailed{Message: service.ErrorMessage(err)})
		return err
	}
	c.load(ctx)
	return nil
}

// OpenCreate opens an empty book editor.
func (c *Controller) OpenCreate() State {
	_, next := c.dispatch(CreateOpened{Year: c.schema.CurrentYear()})
	return next
}

// OpenEdit opens the book editor filled from a book on the current page.
func (c *Controller) OpenEdit(bookID string) (State, error) {
	book, ok := c.State().FindBook(bookID)
	if !ok {
		return c.State(), ErrBookNotFound
	}
	_, next := c.dispatch(EditOpened{Book: book})
	return next, nil
}

// OpenCheckout opens the checkout dialog for a book on the current page.
func (c *Controller) OpenCheckout(bookID string) (State, error) {
	book, ok := c.State().FindBook(bookID)
	if !ok {
		return c.State(), ErrBookNotFound
	}
	_, next := c.dispatch(CheckoutOpened{Book: book})
	return next, nil
}

// Cancel closes a form; a submitting form stays open.
func (c *Controller) Cancel(form FormKind) State {
	st := c.State()
	if form == BookEditor && st.BookForm.Submitting {
		return st
	}
	if form == CheckoutDialog && st.CheckoutForm.Submitting {
		return st
	}
	_, next := c.dispatch(ModalClosed{Form: form})
	return next
}

// SetBookField updates one editor field and revalidates the input.
func (c *Controller) SetBookField(field, value string) State {
	input := c.State().BookForm.Input.With(field, value)
	_, errs := c.schema.ValidateBook(input)
	_, next := c.dispatch(FieldChanged{Form: BookEditor, Field: field, Value: value, Errors: errs})
	return next
}

// SetBorrower updates the checkout dialog's only field.
func (c *Controller) SetBorrower(value string) State {
	_, errs := c.schema.ValidateCheckout(forms.CheckoutInput{BorrowedBy: value})
	_, next := c.dispatch(FieldChanged{Form: CheckoutDialog, Field: forms.FieldBorrowedBy, Value: value, Errors: errs})
	return next
}

// SubmitBook validates the editor and creates or updates the book. On
// success the editor closes and the list is fetched again.
func (c *Controller) SubmitBook(ctx context.Context) error {
	st := c.State()
	if st.BookMode == ModeClosed {
		return ErrFormClosed
	}
	if st.BookForm.Submitting {
		return ErrSubmitting
	}

	values, errs := c.schema.ValidateBook(st.BookForm.Input)
	if len(errs) > 0 {
		c.dispatch(FormTouched{Form: BookEditor, Errors: errs})
		return &ValidationError{Errors: errs}
	}

	prev, _ := c.dispatch(SubmitStarted{Form: BookEditor})
	if prev.BookForm.Submitting {
		return ErrSubmitting
	}
	c.enter()
	defer c.leave()
	defer c.dispatch(SubmitFinished{Form: BookEditor})

	var err error
	if st.BookMode == ModeEdit && st.Selected != nil {
		err = c.catalog.UpdateBook(ctx, st.Selected.ID, values)
	} else {
		err = c.catalog.CreateBook(ctx, values)
	}
	if err != nil {
		c.log.Error().Err(err).Str("mode", string(st.BookMode)).Msg("book submit failed")
		c.dispatch(SubmitFailed{Form: BookEditor, Message: service.ErrorMessage(err)})
		return err
	}

	c.dispatch(ModalClosed{Form: BookEditor})
	c.load(ctx)
	return nil
}

// SubmitCheckout lends the selected book to the entered borrower.
func (c *Controller) SubmitCheckout(ctx context.Context) error {
	st := c.State()
	if st.CheckoutBook == nil {
		c.dispatch(SubmitFinished{Form: CheckoutDialog})
		return ErrFormClosed
	}
	if st.CheckoutForm.Submitting {
		return ErrSubmitting
	}

	values, errs := c.schema.ValidateCheckout(st.CheckoutForm.Input)
	if len(errs) > 0 {
		c.dispatch(FormTouched{Form: CheckoutDialog, Errors: errs})
		return &ValidationError{Errors: errs}
	}

	prev, _ := c.dispatch(SubmitStarted{Form: CheckoutDialog})
	if prev.CheckoutForm.Submitting {
		return ErrSubmitting
	}
	c.enter()
	defer c.leave()
	defer c.dispatch(SubmitFinished{Form: CheckoutDialog})

	if err := c.catalog.CheckoutBook(ctx, st.CheckoutBook.ID, values); err != nil {
		c.log.Error().Err(err).Str("book_id", st.CheckoutBook.ID).Msg("checkout failed")
		c.dispatch(SubmitFailed{Form: CheckoutDialog, Message: service.ErrorMessage(err)})
		return err
	}

	c.dispatch(ModalClosed{Form: CheckoutDialog})
	c.load(ctx)
	return nil
}

// Idle reports whether no search commit is pending and no request runs.
func (c *Controller) Idle() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.searchPending && c.busy == 0
}

// WaitIdle blocks until Idle or ctx is done.
func (c *Controller) WaitIdle(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for !c.Idle() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}
