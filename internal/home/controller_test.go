package home

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"library_desk/internal/forms"
	"library_desk/internal/models"
	"library_desk/internal/service"
)

type fakeCatalog struct {
	mu      sync.Mutex
	queries []models.BooksQuery
	calls   []string

	total     int
	listErr   error
	mutateErr error
	// during runs inside every mutation, before it returns.
	during func()
	// list overrides the default paging behaviour when set.
	list func(q models.BooksQuery) (models.BooksResponse, error)
}

func (f *fakeCatalog) ListBooks(_ context.Context, q models.BooksQuery) (models.BooksResponse, error) {
	f.mu.Lock()
	f.queries = append(f.queries, q)
	list, total, listErr := f.list, f.total, f.listErr
	f.mu.Unlock()

	if list != nil {
		return list(q)
	}
	if listErr != nil {
		return models.BooksResponse{}, listErr
	}

	var items []models.Book
	for i := (q.Page - 1) * q.Limit; i < min(q.Page*q.Limit, total); i++ {
		items = append(items, models.Book{ID: fmt.Sprintf("b%d", i), Title: fmt.Sprintf("Book %d", i)})
	}
	return models.BooksResponse{
		Items: items,
		Pagination: models.Pagination{
			Page:       q.Page,
			Limit:      q.Limit,
			TotalItems: total,
			TotalPages: (total + q.Limit - 1) / q.Limit,
		},
	}, nil
}

func (f *fakeCatalog) mutate(name string) error {
	f.mu.Lock()
	f.calls = append(f.calls, name)
	during, err := f.during, f.mutateErr
	f.mu.Unlock()

	if during != nil {
		during()
	}
	return err
}

func (f *fakeCatalog) CreateBook(_ context.Context, v models.BookFormValues) error {
	return f.mutate("create " + v.Title)
}

func (f *fakeCatalog) UpdateBook(_ context.Context, id string, v models.BookFormValues) error {
	return f.mutate("update " + id + " " + v.Title)
}

func (f *fakeCatalog) DeleteBook(_ context.Context, id string) error {
	return f.mutate("delete " + id)
}

func (f *fakeCatalog) CheckoutBook(_ context.Context, id string, v models.CheckoutFormValues) error {
	return f.mutate("checkout " + id + " " + v.BorrowedBy)
}

func (f *fakeCatalog) CheckinBook(_ context.Context, id string) error {
	return f.mutate("checkin " + id)
}

func (f *fakeCatalog) listCalls() []models.BooksQuery {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.BooksQuery(nil), f.queries...)
}

func (f *fakeCatalog) mutations() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func newController(t *testing.T, catalog *fakeCatalog) *Controller {
	t.Helper()

	c := NewController(catalog, Options{
		Debounce: 40 * time.Millisecond,
		Schema: forms.NewSchema(func() time.Time {
			return time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
		}),
	})
	t.Cleanup(c.Close)
	return c
}

var (
	always = ConfirmFunc(func(context.Context, string) bool { return true })
	never  = ConfirmFunc(func(context.Context, string) bool { return false })
)

func TestLoadComputesTotals(t *testing.T) {
	catalog := &fakeCatalog{total: 25}
	c := newController(t, catalog)
	ctx := context.Background()

	c.Load(ctx)
	st := c.State()
	assert.Equal(t, 3, st.TotalPages)
	assert.Equal(t, 25, st.TotalItems)
	assert.Len(t, st.Books, 10)
	assert.True(t, st.CanNext())

	st = c.NextPage(ctx)
	assert.Equal(t, 1, st.PageIndex)
	assert.True(t, st.CanNext())

	st = c.NextPage(ctx)
	assert.Equal(t, 2, st.PageIndex)
	assert.False(t, st.CanNext())
	assert.Len(t, st.Books, 5)

	c.NextPage(ctx)
	assert.Len(t, catalog.listCalls(), 3, "next on the last page must not fetch")
}

func TestEmptyCatalogHasOnePage(t *testing.T) {
	c := newController(t, &fakeCatalog{})
	c.Load(context.Background())

	st := c.State()
	assert.Equal(t, 1, st.TotalPages)
	assert.False(t, st.CanNext())
	assert.False(t, st.CanPrevious())
}

func TestSearchIsDebounced(t *testing.T) {
	catalog := &fakeCatalog{total: 3}
	c := newController(t, catalog)

	for _, text := range []string{"d", "du", "dun", " dune "} {
		c.SetSearchInput(text)
		time.Sleep(5 * time.Millisecond)
	}

	st := c.State()
	assert.Equal(t, " dune ", st.SearchInput)
	assert.Empty(t, st.Search)
	assert.Empty(t, catalog.listCalls())
	assert.False(t, c.Idle())

	require.NoError(t, c.WaitIdle(context.Background()))

	calls := catalog.listCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "dune", calls[0].Search)
	assert.Equal(t, "dune", c.State().Search)
}

func TestSearchCommitResetsPage(t *testing.T) {
	catalog := &fakeCatalog{total: 40}
	c := newController(t, catalog)
	ctx := context.Background()

	c.Load(ctx)
	c.SetPage(ctx, 2)
	require.Equal(t, 2, c.State().PageIndex)

	c.SetSearchInput("herbert")
	require.NoError(t, c.WaitIdle(ctx))

	calls := catalog.listCalls()
	require.Len(t, calls, 3)
	assert.Equal(t, models.BooksQuery{Page: 1, Limit: 10, Search: "herbert"}, calls[2])
	assert.Equal(t, 0, c.State().PageIndex)
}

func TestUnchangedSearchDoesNotFetch(t *testing.T) {
	catalog := &fakeCatalog{total: 40}
	c := newController(t, catalog)
	ctx := context.Background()

	c.Load(ctx)
	c.SetPage(ctx, 1)
	c.SetSearchInput("   ")
	require.NoError(t, c.WaitIdle(ctx))

	assert.Len(t, catalog.listCalls(), 2)
	assert.Equal(t, 1, c.State().PageIndex)
}

func TestStatusFilterResetsPageOnce(t *testing.T) {
	catalog := &fakeCatalog{total: 40}
	c := newController(t, catalog)
	ctx := context.Background()

	c.Load(ctx)
	c.SetPage(ctx, 3)

	st := c.SetStatusFilter(ctx, models.StatusBorrowed)
	assert.Equal(t, 0, st.PageIndex)

	calls := catalog.listCalls()
	require.Len(t, calls, 3)
	assert.Equal(t, models.BooksQuery{Page: 1, Limit: 10, Status: "borrowed"}, calls[2])

	c.SetStatusFilter(ctx, models.StatusBorrowed)
	assert.Len(t, catalog.listCalls(), 3)

	c.SetStatusFilter(ctx, models.StatusAll)
	calls = catalog.listCalls()
	require.Len(t, calls, 4)
	assert.Equal(t, models.BooksQuery{Page: 1, Limit: 10}, calls[3])
}

func TestPageSizeChange(t *testing.T) {
	catalog := &fakeCatalog{total: 40}
	c := newController(t, catalog)
	ctx := context.Background()

	c.Load(ctx)
	c.SetPage(ctx, 2)

	st, err := c.SetPageSize(ctx, 20)
	require.NoError(t, err)
	assert.Equal(t, 0, st.PageIndex)
	assert.Equal(t, 2, st.TotalPages)

	calls := catalog.listCalls()
	assert.Equal(t, models.BooksQuery{Page: 1, Limit: 20}, calls[len(calls)-1])

	_, err = c.SetPageSize(ctx, 7)
	assert.ErrorIs(t, err, ErrBadPageSize)
	assert.Len(t, catalog.listCalls(), len(calls))
}

func TestDeleteDeclined(t *testing.T) {
	catalog := &fakeCatalog{total: 3}
	c := newController(t, catalog)
	c.Load(context.Background())
	before := c.State()

	err := c.Delete(context.Background(), "b1", never)
	assert.ErrorIs(t, err, ErrDeleteDeclined)
	assert.Empty(t, catalog.mutations())
	assert.Len(t, catalog.listCalls(), 1)
	assert.Equal(t, before, c.State())
}

func TestDeleteMarksRowBusyAndRefreshes(t *testing.T) {
	catalog := &fakeCatalog{total: 3}
	c := newController(t, catalog)
	c.Load(context.Background())

	var busyDuringCall string
	catalog.during = func() { busyDuringCall = c.State().ActionID }

	require.NoError(t, c.Delete(context.Background(), "b1", always))

	assert.Equal(t, "b1", busyDuringCall)
	assert.Equal(t, []string{"delete b1"}, catalog.mutations())
	assert.Len(t, catalog.listCalls(), 2)
	assert.Empty(t, c.State().ActionID)
	assert.True(t, c.Idle())
}

func TestDeleteFailureShowsBanner(t *testing.T) {
	catalog := &fakeCatalog{total: 3, mutateErr: &service.APIError{StatusCode: 409, Message: "Book is checked out", HasMessage: true}}
	c := newController(t, catalog)
	c.Load(context.Background())

	err := c.Delete(context.Background(), "b1", always)
	require.Error(t, err)

	st := c.State()
	assert.Equal(t, "Book is checked out", st.Error)
	assert.Empty(t, st.ActionID)
	assert.Len(t, catalog.listCalls(), 1)
}

func TestCheckInFailureUsesFallbackMessage(t *testing.T) {
	catalog := &fakeCatalog{total: 3, mutateErr: errors.New("connection reset")}
	c := newController(t, catalog)
	c.Load(context.Background())

	require.Error(t, c.CheckIn(context.Background(), "b2"))
	assert.Equal(t, service.FallbackErrorMessage, c.State().Error)
	assert.Equal(t, []string{"checkin b2"}, catalog.mutations())
}

func TestBannerIsReplacedByNextFailure(t *testing.T) {
	catalog := &fakeCatalog{listErr: &service.APIError{StatusCode: 500, Message: "database down", HasMessage: true}}
	c := newController(t, catalog)
	ctx := context.Background()

	c.Load(ctx)
	assert.Equal(t, "database down", c.State().Error)
	assert.False(t, c.State().Loading)

	catalog.mu.Lock()
	catalog.listErr = nil
	catalog.mutateErr = &service.APIError{StatusCode: 404, Message: "Book not found", HasMessage: true}
	catalog.mu.Unlock()

	require.Error(t, c.CheckIn(ctx, "b9"))
	assert.Equal(t, "Book not found", c.State().Error)
}

func TestCreateValidationBlocksRequest(t *testing.T) {
	catalog := &fakeCatalog{}
	c := newController(t, catalog)

	st := c.OpenCreate()
	assert.Equal(t, ModeCreate, st.BookMode)
	assert.Equal(t, "2026", st.BookForm.Input.PublishedYear)

	err := c.SubmitBook(context.Background())
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "Title is required", verr.Errors[forms.FieldTitle])

	st = c.State()
	assert.Empty(t, catalog.mutations())
	assert.True(t, st.BookForm.IsTouched(forms.FieldGenre))
	assert.Equal(t, "Genre is required", st.BookForm.VisibleErrors()[forms.FieldGenre])
	assert.False(t, st.BookForm.Submitting)
}

func fillBook(c *Controller, title string) {
	c.SetBookField(forms.FieldTitle, title)
	c.SetBookField(forms.FieldAuthor, "Frank Herbert")
	c.SetBookField(forms.FieldISBN, "9780441013593")
	c.SetBookField(forms.FieldPublishedYear, "1965")
	c.SetBookField(forms.FieldGenre, "SF")
	c.SetBookField(forms.FieldDescription, "Spice")
}

func TestCreateFailureKeepsModalOpen(t *testing.T) {
	catalog := &fakeCatalog{mutateErr: &service.APIError{StatusCode: 400, Message: "ISBN already exists", HasMessage: true}}
	c := newController(t, catalog)

	c.OpenCreate()
	fillBook(c, "Dune")

	var submittingDuringCall bool
	catalog.during = func() { submittingDuringCall = c.State().BookForm.Submitting }

	require.Error(t, c.SubmitBook(context.Background()))

	st := c.State()
	assert.True(t, submittingDuringCall)
	assert.Equal(t, ModeCreate, st.BookMode)
	assert.Equal(t, "ISBN already exists", st.BookForm.Status)
	assert.False(t, st.BookForm.Submitting)
	assert.Empty(t, catalog.listCalls())
}

func TestSecondSubmitWhileSubmittingIsRejected(t *testing.T) {
	catalog := &fakeCatalog{total: 1}
	c := newController(t, catalog)

	c.OpenCreate()
	fillBook(c, "Dune")

	var nested error
	var during State
	catalog.during = func() {
		if nested == nil {
			nested = c.SubmitBook(context.Background())
			during = c.State()
		}
	}
	require.NoError(t, c.SubmitBook(context.Background()))

	assert.ErrorIs(t, nested, ErrSubmitting)
	assert.True(t, during.BookForm.Submitting)
	assert.Equal(t, []string{"create Dune"}, catalog.mutations())
}

func TestCreateSuccessClosesModalAndRefreshesOnce(t *testing.T) {
	catalog := &fakeCatalog{total: 1}
	c := newController(t, catalog)

	c.OpenCreate()
	fillBook(c, "Dune")
	require.NoError(t, c.SubmitBook(context.Background()))

	st := c.State()
	assert.Equal(t, ModeClosed, st.BookMode)
	assert.Nil(t, st.Selected)
	assert.Equal(t, []string{"create Dune"}, catalog.mutations())
	assert.Len(t, catalog.listCalls(), 1)
}

func TestEditSubmitsUpdate(t *testing.T) {
	catalog := &fakeCatalog{total: 3}
	c := newController(t, catalog)
	c.Load(context.Background())

	_, err := c.OpenEdit("missing")
	assert.ErrorIs(t, err, ErrBookNotFound)

	st, err := c.OpenEdit("b2")
	require.NoError(t, err)
	assert.Equal(t, ModeEdit, st.BookMode)
	assert.Equal(t, "Book 2", st.BookForm.Input.Title)

	fillBook(c, "Book two")
	require.NoError(t, c.SubmitBook(context.Background()))
	assert.Equal(t, []string{"update b2 Book two"}, catalog.mutations())
}

func TestCancelDiscardsForm(t *testing.T) {
	c := newController(t, &fakeCatalog{})

	c.OpenCreate()
	c.SetBookField(forms.FieldTitle, "draft")
	st := c.Cancel(BookEditor)
	assert.Equal(t, ModeClosed, st.BookMode)

	st = c.OpenCreate()
	assert.Empty(t, st.BookForm.Input.Title)
}

func TestCheckoutFlow(t *testing.T) {
	catalog := &fakeCatalog{total: 3}
	c := newController(t, catalog)
	ctx := context.Background()
	c.Load(ctx)

	_, err := c.OpenCheckout("b0")
	require.NoError(t, err)

	var verr *ValidationError
	require.ErrorAs(t, c.SubmitCheckout(ctx), &verr)
	assert.Equal(t, "Borrower name is required", c.State().CheckoutForm.VisibleErrors()[forms.FieldBorrowedBy])

	c.SetBorrower("Alice")
	catalog.mutateErr = &service.APIError{StatusCode: 409, Message: "Already borrowed", HasMessage: true}
	require.Error(t, c.SubmitCheckout(ctx))
	st := c.State()
	assert.NotNil(t, st.CheckoutBook)
	assert.Equal(t, "Already borrowed", st.CheckoutForm.Status)
	assert.False(t, st.CheckoutForm.Submitting)
	assert.Empty(t, st.Error, "form errors stay out of the banner")

	catalog.mutateErr = nil
	require.NoError(t, c.SubmitCheckout(ctx))
	assert.Nil(t, c.State().CheckoutBook)
	assert.Equal(t, []string{"checkout b0 Alice", "checkout b0 Alice"}, catalog.mutations())
	assert.Len(t, catalog.listCalls(), 2)
}

func TestCheckoutWithoutTarget(t *testing.T) {
	catalog := &fakeCatalog{}
	c := newController(t, catalog)

	assert.ErrorIs(t, c.SubmitCheckout(context.Background()), ErrFormClosed)
	assert.False(t, c.State().CheckoutForm.Submitting)
	assert.Empty(t, catalog.mutations())
}

func TestStaleListResponseIsDropped(t *testing.T) {
	release := make(chan struct{})
	catalog := &fakeCatalog{}
	catalog.list = func(q models.BooksQuery) (models.BooksResponse, error) {
		if q.Page == 1 {
			<-release
			return models.BooksResponse{
				Items:      []models.Book{{ID: "stale"}},
				Pagination: models.Pagination{Page: 1, Limit: 10, TotalItems: 30, TotalPages: 3},
			}, nil
		}
		return models.BooksResponse{
			Items:      []models.Book{{ID: "fresh"}},
			Pagination: models.Pagination{Page: q.Page, Limit: 10, TotalItems: 30, TotalPages: 3},
		}, nil
	}

	c := newController(t, catalog)
	c.dispatch(FetchSucceeded{Seq: 0, Response: models.BooksResponse{Pagination: models.Pagination{TotalPages: 3}}})

	done := make(chan struct{})
	go func() {
		c.Load(context.Background())
		close(done)
	}()
	require.Eventually(t, func() bool { return len(catalog.listCalls()) == 1 }, time.Second, 5*time.Millisecond)

	c.SetPage(context.Background(), 1)
	assert.Equal(t, "fresh", c.State().Books[0].ID)

	close(release)
	<-done

	st := c.State()
	assert.Equal(t, "fresh", st.Books[0].ID)
	assert.False(t, st.Loading)
}

func TestSubscribersSeeEveryTransition(t *testing.T) {
	c := newController(t, &fakeCatalog{total: 1})

	var loading []bool
	unsubscribe := c.Subscribe(func(s State) { loading = append(loading, s.Loading) })
	c.Load(context.Background())
	unsubscribe()
	c.Load(context.Background())

	assert.Equal(t, []bool{true, false}, loading)
}
