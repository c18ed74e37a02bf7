// Package catalogtest runs an in-memory catalog REST backend for tests.
package catalogtest

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"

	"library_desk/internal/models"
)

// Server is a fake backend speaking the catalog API.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	books    []models.Book
	nextID   int
	requests []string
	fail     map[string]failure
}

type failure struct {
	status int
	body   string
}

func NewServer(books ...models.Book) *Server {
	s := &Server{
		books:  append([]models.Book(nil), books...),
		nextID: len(books) + 1,
		fail:   make(map[string]failure),
	}
	s.Server = httptest.NewServer(s.router())
	return s
}

// Seed adds n generated books.
func (s *Server) Seed(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := 0; i < n; i++ {
		id := s.newID()
		s.books = append(s.books, models.Book{
			ID:            id,
			Title:         "Book " + id,
			Author:        "Author " + id,
			ISBN:          "isbn-" + id,
			PublishedYear: 2000,
			Genre:         "Fiction",
			Description:   "About " + id,
			Status:        "available",
		})
	}
}

// FailNext makes the next request matching "METHOD /path" answer with
// status and a raw body.
func (s *Server) FailNext(route string, status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail[route] = failure{status: status, body: body}
}

// Requests lists the handled requests as "METHOD /path?query".
func (s *Server) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requests...)
}

func (s *Server) Books() []models.Book {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Book(nil), s.books...)
}

func (s *Server) newID() string {
	id := "b" + strconv.Itoa(s.nextID)
	s.nextID++
	return id
}

func (s *Server) router() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(s.record)

	api := r.Group("/api/books")
	{
		api.GET("", s.list)
		api.POST("", s.create)
		api.PUT("/:id", s.update)
		api.DELETE("/:id", s.remove)
		api.PATCH("/:id/checkout", s.checkout)
		api.PATCH("/:id/checkin", s.checkin)
	}
	return r
}

func (s *Server) record(c *gin.Context) {
	entry := c.Request.Method + " " + c.Request.URL.Path
	if c.Request.URL.RawQuery != "" {
		entry += "?" + c.Request.URL.RawQuery
	}
	route := c.Request.Method + " " + c.Request.URL.Path

	s.mu.Lock()
	s.requests = append(s.requests, entry)
	f, failing := s.fail[route]
	delete(s.fail, route)
	s.mu.Unlock()

	if failing {
		c.Data(f.status, "application/json", []byte(f.body))
		c.Abort()
		return
	}
	c.Next()
}

func matches(b models.Book, term string) bool {
	if term == "" {
		return true
	}
	term = strings.ToLower(term)
	for _, v := range []string{b.Title, b.Author, b.ISBN, b.Genre, b.Description, b.Borrower()} {
		if strings.Contains(strings.ToLower(v), term) {
			return true
		}
	}
	return false
}

func (s *Server) list(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
	page, limit = max(page, 1), max(limit, 1)
	search := c.Query("search")
	status := c.Query("status")

	s.mu.Lock()
	var found []models.Book
	for _, b := range s.books {
		if !matches(b, search) {
			continue
		}
		out := models.IsBookCheckedOut(b)
		if (status == "available" && out) || (status == "borrowed" && !out) {
			continue
		}
		found = append(found, b)
	}
	s.mu.Unlock()

	start := min((page-1)*limit, len(found))
	end := min(start+limit, len(found))
	items := found[start:end]
	if items == nil {
		items = []models.Book{}
	}

	c.JSON(http.StatusOK, models.BooksResponse{
		Items: items,
		Pagination: models.Pagination{
			Page:       page,
			Limit:      limit,
			TotalItems: len(found),
			TotalPages: (len(found) + limit - 1) / limit,
		},
	})
}

func (s *Server) create(c *gin.Context) {
	var v models.BookFormValues
	if err := c.ShouldBindJSON(&v); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	b := models.Book{
		ID:            s.newID(),
		Title:         v.Title,
		Author:        v.Author,
		ISBN:          v.ISBN,
		PublishedYear: v.PublishedYear,
		Genre:         v.Genre,
		Description:   v.Description,
		Status:        "available",
	}
	s.books = append(s.books, b)
	c.JSON(http.StatusCreated, b)
}

// withBook runs fn on the book named by the :id param under the lock.
func (s *Server) withBook(c *gin.Context, fn func(i int)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.books {
		if s.books[i].ID == c.Param("id") {
			fn(i)
			return
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"message": "Book not found"})
}

func (s *Server) update(c *gin.Context) {
	var v models.BookFormValues
	if err := c.ShouldBindJSON(&v); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	s.withBook(c, func(i int) {
		b := &s.books[i]
		b.Title, b.Author, b.ISBN = v.Title, v.Author, v.ISBN
		b.PublishedYear, b.Genre, b.Description = v.PublishedYear, v.Genre, v.Description
		c.JSON(http.StatusOK, b)
	})
}

func (s *Server) remove(c *gin.Context) {
	s.withBook(c, func(i int) {
		s.books = append(s.books[:i], s.books[i+1:]...)
		c.Status(http.StatusNoContent)
	})
}

func (s *Server) checkout(c *gin.Context) {
	var v models.CheckoutFormValues
	if err := c.ShouldBindJSON(&v); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	s.withBook(c, func(i int) {
		b := &s.books[i]
		if models.IsBookCheckedOut(*b) {
			c.JSON(http.StatusConflict, gin.H{"message": fmt.Sprintf("%s is already checked out", b.Title)})
			return
		}
		name := v.BorrowedBy
		b.BorrowedBy = &name
		b.Status = "borrowed"
		c.JSON(http.StatusOK, b)
	})
}

func (s *Server) checkin(c *gin.Context) {
	s.withBook(c, func(i int) {
		b := &s.books[i]
		b.BorrowedBy = nil
		b.Status = "available"
		c.JSON(http.StatusOK, b)
	})
}
