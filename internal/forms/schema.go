package forms

import (
	"errors"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"library_desk/internal/models"
)

// Errors maps a field name to its first validation message.
type Errors map[string]string

type bookSchema struct {
	Title         string `form:"title" validate:"required"`
	Author        string `form:"author" validate:"required"`
	ISBN          string `form:"isbn" validate:"required"`
	PublishedYear int    `form:"publishedYear" validate:"gte=0,notfuture"`
	Genre         string `form:"genre" validate:"required"`
	Description   string `form:"description" validate:"required"`
}

type checkoutSchema struct {
	BorrowedBy string `form:"borrowedBy" validate:"required"`
}

var messages = map[string]map[string]string{
	FieldTitle:         {"required": "Title is required"},
	FieldAuthor:        {"required": "Author is required"},
	FieldISBN:          {"required": "ISBN is required"},
	FieldGenre:         {"required": "Genre is required"},
	FieldDescription:   {"required": "Description is required"},
	FieldPublishedYear: {"gte": "Published year cannot be negative", "notfuture": "Published year cannot be in the future"},
	FieldBorrowedBy:    {"required": "Borrower name is required"},
}

// Schema validates book and checkout input. The clock decides which
// published years count as "in the future".
type Schema struct {
	validate *validator.Validate
	now      func() time.Time
}

func NewSchema(now func() time.Time) *Schema {
	if now == nil {
		now = time.Now
	}
	s := &Schema{
		validate: validator.New(validator.WithRequiredStructEnabled()),
		now:      now,
	}

	s.validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		return f.Tag.Get("form")
	})
	// Registration only fails for an empty tag or nil func.
	_ = s.validate.RegisterValidation("notfuture", func(fl validator.FieldLevel) bool {
		return fl.Field().Int() <= int64(s.now().Year())
	})
	return s
}

// CurrentYear is the default published year of a new book.
func (s *Schema) CurrentYear() int {
	return s.now().Year()
}

// ValidateBook trims the text fields, parses the year and runs the rules.
// Values are only meaningful when errs is empty.
func (s *Schema) ValidateBook(in BookInput) (models.BookFormValues, Errors) {
	errs := Errors{}

	candidate := bookSchema{
		Title:       strings.TrimSpace(in.Title),
		Author:      strings.TrimSpace(in.Author),
		ISBN:        strings.TrimSpace(in.ISBN),
		Genre:       strings.TrimSpace(in.Genre),
		Description: strings.TrimSpace(in.Description),
	}

	year, yearMsg := parseYear(in.PublishedYear)
	if yearMsg != "" {
		errs[FieldPublishedYear] = yearMsg
	}
	candidate.PublishedYear = year

	s.collect(candidate, errs)

	return models.BookFormValues{
		Title:         candidate.Title,
		Author:        candidate.Author,
		ISBN:          candidate.ISBN,
		PublishedYear: candidate.PublishedYear,
		Genre:         candidate.Genre,
		Description:   candidate.Description,
	}, errs
}

// ValidateCheckout trims and checks the borrower name.
func (s *Schema) ValidateCheckout(in CheckoutInput) (models.CheckoutFormValues, Errors) {
	errs := Errors{}
	candidate := checkoutSchema{BorrowedBy: strings.TrimSpace(in.BorrowedBy)}
	s.collect(candidate, errs)
	return models.CheckoutFormValues{BorrowedBy: candidate.BorrowedBy}, errs
}

// collect keeps an already recorded message for a field, so a parse error
// on the year is not overwritten by a range rule.
func (s *Schema) collect(candidate any, errs Errors) {
	err := s.validate.Struct(candidate)
	if err == nil {
		return
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return
	}
	for _, fe := range verrs {
		field := fe.Field()
		if _, seen := errs[field]; seen {
			continue
		}
		msg, ok := messages[field][fe.Tag()]
		if !ok {
			msg = "Invalid value"
		}
		errs[field] = msg
	}
}

func parseYear(raw string) (int, string) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, "Published year is required"
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, "Published year must be a number"
	}
	if f != math.Trunc(f) {
		return 0, "Published year must be a whole number"
	}
	if f > math.MaxInt32 || f < math.MinInt32 {
		return 0, "Published year must be a number"
	}
	return int(f), ""
}
