package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestIsBookCheckedOut(t *testing.T) {
	cases := []struct {
		name string
		book Book
		want bool
	}{
		{"borrowed status", Book{Status: "Borrowed"}, true},
		{"available status", Book{Status: "available"}, false},
		{"available status mixed case", Book{Status: "AVAILABLE", BorrowedBy: strPtr("Alice")}, false},
		{"status wins over missing borrower", Book{Status: "lost"}, true},
		{"borrower without status", Book{BorrowedBy: strPtr("Alice")}, true},
		{"empty borrower", Book{BorrowedBy: strPtr("")}, false},
		{"nothing set", Book{}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsBookCheckedOut(tc.book))
		})
	}
}

func TestParseStatusFilter(t *testing.T) {
	f, err := ParseStatusFilter("")
	require.NoError(t, err)
	assert.Equal(t, StatusAll, f)

	f, err = ParseStatusFilter("borrowed")
	require.NoError(t, err)
	assert.Equal(t, StatusBorrowed, f)

	_, err = ParseStatusFilter("lost")
	assert.Error(t, err)
}

func TestIsPageSize(t *testing.T) {
	assert.True(t, IsPageSize(DefaultPageSize))
	assert.True(t, IsPageSize(50))
	assert.False(t, IsPageSize(0))
	assert.False(t, IsPageSize(25))
}

func TestBookString(t *testing.T) {
	b := Book{Title: "Dune", Author: "Frank Herbert", PublishedYear: 1965}
	assert.Equal(t, "Dune · Frank Herbert (1965)", b.String())
}
