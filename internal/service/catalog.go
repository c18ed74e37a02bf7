package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"library_desk/internal/models"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// FallbackErrorMessage is shown when a failure carries no server message.
const FallbackErrorMessage = "Something went wrong. Please try again."

// maxErrorBody caps how much of an error response is read.
const maxErrorBody = 64 << 10

// APIError is a non-2xx answer from the catalog backend. Message is the
// "message" field of the body; HasMessage is set only when that field was a
// string, which may be empty.
type APIError struct {
	StatusCode int
	Message    string
	HasMessage bool
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("catalog returned %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("catalog returned %d", e.StatusCode)
}

// ErrorMessage turns any request failure into text for the user.
func ErrorMessage(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.HasMessage {
		return apiErr.Message
	}
	return FallbackErrorMessage
}

// CatalogClient talks to the books REST API.
type CatalogClient struct {
	httpClient *http.Client
	baseURL    string
}

func NewCatalogClient(client *http.Client, baseURL string) *CatalogClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &CatalogClient{
		httpClient: client,
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

// ListBooks fetches one page of books.
func (c *CatalogClient) ListBooks(ctx context.Context, q models.BooksQuery) (models.BooksResponse, error) {
	params := url.Values{}
	params.Set("page", strconv.Itoa(q.Page))
	params.Set("limit", strconv.Itoa(q.Limit))
	if q.Search != "" {
		params.Set("search", q.Search)
	}
	if q.Status != "" {
		params.Set("status", q.Status)
	}

	var resp models.BooksResponse
	if err := c.do(ctx, http.MethodGet, "/api/books", params, nil, &resp); err != nil {
		return models.BooksResponse{}, fmt.Errorf("list books: %w", err)
	}
	return resp, nil
}

func (c *CatalogClient) CreateBook(ctx context.Context, values models.BookFormValues) error {
	if err := c.do(ctx, http.MethodPost, "/api/books", nil, values, nil); err != nil {
		return fmt.Errorf("create book: %w", err)
	}
	return nil
}

func (c *CatalogClient) UpdateBook(ctx context.Context, bookID string, values models.BookFormValues) error {
	if err := c.do(ctx, http.MethodPut, bookPath(bookID), nil, values, nil); err != nil {
		return fmt.Errorf("update book %s: %w", bookID, err)
	}
	return nil
}

func (c *CatalogClient) DeleteBook(ctx context.Context, bookID string) error {
	if err := c.do(ctx, http.MethodDelete, bookPath(bookID), nil, nil, nil); err != nil {
		return fmt.Errorf("delete book %s: %w", bookID, err)
	}
	return nil
}

func (c *CatalogClient) CheckoutBook(ctx context.Context, bookID string, values models.CheckoutFormValues) error {
	if err := c.do(ctx, http.MethodPatch, bookPath(bookID)+"/checkout", nil, values, nil); err != nil {
		return fmt.Errorf("checkout book %s: %w", bookID, err)
	}
	return nil
}

// CheckinBook sends an empty JSON object, the backend rejects a missing body.
func (c *CatalogClient) CheckinBook(ctx context.Context, bookID string) error {
	if err := c.do(ctx, http.MethodPatch, bookPath(bookID)+"/checkin", nil, struct{}{}, nil); err != nil {
		return fmt.Errorf("checkin book %s: %w", bookID, err)
	}
	return nil
}

func bookPath(bookID string) string {
	return "/api/books/" + url.PathEscape(bookID)
}

func (c *CatalogClient) do(ctx context.Context, method, path string, params url.Values, body any, out any) error {
	target := c.baseURL + path
	if len(params) > 0 {
		target += "?" + params.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("network: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil || len(raw) == 0 {
		return apiErr
	}

	var payload struct {
		Message any `json:"message"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return apiErr
	}
	if msg, ok := payload.Message.(string); ok {
		apiErr.Message = msg
		apiErr.HasMessage = true
	}
	return apiErr
}
