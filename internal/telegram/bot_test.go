package telegram

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"library_desk/internal/catalogtest"
	"library_desk/internal/forms"
	"library_desk/internal/home"
	"library_desk/internal/service"
)

const chatID int64 = 42

type sent struct {
	text      string
	messageID int
	edit      bool
	markup    *tgbotapi.InlineKeyboardMarkup
}

type fakeSender struct {
	mu       sync.Mutex
	nextID   int
	messages []sent
	requests []tgbotapi.Chattable
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch m := c.(type) {
	case tgbotapi.MessageConfig:
		f.nextID++
		entry := sent{text: m.Text, messageID: f.nextID}
		if kb, ok := m.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup); ok {
			entry.markup = &kb
		}
		f.messages = append(f.messages, entry)
		return tgbotapi.Message{MessageID: f.nextID}, nil
	case tgbotapi.EditMessageTextConfig:
		f.messages = append(f.messages, sent{text: m.Text, messageID: m.MessageID, edit: true, markup: m.ReplyMarkup})
		return tgbotapi.Message{MessageID: m.MessageID}, nil
	}
	return tgbotapi.Message{}, nil
}

func (f *fakeSender) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeSender) all() []sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sent(nil), f.messages...)
}

func (f *fakeSender) last() sent {
	msgs := f.all()
	if len(msgs) == 0 {
		return sent{}
	}
	return msgs[len(msgs)-1]
}

type harness struct {
	t       *testing.T
	bot     *Bot
	api     *fakeSender
	backend *catalogtest.Server
}

func newHarness(t *testing.T, seed int) *harness {
	t.Helper()

	backend := catalogtest.NewServer()
	backend.Seed(seed)
	t.Cleanup(backend.Close)

	api := &fakeSender{}
	catalog := service.NewCatalogClient(backend.Client(), backend.URL)
	bot := newBot(api, catalog, nil, home.Options{
		Debounce: 20 * time.Millisecond,
		Schema: forms.NewSchema(func() time.Time {
			return time.Date(2026, time.June, 1, 0, 0, 0, 0, time.UTC)
		}),
	}, zerolog.Nop())
	t.Cleanup(bot.Close)

	return &harness{t: t, bot: bot, api: api, backend: backend}
}

func (h *harness) text(text string) {
	msg := &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: chatID}, Text: text}
	if strings.HasPrefix(text, "/") {
		msg.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(strings.Fields(text)[0])}}
	}
	h.bot.handleUpdate(context.Background(), tgbotapi.Update{Message: msg})
}

func (h *harness) press(data string, messageID int) {
	h.bot.handleUpdate(context.Background(), tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb",
		Data:    data,
		Message: &tgbotapi.Message{MessageID: messageID, Chat: &tgbotapi.Chat{ID: chatID}},
	}})
}

// listMessage is the latest rendering of the list message.
func (h *harness) listMessage() sent {
	var out sent
	for _, m := range h.api.all() {
		if strings.HasPrefix(m.text, "📚") {
			out = m
		}
	}
	return out
}

func TestStartSendsList(t *testing.T) {
	h := newHarness(t, 3)
	h.text("/start")

	list := h.listMessage()
	assert.False(t, list.edit)
	assert.Contains(t, list.text, "1. Book b1")
	assert.Contains(t, list.text, "Page 1 of 1 (3 total books)")
	require.NotNil(t, list.markup)
	assert.Equal(t, []string{"edit:b1", "del:b1", "out:b1"}, callbackData(list.markup.InlineKeyboard[0]))
}

func TestPagingEditsListInPlace(t *testing.T) {
	h := newHarness(t, 12)
	h.text("/start")
	first := h.listMessage()

	h.press("page:1", first.messageID)
	list := h.listMessage()
	assert.True(t, list.edit)
	assert.Equal(t, first.messageID, list.messageID)
	assert.Contains(t, list.text, "1. Book b11")
	assert.Contains(t, list.text, "Page 2 of 2 (12 total books)")

	// nothing changed, nothing sent
	count := len(h.api.all())
	h.press("noop", first.messageID)
	assert.Len(t, h.api.all(), count)
}

func TestTextSearchesAfterDebounce(t *testing.T) {
	h := newHarness(t, 12)
	h.text("/start")
	h.text("b7")

	assert.Eventually(t, func() bool {
		return strings.Contains(h.listMessage().text, `Search: "b7"`)
	}, time.Second, 10*time.Millisecond)
	assert.Contains(t, h.listMessage().text, "Page 1 of 1 (1 total books)")
	assert.Contains(t, h.backend.Requests(), "GET /api/books?limit=10&page=1&search=b7")
}

func TestStatusAndPageSizeButtons(t *testing.T) {
	h := newHarness(t, 12)
	h.text("/start")
	id := h.listMessage().messageID

	h.press("size:5", id)
	assert.Contains(t, h.listMessage().text, "Page 1 of 3 (12 total books)")

	h.press("status:borrowed", id)
	assert.Contains(t, h.listMessage().text, "No books found.")
	assert.Contains(t, h.backend.Requests(), "GET /api/books?limit=5&page=1&status=borrowed")
}

func TestDeleteAsksFirst(t *testing.T) {
	h := newHarness(t, 2)
	h.text("/start")
	id := h.listMessage().messageID

	h.press("del:b1", id)
	prompt := h.api.last()
	assert.Equal(t, home.DeletePrompt, prompt.text)
	require.NotNil(t, prompt.markup)
	assert.Equal(t, []string{"delyes:b1", "delno:b1"}, callbackData(prompt.markup.InlineKeyboard[0]))
	assert.Len(t, h.backend.Books(), 2)

	h.press("delno:b1", prompt.messageID)
	assert.Len(t, h.backend.Books(), 2)

	h.press("delyes:b1", prompt.messageID)
	assert.Len(t, h.backend.Books(), 1)
	assert.NotContains(t, h.listMessage().text, "Book b1 ")
	assert.Contains(t, h.listMessage().text, "(1 total books)")
}

func TestCheckInFailureShowsBanner(t *testing.T) {
	h := newHarness(t, 1)
	h.text("/start")

	h.backend.FailNext("PATCH /api/books/b1/checkin", http.StatusNotFound, `{"message":"Book not found"}`)
	h.press("in:b1", h.listMessage().messageID)
	assert.Contains(t, h.listMessage().text, "⚠️ Book not found")
}

func TestCreateConversation(t *testing.T) {
	h := newHarness(t, 0)
	h.text("/start")

	h.press("create", h.listMessage().messageID)
	assert.Contains(t, h.api.last().text, "Create Book")
	assert.Contains(t, h.api.last().text, "Published Year: 2026")

	h.text("Title: Dune")
	reply := h.api.last().text
	assert.Contains(t, reply, "Author is required")
	assert.NotContains(t, reply, "Title is required")
	assert.Empty(t, h.backend.Books())

	h.text("Author: Frank Herbert\nISBN: 1\nGenre: SF\nDescription: Desert planet.")
	require.Len(t, h.backend.Books(), 1)
	assert.Equal(t, "Dune", h.backend.Books()[0].Title)
	assert.Contains(t, h.listMessage().text, "1. Dune")

	// the form is closed, text searches again
	h.text("dune")
	assert.Eventually(t, func() bool {
		return strings.Contains(h.listMessage().text, `Search: "dune"`)
	}, time.Second, 10*time.Millisecond)
}

func TestCreateRejectsUnknownField(t *testing.T) {
	h := newHarness(t, 0)
	h.text("/start")
	h.press("create", h.listMessage().messageID)

	h.text("Publisher: Ace")
	assert.Contains(t, h.api.last().text, `unknown field "Publisher"`)

	h.text("/cancel")
	assert.Equal(t, home.ModeClosed, h.bot.sessions[chatID].controller.State().BookMode)
}

func TestCheckoutConversation(t *testing.T) {
	h := newHarness(t, 1)
	h.text("/start")

	h.press("out:b1", h.listMessage().messageID)
	assert.Contains(t, h.api.last().text, `Who is borrowing "Book b1"?`)

	h.text("   ")
	assert.Contains(t, h.api.last().text, "Borrower name is required")

	h.text("Alice")
	assert.Equal(t, "Alice", h.backend.Books()[0].Borrower())
	assert.Contains(t, h.listMessage().text, "Checked Out (Alice)")
}

func TestEditMissingBook(t *testing.T) {
	h := newHarness(t, 1)
	h.text("/start")
	h.press("edit:nope", h.listMessage().messageID)
	assert.Equal(t, "That book is no longer on this page.", h.api.last().text)
}

func TestLargePageUsesSelectGrid(t *testing.T) {
	h := newHarness(t, 25)
	h.text("/start")
	id := h.listMessage().messageID

	h.press("size:20", id)
	list := h.listMessage()
	require.NotNil(t, list.markup)
	assert.Equal(t, []string{"sel:b1", "sel:b2", "sel:b3", "sel:b4", "sel:b5"}, callbackData(list.markup.InlineKeyboard[0]))

	h.press("sel:b3", id)
	card := h.api.last()
	assert.Equal(t, "Book b3 · Author b3 (2000) · Available", card.text)
	require.NotNil(t, card.markup)
	assert.Equal(t, []string{"edit:b3", "del:b3", "out:b3"}, callbackData(card.markup.InlineKeyboard[0]))

	h.press("out:b3", card.messageID)
	assert.Contains(t, h.api.last().text, `Who is borrowing "Book b3"?`)

	h.press("sel:nope", id)
	assert.Equal(t, "That book is no longer on this page.", h.api.last().text)
}
