package telegram

import (
	"context"
	"errors"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"library_desk/internal/home"
	"library_desk/internal/view"
)

// Sender is the part of the Bot API the chat UI talks to.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

type Bot struct {
	bot     *tgbotapi.BotAPI
	api     Sender
	catalog home.Catalog
	prefs   home.PreferenceStore
	options home.Options
	log     zerolog.Logger

	sessions   map[int64]*chatSession
	sessionsMu sync.Mutex
}

type pendingInput int

const (
	awaitNothing pendingInput = iota
	awaitBookForm
	awaitBorrower
)

// chatSession is the list view of one chat. The list lives in a single
// message that is edited after every change.
type chatSession struct {
	chatID     int64
	controller *home.Controller
	forget     func()

	mu            sync.Mutex
	listMessageID int
	lastText      string
	lastMarkup    tgbotapi.InlineKeyboardMarkup
	pending       pendingInput
}

const idleTimeout = 30 * time.Second

func NewBot(token string, catalog home.Catalog, prefs home.PreferenceStore, opts home.Options, log zerolog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	api.Debug = false
	log.Info().Str("username", api.Self.UserName).Msg("telegram bot authorized")

	b := newBot(api, catalog, prefs, opts, log)
	b.bot = api
	return b, nil
}

func newBot(api Sender, catalog home.Catalog, prefs home.PreferenceStore, opts home.Options, log zerolog.Logger) *Bot {
	return &Bot{
		api:      api,
		catalog:  catalog,
		prefs:    prefs,
		options:  opts,
		log:      log,
		sessions: make(map[int64]*chatSession),
	}
}

// Run reads updates until ctx is done.
func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.bot.GetUpdatesChan(u)
	b.log.Info().Msg("telegram bot started")

	defer b.Close()
	for {
		select {
		case <-ctx.Done():
			b.bot.StopReceivingUpdates()
			b.log.Info().Msg("telegram bot stopped")
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			b.handleUpdate(ctx, update)
		}
	}
}

// Close stops every chat controller.
func (b *Bot) Close() {
	b.sessionsMu.Lock()
	defer b.sessionsMu.Unlock()

	for id, s := range b.sessions {
		s.forget()
		s.controller.Close()
		delete(b.sessions, id)
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	if update.Message != nil {
		b.handleMessage(ctx, update.Message)
	}
	if update.CallbackQuery != nil {
		b.handleCallback(ctx, update.CallbackQuery)
	}
}

func (b *Bot) session(ctx context.Context, chatID int64) *chatSession {
	s, created := b.getOrCreateSession(ctx, chatID)
	if created {
		s.controller.Load(ctx)
	}
	return s
}

func (b *Bot) getOrCreateSession(ctx context.Context, chatID int64) (*chatSession, bool) {
	b.sessionsMu.Lock()
	defer b.sessionsMu.Unlock()

	if s, ok := b.sessions[chatID]; ok {
		return s, false
	}

	owner := "chat:" + strconv.FormatInt(chatID, 10)
	opts := b.options
	opts.Logger = &b.log
	if b.prefs != nil {
		p, err := b.prefs.LoadPreferences(ctx, owner)
		if err != nil {
			b.log.Error().Err(err).Str("owner", owner).Msg("load preferences failed")
		}
		opts.Preferences = p
	}

	s := &chatSession{
		chatID:     chatID,
		controller: home.NewController(b.catalog, opts),
		forget:     func() {},
	}
	if b.prefs != nil {
		s.forget = home.RememberPreferences(s.controller, b.prefs, owner, b.log)
	}
	b.sessions[chatID] = s
	return s, true
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.Chat == nil {
		return
	}
	chatID := msg.Chat.ID
	s := b.session(ctx, chatID)

	if msg.IsCommand() {
		switch msg.Command() {
		case "start":
			b.showList(ctx, s, true)
		case "cancel":
			b.cancelForms(ctx, s)
		case "clear":
			s.controller.SetSearchInput("")
			go b.showListWhenIdle(ctx, s)
		default:
			b.sendMessage(chatID, "Unknown command. Use /start, /clear or /cancel.")
		}
		return
	}

	s.mu.Lock()
	pending := s.pending
	s.mu.Unlock()

	switch pending {
	case awaitBookForm:
		b.submitBookForm(ctx, s, msg.Text)
	case awaitBorrower:
		b.submitBorrower(ctx, s, msg.Text)
	default:
		// plain text is the search box; the controller debounces it
		s.controller.SetSearchInput(msg.Text)
		go b.showListWhenIdle(ctx, s)
	}
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if cb.Message == nil || cb.Message.Chat == nil {
		return
	}
	b.answer(cb.ID, "")

	chatID := cb.Message.Chat.ID
	s := b.session(ctx, chatID)

	data, ok := parseCallback(cb.Data)
	if !ok {
		b.log.Warn().Str("data", cb.Data).Int64("chat_id", chatID).Msg("invalid callback data")
		return
	}

	ctrl := s.controller
	switch data.kind {
	case cbNoop:
		return

	case cbPagePrefix:
		index, err := strconv.Atoi(data.arg)
		if err != nil {
			b.log.Warn().Str("data", cb.Data).Msg("invalid page callback")
			return
		}
		ctrl.SetPage(ctx, index)

	case cbSizePrefix:
		size, err := strconv.Atoi(data.arg)
		if err != nil {
			return
		}
		if _, err := ctrl.SetPageSize(ctx, size); err != nil {
			b.log.Warn().Err(err).Msg("invalid page size callback")
			return
		}

	case cbStatus:
		f, ok := statusFilter(data.arg)
		if !ok {
			return
		}
		ctrl.SetStatusFilter(ctx, f)

	case cbCreate:
		st := ctrl.OpenCreate()
		b.setPending(s, awaitBookForm)
		b.sendMessage(chatID, bookFormPrompt(st))
		return

	case cbEdit:
		st, err := ctrl.OpenEdit(data.arg)
		if err != nil {
			b.sendMessage(chatID, "That book is no longer on this page.")
			return
		}
		b.setPending(s, awaitBookForm)
		b.sendMessage(chatID, bookFormPrompt(st))
		return

	case cbCheckOut:
		st, err := ctrl.OpenCheckout(data.arg)
		if err != nil {
			b.sendMessage(chatID, "That book is no longer on this page.")
			return
		}
		b.setPending(s, awaitBorrower)
		b.sendMessage(chatID, checkoutPrompt(st))
		return

	case cbSelect:
		row, ok := findRow(ctrl.State(), data.arg)
		if !ok {
			b.sendMessage(chatID, "That book is no longer on this page.")
			return
		}
		text, markup := bookCard(row)
		msg := tgbotapi.NewMessage(chatID, text)
		msg.ReplyMarkup = markup
		if _, err := b.api.Send(msg); err != nil {
			b.log.Error().Err(err).Msg("send book card failed")
		}
		return

	case cbDelete:
		msg := tgbotapi.NewMessage(chatID, home.DeletePrompt)
		msg.ReplyMarkup = deleteKeyboard(data.arg)
		if _, err := b.api.Send(msg); err != nil {
			b.log.Error().Err(err).Msg("send delete prompt failed")
		}
		return

	case cbDeleteYes:
		b.clearKeyboard(chatID, cb.Message.MessageID)
		err := ctrl.Delete(ctx, data.arg, home.ConfirmFunc(func(context.Context, string) bool { return true }))
		if err != nil {
			b.log.Debug().Err(err).Str("book_id", data.arg).Msg("delete failed")
		}

	case cbDeleteNo:
		b.clearKeyboard(chatID, cb.Message.MessageID)
		return

	case cbCheckIn:
		if err := ctrl.CheckIn(ctx, data.arg); err != nil {
			b.log.Debug().Err(err).Str("book_id", data.arg).Msg("check in failed")
		}
	}

	b.showList(ctx, s, false)
}

func findRow(st home.State, bookID string) (view.Row, bool) {
	for _, row := range view.BuildTable(st).Rows {
		if row.Book.ID == bookID {
			return row, true
		}
	}
	return view.Row{}, false
}

func (b *Bot) setPending(s *chatSession, p pendingInput) {
	s.mu.Lock()
	s.pending = p
	s.mu.Unlock()
}

func (b *Bot) cancelForms(ctx context.Context, s *chatSession) {
	ctrl := s.controller
	ctrl.Cancel(home.BookEditor)
	ctrl.Cancel(home.CheckoutDialog)
	b.setPending(s, awaitNothing)
	b.sendMessage(s.chatID, "Cancelled.")
	b.showList(ctx, s, false)
}

func (b *Bot) submitBookForm(ctx context.Context, s *chatSession, text string) {
	values, err := parseFields(text)
	if err != nil {
		b.sendMessage(s.chatID, "⚠️ "+err.Error()+"\nSend /cancel to close the form.")
		return
	}

	ctrl := s.controller
	for field, value := range values {
		ctrl.SetBookField(field, value)
	}

	err = ctrl.SubmitBook(ctx)
	switch {
	case err == nil:
		b.setPending(s, awaitNothing)
		b.sendMessage(s.chatID, "✅ Saved.")
		b.showList(ctx, s, false)
	case errors.Is(err, home.ErrFormClosed):
		b.setPending(s, awaitNothing)
	default:
		p := view.BuildBookForm(ctrl.State())
		b.sendMessage(s.chatID, formErrors(p.Fields, p.Status)+"\nFix the fields and send them again, or /cancel.")
	}
}

func (b *Bot) submitBorrower(ctx context.Context, s *chatSession, text string) {
	ctrl := s.controller
	ctrl.SetBorrower(text)

	err := ctrl.SubmitCheckout(ctx)
	switch {
	case err == nil:
		b.setPending(s, awaitNothing)
		b.sendMessage(s.chatID, "✅ Checked out.")
		b.showList(ctx, s, false)
	case errors.Is(err, home.ErrFormClosed):
		b.setPending(s, awaitNothing)
	default:
		p := view.BuildCheckoutForm(ctrl.State())
		b.sendMessage(s.chatID, formErrors([]view.Field{p.Borrower}, p.Status))
	}
}

func (b *Bot) showListWhenIdle(ctx context.Context, s *chatSession) {
	waitCtx, cancel := context.WithTimeout(ctx, idleTimeout)
	defer cancel()
	if err := s.controller.WaitIdle(waitCtx); err != nil {
		return
	}
	b.showList(ctx, s, false)
}

// showList sends the list message, or edits the existing one. fresh forces
// a new message, used by /start so the list is at the bottom of the chat.
func (b *Bot) showList(ctx context.Context, s *chatSession, fresh bool) {
	waitCtx, cancel := context.WithTimeout(ctx, idleTimeout)
	defer cancel()
	if err := s.controller.WaitIdle(waitCtx); err != nil {
		b.log.Warn().Err(err).Int64("chat_id", s.chatID).Msg("controller did not settle")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.controller.State()
	text := listText(st)
	markup := listKeyboard(st)

	if fresh || s.listMessageID == 0 {
		msg := tgbotapi.NewMessage(s.chatID, text)
		msg.ReplyMarkup = markup
		sent, err := b.api.Send(msg)
		if err != nil {
			b.log.Error().Err(err).Int64("chat_id", s.chatID).Msg("send list failed")
			return
		}
		s.listMessageID = sent.MessageID
		s.lastText, s.lastMarkup = text, markup
		return
	}

	// Telegram rejects edits that change nothing.
	if text == s.lastText && reflect.DeepEqual(markup, s.lastMarkup) {
		return
	}

	edit := tgbotapi.NewEditMessageText(s.chatID, s.listMessageID, text)
	edit.ReplyMarkup = &markup
	if _, err := b.api.Send(edit); err != nil {
		b.log.Error().Err(err).Int64("chat_id", s.chatID).Msg("edit list failed")
		return
	}
	s.lastText, s.lastMarkup = text, markup
}

func (b *Bot) clearKeyboard(chatID int64, messageID int) {
	edit := tgbotapi.NewEditMessageReplyMarkup(chatID, messageID, tgbotapi.InlineKeyboardMarkup{
		InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{},
	})
	if _, err := b.api.Request(edit); err != nil {
		b.log.Debug().Err(err).Msg("clear keyboard failed")
	}
}

func (b *Bot) answer(callbackID, text string) {
	if _, err := b.api.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		b.log.Debug().Err(err).Msg("answer callback failed")
	}
}

func (b *Bot) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, strings.TrimSpace(text))
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error().Err(err).Int64("chat_id", chatID).Msg("send message failed")
	}
}
