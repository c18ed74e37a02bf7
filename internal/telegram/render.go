package telegram

import (
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"library_desk/internal/forms"
	"library_desk/internal/home"
	"library_desk/internal/models"
	"library_desk/internal/view"
)

const (
	cbNoop       = "noop"
	cbCreate     = "create"
	cbPagePrefix = "page:"
	cbSizePrefix = "size:"
	cbStatus     = "status:"
	cbEdit       = "edit:"
	cbDelete     = "del:"
	cbDeleteYes  = "delyes:"
	cbDeleteNo   = "delno:"
	cbCheckIn    = "in:"
	cbCheckOut   = "out:"
	cbSelect     = "sel:"
)

const (
	// inlineActionRows is the largest page that gets action buttons on
	// every row. Bigger pages get a grid of numbered select buttons.
	inlineActionRows = 10
	selectRowWidth   = 5
)

// callback is a parsed inline button payload.
type callback struct {
	kind string
	arg  string
}

func parseCallback(data string) (callback, bool) {
	if data == cbNoop || data == cbCreate {
		return callback{kind: data}, true
	}
	kind, arg, ok := strings.Cut(data, ":")
	if !ok || arg == "" {
		return callback{}, false
	}
	switch kind + ":" {
	case cbPagePrefix, cbSizePrefix, cbStatus, cbEdit, cbDelete, cbDeleteYes, cbDeleteNo, cbCheckIn, cbCheckOut, cbSelect:
		return callback{kind: kind + ":", arg: arg}, true
	}
	return callback{}, false
}

// listText renders the list view as the body of the chat message.
func listText(s home.State) string {
	var sb strings.Builder
	sb.WriteString("📚 " + view.PageTitle + "\n")

	filters := []string{"Status: " + s.Status.Label()}
	if s.Search != "" {
		filters = append([]string{fmt.Sprintf("Search: %q", s.Search)}, filters...)
	}
	sb.WriteString(strings.Join(filters, " · ") + "\n\n")

	if s.Error != "" {
		sb.WriteString("⚠️ " + s.Error + "\n\n")
	}

	table := view.BuildTable(s)
	if table.Placeholder != "" {
		sb.WriteString(table.Placeholder + "\n")
	}
	for i, row := range table.Rows {
		fmt.Fprintf(&sb, "%d. %s · %s\n", i+1, row.Book, rowStatus(row))
	}

	sb.WriteString("\n" + table.Pager.Summary)
	return sb.String()
}

func rowStatus(row view.Row) string {
	status := row.StatusLabel
	if borrower := row.Book.Borrower(); row.CheckedOut && borrower != "" {
		status += " (" + borrower + ")"
	}
	return status
}

// listKeyboard builds the inline keyboard: the book buttons, then
// navigation, status filter, page size and create rows.
func listKeyboard(s home.State) tgbotapi.InlineKeyboardMarkup {
	table := view.BuildTable(s)

	var rows [][]tgbotapi.InlineKeyboardButton
	if len(table.Rows) > inlineActionRows {
		rows = selectRows(table.Rows)
	} else {
		for i, row := range table.Rows {
			rows = append(rows, actionRow(row, strconv.Itoa(i+1)))
		}
	}

	pager := table.Pager
	var nav []tgbotapi.InlineKeyboardButton
	if !pager.Previous.Disabled {
		nav = append(nav, tgbotapi.NewInlineKeyboardButtonData("⬅️", cbPagePrefix+strconv.Itoa(pager.PageIndex-1)))
	}
	nav = append(nav, tgbotapi.NewInlineKeyboardButtonData(
		fmt.Sprintf("• %d/%d •", pager.PageNumber, pager.TotalPages), cbNoop))
	if !pager.Next.Disabled {
		nav = append(nav, tgbotapi.NewInlineKeyboardButtonData("➡️", cbPagePrefix+strconv.Itoa(pager.PageIndex+1)))
	}
	rows = append(rows, nav)

	toolbar := view.BuildToolbar(s)
	var statusRow []tgbotapi.InlineKeyboardButton
	for _, opt := range toolbar.StatusOptions {
		data := cbStatus + opt.Value
		if toolbar.StatusDisabled {
			data = cbNoop
		}
		statusRow = append(statusRow, tgbotapi.NewInlineKeyboardButtonData(mark(opt), data))
	}
	rows = append(rows, statusRow)

	var sizeRow []tgbotapi.InlineKeyboardButton
	for _, opt := range pager.SizeOptions {
		data := cbSizePrefix + opt.Value
		if pager.SizeLocked {
			data = cbNoop
		}
		sizeRow = append(sizeRow, tgbotapi.NewInlineKeyboardButtonData(mark(opt), data))
	}
	rows = append(rows, sizeRow)

	header := view.BuildHeader()
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("➕ "+header.Create.Label, cbCreate),
	))

	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func mark(opt view.Option) string {
	if opt.Selected {
		return "✅ " + opt.Label
	}
	return opt.Label
}

func actionRow(row view.Row, n string) []tgbotapi.InlineKeyboardButton {
	buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row.Actions))
	for _, action := range row.Actions {
		buttons = append(buttons, actionButton(action, n, row.Book.ID))
	}
	return buttons
}

// selectRows lays out one numbered button per book, selectRowWidth per row.
func selectRows(books []view.Row) [][]tgbotapi.InlineKeyboardButton {
	var rows [][]tgbotapi.InlineKeyboardButton
	var current []tgbotapi.InlineKeyboardButton
	for i, row := range books {
		n := strconv.Itoa(i + 1)
		button := tgbotapi.NewInlineKeyboardButtonData(n, cbSelect+row.Book.ID)
		if len(row.Actions) > 0 && row.Actions[0].Disabled {
			button = tgbotapi.NewInlineKeyboardButtonData("⏳ "+n, cbNoop)
		}
		current = append(current, button)
		if len(current) == selectRowWidth {
			rows = append(rows, current)
			current = nil
		}
	}
	if len(current) > 0 {
		rows = append(rows, current)
	}
	return rows
}

// bookCard is the message sent when a book is picked from the select grid.
func bookCard(row view.Row) (string, tgbotapi.InlineKeyboardMarkup) {
	text := fmt.Sprintf("%s · %s", row.Book, rowStatus(row))
	return text, tgbotapi.NewInlineKeyboardMarkup(actionRow(row, ""))
}

func actionButton(b view.Button, n, bookID string) tgbotapi.InlineKeyboardButton {
	if b.Disabled {
		return tgbotapi.NewInlineKeyboardButtonData(strings.TrimSpace("⏳ "+n), cbNoop)
	}

	var prefix string
	switch b.Label {
	case "Edit":
		prefix = cbEdit
	case "Delete":
		prefix = cbDelete
	case "Check In":
		prefix = cbCheckIn
	default:
		prefix = cbCheckOut
	}
	return tgbotapi.NewInlineKeyboardButtonData(strings.TrimSpace(b.Label+" "+n), prefix+bookID)
}

func deleteKeyboard(bookID string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("Yes, delete", cbDeleteYes+bookID),
		tgbotapi.NewInlineKeyboardButtonData("No", cbDeleteNo+bookID),
	))
}

// bookFormPrompt explains the one-message form and shows the current values.
func bookFormPrompt(s home.State) string {
	p := view.BuildBookForm(s)
	var sb strings.Builder
	sb.WriteString(p.Heading + "\n")
	sb.WriteString("Reply with one line per field you want to set, for example \"Title: Dune\".\n\n")
	for _, f := range p.Fields {
		fmt.Fprintf(&sb, "%s: %s\n", f.Label, f.Value)
	}
	sb.WriteString("\nSend /cancel to close the form.")
	return sb.String()
}

func checkoutPrompt(s home.State) string {
	p := view.BuildCheckoutForm(s)
	return fmt.Sprintf("Who is borrowing %q? Reply with the borrower name, or /cancel.", p.BookTitle)
}

// formErrors lists the visible field errors and the submission status.
func formErrors(fields []view.Field, status string) string {
	var lines []string
	for _, f := range fields {
		if f.Error != "" {
			lines = append(lines, "• "+f.Error)
		}
	}
	if status != "" {
		lines = append(lines, "⚠️ "+status)
	}
	return strings.Join(lines, "\n")
}

// parseFields reads "Label: value" lines. Labels match the field label or
// name, ignoring case; blank lines are skipped.
func parseFields(text string) (map[string]string, error) {
	values := make(map[string]string)
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		label, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil, fmt.Errorf("line %q is not in the form \"Field: value\"", line)
		}
		name, ok := fieldName(strings.TrimSpace(label))
		if !ok {
			return nil, fmt.Errorf("unknown field %q", strings.TrimSpace(label))
		}
		values[name] = strings.TrimSpace(value)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("no fields found")
	}
	return values, nil
}

func fieldName(label string) (string, bool) {
	for _, f := range forms.BookFields {
		if strings.EqualFold(label, f.Label) || strings.EqualFold(label, f.Name) {
			return f.Name, true
		}
	}
	if strings.EqualFold(label, "year") {
		return forms.FieldPublishedYear, true
	}
	return "", false
}

func statusFilter(arg string) (models.StatusFilter, bool) {
	f, err := models.ParseStatusFilter(arg)
	return f, err == nil
}
