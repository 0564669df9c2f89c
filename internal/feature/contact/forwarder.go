// Package contact relays free text from users to every admin and the owner.
package contact

import (
	"context"
	"errors"
	"fmt"
	"html"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"

	"contact_relay_bot/internal/domain"
	"contact_relay_bot/internal/logging"
)

// ReplyCallbackPrefix prefixes the callback data of the reply button attached
// to forwarded copies; the sender's user id follows it.
const ReplyCallbackPrefix = "reply:"

var markupTag = regexp.MustCompile(`<[^>]*>`)

const (
	ackDelivered   = "✅ Your message has been sent to the admins. You will get a reply here."
	ackUndelivered = "⚠️ Your message could not be delivered right now. Please try again later."
)

// Sender is the slice of the chat transport the forwarder needs.
type Sender interface {
	SendText(ctx context.Context, chatID int64, text string) error
	SendHTML(ctx context.Context, chatID int64, text string, markup *models.InlineKeyboardMarkup) error
}

// Registrar records the sender on contact.
type Registrar interface {
	RecordSeen(ctx context.Context, userID int64, firstName string) (bool, error)
}

// Roster lists who receives forwarded copies.
type Roster interface {
	List(ctx context.Context) ([]int64, error)
	OwnerID() int64
}

// Message is an inbound free-text message.
type Message struct {
	UserID    int64
	ChatID    int64
	FirstName string
	Username  string
	Text      string
}

// Report summarizes one fan-out.
type Report struct {
	Recipients int
	Delivered  int
}

// Forwarder fans messages out to admins.
type Forwarder struct {
	users  Registrar
	roster Roster
	sender Sender
	logger *logrus.Entry
}

// NewForwarder constructs a Forwarder.
func NewForwarder(users Registrar, roster Roster, sender Sender, logger *logrus.Entry) *Forwarder {
	logger = logging.Component(logger, "contact")

	return &Forwarder{
		users:  users,
		roster: roster,
		sender: sender,
		logger: logger,
	}
}

// Forward registers the sender, sends one copy per stored admin plus one to the
// owner, then acknowledges to the sender. An owner who is also a stored admin
// receives two copies.
func (f *Forwarder) Forward(ctx context.Context, msg Message) (Report, error) {
	if f == nil || f.users == nil || f.roster == nil || f.sender == nil {
		return Report{}, errors.New("contact forwarder is not initialized")
	}
	if ctx == nil {
		return Report{}, errors.New("context is required")
	}

	if _, err := f.users.RecordSeen(ctx, msg.UserID, msg.FirstName); err != nil {
		return Report{}, fmt.Errorf("register sender: %w", err)
	}

	admins, err := f.roster.List(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("list admins: %w", err)
	}
	recipients := append(admins, f.roster.OwnerID())

	head, body := splitForward(msg)
	markup := ReplyMarkup(msg.UserID)

	report := Report{Recipients: len(recipients)}
	for _, adminID := range recipients {
		if err := f.deliver(ctx, adminID, head, body, markup); err != nil {
			f.logger.WithFields(logging.Fields{
				"event":    "contact_forward_failed",
				"user_id":  msg.UserID,
				"admin_id": adminID,
			}).WithError(err).Warn("failed to forward message to admin")
			continue
		}
		report.Delivered++
	}

	ack := ackDelivered
	if report.Delivered == 0 {
		ack = ackUndelivered
	}
	if err := f.sender.SendText(ctx, msg.ChatID, ack); err != nil {
		f.logger.WithFields(logging.Fields{
			"event":   "contact_ack_failed",
			"user_id": msg.UserID,
		}).WithError(err).Warn("failed to acknowledge contact message")
	}

	f.logger.WithFields(logging.Fields{
		"event":      "contact_forwarded",
		"user_id":    msg.UserID,
		"recipients": report.Recipients,
		"delivered":  report.Delivered,
	}).Info("forwarded contact message")

	return report, nil
}

func (f *Forwarder) deliver(ctx context.Context, chatID int64, head, body string, markup *models.InlineKeyboardMarkup) error {
	if err := f.sender.SendHTML(ctx, chatID, head, markup); err != nil {
		return err
	}
	if body == "" {
		return nil
	}
	return f.sender.SendText(ctx, chatID, body)
}

// FormatForward renders the copy admins receive.
func FormatForward(msg Message) string {
	return formatHeader(msg) + "\n\n" + html.EscapeString(msg.Text)
}

// splitForward returns the HTML copy for admins. When the header and the text
// together exceed the message limit, head carries only the header and body the
// raw text to send as a plain follow-up.
func splitForward(msg Message) (head, body string) {
	full := FormatForward(msg)
	if domain.MessageLength(renderedText(full)) <= domain.MessageLimit {
		return full, ""
	}
	return formatHeader(msg), msg.Text
}

func formatHeader(msg Message) string {
	var b strings.Builder

	name := strings.TrimSpace(msg.FirstName)
	if name == "" {
		name = "User"
	}

	b.WriteString("📩 <b>New message</b>\n\n")
	fmt.Fprintf(&b, "👤 From: <a href=\"tg://user?id=%d\">%s</a>", msg.UserID, html.EscapeString(name))
	if msg.Username != "" {
		fmt.Fprintf(&b, " (@%s)", html.EscapeString(msg.Username))
	}
	fmt.Fprintf(&b, "\n🆔 ID: <code>%d</code>", msg.UserID)

	return b.String()
}

// renderedText is the text Telegram displays for an HTML message.
func renderedText(s string) string {
	return html.UnescapeString(markupTag.ReplaceAllString(s, ""))
}

// ReplyMarkup builds the inline keyboard that lets an admin answer userID.
func ReplyMarkup(userID int64) *models.InlineKeyboardMarkup {
	return &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{
			{
				{Text: "↩️ Reply", CallbackData: ReplyCallbackData(userID)},
			},
		},
	}
}

// ReplyCallbackData encodes userID into reply button callback data.
func ReplyCallbackData(userID int64) string {
	return ReplyCallbackPrefix + strconv.FormatInt(userID, 10)
}

// ParseReplyCallback extracts the user id from reply button callback data.
func ParseReplyCallback(data string) (int64, bool) {
	raw, ok := strings.CutPrefix(data, ReplyCallbackPrefix)
	if !ok {
		return 0, false
	}

	userID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || userID == 0 {
		return 0, false
	}

	return userID, true
}
