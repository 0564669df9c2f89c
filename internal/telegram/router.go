package telegram

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"unicode"

	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"

	"contact_relay_bot/internal/domain"
	"contact_relay_bot/internal/feature/broadcast"
	"contact_relay_bot/internal/feature/contact"
	"contact_relay_bot/internal/feature/pending"
	"contact_relay_bot/internal/logging"
)

type adminRegistry interface {
	OwnerID() int64
	IsOwner(userID int64) bool
	Role(ctx context.Context, userID int64) (string, error)
	Add(ctx context.Context, userID int64) (domain.AddResult, error)
	Remove(ctx context.Context, userID int64) (domain.RemoveResult, error)
	List(ctx context.Context) ([]int64, error)
}

type userRegistry interface {
	RecordSeen(ctx context.Context, userID int64, firstName string) (bool, error)
	Count(ctx context.Context) (int64, error)
	Each(ctx context.Context, fn func(userID int64) error) error
}

type settingsResolver interface {
	Get(ctx context.Context) (domain.Settings, error)
	Update(ctx context.Context, field, value string) error
	Reset(ctx context.Context) error
}

type broadcaster interface {
	Broadcast(ctx context.Context, text string) (broadcast.Report, error)
}

type forwarder interface {
	Forward(ctx context.Context, msg contact.Message) (contact.Report, error)
}

type sender interface {
	SendText(ctx context.Context, chatID int64, text string) error
	SendHTML(ctx context.Context, chatID int64, text string, markup *models.InlineKeyboardMarkup) error
	SendPhoto(ctx context.Context, chatID int64, photo, caption string, markup *models.InlineKeyboardMarkup) error
	AnswerCallback(ctx context.Context, callbackID, text string) error
}

type access int

const (
	accessAnyone access = iota
	accessPrivileged
	accessOwner
)

func (a access) String() string {
	switch a {
	case accessOwner:
		return domain.RoleOwner
	case accessPrivileged:
		return domain.RoleAdmin
	default:
		return domain.RoleUser
	}
}

type command struct {
	access  access
	handler func(ctx context.Context, in inbound) error
}

type kind int

const (
	kindIgnored kind = iota
	kindCommand
	kindText
	kindCallback
)

// inbound is one classified update.
type inbound struct {
	kind         kind
	userID       int64
	chatID       int64
	firstName    string
	username     string
	text         string
	photoFileID  string
	command      string
	args         string
	callbackID   string
	callbackData string
}

// Router classifies updates and dispatches each to exactly one handler.
type Router struct {
	admins      adminRegistry
	users       userRegistry
	settings    settingsResolver
	broadcaster broadcaster
	forwarder   forwarder
	pending     *pending.Table
	out         sender
	logger      *logrus.Entry
	commands    map[string]command
}

type routerDeps struct {
	admins      adminRegistry
	users       userRegistry
	settings    settingsResolver
	broadcaster broadcaster
	forwarder   forwarder
	pending     *pending.Table
	out         sender
	logger      *logrus.Entry
}

func newRouter(deps routerDeps) *Router {
	logger := logging.Component(deps.logger, "router")

	r := &Router{
		admins:      deps.admins,
		users:       deps.users,
		settings:    deps.settings,
		broadcaster: deps.broadcaster,
		forwarder:   deps.forwarder,
		pending:     deps.pending,
		out:         deps.out,
		logger:      logger,
	}

	r.commands = map[string]command{
		"start":     {access: accessAnyone, handler: r.handleStart},
		"help":      {access: accessAnyone, handler: r.handleHelp},
		"addadmin":  {access: accessOwner, handler: r.handleAddAdmin},
		"deladmin":  {access: accessOwner, handler: r.handleDelAdmin},
		"admins":    {access: accessPrivileged, handler: r.handleAdmins},
		"users":     {access: accessPrivileged, handler: r.handleUsers},
		"reply":     {access: accessPrivileged, handler: r.handleReply},
		"broadcast": {access: accessOwner, handler: r.handleBroadcast},
		"settings":  {access: accessOwner, handler: r.handleSettings},
		"cancel":    {access: accessPrivileged, handler: r.handleCancel},
	}

	return r
}

// Route handles one update. Handler failures are reported to the sender and
// panics are recovered, so a bad update never stops the polling loop.
func (r *Router) Route(ctx context.Context, update *models.Update) {
	in := r.classify(update)
	if in.kind == kindIgnored {
		return
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.WithFields(logging.Fields{
				"event":   "handler_panic",
				"user_id": in.userID,
				"panic":   fmt.Sprint(rec),
				"stack":   string(debug.Stack()),
			}).Error("recovered from handler panic")
		}
	}()

	var err error
	switch in.kind {
	case kindCallback:
		err = r.routeCallback(ctx, in)
	case kindCommand:
		r.recordSeen(ctx, in)
		err = r.runCommand(ctx, in)
	case kindText:
		if action, ok := r.pending.Take(in.userID); ok {
			r.recordSeen(ctx, in)
			err = r.completePending(ctx, in, action)
			break
		}
		if in.photoFileID != "" || strings.TrimSpace(in.text) == "" {
			err = domain.NewUsageError("only text messages can be sent to the admins")
			break
		}
		_, err = r.forwarder.Forward(ctx, contact.Message{
			UserID:    in.userID,
			ChatID:    in.chatID,
			FirstName: in.firstName,
			Username:  in.username,
			Text:      in.text,
		})
	}

	if err != nil {
		r.fail(ctx, in, err)
	}
}

func (r *Router) classify(update *models.Update) inbound {
	if update == nil {
		return inbound{}
	}

	if cq := update.CallbackQuery; cq != nil {
		return inbound{
			kind:         kindCallback,
			userID:       cq.From.ID,
			chatID:       messageChatID(cq.Message),
			firstName:    cq.From.FirstName,
			username:     cq.From.Username,
			callbackID:   cq.ID,
			callbackData: cq.Data,
		}
	}

	msg := update.Message
	if msg == nil || msg.From == nil || msg.Chat.Type != models.ChatTypePrivate {
		return inbound{}
	}

	in := inbound{
		userID:    msg.From.ID,
		chatID:    msg.Chat.ID,
		firstName: msg.From.FirstName,
		username:  msg.From.Username,
		text:      msg.Text,
	}
	if len(msg.Photo) > 0 {
		in.photoFileID = msg.Photo[len(msg.Photo)-1].FileID
		in.text = msg.Caption
	}

	if name, args, ok := parseCommand(in.text); ok {
		if _, known := r.commands[name]; !known {
			return inbound{}
		}
		in.kind = kindCommand
		in.command = name
		in.args = args
		return in
	}

	if strings.TrimSpace(in.text) == "" && in.photoFileID == "" {
		return inbound{}
	}

	in.kind = kindText
	return in
}

func (r *Router) runCommand(ctx context.Context, in inbound) error {
	cmd := r.commands[in.command]

	if err := r.authorize(ctx, in.userID, cmd.access); err != nil {
		return err
	}

	logging.WithContext(r.logger, logging.Context{
		UserID:  in.userID,
		ChatID:  in.chatID,
		Event:   "command",
		Command: in.command,
	}).Debug("handling command")

	return cmd.handler(ctx, in)
}

func (r *Router) authorize(ctx context.Context, userID int64, required access) error {
	switch required {
	case accessOwner:
		if !r.admins.IsOwner(userID) {
			return &domain.AuthorizationError{UserID: userID, Required: required.String()}
		}
	case accessPrivileged:
		role, err := r.admins.Role(ctx, userID)
		if err != nil {
			return err
		}
		if !domain.IsPrivileged(role) {
			return &domain.AuthorizationError{UserID: userID, Required: required.String()}
		}
	}
	return nil
}

func (r *Router) recordSeen(ctx context.Context, in inbound) {
	if _, err := r.users.RecordSeen(ctx, in.userID, in.firstName); err != nil {
		r.logger.WithFields(logging.Fields{
			"event":   "user_register_failed",
			"user_id": in.userID,
		}).WithError(err).Warn("failed to record user")
	}
}

// fail converts a handler error into the message the caller sees.
func (r *Router) fail(ctx context.Context, in inbound, err error) {
	var (
		usage    *domain.UsageError
		authz    *domain.AuthorizationError
		delivery *domain.DeliveryFailure
		field    *domain.InvalidFieldError
		notice   string
	)

	switch {
	case errors.As(err, &usage):
		notice = "Usage: " + usage.Message
	case errors.As(err, &authz):
		notice = "⛔ This action is reserved for the " + authz.Required + "."
	case errors.As(err, &delivery):
		notice = fmt.Sprintf("❌ Could not deliver the message to %d.", delivery.ChatID)
	case errors.As(err, &field):
		notice = fmt.Sprintf("❌ Unknown setting %q.", field.Field)
	case errors.Is(err, domain.ErrOwnerImmutable):
		notice = "❌ The owner cannot be removed."
	default:
		notice = "⚠️ Something went wrong. Please try again later."
	}

	entry := r.logger.WithFields(logging.Fields{
		"event":   "handler_error",
		"user_id": in.userID,
		"command": in.command,
	}).WithError(err)
	if usage != nil || authz != nil || field != nil || delivery != nil {
		entry.Debug("handler rejected update")
	} else {
		entry.Error("handler failed")
	}

	if in.kind == kindCallback {
		if ansErr := r.out.AnswerCallback(ctx, in.callbackID, notice); ansErr != nil {
			r.logger.WithField("event", "callback_answer_failed").WithError(ansErr).Warn("failed to answer callback")
		}
		return
	}

	if sendErr := r.out.SendText(ctx, in.chatID, notice); sendErr != nil {
		r.logger.WithFields(logging.Fields{
			"event":   "error_notice_failed",
			"user_id": in.userID,
		}).WithError(sendErr).Warn("failed to send error notice")
	}
}

// parseCommand splits "/name@bot args" into name and args. ok is false when
// text does not start with a command marker.
func parseCommand(text string) (name, args string, ok bool) {
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}

	name, args = splitFirst(text[1:])
	if at := strings.IndexByte(name, '@'); at >= 0 {
		name = name[:at]
	}

	return name, args, true
}

// splitFirst returns the first whitespace-delimited token of s and the
// trimmed remainder, keeping inner line breaks of the remainder.
func splitFirst(s string) (string, string) {
	s = strings.TrimLeftFunc(s, unicode.IsSpace)
	idx := strings.IndexFunc(s, unicode.IsSpace)
	if idx < 0 {
		return s, ""
	}
	return s[:idx], strings.TrimSpace(s[idx:])
}
