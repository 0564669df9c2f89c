// Package telegram hosts the Bot API client, the update router and the command
// handlers of the relay bot.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"

	"contact_relay_bot/internal/config"
	"contact_relay_bot/internal/feature/broadcast"
	"contact_relay_bot/internal/feature/contact"
	"contact_relay_bot/internal/feature/pending"
	"contact_relay_bot/internal/logging"
)

type botAPI interface {
	Start(ctx context.Context)
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
	SendPhoto(ctx context.Context, params *bot.SendPhotoParams) (*models.Message, error)
	AnswerCallbackQuery(ctx context.Context, params *bot.AnswerCallbackQueryParams) (bool, error)
}

var (
	defaultAllowedUpdates = bot.AllowedUpdates{
		"message",
		"callback_query",
	}

	createBot = func(token string, options ...bot.Option) (botAPI, error) {
		return bot.New(token, options...)
	}
)

// Option wires a collaborator into the client.
type Option func(*Client)

// WithAdminRegistry sets the admin roster used for privilege checks.
func WithAdminRegistry(admins adminRegistry) Option {
	return func(c *Client) { c.admins = admins }
}

// WithUserRegistry sets the user registry.
func WithUserRegistry(users userRegistry) Option {
	return func(c *Client) { c.users = users }
}

// WithSettingsResolver sets the settings resolver.
func WithSettingsResolver(settings settingsResolver) Option {
	return func(c *Client) { c.settings = settings }
}

// WithPendingTable sets the table of awaited edits and replies.
func WithPendingTable(table *pending.Table) Option {
	return func(c *Client) { c.pending = table }
}

// Client wraps the Telegram bot instance and dispatches updates to the Router.
type Client struct {
	bot      botAPI
	router   *Router
	logger   *logrus.Entry
	inflight sync.WaitGroup

	admins   adminRegistry
	users    userRegistry
	settings settingsResolver
	pending  *pending.Table
}

// NewClient initializes the Telegram bot with long polling and wires the
// broadcast engine and contact forwarder onto it.
func NewClient(cfg config.Config, logger *logrus.Entry, opts ...Option) (*Client, error) {
	if strings.TrimSpace(cfg.TelegramToken) == "" {
		return nil, errors.New("telegram token is required")
	}
	if logger == nil {
		logger = logging.Logger()
	}

	c := &Client{logger: logger}
	for _, opt := range opts {
		opt(c)
	}

	if c.admins == nil || c.users == nil || c.settings == nil {
		return nil, errors.New("admin registry, user registry and settings resolver are required")
	}
	if c.pending == nil {
		c.pending = pending.NewTable(cfg.EditTimeout)
	}

	tgBot, err := createBot(cfg.TelegramToken,
		bot.WithAllowedUpdates(defaultAllowedUpdates),
		bot.WithDefaultHandler(defaultHandler(logger, c.dispatch)),
		bot.WithErrorsHandler(errorHandler(logger)),
	)
	if err != nil {
		return nil, fmt.Errorf("init telegram bot client: %w", err)
	}

	out := newMessenger(tgBot)
	c.bot = tgBot
	c.router = newRouter(routerDeps{
		admins:      c.admins,
		users:       c.users,
		settings:    c.settings,
		broadcaster: broadcast.NewEngine(c.users, out, cfg.BroadcastDelay, logger),
		forwarder:   contact.NewForwarder(c.users, c.admins, out, logger),
		pending:     c.pending,
		out:         out,
		logger:      logger,
	})

	return c, nil
}

// Start receives updates via long polling until the context is canceled, then
// waits for in-flight handlers to return.
func (c *Client) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	c.logger.WithFields(logging.Fields{
		"event":           "telegram_listen",
		"allowed_updates": defaultAllowedUpdates,
	}).Info("starting telegram long polling")

	c.bot.Start(ctx)
	c.inflight.Wait()

	c.logger.WithField("event", "telegram_stopped").Info("telegram polling stopped")
}

// dispatch routes each update on its own goroutine so slow handlers, such as
// a running broadcast, never hold up other chats.
func (c *Client) dispatch(ctx context.Context, update *models.Update) {
	if c.router == nil {
		return
	}

	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()
		c.router.Route(ctx, update)
	}()
}

type updateMeta struct {
	userID     int64
	chatID     int64
	text       string
	updateType string
}

func defaultHandler(logger *logrus.Entry, next func(context.Context, *models.Update)) bot.HandlerFunc {
	if logger == nil {
		logger = logging.Logger()
	}

	return func(ctx context.Context, _ *bot.Bot, update *models.Update) {
		if update == nil {
			return
		}

		meta := extractUpdateMeta(update)

		fields := logging.Fields{
			"event":       "telegram_update",
			"update_type": meta.updateType,
		}
		if meta.userID != 0 {
			fields["user_id"] = meta.userID
		}
		if meta.chatID != 0 {
			fields["chat_id"] = meta.chatID
		}
		if meta.updateType == "callback_query" && meta.text != "" {
			fields["callback_data"] = meta.text
		}

		logger.WithFields(fields).Debug("telegram update received")

		if next != nil {
			next(ctx, update)
		}
	}
}

func extractUpdateMeta(update *models.Update) updateMeta {
	switch {
	case update.Message != nil:
		return updateMeta{
			userID:     userID(update.Message.From),
			chatID:     chatID(&update.Message.Chat),
			text:       strings.TrimSpace(update.Message.Text),
			updateType: "message",
		}
	case update.CallbackQuery != nil:
		return updateMeta{
			userID:     userID(&update.CallbackQuery.From),
			chatID:     messageChatID(update.CallbackQuery.Message),
			text:       strings.TrimSpace(update.CallbackQuery.Data),
			updateType: "callback_query",
		}
	default:
		return updateMeta{updateType: "unknown"}
	}
}

func errorHandler(logger *logrus.Entry) bot.ErrorsHandler {
	if logger == nil {
		logger = logging.Logger()
	}

	return func(err error) {
		if err == nil {
			return
		}

		logger.WithField("event", "telegram_error").WithError(err).Error("telegram polling error")
	}
}

func userID(user *models.User) int64 {
	if user == nil {
		return 0
	}

	return user.ID
}

func chatID(chat *models.Chat) int64 {
	if chat == nil {
		return 0
	}

	return chat.ID
}

func messageChatID(msg models.MaybeInaccessibleMessage) int64 {
	switch msg.Type {
	case models.MaybeInaccessibleMessageTypeMessage:
		if msg.Message == nil {
			return 0
		}
		return chatID(&msg.Message.Chat)
	case models.MaybeInaccessibleMessageTypeInaccessibleMessage:
		if msg.InaccessibleMessage == nil {
			return 0
		}
		return chatID(&msg.InaccessibleMessage.Chat)
	default:
		return 0
	}
}
