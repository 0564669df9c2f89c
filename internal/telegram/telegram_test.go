package telegram

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"contact_relay_bot/internal/config"
	"contact_relay_bot/internal/domain"
)

type fakeBot struct {
	mu          sync.Mutex
	startedWith context.Context
	messages    []*bot.SendMessageParams
	photos      []*bot.SendPhotoParams
	answers     []*bot.AnswerCallbackQueryParams
	sendErr     error
}

func (f *fakeBot) Start(ctx context.Context) {
	f.startedWith = ctx
}

func (f *fakeBot) SendMessage(_ context.Context, params *bot.SendMessageParams) (*models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, params)
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	return &models.Message{ID: len(f.messages)}, nil
}

func (f *fakeBot) SendPhoto(_ context.Context, params *bot.SendPhotoParams) (*models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.photos = append(f.photos, params)
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	return &models.Message{ID: len(f.photos)}, nil
}

func (f *fakeBot) AnswerCallbackQuery(_ context.Context, params *bot.AnswerCallbackQueryParams) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answers = append(f.answers, params)
	return true, nil
}

func testClientOptions() []Option {
	return []Option{
		WithAdminRegistry(newFakeAdmins(1)),
		WithUserRegistry(newFakeUsers()),
		WithSettingsResolver(newFakeSettings()),
	}
}

func TestNewClientCreatesBot(t *testing.T) {
	origCreateBot := createBot
	defer func() { createBot = origCreateBot }()

	var gotToken string
	var gotOptions []bot.Option
	b := &fakeBot{}

	createBot = func(token string, options ...bot.Option) (botAPI, error) {
		gotToken = token
		gotOptions = options
		return b, nil
	}

	cfg := config.Config{TelegramToken: "token-123", EditTimeout: config.DefaultEditTimeout}
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	client, err := NewClient(cfg, logrus.NewEntry(logger), testClientOptions()...)
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}

	if client == nil || client.bot == nil || client.router == nil {
		t.Fatalf("expected client, bot and router to be initialized")
	}
	if client.pending == nil {
		t.Fatalf("expected a default pending table")
	}

	if gotToken != cfg.TelegramToken {
		t.Fatalf("expected token %q, got %q", cfg.TelegramToken, gotToken)
	}

	if len(gotOptions) != 3 {
		t.Fatalf("expected 3 bot options (allowed updates, default handler, error handler), got %d", len(gotOptions))
	}
}

func TestNewClientRequiresCollaborators(t *testing.T) {
	origCreateBot := createBot
	defer func() { createBot = origCreateBot }()

	called := false
	createBot = func(string, ...bot.Option) (botAPI, error) {
		called = true
		return &fakeBot{}, nil
	}

	if _, err := NewClient(config.Config{TelegramToken: "token"}, nil); err == nil {
		t.Fatalf("expected error without registries")
	}
	if _, err := NewClient(config.Config{}, nil, testClientOptions()...); err == nil {
		t.Fatalf("expected error without token")
	}
	if called {
		t.Fatalf("bot must not be created when validation fails")
	}
}

func TestNewClientPropagatesBotError(t *testing.T) {
	origCreateBot := createBot
	defer func() { createBot = origCreateBot }()

	expected := errors.New("boom")
	createBot = func(string, ...bot.Option) (botAPI, error) {
		return nil, expected
	}

	_, err := NewClient(config.Config{TelegramToken: "token"}, nil, testClientOptions()...)
	if !errors.Is(err, expected) {
		t.Fatalf("expected error %v, got %v", expected, err)
	}
}

func TestClientStartLogsAndUsesContext(t *testing.T) {
	hookLogger, hook := logtest.NewNullLogger()
	client := &Client{
		bot:    &fakeBot{},
		logger: logrus.NewEntry(hookLogger),
	}

	ctx := context.Background()
	client.Start(ctx)

	if fb, ok := client.bot.(*fakeBot); ok {
		if fb.startedWith != ctx {
			t.Fatalf("expected bot to start with provided context")
		}
	}

	entries := hook.AllEntries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 log entries (start/stop), got %d", len(entries))
	}

	if entries[0].Data["event"] != "telegram_listen" {
		t.Fatalf("expected start log event, got %v", entries[0].Data["event"])
	}
	if entries[1].Data["event"] != "telegram_stopped" {
		t.Fatalf("expected stop log event, got %v", entries[1].Data["event"])
	}
}

func TestClientDispatchRoutesUpdate(t *testing.T) {
	h := newRouterHarness(t)
	client := &Client{router: h.router, logger: h.router.logger}

	client.dispatch(context.Background(), privateText(42, "Ann", "/help"))
	client.inflight.Wait()

	if got := h.out.textsTo(42); len(got) != 1 {
		t.Fatalf("expected help reply after dispatch, got %v", got)
	}
}

func TestExtractUpdateMeta(t *testing.T) {
	tests := []struct {
		name   string
		update *models.Update
		want   updateMeta
	}{
		{
			name: "message",
			update: &models.Update{
				Message: &models.Message{
					From: &models.User{ID: 10},
					Chat: models.Chat{ID: 20},
					Text: " hello ",
				},
			},
			want: updateMeta{userID: 10, chatID: 20, text: "hello", updateType: "message"},
		},
		{
			name: "callback query",
			update: &models.Update{
				CallbackQuery: &models.CallbackQuery{
					From: models.User{ID: 12},
					Data: "reply:42",
					Message: models.MaybeInaccessibleMessage{
						Type: models.MaybeInaccessibleMessageTypeMessage,
						Message: &models.Message{
							Chat: models.Chat{ID: 22},
						},
					},
				},
			},
			want: updateMeta{userID: 12, chatID: 22, text: "reply:42", updateType: "callback_query"},
		},
		{
			name: "inaccessible callback message",
			update: &models.Update{
				CallbackQuery: &models.CallbackQuery{
					From: models.User{ID: 13},
					Message: models.MaybeInaccessibleMessage{
						Type:                models.MaybeInaccessibleMessageTypeInaccessibleMessage,
						InaccessibleMessage: &models.InaccessibleMessage{Chat: models.Chat{ID: 23}},
					},
				},
			},
			want: updateMeta{userID: 13, chatID: 23, updateType: "callback_query"},
		},
		{
			name:   "unknown",
			update: &models.Update{},
			want:   updateMeta{updateType: "unknown"},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got := extractUpdateMeta(tt.update)
			if got != tt.want {
				t.Fatalf("extractUpdateMeta() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestDefaultHandlerLogsUpdate(t *testing.T) {
	hookLogger, hook := logtest.NewNullLogger()
	hookLogger.SetLevel(logrus.DebugLevel)

	var forwarded *models.Update
	handler := defaultHandler(logrus.NewEntry(hookLogger), func(_ context.Context, u *models.Update) {
		forwarded = u
	})

	update := &models.Update{
		Message: &models.Message{
			From: &models.User{ID: 99},
			Chat: models.Chat{ID: 199},
			Text: "ping",
		},
	}

	handler(context.Background(), nil, update)

	if forwarded != update {
		t.Fatalf("expected update to be passed to the next handler")
	}

	entry := hook.LastEntry()
	if entry == nil {
		t.Fatalf("expected log entry from handler")
	}

	if entry.Data["event"] != "telegram_update" {
		t.Fatalf("expected event=telegram_update, got %v", entry.Data["event"])
	}
	if entry.Data["user_id"] != int64(99) || entry.Data["chat_id"] != int64(199) {
		t.Fatalf("expected user_id=99 and chat_id=199, got user_id=%v chat_id=%v", entry.Data["user_id"], entry.Data["chat_id"])
	}
	if _, ok := entry.Data["text"]; ok {
		t.Fatalf("message bodies must not be logged")
	}
	if entry.Data["update_type"] != "message" {
		t.Fatalf("expected update_type=message, got %v", entry.Data["update_type"])
	}
}

func TestErrorHandlerLogs(t *testing.T) {
	hookLogger, hook := logtest.NewNullLogger()
	handler := errorHandler(logrus.NewEntry(hookLogger))

	handler(nil)
	if len(hook.AllEntries()) != 0 {
		t.Fatalf("nil error must not be logged")
	}

	handler(errors.New("conflict"))
	entry := hook.LastEntry()
	if entry == nil || entry.Data["event"] != "telegram_error" || entry.Level != logrus.ErrorLevel {
		t.Fatalf("expected telegram_error entry, got %+v", entry)
	}
}

func TestMessengerSendModes(t *testing.T) {
	b := &fakeBot{}
	m := newMessenger(b)
	ctx := context.Background()

	if err := m.SendText(ctx, 5, "<plain>"); err != nil {
		t.Fatalf("SendText returned error: %v", err)
	}
	markup := &models.InlineKeyboardMarkup{}
	if err := m.SendHTML(ctx, 6, "<b>x</b>", markup); err != nil {
		t.Fatalf("SendHTML returned error: %v", err)
	}
	if err := m.SendPhoto(ctx, 7, "file-id", "caption", nil); err != nil {
		t.Fatalf("SendPhoto returned error: %v", err)
	}

	if len(b.messages) != 2 || len(b.photos) != 1 {
		t.Fatalf("expected 2 messages and 1 photo, got %d and %d", len(b.messages), len(b.photos))
	}
	if b.messages[0].ParseMode != "" {
		t.Fatalf("plain text must not use a parse mode, got %q", b.messages[0].ParseMode)
	}
	if b.messages[1].ParseMode != models.ParseModeHTML || b.messages[1].ReplyMarkup != markup {
		t.Fatalf("expected HTML message with markup, got %+v", b.messages[1])
	}
	if b.photos[0].ReplyMarkup != nil {
		t.Fatalf("photo without markup must not carry a keyboard")
	}
	photo, ok := b.photos[0].Photo.(*models.InputFileString)
	if !ok || photo.Data != "file-id" {
		t.Fatalf("expected file id photo, got %#v", b.photos[0].Photo)
	}
}

func TestMessengerWrapsDeliveryFailure(t *testing.T) {
	cause := errors.New("Forbidden: bot was blocked by the user")
	m := newMessenger(&fakeBot{sendErr: cause})

	err := m.SendText(context.Background(), 77, "hi")

	var failure *domain.DeliveryFailure
	if !errors.As(err, &failure) {
		t.Fatalf("expected DeliveryFailure, got %v", err)
	}
	if failure.ChatID != 77 || !errors.Is(err, cause) {
		t.Fatalf("unexpected failure %+v", failure)
	}

	if err := m.AnswerCallback(context.Background(), "", "x"); err == nil {
		t.Fatalf("expected error for empty callback id")
	}
}
