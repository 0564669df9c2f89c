package telegram

import (
	"context"
	"errors"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"contact_relay_bot/internal/domain"
)

// messenger adapts the Bot API client to the send operations the features use.
// Every failed send is reported as *domain.DeliveryFailure.
type messenger struct {
	api botAPI
}

func newMessenger(api botAPI) *messenger {
	return &messenger{api: api}
}

// SendText sends text without a parse mode so user-provided bodies are
// delivered verbatim.
func (m *messenger) SendText(ctx context.Context, chatID int64, text string) error {
	_, err := m.api.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: chatID,
		Text:   text,
	})
	return deliveryErr(chatID, err)
}

// SendHTML sends HTML-formatted text with an optional inline keyboard.
func (m *messenger) SendHTML(ctx context.Context, chatID int64, text string, markup *models.InlineKeyboardMarkup) error {
	params := &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      text,
		ParseMode: models.ParseModeHTML,
	}
	if markup != nil {
		params.ReplyMarkup = markup
	}

	_, err := m.api.SendMessage(ctx, params)
	return deliveryErr(chatID, err)
}

// SendPhoto sends a photo by URL or file id with an HTML caption.
func (m *messenger) SendPhoto(ctx context.Context, chatID int64, photo, caption string, markup *models.InlineKeyboardMarkup) error {
	params := &bot.SendPhotoParams{
		ChatID:    chatID,
		Photo:     &models.InputFileString{Data: photo},
		Caption:   caption,
		ParseMode: models.ParseModeHTML,
	}
	if markup != nil {
		params.ReplyMarkup = markup
	}

	_, err := m.api.SendPhoto(ctx, params)
	return deliveryErr(chatID, err)
}

// AnswerCallback stops the client-side spinner of a button press. A non-empty
// text is shown as a toast.
func (m *messenger) AnswerCallback(ctx context.Context, callbackID, text string) error {
	if callbackID == "" {
		return errors.New("callback id is required")
	}

	_, err := m.api.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: callbackID,
		Text:            text,
	})
	return err
}

func deliveryErr(chatID int64, err error) error {
	if err == nil {
		return nil
	}
	return &domain.DeliveryFailure{ChatID: chatID, Err: err}
}
