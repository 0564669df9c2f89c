package telegram

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"

	"github.com/go-telegram/bot/models"

	"contact_relay_bot/internal/domain"
	"contact_relay_bot/internal/feature/contact"
	"contact_relay_bot/internal/feature/pending"
	"contact_relay_bot/internal/logging"
)

const (
	callbackSettingsEdit  = "settings:edit:"
	callbackSettingsReset = "settings:reset"
	callbackSettingsClose = "settings:close"

	settingsPreviewLimit = 200

	replyHeader = "📨 Reply from admin:"
)

var fieldLabels = map[string]string{
	domain.FieldStartPicture: "Start picture",
	domain.FieldStartMessage: "Start message",
	domain.FieldHelpMessage:  "Help message",
}

func (r *Router) handleStart(ctx context.Context, in inbound) error {
	settings, err := r.settings.Get(ctx)
	if err != nil {
		return err
	}

	caption := settings.RenderStart(html.EscapeString(displayName(in)))

	if settings.StartPicture != "" {
		err := r.out.SendPhoto(ctx, in.chatID, settings.StartPicture, caption, nil)
		if err == nil {
			return nil
		}
		r.logger.WithFields(logging.Fields{
			"event":   "start_photo_failed",
			"user_id": in.userID,
		}).WithError(err).Warn("start picture could not be sent, falling back to text")
	}

	return r.out.SendHTML(ctx, in.chatID, caption, nil)
}

func (r *Router) handleHelp(ctx context.Context, in inbound) error {
	settings, err := r.settings.Get(ctx)
	if err != nil {
		return err
	}

	return r.out.SendHTML(ctx, in.chatID, settings.HelpMessage, nil)
}

func (r *Router) handleAddAdmin(ctx context.Context, in inbound) error {
	userID, err := parseUserID(in.args, "/addadmin <user_id>")
	if err != nil {
		return err
	}

	result, err := r.admins.Add(ctx, userID)
	if err != nil {
		return err
	}

	if result == domain.AdminAlreadyPresent {
		return r.out.SendText(ctx, in.chatID, fmt.Sprintf("ℹ️ User %d is already an admin.", userID))
	}
	return r.out.SendText(ctx, in.chatID, fmt.Sprintf("✅ User %d added as admin.", userID))
}

func (r *Router) handleDelAdmin(ctx context.Context, in inbound) error {
	userID, err := parseUserID(in.args, "/deladmin <user_id>")
	if err != nil {
		return err
	}

	result, err := r.admins.Remove(ctx, userID)
	if err != nil {
		return err
	}

	if result == domain.AdminWasAbsent {
		return r.out.SendText(ctx, in.chatID, fmt.Sprintf("ℹ️ User %d is not an admin.", userID))
	}
	return r.out.SendText(ctx, in.chatID, fmt.Sprintf("✅ User %d removed from admin list.", userID))
}

func (r *Router) handleAdmins(ctx context.Context, in inbound) error {
	ids, err := r.admins.List(ctx)
	if err != nil {
		return err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "👑 <b>Owner:</b> <code>%d</code>\n\n", r.admins.OwnerID())
	if len(ids) == 0 {
		b.WriteString("🛡 No admins added yet.")
	} else {
		fmt.Fprintf(&b, "🛡 <b>Admins (%d):</b>\n", len(ids))
		for _, id := range ids {
			fmt.Fprintf(&b, "• <code>%d</code>\n", id)
		}
	}

	return r.out.SendHTML(ctx, in.chatID, strings.TrimRight(b.String(), "\n"), nil)
}

func (r *Router) handleUsers(ctx context.Context, in inbound) error {
	count, err := r.users.Count(ctx)
	if err != nil {
		return err
	}

	return r.out.SendText(ctx, in.chatID, fmt.Sprintf("👥 Total users: %d", count))
}

func (r *Router) handleReply(ctx context.Context, in inbound) error {
	const usage = "/reply <user_id> <text>"

	rawID, text := splitFirst(in.args)
	if text == "" {
		return domain.NewUsageError(usage)
	}
	userID, err := parseUserID(rawID, usage)
	if err != nil {
		return err
	}

	return r.deliverReply(ctx, in, userID, text)
}

// deliverReply sends text to userID under the reply header. A text that would
// not fit together with the header follows it as a second message.
func (r *Router) deliverReply(ctx context.Context, in inbound, userID int64, text string) error {
	message := replyHeader + "\n\n" + text
	if domain.MessageLength(message) > domain.MessageLimit {
		if err := r.out.SendText(ctx, userID, replyHeader); err != nil {
			return err
		}
		message = text
	}
	if err := r.out.SendText(ctx, userID, message); err != nil {
		return err
	}

	r.logger.WithFields(logging.Fields{
		"event":     "reply_sent",
		"admin_id":  in.userID,
		"target_id": userID,
	}).Info("delivered admin reply")

	return r.out.SendText(ctx, in.chatID, "✅ Message sent!")
}

func (r *Router) handleBroadcast(ctx context.Context, in inbound) error {
	if strings.TrimSpace(in.args) == "" {
		return domain.NewUsageError("/broadcast <text>")
	}

	if err := r.out.SendText(ctx, in.chatID, "📣 Broadcast started..."); err != nil {
		return err
	}

	report, err := r.broadcaster.Broadcast(ctx, in.args)
	summary := fmt.Sprintf("✅ Broadcast sent to %d users! (%d attempted)", report.Delivered, report.Attempted)
	if err != nil {
		var usage *domain.UsageError
		if errors.As(err, &usage) {
			return err
		}
		summary = fmt.Sprintf("⚠️ Broadcast stopped early: sent to %d users (%d attempted).", report.Delivered, report.Attempted)
	}

	return r.out.SendText(ctx, in.chatID, summary)
}

func (r *Router) handleSettings(ctx context.Context, in inbound) error {
	settings, err := r.settings.Get(ctx)
	if err != nil {
		return err
	}

	var b strings.Builder
	b.WriteString("⚙️ <b>Bot settings</b>\n")
	for _, field := range domain.SettingsFields() {
		fmt.Fprintf(&b, "\n<b>%s</b>\n<code>%s</code>\n", fieldLabels[field], html.EscapeString(preview(settings.Value(field))))
	}
	b.WriteString("\nChoose a field to edit.")

	return r.out.SendHTML(ctx, in.chatID, b.String(), settingsMenu())
}

func (r *Router) handleCancel(ctx context.Context, in inbound) error {
	if r.pending.Cancel(in.userID) {
		return r.out.SendText(ctx, in.chatID, "❎ Pending action cancelled.")
	}
	return r.out.SendText(ctx, in.chatID, "Nothing to cancel.")
}

func (r *Router) routeCallback(ctx context.Context, in inbound) error {
	data := in.callbackData

	if targetID, ok := contact.ParseReplyCallback(data); ok {
		if err := r.authorize(ctx, in.userID, accessPrivileged); err != nil {
			return err
		}
		action := r.pending.Begin(in.userID, pending.Action{Kind: pending.KindReply, TargetID: targetID, ChatID: in.chatID})
		r.answer(ctx, in, "Send your reply")
		return r.out.SendText(ctx, in.chatID, fmt.Sprintf(
			"✍️ Send the reply for user %d within %s. Use /cancel to abort.",
			action.TargetID, r.pending.TTL()))
	}

	if !strings.HasPrefix(data, "settings:") {
		r.answer(ctx, in, "")
		return nil
	}

	if err := r.authorize(ctx, in.userID, accessOwner); err != nil {
		return err
	}

	switch {
	case strings.HasPrefix(data, callbackSettingsEdit):
		field := strings.TrimPrefix(data, callbackSettingsEdit)
		if !domain.IsSettingsField(field) {
			return &domain.InvalidFieldError{Field: field}
		}
		r.pending.Begin(in.userID, pending.Action{Kind: pending.KindSetting, Field: field, ChatID: in.chatID})
		r.answer(ctx, in, "Waiting for the new value")
		return r.out.SendText(ctx, in.chatID, editPrompt(field, r.pending.TTL().String()))
	case data == callbackSettingsReset:
		if err := r.settings.Reset(ctx); err != nil {
			return err
		}
		r.answer(ctx, in, "Settings restored to defaults")
		return nil
	case data == callbackSettingsClose:
		r.pending.Cancel(in.userID)
		r.answer(ctx, in, "")
		return nil
	default:
		r.answer(ctx, in, "")
		return nil
	}
}

// completePending applies the message to the action already taken from the
// table. The requester's privilege is checked again, so a grant revoked while
// the action was open has no effect.
func (r *Router) completePending(ctx context.Context, in inbound, action pending.Action) error {
	required := accessPrivileged
	if action.Kind == pending.KindSetting {
		required = accessOwner
	}
	if err := r.authorize(ctx, in.userID, required); err != nil {
		var authz *domain.AuthorizationError
		if !errors.As(err, &authz) {
			r.pending.Restore(in.userID, action)
		}
		return err
	}

	value := strings.TrimSpace(in.text)

	switch action.Kind {
	case pending.KindSetting:
		if action.Field == domain.FieldStartPicture && in.photoFileID != "" {
			value = in.photoFileID
		}
		if value == "" {
			r.pending.Restore(in.userID, action)
			return domain.NewUsageError("send the new %s as text", fieldLabels[action.Field])
		}
		if err := r.settings.Update(ctx, action.Field, value); err != nil {
			return err
		}
		return r.out.SendText(ctx, in.chatID, fmt.Sprintf("✅ %s updated.", fieldLabels[action.Field]))
	case pending.KindReply:
		if value == "" {
			r.pending.Restore(in.userID, action)
			return domain.NewUsageError("send the reply as text")
		}
		return r.deliverReply(ctx, in, action.TargetID, value)
	default:
		return nil
	}
}

func (r *Router) answer(ctx context.Context, in inbound, text string) {
	if err := r.out.AnswerCallback(ctx, in.callbackID, text); err != nil {
		r.logger.WithFields(logging.Fields{
			"event":   "callback_answer_failed",
			"user_id": in.userID,
		}).WithError(err).Warn("failed to answer callback")
	}
}

func settingsMenu() *models.InlineKeyboardMarkup {
	rows := make([][]models.InlineKeyboardButton, 0, len(domain.SettingsFields())+1)
	for _, field := range domain.SettingsFields() {
		rows = append(rows, []models.InlineKeyboardButton{
			{Text: "✏️ " + fieldLabels[field], CallbackData: callbackSettingsEdit + field},
		})
	}
	rows = append(rows, []models.InlineKeyboardButton{
		{Text: "♻️ Reset to defaults", CallbackData: callbackSettingsReset},
		{Text: "✖️ Close", CallbackData: callbackSettingsClose},
	})

	return &models.InlineKeyboardMarkup{InlineKeyboard: rows}
}

func editPrompt(field, window string) string {
	prompt := fmt.Sprintf("✍️ Send the new %s within %s. Use /cancel to abort.", strings.ToLower(fieldLabels[field]), window)
	switch field {
	case domain.FieldStartPicture:
		prompt += "\nSend a photo or an image URL."
	case domain.FieldStartMessage:
		prompt += "\nUse " + domain.NamePlaceholder + " where the user's name should appear. HTML formatting is supported."
	case domain.FieldHelpMessage:
		prompt += "\nHTML formatting is supported."
	}
	return prompt
}

func parseUserID(raw, usage string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.ContainsFunc(raw, func(r rune) bool { return r == ' ' || r == '\n' || r == '\t' }) {
		return 0, domain.NewUsageError(usage)
	}

	userID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || userID == 0 {
		return 0, domain.NewUsageError(usage)
	}

	return userID, nil
}

func displayName(in inbound) string {
	if name := strings.TrimSpace(in.firstName); name != "" {
		return name
	}
	if in.username != "" {
		return in.username
	}
	return "there"
}

func preview(value string) string {
	runes := []rune(value)
	if len(runes) <= settingsPreviewLimit {
		return value
	}
	return string(runes[:settingsPreviewLimit]) + "…"
}
