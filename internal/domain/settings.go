package domain

import "strings"

// Settings field names as stored in the settings document.
const (
	FieldStartPicture = "start_picture"
	FieldStartMessage = "start_message"
	FieldHelpMessage  = "help_message"
)

// NamePlaceholder is substituted with the user's display name when the start
// message is rendered.
const NamePlaceholder = "{name}"

// Compiled-in defaults seeded into the settings document on first read.
const (
	DefaultStartPicture = ""
	DefaultStartMessage = "👋 <b>Hey {name}!</b>\n\n" +
		"Welcome to the Contact Bot.\n" +
		"You can use this bot to send messages directly to the admins or owner.\n\n" +
		"🪄 Just send any message and it will be delivered to the admins."
	DefaultHelpMessage = "🧭 <b>Help Menu</b>\n\n" +
		"👤 <b>User Commands:</b>\n" +
		"• /start - Start the bot\n" +
		"• /help - Show this help message\n" +
		"• Send any text to contact the admins\n\n" +
		"🛠️ <b>Admin Commands:</b>\n" +
		"• /admins - Show admin list\n" +
		"• /users - Show total users\n" +
		"• /reply &lt;user_id&gt; &lt;text&gt; - Reply to a user\n\n" +
		"👑 <b>Owner Commands:</b>\n" +
		"• /addadmin &lt;user_id&gt; - Add new admin\n" +
		"• /deladmin &lt;user_id&gt; - Remove admin\n" +
		"• /broadcast &lt;text&gt; - Send broadcast to all users\n" +
		"• /settings - Edit start picture and texts\n" +
		"• /cancel - Abort a pending edit or reply"
)

// Settings is the single customizable document behind /start and /help.
type Settings struct {
	StartPicture string `bson:"start_picture" json:"start_picture"`
	StartMessage string `bson:"start_message" json:"start_message"`
	HelpMessage  string `bson:"help_message" json:"help_message"`
}

// DefaultSettings returns the compiled-in settings.
func DefaultSettings() Settings {
	return Settings{
		StartPicture: DefaultStartPicture,
		StartMessage: DefaultStartMessage,
		HelpMessage:  DefaultHelpMessage,
	}
}

// SettingsFields lists the editable fields in menu order.
func SettingsFields() []string {
	return []string{FieldStartPicture, FieldStartMessage, FieldHelpMessage}
}

// IsSettingsField reports whether name is an editable settings field.
func IsSettingsField(name string) bool {
	for _, field := range SettingsFields() {
		if field == name {
			return true
		}
	}
	return false
}

// Value returns the stored value of field, or "" for unknown fields.
func (s Settings) Value(field string) string {
	switch field {
	case FieldStartPicture:
		return s.StartPicture
	case FieldStartMessage:
		return s.StartMessage
	case FieldHelpMessage:
		return s.HelpMessage
	default:
		return ""
	}
}

// RenderStart substitutes name into the start message template. The caller
// is responsible for escaping name for the target parse mode.
func (s Settings) RenderStart(name string) string {
	return strings.ReplaceAll(s.StartMessage, NamePlaceholder, name)
}
