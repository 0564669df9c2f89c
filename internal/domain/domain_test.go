package domain

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestDefaultSettingsCarryPlaceholder(t *testing.T) {
	s := DefaultSettings()

	if !strings.Contains(s.StartMessage, NamePlaceholder) {
		t.Fatalf("default start message must contain %s", NamePlaceholder)
	}
	if s.HelpMessage == "" {
		t.Fatalf("default help message must not be empty")
	}
	if s.StartPicture != "" {
		t.Fatalf("no start picture is configured until the owner sets one, got %q", s.StartPicture)
	}
}

func TestRenderStartReplacesEveryPlaceholder(t *testing.T) {
	s := Settings{StartMessage: "Hi {name}, {name}!"}

	if got := s.RenderStart("Ann"); got != "Hi Ann, Ann!" {
		t.Fatalf("unexpected render %q", got)
	}

	s.StartMessage = "Welcome"
	if got := s.RenderStart("Ann"); got != "Welcome" {
		t.Fatalf("template without placeholder must be unchanged, got %q", got)
	}
}

func TestSettingsFields(t *testing.T) {
	s := Settings{StartPicture: "p", StartMessage: "m", HelpMessage: "h"}

	want := map[string]string{
		FieldStartPicture: "p",
		FieldStartMessage: "m",
		FieldHelpMessage:  "h",
	}
	for _, field := range SettingsFields() {
		if !IsSettingsField(field) {
			t.Fatalf("%s must be a settings field", field)
		}
		if got := s.Value(field); got != want[field] {
			t.Fatalf("Value(%s) = %q, want %q", field, got, want[field])
		}
	}

	if IsSettingsField("footer") || s.Value("footer") != "" {
		t.Fatalf("unknown field must be rejected")
	}
}

func TestIsPrivileged(t *testing.T) {
	if !IsPrivileged(RoleOwner) || !IsPrivileged(RoleAdmin) || IsPrivileged(RoleUser) {
		t.Fatalf("unexpected privilege mapping")
	}
}

func TestErrorTypes(t *testing.T) {
	cause := errors.New("blocked")
	wrapped := fmt.Errorf("send: %w", &DeliveryFailure{ChatID: 9, Err: cause})

	var failure *DeliveryFailure
	if !errors.As(wrapped, &failure) || failure.ChatID != 9 {
		t.Fatalf("expected DeliveryFailure for chat 9, got %v", wrapped)
	}
	if !errors.Is(wrapped, cause) {
		t.Fatalf("DeliveryFailure must unwrap to its cause")
	}

	usage := NewUsageError("/reply %s", "<user_id> <text>")
	if usage.Message != "/reply <user_id> <text>" {
		t.Fatalf("unexpected usage message %q", usage.Message)
	}

	authz := &AuthorizationError{UserID: 5, Required: RoleOwner}
	if authz.Error() != "user 5 lacks owner privileges" {
		t.Fatalf("unexpected authorization error %q", authz.Error())
	}

	field := &InvalidFieldError{Field: "footer"}
	if !strings.Contains(field.Error(), `"footer"`) {
		t.Fatalf("unexpected field error %q", field.Error())
	}
}

func TestMessageLengthCountsUTF16Units(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{text: "", want: 0},
		{text: "hello", want: 5},
		{text: "привет", want: 6},
		{text: "📨", want: 2},
		{text: strings.Repeat("a", MessageLimit), want: MessageLimit},
	}

	for _, tt := range tests {
		if got := MessageLength(tt.text); got != tt.want {
			t.Fatalf("MessageLength(%.10q) = %d, want %d", tt.text, got, tt.want)
		}
	}
}
