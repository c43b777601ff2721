package service

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/calmtunes/chat-service/internal/domain"
	apperrors "github.com/calmtunes/chat-service/pkg/util"
)

func startTestConversation(t *testing.T, env *testEnv) *domain.Conversation {
	t.Helper()
	conv, err := env.conversationSvc.Start(context.Background(), testPatient.ID, domain.RolePatient, testTherapist.ID, domain.KindRegular)
	if err != nil {
		t.Fatalf("start conversation: %v", err)
	}
	return conv
}

func TestSendAppendsAndNotifies(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	conv := startTestConversation(t, env)

	msg, err := env.messageSvc.Send(ctx, conv.ID, testPatient.ID, "  hello there  ", "")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if msg.Kind != domain.MessageKindText {
		t.Fatalf("kind = %s, want TEXT", msg.Kind)
	}
	if msg.Body != "hello there" {
		t.Fatalf("body = %q, want trimmed", msg.Body)
	}
	if msg.ID == "" {
		t.Fatalf("message not persisted")
	}

	notifs := env.notifications.ofType(testTherapist.ID, domain.NotificationNewMessage)
	if len(notifs) != 1 {
		t.Fatalf("therapist new_message notifications = %d, want 1", len(notifs))
	}
	if notifs[0].Body != "hello there" {
		t.Fatalf("notification body = %q", notifs[0].Body)
	}
	if notifs[0].Payload["sender_id"] != testPatient.ID {
		t.Fatalf("notification payload = %+v", notifs[0].Payload)
	}

	// senders never get notified about their own messages
	if got := env.notifications.ofType(testPatient.ID, domain.NotificationNewMessage); len(got) != 0 {
		t.Fatalf("sender new_message notifications = %d, want 0", len(got))
	}
}

func TestSendValidation(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	conv := startTestConversation(t, env)

	if _, err := env.messageSvc.Send(ctx, conv.ID, testPatient.ID, "   ", ""); !apperrors.IsCode(err, "VALIDATION_FAILED") {
		t.Fatalf("blank body err = %v, want VALIDATION_FAILED", err)
	}
	if _, err := env.messageSvc.Send(ctx, conv.ID, testPatient.ID, "hi", domain.MessageKind("VOICE")); !apperrors.IsCode(err, "VALIDATION_FAILED") {
		t.Fatalf("bad kind err = %v, want VALIDATION_FAILED", err)
	}
	if _, err := env.messageSvc.Send(ctx, "conv-missing", testPatient.ID, "hi", ""); !apperrors.IsCode(err, "NOT_FOUND") {
		t.Fatalf("missing conversation err = %v, want NOT_FOUND", err)
	}
	if _, err := env.messageSvc.Send(ctx, conv.ID, testPatient2.ID, "hi", ""); !apperrors.IsCode(err, "FORBIDDEN") {
		t.Fatalf("outsider err = %v, want FORBIDDEN", err)
	}
}

func TestSendToClosedConversation(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	conv := startTestConversation(t, env)

	if err := env.conversationSvc.Close(ctx, conv.ID, testPatient.ID, "done"); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := env.messageSvc.Send(ctx, conv.ID, testPatient.ID, "one more thing", ""); !apperrors.IsCode(err, "INVALID_STATE") {
		t.Fatalf("send after close err = %v, want INVALID_STATE", err)
	}

	// the log stays readable after closure
	msgs, err := env.messageSvc.Fetch(ctx, conv.ID, testPatient.ID, 0, 0)
	if err != nil {
		t.Fatalf("fetch after close: %v", err)
	}
	if len(msgs) == 0 {
		t.Fatalf("expected closure marker in log")
	}
}

func TestFetchMarksRead(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	conv := startTestConversation(t, env)

	if _, err := env.messageSvc.Send(ctx, conv.ID, testPatient.ID, "first", ""); err != nil {
		t.Fatalf("send: %v", err)
	}
	if _, err := env.messageSvc.Send(ctx, conv.ID, testPatient.ID, "second", ""); err != nil {
		t.Fatalf("send: %v", err)
	}

	unread, err := env.messageSvc.UnreadCount(ctx, conv.ID, testTherapist.ID)
	if err != nil {
		t.Fatalf("unread: %v", err)
	}
	if unread != 2 {
		t.Fatalf("unread before fetch = %d, want 2", unread)
	}

	msgs, err := env.messageSvc.Fetch(ctx, conv.ID, testTherapist.ID, 0, 0)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	// welcome seed plus two texts, in insertion order
	if len(msgs) != 3 {
		t.Fatalf("page = %d messages, want 3", len(msgs))
	}
	if msgs[1].Body != "first" || msgs[2].Body != "second" {
		t.Fatalf("order = %q, %q", msgs[1].Body, msgs[2].Body)
	}
	for _, msg := range msgs {
		if msg.SenderID != testTherapist.ID && !msg.Read {
			t.Fatalf("message %s still unread on returned page", msg.ID)
		}
	}

	unread, err = env.messageSvc.UnreadCount(ctx, conv.ID, testTherapist.ID)
	if err != nil {
		t.Fatalf("unread after fetch: %v", err)
	}
	if unread != 0 {
		t.Fatalf("unread after fetch = %d, want 0", unread)
	}

	// the fetch must not touch the patient's unread state for the
	// therapist-attributed welcome seed
	patientUnread, err := env.messageSvc.UnreadCount(ctx, conv.ID, testPatient.ID)
	if err != nil {
		t.Fatalf("patient unread: %v", err)
	}
	if patientUnread != 1 {
		t.Fatalf("patient unread = %d, want 1", patientUnread)
	}
}

func TestFetchPagination(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	conv := startTestConversation(t, env)

	for i := 0; i < 5; i++ {
		if _, err := env.messageSvc.Send(ctx, conv.ID, testPatient.ID, strings.Repeat("x", i+1), ""); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}

	// offset skips the welcome seed, limit caps the page
	msgs, err := env.messageSvc.Fetch(ctx, conv.ID, testPatient.ID, 2, 1)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("page = %d, want 2", len(msgs))
	}
	if msgs[0].Body != "x" || msgs[1].Body != "xx" {
		t.Fatalf("page order = %q, %q", msgs[0].Body, msgs[1].Body)
	}

	if _, err := env.messageSvc.Fetch(ctx, conv.ID, testPatient2.ID, 0, 0); !apperrors.IsCode(err, "FORBIDDEN") {
		t.Fatalf("outsider fetch err = %v, want FORBIDDEN", err)
	}
}

func TestNotificationPreviewTruncation(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	conv := startTestConversation(t, env)

	long := strings.Repeat("a", 80)
	if _, err := env.messageSvc.Send(ctx, conv.ID, testPatient.ID, long, ""); err != nil {
		t.Fatalf("send: %v", err)
	}

	notifs := env.notifications.ofType(testTherapist.ID, domain.NotificationNewMessage)
	if len(notifs) != 1 {
		t.Fatalf("notifications = %d, want 1", len(notifs))
	}
	preview := notifs[0].Body
	if len(preview) != 50 {
		t.Fatalf("preview length = %d, want 50", len(preview))
	}
	if !strings.HasSuffix(preview, "...") {
		t.Fatalf("preview = %q, want ellipsis suffix", preview)
	}
	if preview[:47] != long[:47] {
		t.Fatalf("preview prefix diverges from body")
	}
}

func TestNotificationPreviewMultibyte(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	conv := startTestConversation(t, env)

	// two-byte runes straddle the old byte cutoff
	long := strings.Repeat("α", 80)
	if _, err := env.messageSvc.Send(ctx, conv.ID, testPatient.ID, long, ""); err != nil {
		t.Fatalf("send: %v", err)
	}

	notifs := env.notifications.ofType(testTherapist.ID, domain.NotificationNewMessage)
	if len(notifs) != 1 {
		t.Fatalf("notifications = %d, want 1", len(notifs))
	}
	preview := notifs[0].Body
	if !utf8.ValidString(preview) {
		t.Fatalf("preview is not valid UTF-8: %q", preview)
	}
	if got := utf8.RuneCountInString(preview); got != 50 {
		t.Fatalf("preview runes = %d, want 50", got)
	}
	if !strings.HasSuffix(preview, "...") {
		t.Fatalf("preview = %q, want ellipsis suffix", preview)
	}
	if !strings.HasPrefix(preview, strings.Repeat("α", 47)) {
		t.Fatalf("preview prefix diverges from body")
	}

	// short multi-byte bodies pass through untouched
	if _, err := env.messageSvc.Send(ctx, conv.ID, testPatient.ID, "привет", ""); err != nil {
		t.Fatalf("send short: %v", err)
	}
	notifs = env.notifications.ofType(testTherapist.ID, domain.NotificationNewMessage)
	if len(notifs) != 2 || notifs[1].Body != "привет" {
		t.Fatalf("short body notification = %+v", notifs)
	}
}

func TestSendSurvivesNotificationFailure(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	conv := startTestConversation(t, env)

	env.notifications.failCreate = true
	msg, err := env.messageSvc.Send(ctx, conv.ID, testPatient.ID, "still delivered", "")
	if err != nil {
		t.Fatalf("send with failing notifications: %v", err)
	}
	if msg.ID == "" {
		t.Fatalf("message not persisted")
	}
	if got := len(env.messages.byConversation(conv.ID)); got != 2 {
		t.Fatalf("messages = %d, want welcome seed plus text", got)
	}
}
