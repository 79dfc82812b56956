package bot

import (
	"context"
	"errors"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func TestToIncoming(t *testing.T) {
	command := tgbotapi.Update{Message: &tgbotapi.Message{
		Text:     "/send 1 hi there",
		Chat:     &tgbotapi.Chat{ID: 7},
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: 5}},
	}}
	in, ok := toIncoming(command)
	if !ok || in != (Incoming{ChatID: 7, Command: "send", Args: "1 hi there"}) {
		t.Errorf("toIncoming(command) = %+v, %v", in, ok)
	}

	plain := tgbotapi.Update{Message: &tgbotapi.Message{Text: "hello", Chat: &tgbotapi.Chat{ID: 7}}}
	in, ok = toIncoming(plain)
	if !ok || in != (Incoming{ChatID: 7, Args: "hello"}) {
		t.Errorf("toIncoming(plain) = %+v, %v", in, ok)
	}

	if _, ok := toIncoming(tgbotapi.Update{}); ok {
		t.Error("update without message should be ignored")
	}
}

func TestNewTelegramRequiresToken(t *testing.T) {
	if _, err := NewTelegram(""); err == nil {
		t.Error("expected error for empty token")
	}
}

func TestServeUpdatesFailsWhenStreamCloses(t *testing.T) {
	app, messenger := newTestApp(t, &fakeAPI{})
	updates := make(chan tgbotapi.Update, 2)
	updates <- tgbotapi.Update{Message: &tgbotapi.Message{
		Text:     "/help",
		Chat:     &tgbotapi.Chat{ID: 3},
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: 5}},
	}}
	updates <- tgbotapi.Update{}
	close(updates)

	err := serveUpdates(context.Background(), updates, app)
	if !errors.Is(err, errUpdatesClosed) {
		t.Fatalf("serveUpdates() error = %v, want %v", err, errUpdatesClosed)
	}
	if msg := messenger.last(t); msg.chatID != 3 || msg.text != helpText {
		t.Errorf("queued update not handled before close: %+v", msg)
	}
}

func TestServeUpdatesStopsOnCancel(t *testing.T) {
	app, _ := newTestApp(t, &fakeAPI{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := serveUpdates(ctx, make(chan tgbotapi.Update), app); err != nil {
		t.Errorf("serveUpdates() after cancel = %v, want nil", err)
	}
}
