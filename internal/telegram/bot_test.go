package telegram

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"match-chatter/internal/auth"
	"match-chatter/internal/engine"
	"match-chatter/internal/orchestrator"
)

type fakeSender struct {
	mu       sync.Mutex
	sent     []tgbotapi.MessageConfig
	requests []tgbotapi.Chattable
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, c.(tgbotapi.MessageConfig))
	return tgbotapi.Message{}, nil
}

func (f *fakeSender) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeSender) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.sent))
	for _, m := range f.sent {
		out = append(out, m.Text)
	}
	return out
}

type fakeHandler struct {
	mu     sync.Mutex
	reply  engine.Reply
	err    error
	texts  []string
	resets []string
}

func (f *fakeHandler) Handle(_ context.Context, userID, text string) (engine.Reply, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, userID+":"+text)
	return f.reply, f.err
}

func (f *fakeHandler) Reset(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets = append(f.resets, userID)
	return nil
}

func textMessage(userID int64, text string) *tgbotapi.Message {
	return &tgbotapi.Message{From: &tgbotapi.User{ID: userID}, Chat: &tgbotapi.Chat{ID: 100}, Text: text}
}

func commandMessage(userID int64, cmd string) *tgbotapi.Message {
	m := textMessage(userID, cmd)
	m.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd)}}
	return m
}

func TestHandleIncomingMessage_RepliesWithResetButton(t *testing.T) {
	fs := &fakeSender{}
	h := &fakeHandler{reply: engine.Reply{Text: "Зенит <сильнее> 2:1"}}
	b := newBot(fs, h, nil, "HTML", nil)

	b.handleIncomingMessage(context.Background(), textMessage(42, " Зенит - Спартак "))

	if len(h.texts) != 1 || h.texts[0] != "42:Зенит - Спартак" {
		t.Fatalf("handler got %v", h.texts)
	}
	if len(fs.sent) != 1 {
		t.Fatalf("expected 1 message, got %d", len(fs.sent))
	}
	out := fs.sent[0]
	if out.Text != "Зенит &lt;сильнее&gt; 2:1" || out.ParseMode != tgbotapi.ModeHTML {
		t.Fatalf("reply not escaped for HTML: %+v", out)
	}
	kb, ok := out.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	if !ok || *kb.InlineKeyboard[0][0].CallbackData != resetCmd {
		t.Fatalf("reset button missing: %+v", out.ReplyMarkup)
	}
	if len(fs.requests) != 1 {
		t.Fatalf("typing action not sent")
	}
}

func TestHandleIncomingMessage_MapsErrors(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{orchestrator.ErrConcurrentRequest, engine.MsgConcurrent},
		{orchestrator.ErrTimeout, engine.MsgTimeout},
		{errors.New("boom"), engine.MsgGeneric},
	}
	for _, tc := range cases {
		fs := &fakeSender{}
		b := newBot(fs, &fakeHandler{err: tc.err}, nil, "", nil)
		b.handleIncomingMessage(context.Background(), textMessage(1, "q"))
		got := fs.texts()
		if len(got) != 1 || got[0] != tc.want {
			t.Fatalf("%v: got %v", tc.err, got)
		}
	}
}

func TestHandleIncomingMessage_AllowList(t *testing.T) {
	fs := &fakeSender{}
	h := &fakeHandler{reply: engine.Reply{Text: "ok"}}
	svc, err := auth.NewWithRepo(nil, []int64{7})
	if err != nil {
		t.Fatalf("auth: %v", err)
	}
	b := newBot(fs, h, svc, "", nil)

	b.handleIncomingMessage(context.Background(), textMessage(8, "q"))
	if len(h.texts) != 0 || fs.texts()[0] != msgUnauthorized {
		t.Fatalf("unauthorized user reached the engine: %v %v", h.texts, fs.texts())
	}

	b.handleIncomingMessage(context.Background(), textMessage(7, "q"))
	if len(h.texts) != 1 {
		t.Fatalf("allowed user rejected")
	}
}

func TestHandleCommand_StartResets(t *testing.T) {
	fs := &fakeSender{}
	h := &fakeHandler{}
	b := newBot(fs, h, nil, "", nil)

	b.handleIncomingMessage(context.Background(), commandMessage(42, "/start"))
	if len(h.resets) != 1 || h.resets[0] != "42" || len(h.texts) != 0 {
		t.Fatalf("start must reset, not complete: %v %v", h.resets, h.texts)
	}
	if got := fs.texts(); len(got) != 1 || got[0] != msgWelcome {
		t.Fatalf("welcome not sent: %v", got)
	}
}

func TestHandleCallback_Reset(t *testing.T) {
	fs := &fakeSender{}
	h := &fakeHandler{}
	b := newBot(fs, h, nil, "", nil)

	cb := &tgbotapi.CallbackQuery{
		ID:      "cb1",
		From:    &tgbotapi.User{ID: 42},
		Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 100}},
		Data:    resetCmd,
	}
	b.handleUpdate(context.Background(), tgbotapi.Update{CallbackQuery: cb})

	if len(h.resets) != 1 || h.resets[0] != "42" {
		t.Fatalf("reset not called: %v", h.resets)
	}
	if got := fs.texts(); len(got) != 1 || got[0] != msgReset {
		t.Fatalf("confirmation not sent: %v", got)
	}
}

func TestSendReply_SplitsLongText(t *testing.T) {
	fs := &fakeSender{}
	b := newBot(fs, &fakeHandler{}, nil, "", nil)

	line := strings.Repeat("а", 99) + "\n"
	b.sendReply(1, strings.Repeat(line, 80))

	if len(fs.sent) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(fs.sent))
	}
	for i, m := range fs.sent {
		if n := len([]rune(m.Text)); n > replyChunkLen {
			t.Fatalf("chunk %d too long: %d", i, n)
		}
		_, hasKB := m.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
		if hasKB != (i == len(fs.sent)-1) {
			t.Fatalf("keyboard must be on the last chunk only")
		}
	}
}

func TestEscapeIfNeeded(t *testing.T) {
	if got := (&Bot{parseMode: "MarkdownV2"}).escapeIfNeeded("2:1 (x)."); got != `2:1 \(x\)\.` {
		t.Fatalf("markdownv2: %q", got)
	}
	if got := (&Bot{parseMode: "none"}).escapeIfNeeded("<b>"); got != "<b>" {
		t.Fatalf("plain: %q", got)
	}
}
