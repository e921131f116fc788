// Package telegram is the chat transport: it long-polls updates and hands each
// message to the conversation engine on its own goroutine.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"match-chatter/internal/engine"
	"match-chatter/internal/logging"
)

const (
	resetCmd = "reset_ctx"

	// escaping can grow a chunk, so replies are split below the hard limit
	replyChunkLen = maxMessageLen * 3 / 4
)

const (
	msgWelcome      = "Привет! Напишите матч, например «Зенит - Спартак завтра 19:00», и я дам прогноз. Для подробного разбора добавьте «подробнее»."
	msgReset        = "Контекст очищен"
	msgResetFailed  = "Не удалось очистить контекст, попробуйте ещё раз."
	msgUnauthorized = "Доступ к боту ограничен."
	msgTextOnly     = "Пока я понимаю только текстовые сообщения."
)

// Authorizer decides whether a Telegram user may use the bot.
type Authorizer interface {
	IsAllowed(userID int64) bool
}

type allowAll struct{}

func (allowAll) IsAllowed(int64) bool { return true }

// Handler is the conversation engine as seen by the transport.
type Handler interface {
	Handle(ctx context.Context, userID, text string) (engine.Reply, error)
	Reset(ctx context.Context, userID string) error
}

type Bot struct {
	api       *tgbotapi.BotAPI
	s         sender
	handler   Handler
	auth      Authorizer
	parseMode string
	logger    *slog.Logger

	wg sync.WaitGroup
}

// New connects to the Bot API. A nil authorizer lets everyone in.
func New(botToken string, h Handler, auth Authorizer, parseMode string, logger *slog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("connect telegram: %w", err)
	}
	b := newBot(botAPISender{api: api}, h, auth, parseMode, logger)
	b.api = api
	b.logger.Info("authorized on telegram", "account", api.Self.UserName)
	return b, nil
}

func newBot(s sender, h Handler, auth Authorizer, parseMode string, logger *slog.Logger) *Bot {
	if auth == nil {
		auth = allowAll{}
	}
	return &Bot{
		s:         s,
		handler:   h,
		auth:      auth,
		parseMode: parseMode,
		logger:    logging.OrDefault(logger),
	}
}

// Start blocks until ctx is done, then waits for in-flight updates to finish.
func (b *Bot) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	defer b.wg.Wait()

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			b.logger.Info("telegram polling stopped")
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.wg.Add(1)
			go func() {
				defer b.wg.Done()
				b.handleUpdate(ctx, update)
			}()
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("update handler panicked", "update_id", update.UpdateID, "panic", r)
		}
	}()

	switch {
	case update.Message != nil:
		b.handleIncomingMessage(ctx, update.Message)
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)
	}
}

func (b *Bot) handleIncomingMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil {
		return
	}
	if !b.auth.IsAllowed(msg.From.ID) {
		b.logger.Warn("unauthorized access attempt", "user_id", msg.From.ID, "username", msg.From.UserName)
		b.sendMessage(msg.Chat.ID, msgUnauthorized)
		return
	}

	if msg.IsCommand() {
		b.handleCommand(ctx, msg)
		return
	}

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		b.sendMessage(msg.Chat.ID, msgTextOnly)
		return
	}

	userID := strconv.FormatInt(msg.From.ID, 10)
	b.logger.Info("incoming message", "user_id", msg.From.ID, "username", msg.From.UserName)

	if _, err := b.s.Request(tgbotapi.NewChatAction(msg.Chat.ID, tgbotapi.ChatTyping)); err != nil {
		b.logger.Debug("failed to send chat action", "error", err)
	}

	reply, err := b.handler.Handle(ctx, userID, text)
	if err != nil {
		b.logger.Warn("request failed", "user_id", msg.From.ID, "request_id", reply.RequestID, "error", err)
		b.sendMessage(msg.Chat.ID, engine.UserMessage(err))
		return
	}
	b.sendReply(msg.Chat.ID, reply.Text)
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	switch msg.Command() {
	case "start":
		if err := b.handler.Reset(ctx, strconv.FormatInt(msg.From.ID, 10)); err != nil {
			b.logger.Error("failed to reset session", "user_id", msg.From.ID, "error", err)
		}
		b.sendWithKeyboard(msg.Chat.ID, b.escapeIfNeeded(msgWelcome))
	case "reset":
		b.reset(ctx, msg.Chat.ID, msg.From.ID)
	default:
		b.sendMessage(msg.Chat.ID, msgWelcome)
	}
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if cb.From == nil || cb.Message == nil {
		return
	}
	if _, err := b.s.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		b.logger.Debug("failed to answer callback", "error", err)
	}
	if !b.auth.IsAllowed(cb.From.ID) {
		return
	}
	if cb.Data == resetCmd {
		b.reset(ctx, cb.Message.Chat.ID, cb.From.ID)
	}
}

func (b *Bot) reset(ctx context.Context, chatID, userID int64) {
	if err := b.handler.Reset(ctx, strconv.FormatInt(userID, 10)); err != nil {
		b.logger.Error("failed to reset session", "user_id", userID, "error", err)
		b.sendMessage(chatID, msgResetFailed)
		return
	}
	b.sendMessage(chatID, msgReset)
}

func (b *Bot) resetKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Сбросить контекст", resetCmd),
		),
	)
}

// sendReply sends the assistant text in chunks; the reset button goes on the last one.
func (b *Bot) sendReply(chatID int64, text string) {
	chunks := splitMessage(text, replyChunkLen)
	for i, chunk := range chunks {
		if i == len(chunks)-1 {
			b.sendWithKeyboard(chatID, b.escapeIfNeeded(chunk))
			continue
		}
		b.send(tgbotapi.NewMessage(chatID, b.escapeIfNeeded(chunk)))
	}
}

func (b *Bot) sendWithKeyboard(chatID int64, escaped string) {
	msg := tgbotapi.NewMessage(chatID, escaped)
	msg.ReplyMarkup = b.resetKeyboard()
	b.send(msg)
}

func (b *Bot) sendMessage(chatID int64, text string) {
	b.send(tgbotapi.NewMessage(chatID, b.escapeIfNeeded(text)))
}

// send applies the parse mode and logs failures.
func (b *Bot) send(msg tgbotapi.MessageConfig) {
	msg.ParseMode = b.parseModeValue()
	if _, err := b.s.Send(msg); err != nil {
		b.logger.Error("failed to send message", "chat_id", msg.ChatID, "error", err)
	}
}
