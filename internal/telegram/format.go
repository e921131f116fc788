package telegram

import (
	"html"
	"strings"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Telegram rejects messages longer than this many characters.
const maxMessageLen = 4096

var markdownV2Replacer = strings.NewReplacer(
	"_", "\\_", "*", "\\*", "[", "\\[", "]", "\\]", "(", "\\(", ")", "\\)", "~", "\\~",
	"`", "\\`", ">", "\\>", "#", "\\#", "+", "\\+", "-", "\\-", "=", "\\=", "|", "\\|",
	"{", "\\{", "}", "\\}", ".", "\\.", "!", "\\!",
)

func escapeMarkdownV2(s string) string {
	return markdownV2Replacer.Replace(s)
}

// parseModeValue normalizes the configured mode; unknown values disable formatting.
func (b *Bot) parseModeValue() string {
	switch strings.ToLower(strings.TrimSpace(b.parseMode)) {
	case "html":
		return tgbotapi.ModeHTML
	case "markdownv2":
		return tgbotapi.ModeMarkdownV2
	case "markdown":
		return tgbotapi.ModeMarkdown
	default:
		return ""
	}
}

// escapeIfNeeded makes plain text safe for the active parse mode.
func (b *Bot) escapeIfNeeded(s string) string {
	switch b.parseModeValue() {
	case tgbotapi.ModeHTML:
		return html.EscapeString(s)
	case tgbotapi.ModeMarkdownV2:
		return escapeMarkdownV2(s)
	default:
		return s
	}
}

// splitMessage cuts s into chunks of at most limit runes, preferring line breaks.
func splitMessage(s string, limit int) []string {
	if utf8.RuneCountInString(s) <= limit {
		return []string{s}
	}
	var chunks []string
	runes := []rune(s)
	for len(runes) > limit {
		cut := limit
		for i := limit; i > limit/2; i-- {
			if runes[i-1] == '\n' {
				cut = i
				break
			}
		}
		chunks = append(chunks, string(runes[:cut]))
		runes = runes[cut:]
	}
	if len(runes) > 0 {
		chunks = append(chunks, string(runes))
	}
	return chunks
}
