package telegram

import tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

// sender is the subset of the Bot API the handlers need. Request is used for
// methods that do not return a Message (chat actions, callback answers).
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

type botAPISender struct{ api *tgbotapi.BotAPI }

func (s botAPISender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	return s.api.Send(c)
}

func (s botAPISender) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	return s.api.Request(c)
}
