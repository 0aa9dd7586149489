package telegram

import (
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Bot is the subset of the Telegram Bot API the channel uses.
type Bot interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetSelf() tgbotapi.User
	GetFile(config tgbotapi.FileConfig) (tgbotapi.File, error)
}

type botAPI struct {
	bot *tgbotapi.BotAPI
}

func (b *botAPI) GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return b.bot.GetUpdatesChan(config)
}

func (b *botAPI) StopReceivingUpdates() {
	b.bot.StopReceivingUpdates()
}

func (b *botAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	return b.bot.Send(c)
}

func (b *botAPI) GetSelf() tgbotapi.User {
	return b.bot.Self
}

func (b *botAPI) GetFile(config tgbotapi.FileConfig) (tgbotapi.File, error) {
	return b.bot.GetFile(config)
}

// BotFactory connects to Telegram. Tests swap it for a fake.
type BotFactory func(token string, client *http.Client) (Bot, error)

func defaultBotFactory(token string, client *http.Client) (Bot, error) {
	bot, err := tgbotapi.NewBotAPIWithClient(token, tgbotapi.APIEndpoint, client)
	if err != nil {
		return nil, err
	}
	return &botAPI{bot: bot}, nil
}
