package server

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type TelegramConfig struct {
	BotToken           string
	AllowedUserIDs     []int64
	LongPollingTimeout int
	Debug              bool
}

func NewTelegramConfigFromEnv() *TelegramConfig {
	config := &TelegramConfig{
		BotToken:           strings.TrimSpace(os.Getenv("TELEGRAM_BOT_TOKEN")),
		LongPollingTimeout: 60,
		Debug:              os.Getenv("TELEGRAM_DEBUG") == "true",
	}

	if pollingStr := os.Getenv("TELEGRAM_LONG_POLLING_TIMEOUT"); pollingStr != "" {
		if polling, err := strconv.Atoi(pollingStr); err == nil && polling > 0 {
			config.LongPollingTimeout = polling
		}
	}

	if userIDsStr := os.Getenv("TELEGRAM_ALLOWED_USER_IDS"); userIDsStr != "" {
		for _, idStr := range strings.Split(userIDsStr, ",") {
			if id, err := strconv.ParseInt(strings.TrimSpace(idStr), 10, 64); err == nil {
				config.AllowedUserIDs = append(config.AllowedUserIDs, id)
			}
		}
	}

	return config
}

// TelegramGateway is a second realtime channel into the bridge: each incoming
// text message becomes one invocation, and the outcome goes back to the chat
// that sent it.
type TelegramGateway struct {
	bot    *tgbotapi.BotAPI
	config *TelegramConfig
	store  *Store
	bridge *Bridge
}

func NewTelegramGateway(config *TelegramConfig, store *Store, bridge *Bridge) (*TelegramGateway, error) {
	if config == nil {
		return nil, fmt.Errorf("telegram config is required")
	}
	if strings.TrimSpace(config.BotToken) == "" {
		return nil, fmt.Errorf("telegram bot token is required")
	}

	bot, err := tgbotapi.NewBotAPI(strings.TrimSpace(config.BotToken))
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %v", err)
	}
	bot.Debug = config.Debug

	return &TelegramGateway{
		bot:    bot,
		config: config,
		store:  store,
		bridge: bridge,
	}, nil
}

func (tg *TelegramGateway) Start(ctx context.Context) error {
	log.Printf("Starting Telegram gateway @%s", tg.bot.Self.UserName)

	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = tg.config.LongPollingTimeout

	updates := tg.bot.GetUpdatesChan(updateConfig)

	for {
		select {
		case <-ctx.Done():
			log.Println("Telegram gateway stopped")
			return nil
		case update := <-updates:
			go tg.handleUpdate(ctx, update)
		}
	}
}

func (tg *TelegramGateway) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	if update.Message == nil {
		return
	}

	userID := update.Message.From.ID
	chatID := update.Message.Chat.ID
	text := strings.TrimSpace(update.Message.Text)

	if !tg.isUserAllowed(userID) {
		tg.sendMessage(chatID, "Sorry, you are not allowed to use this bot.")
		return
	}

	if strings.HasPrefix(text, "/") {
		tg.handleCommand(chatID, text)
		return
	}
	if text == "" {
		return
	}

	settings := tg.store.CLISettings()
	res, err := tg.bridge.Invoke(ctx, settings, InvokeRequest{Message: text})
	if err != nil {
		tg.sendMessage(chatID, err.Error())
		return
	}
	tg.sendMessage(chatID, res.Content)
}

func (tg *TelegramGateway) isUserAllowed(userID int64) bool {
	if len(tg.config.AllowedUserIDs) == 0 {
		return true
	}
	for _, allowedID := range tg.config.AllowedUserIDs {
		if userID == allowedID {
			return true
		}
	}
	return false
}

func (tg *TelegramGateway) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := tg.bot.Send(msg); err != nil {
		log.Printf("Error sending telegram message: %v", err)
	}
}

func (tg *TelegramGateway) handleCommand(chatID int64, text string) {
	cmd := strings.Fields(text)
	if len(cmd) == 0 {
		return
	}

	switch cmd[0] {
	case "/start":
		tg.sendMessage(chatID, "Welcome! Send a message and it will be forwarded to the configured CLI.")
	case "/help":
		tg.sendMessage(chatID, "Usage:\n- Send any text to run it through the CLI\n- /start shows the welcome message")
	default:
		tg.sendMessage(chatID, "Unknown command, send /help for usage")
	}
}
