package notify

import (
	"fmt"
	"time"

	"clipcast/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// TelegramNotifier pushes operator alerts to a Telegram chat: abandoned
// jobs, exhausted checkbacks and starving platforms. Delivery is best
// effort; a failed send is logged and dropped.
type TelegramNotifier struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	logger zerolog.Logger
}

func NewTelegramNotifier(token string, chatID int64, logger *zerolog.Logger) (*TelegramNotifier, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	log := zerolog.Nop()
	if logger != nil {
		log = logger.With().Str("component", "notifier").Logger()
	}
	log.Info().Str("bot", bot.Self.UserName).Msg("telegram notifier ready")

	return &TelegramNotifier{bot: bot, chatID: chatID, logger: log}, nil
}

func (n *TelegramNotifier) NotifyJobAbandoned(job *models.PublishJob) {
	lastError := ""
	if job.LastError != nil {
		lastError = *job.LastError
	}
	n.send(fmt.Sprintf(
		"❌ Publish job abandoned\nJob: %d\nContent: %d\nPlatform: %s (%s)\nAttempts: %d\nError: %s",
		job.ID, job.ContentID, job.Platform, job.Account, job.RetryCount+1, lastError,
	))
}

func (n *TelegramNotifier) NotifyCheckbackSkipped(task *models.CheckbackTask) {
	n.send(fmt.Sprintf(
		"⚠️ Checkback skipped\nTask: %d\nContent: %d\nPlatform: %s (%s)\nOffset: +%dh\nAttempts: %d",
		task.ID, task.ContentID, task.Platform, task.Account, task.OffsetHours, task.Attempts,
	))
}

func (n *TelegramNotifier) NotifyStarvation(platform, account string, lastSlot time.Time) {
	n.send(fmt.Sprintf(
		"🕳 Platform starving\nPlatform: %s (%s)\nLast slot: %s\nNo content queued inside the max gap.",
		platform, account, lastSlot.Format("02.01.2006 15:04"),
	))
}

func (n *TelegramNotifier) send(text string) {
	msg := tgbotapi.NewMessage(n.chatID, text)
	if _, err := n.bot.Send(msg); err != nil {
		n.logger.Error().Err(err).Msg("failed to send telegram notification")
	}
}

// NopNotifier is used when operator notifications are disabled.
type NopNotifier struct{}

func (NopNotifier) NotifyJobAbandoned(*models.PublishJob)        {}
func (NopNotifier) NotifyCheckbackSkipped(*models.CheckbackTask) {}
func (NopNotifier) NotifyStarvation(string, string, time.Time)   {}
