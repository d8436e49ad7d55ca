package notifier

import (
	"context"
	"fmt"
	"strings"

	"loyaltybot/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// BotAPI is the part of *tgbotapi.BotAPI used here.
type BotAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// NewBotAPI connects to Telegram with the bot token.
func NewBotAPI(token string, debug bool) (*tgbotapi.BotAPI, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram auth: %w", err)
	}
	api.Debug = debug
	return api, nil
}

type Notifier struct {
	api     BotAPI
	limiter *rate.Limiter
	logger  *zerolog.Logger
}

// New wraps api. Outbound calls share one token bucket of perSecond with burst.
func New(api BotAPI, perSecond float64, burst int, logger *zerolog.Logger) *Notifier {
	if perSecond <= 0 {
		perSecond = 25
	}
	if burst <= 0 {
		burst = 1
	}
	return &Notifier{
		api:     api,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
		logger:  logger,
	}
}

func replyMarkup(reply models.Reply) interface{} {
	switch {
	case len(reply.Inline) > 0:
		return inlineMarkup(reply.Inline)
	case len(reply.Keyboard) > 0:
		rows := make([][]tgbotapi.KeyboardButton, 0, len(reply.Keyboard))
		for _, r := range reply.Keyboard {
			row := make([]tgbotapi.KeyboardButton, 0, len(r))
			for _, b := range r {
				if b.RequestContact {
					row = append(row, tgbotapi.NewKeyboardButtonContact(b.Text))
				} else {
					row = append(row, tgbotapi.NewKeyboardButton(b.Text))
				}
			}
			rows = append(rows, row)
		}
		return tgbotapi.NewReplyKeyboard(rows...)
	case reply.RemoveKeyboard:
		return tgbotapi.NewRemoveKeyboard(true)
	}
	return nil
}

func inlineMarkup(buttons [][]models.Button) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(buttons))
	for _, r := range buttons {
		row := make([]tgbotapi.InlineKeyboardButton, 0, len(r))
		for _, b := range r {
			row = append(row, tgbotapi.NewInlineKeyboardButtonData(b.Text, b.Data))
		}
		rows = append(rows, row)
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// Send delivers an HTML message and returns its id.
func (n *Notifier) Send(ctx context.Context, chatID int64, reply models.Reply) (int, error) {
	if err := n.limiter.Wait(ctx); err != nil {
		return 0, err
	}

	msg := tgbotapi.NewMessage(chatID, reply.Text)
	msg.ParseMode = models.ParseModeHTML
	msg.DisableWebPagePreview = true
	if markup := replyMarkup(reply); markup != nil {
		msg.ReplyMarkup = markup
	}

	sent, err := n.api.Send(msg)
	if err != nil {
		n.logger.Error().Err(err).Int64("chat_id", chatID).Msg("send message failed")
		return 0, fmt.Errorf("send message to %d: %w", chatID, err)
	}
	return sent.MessageID, nil
}

// Edit replaces text and inline keyboard of a sent message. Without Inline buttons the keyboard is removed.
func (n *Notifier) Edit(ctx context.Context, chatID int64, messageID int, reply models.Reply) error {
	if err := n.limiter.Wait(ctx); err != nil {
		return err
	}

	var edit tgbotapi.EditMessageTextConfig
	if len(reply.Inline) > 0 {
		edit = tgbotapi.NewEditMessageTextAndMarkup(chatID, messageID, reply.Text, inlineMarkup(reply.Inline))
	} else {
		edit = tgbotapi.NewEditMessageText(chatID, messageID, reply.Text)
	}
	edit.ParseMode = models.ParseModeHTML

	if _, err := n.api.Request(edit); err != nil {
		if strings.Contains(err.Error(), "message is not modified") {
			return nil
		}
		n.logger.Error().Err(err).Int64("chat_id", chatID).Int("message_id", messageID).Msg("edit message failed")
		return fmt.Errorf("edit message %d in %d: %w", messageID, chatID, err)
	}
	return nil
}

func (n *Notifier) AnswerCallback(ctx context.Context, callbackID, text string) error {
	if err := n.limiter.Wait(ctx); err != nil {
		return err
	}
	if _, err := n.api.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		return fmt.Errorf("answer callback: %w", err)
	}
	return nil
}

// SendDocument uploads a local file.
func (n *Notifier) SendDocument(ctx context.Context, chatID int64, path, caption string) error {
	if err := n.limiter.Wait(ctx); err != nil {
		return err
	}
	doc := tgbotapi.NewDocument(chatID, tgbotapi.FilePath(path))
	doc.Caption = caption
	if _, err := n.api.Send(doc); err != nil {
		n.logger.Error().Err(err).Int64("chat_id", chatID).Str("path", path).Msg("send document failed")
		return fmt.Errorf("send document to %d: %w", chatID, err)
	}
	return nil
}

// Updates long-polls Telegram and yields translated updates until ctx is done.
func (n *Notifier) Updates(ctx context.Context) <-chan models.Inbound {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = 60
	updates := n.api.GetUpdatesChan(cfg)

	out := make(chan models.Inbound)
	go func() {
		defer close(out)
		defer n.api.StopReceivingUpdates()
		for {
			select {
			case <-ctx.Done():
				return
			case u, ok := <-updates:
				if !ok {
					return
				}
				in, ok := Translate(u)
				if !ok {
					continue
				}
				select {
				case out <- in:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

// Translate reduces an update to an Inbound. Updates without a private chat sender are skipped.
func Translate(u tgbotapi.Update) (models.Inbound, bool) {
	switch {
	case u.CallbackQuery != nil:
		cq := u.CallbackQuery
		if cq.From == nil {
			return models.Inbound{}, false
		}
		in := models.Inbound{
			UpdateID:  u.UpdateID,
			ChatID:    cq.From.ID,
			UserID:    cq.From.ID,
			Username:  cq.From.UserName,
			FirstName: cq.From.FirstName,
			LastName:  cq.From.LastName,
			Callback:  &models.Callback{ID: cq.ID, Data: cq.Data},
		}
		if cq.Message != nil {
			if cq.Message.Chat != nil {
				in.ChatID = cq.Message.Chat.ID
			}
			in.Callback.MessageID = cq.Message.MessageID
			in.Callback.MessageText = cq.Message.Text
		}
		return in, true

	case u.Message != nil:
		m := u.Message
		if m.From == nil || m.Chat == nil {
			return models.Inbound{}, false
		}
		in := models.Inbound{
			UpdateID:  u.UpdateID,
			ChatID:    m.Chat.ID,
			UserID:    m.From.ID,
			Username:  m.From.UserName,
			FirstName: m.From.FirstName,
			LastName:  m.From.LastName,
			MessageID: m.MessageID,
			Text:      strings.TrimSpace(m.Text),
		}
		if m.IsCommand() {
			in.Command = m.Command()
		}
		if m.Contact != nil {
			in.Contact = &models.Contact{
				UserID:      m.Contact.UserID,
				PhoneNumber: m.Contact.PhoneNumber,
				FirstName:   m.Contact.FirstName,
				LastName:    m.Contact.LastName,
			}
		}
		return in, true
	}
	return models.Inbound{}, false
}
