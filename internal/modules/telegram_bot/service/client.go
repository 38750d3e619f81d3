package service

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"perp_bot/pkg/logger"
)

// Controller: то, чем управляют команды чата.
type Controller interface {
	Status() string
	Resume() bool
}

// sender: часть *tgbot.BotAPI, которой хватает для отправки.
type sender interface {
	Send(c tgbot.Chattable) (tgbot.Message, error)
	Request(c tgbot.Chattable) (*tgbot.APIResponse, error)
}

type pending struct {
	ch     chan bool
	msgID  int
	prompt string
}

// Telegram: уведомления в один чат, подтверждение входа кнопками
// и команды /status, /resume.
type Telegram struct {
	bot    *tgbot.BotAPI
	api    sender
	chatID int64

	mu       sync.Mutex
	pendings map[string]*pending
	ctrl     Controller
	cancel   context.CancelFunc
}

func NewTelegram(token string, chatID int64) (*Telegram, error) {
	b, err := tgbot.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	t := newTelegram(b, chatID)
	t.bot = b
	return t, nil
}

func newTelegram(api sender, chatID int64) *Telegram {
	return &Telegram{
		api:      api,
		chatID:   chatID,
		pendings: make(map[string]*pending),
	}
}

// SetController подключает раннер после сборки графа.
func (t *Telegram) SetController(c Controller) {
	t.mu.Lock()
	t.ctrl = c
	t.mu.Unlock()
}

func (t *Telegram) controller() Controller {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ctrl
}

func (t *Telegram) Send(msg string) {
	if _, err := t.api.Send(tgbot.NewMessage(t.chatID, msg)); err != nil {
		logger.Warn("[TG] send: %v", err)
	}
}

func (t *Telegram) Sendf(format string, args ...any) { t.Send(fmt.Sprintf(format, args...)) }

func (t *Telegram) editReplyMarkupRemove(msgID int) error {
	rm := tgbot.InlineKeyboardMarkup{InlineKeyboard: [][]tgbot.InlineKeyboardButton{}}
	_, err := t.api.Request(tgbot.NewEditMessageReplyMarkup(t.chatID, msgID, rm))
	return err
}

func (t *Telegram) editText(msgID int, text string) error {
	_, err := t.api.Request(tgbot.NewEditMessageText(t.chatID, msgID, text))
	return err
}

// Confirm: сообщение с кнопками и ожиданием callback.
func (t *Telegram) Confirm(ctx context.Context, prompt string, timeout time.Duration) bool {
	token := strconv.FormatInt(time.Now().UnixNano(), 10)
	p := &pending{
		ch:     make(chan bool, 1),
		prompt: prompt,
	}

	t.mu.Lock()
	t.pendings[token] = p
	t.mu.Unlock()
	defer t.drop(token)

	btnYes := tgbot.NewInlineKeyboardButtonData("✅ Войти", "CONF::"+token)
	btnNo := tgbot.NewInlineKeyboardButtonData("❌ Пропустить", "REJ::"+token)
	msg := tgbot.NewMessage(t.chatID, prompt)
	msg.ReplyMarkup = tgbot.NewInlineKeyboardMarkup(tgbot.NewInlineKeyboardRow(btnYes, btnNo))

	sent, err := t.api.Send(msg)
	if err != nil {
		logger.Warn("[TG] confirm send: %v", err)
		return false
	}
	t.mu.Lock()
	p.msgID = sent.MessageID
	t.mu.Unlock()

	tmr := time.NewTimer(timeout)
	defer tmr.Stop()

	select {
	case ok := <-p.ch:
		return ok
	case <-tmr.C:
		_ = t.editReplyMarkupRemove(sent.MessageID)
		_ = t.editText(sent.MessageID, prompt+"\n\n⏳ Таймаут")
		return false
	case <-ctx.Done():
		_ = t.editReplyMarkupRemove(sent.MessageID)
		_ = t.editText(sent.MessageID, prompt+"\n\n⛔️ Отменено")
		return false
	}
}

func (t *Telegram) drop(token string) {
	t.mu.Lock()
	delete(t.pendings, token)
	t.mu.Unlock()
}

// Start: long-polling messages + callback_query до Stop.
func (t *Telegram) Start(ctx context.Context) {
	if t.bot == nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	t.mu.Lock()
	t.cancel = cancel
	t.mu.Unlock()

	u := tgbot.NewUpdate(0)
	u.Timeout = 30
	u.AllowedUpdates = []string{"message", "callback_query"}
	updates := t.bot.GetUpdatesChan(u)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case upd, ok := <-updates:
				if !ok {
					return
				}
				t.handleUpdate(upd)
			}
		}
	}()
}

func (t *Telegram) Stop() {
	t.mu.Lock()
	cancel := t.cancel
	t.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if t.bot != nil {
		t.bot.StopReceivingUpdates()
	}
}
