package service

import (
	"strings"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const helpText = "Команды:\n/status: позиция и состояние контура\n/resume: снять останов после сбоя kill switch"

func (t *Telegram) handleUpdate(upd tgbot.Update) {
	if cb := upd.CallbackQuery; cb != nil {
		t.handleCallback(cb)
		return
	}

	msg := upd.Message
	if msg == nil || msg.Chat == nil || msg.Chat.ID != t.chatID || !msg.IsCommand() {
		return
	}

	ctrl := t.controller()
	switch msg.Command() {
	case "status":
		if ctrl == nil {
			t.Send("ℹ️ контур ещё не запущен")
			return
		}
		t.Send(ctrl.Status())
	case "resume":
		if ctrl == nil {
			return
		}
		if ctrl.Resume() {
			t.Send("▶️ торговля возобновлена")
		} else {
			t.Send("ℹ️ контур не был остановлен")
		}
	default:
		t.Send(helpText)
	}
}

// handleCallback разбирает CONF::token / REJ::token от кнопок Confirm.
func (t *Telegram) handleCallback(cb *tgbot.CallbackQuery) {
	_, _ = t.api.Request(tgbot.NewCallback(cb.ID, ""))

	verb, token, ok := parseCallback(cb.Data)
	if !ok {
		return
	}

	t.mu.Lock()
	p, found := t.pendings[token]
	var msgID int
	if found {
		msgID = p.msgID
		delete(t.pendings, token)
	}
	t.mu.Unlock()
	if !found {
		return
	}

	accepted := verb == "CONF"
	p.ch <- accepted

	status := "❌ Отклонено"
	if accepted {
		status = "✅ Подтверждено"
	}
	_ = t.editReplyMarkupRemove(msgID)
	_ = t.editText(msgID, p.prompt+"\n\n"+status)
}

func parseCallback(data string) (verb, token string, ok bool) {
	verb, token, found := strings.Cut(data, "::")
	if !found || token == "" || (verb != "CONF" && verb != "REJ") {
		return "", "", false
	}
	return verb, token, true
}
