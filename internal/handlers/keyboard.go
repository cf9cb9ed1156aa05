package handlers

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"foto-produk-maker/internal/telegram"
)

const (
	callbackPrefix   = "fp"
	callbackAuto     = callbackPrefix + ":auto"
	callbackGenerate = callbackPrefix + ":generate"
)

func actionKeyboard() telegram.InlineKeyboard {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✨ Prompt otomatis", callbackAuto),
			tgbotapi.NewInlineKeyboardButtonData("🎨 Buat foto", callbackGenerate),
		),
	)
}

// handleCallback runs the button actions. A press while another request is
// running gets an alert and nothing else.
func (h *Handler) handleCallback(ctx context.Context, q *tgbotapi.CallbackQuery) error {
	if q == nil || q.Message == nil {
		return nil
	}
	data := strings.TrimSpace(q.Data)
	if !strings.HasPrefix(data, callbackPrefix+":") {
		return nil
	}

	chatID := q.Message.Chat.ID
	sess := h.sessionFor(chatID)

	st := sess.Snapshot()
	if st.Busy() {
		return h.tg.AnswerCallback(q.ID, msgBusy, true)
	}
	if st.SelectedImage == nil {
		return h.tg.AnswerCallback(q.ID, msgNoImage, true)
	}
	_ = h.tg.AnswerCallback(q.ID, "", false)

	switch data {
	case callbackAuto:
		return h.runAutoPrompt(ctx, chatID)
	case callbackGenerate:
		return h.runGenerate(ctx, chatID)
	}
	return nil
}
