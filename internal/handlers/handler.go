package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"foto-produk-maker/internal/gallery"
	"foto-produk-maker/internal/imagefile"
	"foto-produk-maker/internal/mediagroup"
	"foto-produk-maker/internal/prompt"
	"foto-produk-maker/internal/session"
	"foto-produk-maker/internal/telegram"
)

const (
	msgHelp = "📸 Foto Produk Maker\n\n" +
		"Kirim foto produk, lalu tulis gaya foto yang diinginkan.\n\n" +
		"Perintah:\n" +
		"/auto - Buat prompt otomatis dari foto\n" +
		"/generate - Buat foto produk\n" +
		"/prompt [teks] - Lihat atau ubah gaya foto\n" +
		"/styles - Daftar preset gaya\n" +
		"/style <kunci> - Pakai preset gaya\n" +
		"/results - Daftar hasil\n" +
		"/save <n> - Unduh hasil ke-n sebagai file\n" +
		"/clear - Hapus foto yang dipilih"
	msgNoImage        = "Kirim foto produk terlebih dahulu."
	msgBusy           = "⏳ Permintaan lain sedang diproses, tunggu sebentar."
	msgInvalidFile    = "Harap pilih file gambar."
	msgDownloadFailed = "Gagal mengunduh foto. Silakan kirim ulang."
	msgImageSelected  = "✅ Foto diterima. Tulis gaya foto, atau pilih tombol di bawah."
	msgPromptSaved    = "✅ Gaya foto disimpan."
	msgCleared        = "Foto dihapus."
	msgNoResults      = "Belum ada hasil."
	msgSaveUsage      = "Gunakan: /save <nomor hasil>, misalnya /save 1"
	msgUnknown        = "Perintah tidak dikenal. Gunakan /help."
	msgGenerating     = "🎨 Sedang membuat foto, mohon tunggu..."
	msgUnknownStyle   = "Preset tidak ditemukan. Lihat /styles."
)

const resultsListed = 5

// Messenger is the slice of the Telegram client the handler talks to.
type Messenger interface {
	SendText(chatID int64, text string) error
	SendTyping(chatID int64)
	SendTextWithKeyboard(chatID int64, text string, keyboard telegram.InlineKeyboard) error
	AnswerCallback(callbackID, text string, alert bool) error
	SendPhotoDataURL(chatID int64, dataURL string, caption string) error
	SendDocument(chatID int64, name string, data []byte, caption string) error
	DownloadFileBase64(ctx context.Context, fileID string) (string, string, error)
}

type Options struct {
	Telegram Messenger
	Sessions *session.Store
	Logger   *slog.Logger
	Location *time.Location
}

type Handler struct {
	tg         Messenger
	sessions   *session.Store
	logger     *slog.Logger
	location   *time.Location
	aggregator *mediagroup.Aggregator
}

func New(opts Options) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Handler{
		tg:       opts.Telegram,
		sessions: opts.Sessions,
		logger:   logger,
		location: opts.Location,
	}
}

func (h *Handler) SetMediaGroupAggregator(ag *mediagroup.Aggregator) {
	h.aggregator = ag
}

func (h *Handler) HandleUpdate(ctx context.Context, update telegram.Update) error {
	if update.CallbackQuery != nil {
		return h.handleCallback(ctx, update.CallbackQuery)
	}
	if update.Message == nil {
		return nil
	}

	msg := update.Message
	chatID := msg.Chat.ID

	switch {
	case msg.IsCommand():
		return h.handleCommand(ctx, chatID, msg)
	case len(msg.Photo) > 0:
		return h.handlePhoto(ctx, chatID, msg)
	case msg.Document != nil:
		return h.handleDocument(ctx, chatID, msg)
	case strings.TrimSpace(msg.Text) != "":
		h.sessionFor(chatID).SetPrompt(msg.Text)
		return h.tg.SendText(chatID, msgPromptSaved)
	}
	return nil
}

// HandleMediaGroup selects the last photo of an album.
func (h *Handler) HandleMediaGroup(ctx context.Context, group mediagroup.Group) {
	if err := h.selectFile(ctx, group.ChatID, group.FileID, "album.jpg", group.Caption); err != nil {
		h.logger.Error("media group processing failed", "chat", group.ChatID, "err", err)
		return
	}
	if skipped := group.Skipped(); skipped > 0 {
		notice := fmt.Sprintf("ℹ️ Satu foto diproses setiap kali: hanya foto terakhir yang dipakai (%d foto dilewati).", skipped)
		if err := h.tg.SendText(group.ChatID, notice); err != nil {
			h.logger.Error("send album notice failed", "chat", group.ChatID, "err", err)
		}
	}
}

func (h *Handler) handleCommand(ctx context.Context, chatID int64, msg *tgbotapi.Message) error {
	args := strings.TrimSpace(msg.CommandArguments())

	switch msg.Command() {
	case "start", "help":
		return h.tg.SendText(chatID, msgHelp)
	case "auto":
		return h.runAutoPrompt(ctx, chatID)
	case "generate":
		return h.runGenerate(ctx, chatID)
	case "prompt":
		sess := h.sessionFor(chatID)
		if args != "" {
			sess.SetPrompt(args)
			return h.tg.SendText(chatID, msgPromptSaved)
		}
		return h.tg.SendText(chatID, describePrompt(sess.Snapshot().Prompt))
	case "styles":
		return h.tg.SendText(chatID, describePresets())
	case "style":
		preset, ok := prompt.Lookup(args)
		if !ok {
			return h.tg.SendText(chatID, msgUnknownStyle)
		}
		h.sessionFor(chatID).SetPrompt(preset.Prompt)
		return h.tg.SendText(chatID, "✅ Preset "+preset.Name+" dipakai:\n"+preset.Prompt)
	case "results":
		return h.tg.SendText(chatID, h.describeResults(h.sessionFor(chatID)))
	case "save":
		return h.saveResult(chatID, args)
	case "clear":
		h.sessionFor(chatID).ClearImage()
		return h.tg.SendText(chatID, msgCleared)
	default:
		return h.tg.SendText(chatID, msgUnknown)
	}
}

func (h *Handler) handlePhoto(ctx context.Context, chatID int64, msg *tgbotapi.Message) error {
	photo := msg.Photo[len(msg.Photo)-1]

	if msg.MediaGroupID != "" && h.aggregator != nil {
		var userID int64
		if msg.From != nil {
			userID = msg.From.ID
		}
		h.aggregator.Add(mediagroup.Item{
			ChatID:       chatID,
			UserID:       userID,
			MediaGroupID: msg.MediaGroupID,
			MessageID:    msg.MessageID,
			Caption:      msg.Caption,
			FileID:       photo.FileID,
		})
		return nil
	}

	return h.selectFile(ctx, chatID, photo.FileID, "photo.jpg", msg.Caption)
}

// handleDocument accepts images sent as files; anything else is refused
// and the current selection stays.
func (h *Handler) handleDocument(ctx context.Context, chatID int64, msg *tgbotapi.Message) error {
	doc := msg.Document
	if !strings.HasPrefix(strings.ToLower(doc.MimeType), "image/") {
		return h.tg.SendText(chatID, msgInvalidFile)
	}
	return h.selectFile(ctx, chatID, doc.FileID, doc.FileName, msg.Caption)
}

func (h *Handler) selectFile(ctx context.Context, chatID int64, fileID, name, caption string) error {
	h.tg.SendTyping(chatID)

	data, mimeType, err := h.tg.DownloadFileBase64(ctx, fileID)
	if err != nil {
		h.logger.Error("photo download failed", "chat", chatID, "err", err)
		return h.tg.SendText(chatID, msgDownloadFailed)
	}

	img, err := imagefile.FromBase64(name, mimeType, data)
	if errors.Is(err, imagefile.ErrInvalidType) {
		return h.tg.SendText(chatID, msgInvalidFile)
	}
	if err != nil {
		h.logger.Error("photo decode failed", "chat", chatID, "err", err)
		return h.tg.SendText(chatID, msgDownloadFailed)
	}

	sess := h.sessionFor(chatID)
	sess.SelectImage(img)
	if caption = strings.TrimSpace(caption); caption != "" {
		sess.SetPrompt(caption)
	}

	return h.tg.SendTextWithKeyboard(chatID, msgImageSelected, actionKeyboard())
}

func (h *Handler) runAutoPrompt(ctx context.Context, chatID int64) error {
	sess := h.sessionFor(chatID)
	h.tg.SendTyping(chatID)

	imageID := selectedID(sess)
	err := sess.RequestAutoPrompt(ctx)
	if reply, handled := h.requestReply(sess, err); handled {
		return h.tg.SendText(chatID, reply)
	}
	if selectedID(sess) != imageID {
		// a newer photo arrived; its own commands will answer
		return nil
	}

	return h.tg.SendTextWithKeyboard(chatID, "✨ Prompt otomatis:\n"+sess.Snapshot().Prompt, actionKeyboard())
}

func (h *Handler) runGenerate(ctx context.Context, chatID int64) error {
	sess := h.sessionFor(chatID)

	st := sess.Snapshot()
	switch {
	case st.SelectedImage == nil:
		return h.tg.SendText(chatID, msgNoImage)
	case st.Busy():
		return h.tg.SendText(chatID, msgBusy)
	}

	_ = h.tg.SendText(chatID, msgGenerating)
	h.tg.SendTyping(chatID)

	before := len(sess.Results())
	err := sess.RequestGenerate(ctx)
	if reply, handled := h.requestReply(sess, err); handled {
		return h.tg.SendText(chatID, reply)
	}

	results := sess.Results()
	if len(results) == before {
		return nil
	}

	newest := results[0]
	caption := fmt.Sprintf("✅ Selesai. /save 1 untuk mengunduh.\n%s", newest.PromptUsed)
	return h.tg.SendPhotoDataURL(chatID, newest.ImageRef, caption)
}

// requestReply maps a session request error to the text the user sees.
func (h *Handler) requestReply(sess *session.Session, err error) (string, bool) {
	switch {
	case err == nil:
		return "", false
	case errors.Is(err, session.ErrNoImage):
		return msgNoImage, true
	case errors.Is(err, session.ErrBusy):
		return msgBusy, true
	case errors.Is(err, session.ErrAutoPromptFailed), errors.Is(err, session.ErrGenerateFailed):
		if msg := sess.Snapshot().Error; msg != "" {
			return "❌ " + msg, true
		}
		return "", false
	default:
		h.logger.Error("session request failed", "session", sess.ID(), "err", err)
		return session.MsgGenerateFailed, true
	}
}

func (h *Handler) describeResults(sess *session.Session) string {
	entries := gallery.New(sess, h.location).List()
	if len(entries) == 0 {
		return msgNoResults
	}

	var b strings.Builder
	fmt.Fprintf(&b, "🖼 %d hasil (terbaru di atas):\n", len(entries))
	for i, e := range entries {
		if i == resultsListed {
			fmt.Fprintf(&b, "... dan %d lainnya\n", len(entries)-resultsListed)
			break
		}
		fmt.Fprintf(&b, "%d. [%s] %s\n", i+1, e.LocalTime, e.PromptUsed)
	}
	b.WriteString("\n/save <n> untuk mengunduh.")
	return b.String()
}

func (h *Handler) saveResult(chatID int64, args string) error {
	n, err := strconv.Atoi(args)
	if err != nil || n < 1 {
		return h.tg.SendText(chatID, msgSaveUsage)
	}

	sess := h.sessionFor(chatID)
	results := sess.Results()
	if n > len(results) {
		return h.tg.SendText(chatID, msgNoResults)
	}

	dl, err := gallery.New(sess, h.location).Export(results[n-1].ID)
	if err != nil {
		h.logger.Error("export failed", "session", sess.ID(), "err", err)
		return h.tg.SendText(chatID, msgNoResults)
	}
	return h.tg.SendDocument(chatID, dl.Filename, dl.Data, "")
}

func (h *Handler) sessionFor(chatID int64) *session.Session {
	return h.sessions.GetOrCreate(sessionKey(chatID))
}

func selectedID(sess *session.Session) string {
	if img := sess.Snapshot().SelectedImage; img != nil {
		return img.ID
	}
	return ""
}

func sessionKey(chatID int64) string {
	return "tg:" + strconv.FormatInt(chatID, 10)
}

func describePresets() string {
	var b strings.Builder
	b.WriteString("🎨 Preset gaya:\n")
	for _, p := range prompt.Presets() {
		fmt.Fprintf(&b, "• %s (/style %s)\n", p.Name, p.Key)
	}
	return b.String()
}

func describePrompt(current string) string {
	if current == "" {
		return "Gaya foto belum diisi. Dipakai: " + prompt.DefaultStyle
	}
	return "Gaya foto saat ini:\n" + current
}
