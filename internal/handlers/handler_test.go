package handlers

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/png"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"foto-produk-maker/internal/mediagroup"
	"foto-produk-maker/internal/prompt"
	"foto-produk-maker/internal/session"
	"foto-produk-maker/internal/telegram"
)

type sentDocument struct {
	Name string
	Data []byte
}

type fakeMessenger struct {
	mu        sync.Mutex
	texts     []string
	keyboards []string
	photos    []string
	documents []sentDocument
	callbacks []string
	files     map[string]string
	fileMime  string
}

func (m *fakeMessenger) SendText(chatID int64, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.texts = append(m.texts, text)
	return nil
}

func (m *fakeMessenger) SendTyping(chatID int64) {}

func (m *fakeMessenger) SendTextWithKeyboard(chatID int64, text string, keyboard telegram.InlineKeyboard) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keyboards = append(m.keyboards, text)
	return nil
}

func (m *fakeMessenger) AnswerCallback(callbackID, text string, alert bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, text)
	return nil
}

func (m *fakeMessenger) SendPhotoDataURL(chatID int64, dataURL string, caption string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.photos = append(m.photos, caption)
	return nil
}

func (m *fakeMessenger) SendDocument(chatID int64, name string, data []byte, caption string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.documents = append(m.documents, sentDocument{Name: name, Data: data})
	return nil
}

func (m *fakeMessenger) DownloadFileBase64(ctx context.Context, fileID string) (string, string, error) {
	data, ok := m.files[fileID]
	if !ok {
		return "", "", errors.New("file not found")
	}
	return data, m.fileMime, nil
}

func (m *fakeMessenger) lastText() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.texts) == 0 {
		return ""
	}
	return m.texts[len(m.texts)-1]
}

type fakeClient struct {
	autoPrompt   string
	autoErr      error
	image        string
	transformErr error

	transformCalls atomic.Int32
	started        chan struct{}
	release        chan struct{}
}

func (c *fakeClient) DescribeAndPrompt(ctx context.Context, imageBase64, mimeType string) (string, error) {
	return c.autoPrompt, c.autoErr
}

func (c *fakeClient) Transform(ctx context.Context, imageBase64, mimeType, prompt string) (string, error) {
	c.transformCalls.Add(1)
	if c.release != nil {
		close(c.started)
		<-c.release
	}
	return c.image, c.transformErr
}

func pngBase64(t *testing.T) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 2, 2))))
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func newTestHandler(t *testing.T) (*Handler, *fakeMessenger, *fakeClient) {
	t.Helper()
	img := pngBase64(t)
	tg := &fakeMessenger{
		files:    map[string]string{"photo-1": img, "photo-2": img},
		fileMime: "image/png",
	}
	client := &fakeClient{
		autoPrompt: "Perfume bottle on black glass",
		image:      "data:image/png;base64," + img,
	}
	store := session.NewStore(session.StoreOptions{Session: session.Options{Client: client}})
	h := New(Options{Telegram: tg, Sessions: store, Location: time.UTC})
	return h, tg, client
}

func command(text string) telegram.Update {
	name := strings.SplitN(text, " ", 2)[0]
	return telegram.Update{Message: &tgbotapi.Message{
		MessageID: 1,
		Chat:      &tgbotapi.Chat{ID: 42},
		From:      &tgbotapi.User{ID: 7},
		Text:      text,
		Entities:  []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(name)}},
	}}
}

func photo(fileID, caption string) telegram.Update {
	return telegram.Update{Message: &tgbotapi.Message{
		MessageID: 2,
		Chat:      &tgbotapi.Chat{ID: 42},
		From:      &tgbotapi.User{ID: 7},
		Caption:   caption,
		Photo:     []tgbotapi.PhotoSize{{FileID: "thumb"}, {FileID: fileID}},
	}}
}

func text(body string) telegram.Update {
	return telegram.Update{Message: &tgbotapi.Message{
		MessageID: 3,
		Chat:      &tgbotapi.Chat{ID: 42},
		From:      &tgbotapi.User{ID: 7},
		Text:      body,
	}}
}

func TestHandleUpdate_GenerateWithoutPhoto(t *testing.T) {
	h, tg, _ := newTestHandler(t)

	require.NoError(t, h.HandleUpdate(context.Background(), command("/generate")))
	assert.Equal(t, []string{msgNoImage}, tg.texts)
	assert.Empty(t, tg.photos)
}

func TestHandleUpdate_BusySession(t *testing.T) {
	h, tg, client := newTestHandler(t)
	ctx := context.Background()
	require.NoError(t, h.HandleUpdate(ctx, photo("photo-1", "")))

	client.started = make(chan struct{})
	client.release = make(chan struct{})

	done := make(chan error, 1)
	go func() { done <- h.HandleUpdate(ctx, command("/generate")) }()
	<-client.started

	press := telegram.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb",
		From:    &tgbotapi.User{ID: 7},
		Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 42}},
		Data:    callbackAuto,
	}}
	require.NoError(t, h.HandleUpdate(ctx, press))
	assert.Equal(t, []string{msgBusy}, tg.callbacks)

	require.NoError(t, h.HandleUpdate(ctx, command("/generate")))
	assert.Equal(t, msgBusy, tg.lastText())

	tg.mu.Lock()
	generating := 0
	for _, text := range tg.texts {
		if text == msgGenerating {
			generating++
		}
	}
	tg.mu.Unlock()
	assert.Equal(t, 1, generating)

	close(client.release)
	require.NoError(t, <-done)
	assert.Equal(t, int32(1), client.transformCalls.Load())
	assert.Len(t, tg.photos, 1)
}

func TestHandleUpdate_PhotoThenGenerateThenSave(t *testing.T) {
	h, tg, _ := newTestHandler(t)
	ctx := context.Background()

	require.NoError(t, h.HandleUpdate(ctx, photo("photo-1", "")))
	require.Len(t, tg.keyboards, 1)

	require.NoError(t, h.HandleUpdate(ctx, text("marble countertop")))
	assert.Equal(t, msgPromptSaved, tg.lastText())

	require.NoError(t, h.HandleUpdate(ctx, command("/generate")))
	require.Len(t, tg.photos, 1)
	assert.Contains(t, tg.photos[0], "marble countertop")

	require.NoError(t, h.HandleUpdate(ctx, command("/results")))
	assert.Contains(t, tg.lastText(), "1 hasil")
	assert.Contains(t, tg.lastText(), "marble countertop")

	require.NoError(t, h.HandleUpdate(ctx, command("/save 1")))
	require.Len(t, tg.documents, 1)
	assert.True(t, strings.HasPrefix(tg.documents[0].Name, "foto-produk-"))
	assert.True(t, strings.HasSuffix(tg.documents[0].Name, ".png"))
	assert.NotEmpty(t, tg.documents[0].Data)

	require.NoError(t, h.HandleUpdate(ctx, command("/save 9")))
	assert.Equal(t, msgNoResults, tg.lastText())
	require.NoError(t, h.HandleUpdate(ctx, command("/save abc")))
	assert.Equal(t, msgSaveUsage, tg.lastText())
}

func TestHandleUpdate_CaptionBecomesPrompt(t *testing.T) {
	h, tg, _ := newTestHandler(t)
	ctx := context.Background()

	require.NoError(t, h.HandleUpdate(ctx, photo("photo-1", "wooden table, morning light")))
	require.NoError(t, h.HandleUpdate(ctx, command("/prompt")))
	assert.Contains(t, tg.lastText(), "wooden table, morning light")
}

func TestHandleUpdate_PromptDefaultShown(t *testing.T) {
	h, tg, _ := newTestHandler(t)

	require.NoError(t, h.HandleUpdate(context.Background(), command("/prompt")))
	assert.Contains(t, tg.lastText(), "Professional product photography style")
}

func TestHandleUpdate_AutoPrompt(t *testing.T) {
	h, tg, client := newTestHandler(t)
	ctx := context.Background()

	require.NoError(t, h.HandleUpdate(ctx, photo("photo-1", "")))
	require.NoError(t, h.HandleUpdate(ctx, command("/auto")))
	assert.Contains(t, tg.keyboards[len(tg.keyboards)-1], "Perfume bottle on black glass")

	client.autoErr = errors.New("quota")
	require.NoError(t, h.HandleUpdate(ctx, command("/auto")))
	assert.Equal(t, "❌ "+session.MsgAutoPromptFailed, tg.lastText())
}

func TestHandleUpdate_GenerateFailure(t *testing.T) {
	h, tg, client := newTestHandler(t)
	ctx := context.Background()
	client.transformErr = errors.New("timeout")

	require.NoError(t, h.HandleUpdate(ctx, photo("photo-1", "")))
	require.NoError(t, h.HandleUpdate(ctx, command("/generate")))
	assert.Equal(t, "❌ "+session.MsgGenerateFailed, tg.lastText())
	assert.Empty(t, tg.photos)
}

func TestHandleUpdate_NonImageDocumentKeepsSelection(t *testing.T) {
	h, tg, _ := newTestHandler(t)
	ctx := context.Background()

	require.NoError(t, h.HandleUpdate(ctx, photo("photo-1", "")))
	doc := telegram.Update{Message: &tgbotapi.Message{
		MessageID: 4,
		Chat:      &tgbotapi.Chat{ID: 42},
		Document:  &tgbotapi.Document{FileID: "doc", FileName: "specs.pdf", MimeType: "application/pdf"},
	}}
	require.NoError(t, h.HandleUpdate(ctx, doc))
	assert.Equal(t, msgInvalidFile, tg.lastText())

	assert.NotNil(t, h.sessionFor(42).Snapshot().SelectedImage)
}

func TestHandleUpdate_Clear(t *testing.T) {
	h, tg, _ := newTestHandler(t)
	ctx := context.Background()

	require.NoError(t, h.HandleUpdate(ctx, photo("photo-1", "")))
	require.NoError(t, h.HandleUpdate(ctx, command("/clear")))
	assert.Equal(t, msgCleared, tg.lastText())
	assert.Nil(t, h.sessionFor(42).Snapshot().SelectedImage)
}

func TestHandleUpdate_DownloadFailure(t *testing.T) {
	h, tg, _ := newTestHandler(t)

	require.NoError(t, h.HandleUpdate(context.Background(), photo("missing", "")))
	assert.Equal(t, msgDownloadFailed, tg.lastText())
	assert.Nil(t, h.sessionFor(42).Snapshot().SelectedImage)
}

func TestHandleUpdate_CallbackWithoutPhoto(t *testing.T) {
	h, tg, _ := newTestHandler(t)

	update := telegram.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb",
		From:    &tgbotapi.User{ID: 7},
		Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 42}},
		Data:    callbackGenerate,
	}}
	require.NoError(t, h.HandleUpdate(context.Background(), update))
	assert.Equal(t, []string{msgNoImage}, tg.callbacks)
}

func TestHandleUpdate_CallbackGenerate(t *testing.T) {
	h, tg, _ := newTestHandler(t)
	ctx := context.Background()

	require.NoError(t, h.HandleUpdate(ctx, photo("photo-1", "")))
	update := telegram.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb",
		From:    &tgbotapi.User{ID: 7},
		Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 42}},
		Data:    callbackGenerate,
	}}
	require.NoError(t, h.HandleUpdate(ctx, update))
	assert.Len(t, tg.photos, 1)
}

func TestHandleMediaGroup_NotifiesSkipped(t *testing.T) {
	h, tg, _ := newTestHandler(t)

	h.HandleMediaGroup(context.Background(), mediagroup.Group{ChatID: 42, FileID: "photo-2", Count: 3})

	assert.NotNil(t, h.sessionFor(42).Snapshot().SelectedImage)
	assert.Contains(t, tg.lastText(), "2 foto dilewati")
}

func TestHandleUpdate_UnknownCommand(t *testing.T) {
	h, tg, _ := newTestHandler(t)

	require.NoError(t, h.HandleUpdate(context.Background(), command("/dance")))
	assert.Equal(t, msgUnknown, tg.lastText())
}

func TestHandleUpdate_StylePreset(t *testing.T) {
	h, tg, _ := newTestHandler(t)
	ctx := context.Background()

	require.NoError(t, h.HandleUpdate(ctx, command("/styles")))
	assert.Contains(t, tg.lastText(), "/style dark_premium")

	require.NoError(t, h.HandleUpdate(ctx, command("/style dark_premium")))
	preset, ok := prompt.Lookup("dark_premium")
	require.True(t, ok)
	assert.Equal(t, preset.Prompt, h.sessionFor(42).Snapshot().Prompt)

	require.NoError(t, h.HandleUpdate(ctx, command("/style missing")))
	assert.Equal(t, msgUnknownStyle, tg.lastText())
}
