package cli

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"foto-produk-maker/internal/config"
	"foto-produk-maker/internal/prompt"
	"foto-produk-maker/internal/session"
)

type stubClient struct {
	autoPrompt   string
	image        string
	transformErr error
	prompts      []string
}

func (c *stubClient) DescribeAndPrompt(ctx context.Context, imageBase64, mimeType string) (string, error) {
	return c.autoPrompt, nil
}

func (c *stubClient) Transform(ctx context.Context, imageBase64, mimeType, prompt string) (string, error) {
	c.prompts = append(c.prompts, prompt)
	return c.image, c.transformErr
}

func writePNG(t *testing.T, dir string) (string, []byte) {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 3, 3))))
	path := filepath.Join(dir, "product.png")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path, buf.Bytes()
}

func run(t *testing.T, client *stubClient, args ...string) (string, error) {
	t.Helper()
	t.Setenv("GEMINI_API_KEY", "test-key")

	factory := func(ctx context.Context, cfg config.Config, logger *slog.Logger) (session.GenerationClient, error) {
		return client, nil
	}

	root := NewRootCommand(factory)
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return stdout.String(), err
}

func TestGenerate_WritesResults(t *testing.T) {
	dir := t.TempDir()
	imgPath, raw := writePNG(t, dir)
	outDir := filepath.Join(dir, "out")

	client := &stubClient{
		autoPrompt: "Sneaker floating over pastel backdrop",
		image:      "data:image/png;base64," + base64.StdEncoding.EncodeToString(raw),
	}
	stdout, err := run(t, client, "generate", "--image", imgPath, "--auto", "--count", "2", "--out", outDir)
	require.NoError(t, err)

	assert.Contains(t, stdout, "prompt: Sneaker floating over pastel backdrop")
	require.Len(t, client.prompts, 2)
	assert.Equal(t, "Sneaker floating over pastel backdrop", client.prompts[0])

	entries, err := os.ReadDir(outDir)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.True(t, strings.HasPrefix(e.Name(), "foto-produk-"))
		assert.True(t, strings.HasSuffix(e.Name(), ".png"))
		data, err := os.ReadFile(filepath.Join(outDir, e.Name()))
		require.NoError(t, err)
		assert.Equal(t, raw, data)
	}
}

func TestGenerate_DefaultPrompt(t *testing.T) {
	dir := t.TempDir()
	imgPath, raw := writePNG(t, dir)

	client := &stubClient{image: "data:image/png;base64," + base64.StdEncoding.EncodeToString(raw)}
	_, err := run(t, client, "generate", "--image", imgPath, "--out", dir)
	require.NoError(t, err)

	require.Len(t, client.prompts, 1)
	assert.Equal(t, "Professional product photography style", client.prompts[0])
}

func TestGenerate_ReportsUserMessage(t *testing.T) {
	dir := t.TempDir()
	imgPath, _ := writePNG(t, dir)

	client := &stubClient{transformErr: errors.New("deadline exceeded")}
	_, err := run(t, client, "generate", "--image", imgPath, "--out", dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), session.MsgGenerateFailed)
	assert.ErrorIs(t, err, session.ErrGenerateFailed)
}

func TestGenerate_RejectsNonImage(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("not an image"), 0o644))

	_, err := run(t, &stubClient{}, "generate", "--image", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not an image")
}

func TestGenerate_RequiresImageFlag(t *testing.T) {
	_, err := run(t, &stubClient{}, "generate")
	assert.Error(t, err)
}

func TestGenerate_StylePreset(t *testing.T) {
	dir := t.TempDir()
	imgPath, raw := writePNG(t, dir)

	client := &stubClient{image: "data:image/png;base64," + base64.StdEncoding.EncodeToString(raw)}
	_, err := run(t, client, "generate", "--image", imgPath, "--style", "gold", "--out", dir)
	require.NoError(t, err)

	preset, _ := prompt.Lookup("gold")
	require.Len(t, client.prompts, 1)
	assert.Equal(t, preset.Prompt, client.prompts[0])

	_, err = run(t, client, "generate", "--image", imgPath, "--style", "nope")
	assert.Error(t, err)
}

func TestStyles_ListsPresets(t *testing.T) {
	stdout, err := run(t, &stubClient{}, "styles")
	require.NoError(t, err)
	assert.Contains(t, stdout, "high_key_clean")
}
