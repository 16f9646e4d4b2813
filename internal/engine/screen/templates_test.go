package screen

import (
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePNG(t *testing.T, path string, img image.Image) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func TestTemplateStoreLoadDirAndGet(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "login_button.png"), noiseImage(12, 8, 1))
	writePNG(t, filepath.Join(dir, "buy_button.png"), noiseImage(30, 10, 2))

	store := NewTemplateStore()
	err := store.LoadDir(dir, map[string]string{
		"login_btn": "login_button.png",
		"buy_btn":   "buy_button.png",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"buy_btn", "login_btn"}, store.Names())

	buy, err := store.Get("buy_btn")
	require.NoError(t, err)
	assert.Equal(t, "buy_btn", buy.Name)
	assert.Equal(t, 30, buy.Width())
	assert.Equal(t, 10, buy.Height())
}

func TestTemplateStoreGetUnknown(t *testing.T) {
	store := NewTemplateStore()
	_, err := store.Get("cart_btn")
	require.ErrorIs(t, err, ErrTemplateNotFound)
	assert.Contains(t, err.Error(), "cart_btn")
}

func TestTemplateStoreGetIsIdempotent(t *testing.T) {
	store := NewTemplateStore()
	_, err := store.Add("cart_btn", noiseImage(10, 10, 3))
	require.NoError(t, err)

	first, err := store.Get("cart_btn")
	require.NoError(t, err)
	second, err := store.Get("cart_btn")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Same(t, first.Pixels, second.Pixels)
}

func TestTemplateStoreRejectsBadInput(t *testing.T) {
	store := NewTemplateStore()

	_, err := store.Add("empty", image.NewRGBA(image.Rect(0, 0, 0, 5)))
	assert.Error(t, err)

	_, err = store.Add("dup", noiseImage(4, 4, 1))
	require.NoError(t, err)
	_, err = store.Add("dup", noiseImage(4, 4, 2))
	assert.Error(t, err)

	_, err = store.Load("missing", filepath.Join(t.TempDir(), "nope.png"))
	assert.Error(t, err)
}

func TestNewTemplateNormalisesToRGBA(t *testing.T) {
	src := image.NewNRGBA(image.Rect(5, 5, 15, 11))
	tpl, err := NewTemplate("t", src)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 10, 6), tpl.Pixels.Bounds())
}
