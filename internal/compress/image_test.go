package compress

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Gammanik/upload-compress/internal/kvstore"
	"github.com/Gammanik/upload-compress/internal/quality"
)

func newTestModel(t *testing.T) *quality.Model {
	logger := zaptest.NewLogger(t)
	store, err := kvstore.NewBoltStore(logger, filepath.Join(t.TempDir(), "quality.db"), "quality")
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, store.Close()) })
	return quality.NewModel(logger, store)
}

func pngBytes(t *testing.T) []byte {
	img := image.NewRGBA(image.Rect(0, 0, 120, 120))
	for y := 0; y < 120; y++ {
		for x := 0; x < 120; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 2), G: uint8(y * 2), B: uint8((x + y)), A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestImageReencode(t *testing.T) {
	model := newTestModel(t)
	engine := &ImageEngine{logger: zaptest.NewLogger(t), model: model, dir: t.TempDir()}

	artifact := writeArtifact(t, t.TempDir(), "photo.png", pngBytes(t))

	result, err := engine.Compress(context.Background(), artifact)
	require.NoError(t, err)

	// re-encoded bytes are JPEG, so the stored name follows
	require.Equal(t, "photo.jpg", result.Filename)
	require.Equal(t, artifact.Size, result.OriginalSize)

	info, err := os.Stat(result.Path)
	require.NoError(t, err)
	require.Equal(t, info.Size(), result.Size)

	_, err = os.Stat(artifact.Path)
	require.True(t, os.IsNotExist(err))

	// the size outcome must have been fed back into the model
	records, err := model.History(1)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, ParamImageQuality, records[0].Name)
}

func TestImageUndecodablePassesThrough(t *testing.T) {
	model := newTestModel(t)
	engine := &ImageEngine{logger: zaptest.NewLogger(t), model: model, dir: t.TempDir()}

	content := []byte("this is not an image at all")
	artifact := writeArtifact(t, t.TempDir(), "broken.jpg", content)

	result, err := engine.Compress(context.Background(), artifact)
	require.NoError(t, err)

	require.Equal(t, "broken.jpg", result.Filename)
	require.Equal(t, artifact.Size, result.Size)

	passed, err := os.ReadFile(result.Path)
	require.NoError(t, err)
	require.Equal(t, content, passed)

	// no size comparison, no feedback
	records, err := model.History(1)
	require.NoError(t, err)
	require.Empty(t, records)
}
