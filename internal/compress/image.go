package compress

import (
	"context"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/Gammanik/upload-compress/internal/assemble"
	"github.com/Gammanik/upload-compress/internal/quality"
)

// image_quality bounds
const (
	minImageQuality = 30
	maxImageQuality = 95
)

// ImageEngine re-encodes images as JPEG using the adaptive image_quality
// parameter as the lossy-quality control, then feeds the size outcome back
// into the model
type ImageEngine struct {
	logger *zap.Logger
	model  *quality.Model
	dir    string
}

// Compress re-encodes the artifact. Input that does not decode as an image
// passes through unchanged; there is no size comparison to learn from in
// that case
func (e *ImageEngine) Compress(ctx context.Context, artifact *assemble.Artifact) (*Result, error) {
	q := clamp(e.model.Get(ParamImageQuality), minImageQuality, maxImageQuality)

	in, err := os.Open(artifact.Path)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	img, format, err := image.Decode(in)
	_ = in.Close()
	if err != nil {
		e.logger.Warn("image decode failed, passing through",
			zap.String("filename", artifact.Filename),
			zap.Error(err))
		return passThrough(artifact, outPath(e.dir, artifact.Path, filepath.Ext(artifact.Filename)))
	}

	path := outPath(e.dir, artifact.Path, ".jpg")
	out, err := os.Create(path)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	if err := jpeg.Encode(out, img, &jpeg.Options{Quality: q}); err != nil {
		_ = out.Close()
		_ = os.Remove(path)
		return nil, Error.Wrap(err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(path)
		return nil, Error.Wrap(err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, Error.Wrap(err)
	}

	e.model.Adjust(ParamImageQuality, q, artifact.Size, info.Size())

	if err := os.Remove(artifact.Path); err != nil {
		e.logger.Warn("failed to delete raw artifact", zap.Error(err))
	}

	e.logger.Info("image re-encoded",
		zap.String("filename", artifact.Filename),
		zap.String("sourceFormat", format),
		zap.Int("quality", q),
		zap.Int64("originalSize", artifact.Size),
		zap.Int64("compressedSize", info.Size()))

	return &Result{
		Path:         path,
		Filename:     jpegName(artifact.Filename),
		Size:         info.Size(),
		OriginalSize: artifact.Size,
	}, nil
}

// jpegName swaps the extension for .jpg since the stored bytes are JPEG
// regardless of the source format
func jpegName(filename string) string {
	ext := filepath.Ext(filename)
	return strings.TrimSuffix(filename, ext) + ".jpg"
}
