package compress

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"github.com/Gammanik/upload-compress/internal/assemble"
	"github.com/Gammanik/upload-compress/internal/quality"
)

// Errors
var (
	// Error wraps compression I/O failures
	Error = errs.Class("compress")

	// ErrTranscode marks external transcoder failures. It is recovered
	// locally by passing the uncompressed artifact through and is never
	// propagated to the caller
	ErrTranscode = errs.Class("transcode failure")
)

// Adaptive parameter names
const (
	ParamImageQuality = "image_quality"
	ParamVideoCRF     = "video_crf"
)

// Result is the final artifact produced by an engine
type Result struct {
	Path         string
	Filename     string
	Size         int64
	OriginalSize int64
}

// Engine compresses one reassembled artifact. Implementations delete the
// pre-compression artifact once the output exists, never before
type Engine interface {
	Compress(ctx context.Context, artifact *assemble.Artifact) (*Result, error)
}

// NewEngines builds the category -> engine table. Outputs land in dir
func NewEngines(logger *zap.Logger, model *quality.Model, transcoder Transcoder, dir string) (map[assemble.Category]Engine, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, Error.Wrap(err)
	}
	return map[assemble.Category]Engine{
		assemble.CategoryImage:    &ImageEngine{logger: logger, model: model, dir: dir},
		assemble.CategoryVideo:    &VideoEngine{logger: logger, model: model, transcoder: transcoder, dir: dir},
		assemble.CategoryDocument: &DocumentEngine{logger: logger, dir: dir},
	}, nil
}

// outPath derives the final object path from the raw artifact path
func outPath(dir, rawPath, ext string) string {
	base := strings.TrimSuffix(filepath.Base(rawPath), ".raw")
	return filepath.Join(dir, base+ext)
}

// passThrough promotes the uncompressed artifact to the final object
// unchanged. The rename makes the output exist and the input disappear in
// one step
func passThrough(artifact *assemble.Artifact, path string) (*Result, error) {
	if err := os.Rename(artifact.Path, path); err != nil {
		return nil, Error.Wrap(err)
	}
	return &Result{
		Path:         path,
		Filename:     artifact.Filename,
		Size:         artifact.Size,
		OriginalSize: artifact.Size,
	}, nil
}

func clamp(value, low, high int) int {
	if value < low {
		return low
	}
	if value > high {
		return high
	}
	return value
}
