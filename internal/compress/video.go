package compress

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/Gammanik/upload-compress/internal/assemble"
	"github.com/Gammanik/upload-compress/internal/quality"
)

// video_crf bounds. CRF outside this window either bloats the output or
// turns it to mush
const (
	minVideoCRF     = 18
	maxVideoCRF     = 32
	defaultVideoCRF = 23
)

// Transcoder is the external transcoding capability: a black box taking an
// input path, a numeric quality control and an output path, answering only
// success or failure
type Transcoder interface {
	Transcode(ctx context.Context, inPath string, crf int, outPath string) error
}

// FFmpegTranscoder shells out to an ffmpeg-compatible binary
type FFmpegTranscoder struct {
	logger *zap.Logger
	bin    string
}

// NewFFmpegTranscoder uses the given binary path
func NewFFmpegTranscoder(logger *zap.Logger, bin string) *FFmpegTranscoder {
	return &FFmpegTranscoder{logger: logger, bin: bin}
}

// Transcode runs the external process to completion
func (t *FFmpegTranscoder) Transcode(ctx context.Context, inPath string, crf int, outPath string) error {
	cmd := exec.CommandContext(ctx, t.bin,
		"-y",
		"-i", inPath,
		"-crf", strconv.Itoa(crf),
		outPath,
	)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return ErrTranscode.New("%s: %s", err, strings.TrimSpace(string(output)))
	}
	return nil
}

// VideoEngine drives the external transcoder with the adaptive video_crf
// parameter. Transcoder failure is non-fatal: the upload proceeds with the
// uncompressed artifact
type VideoEngine struct {
	logger     *zap.Logger
	model      *quality.Model
	transcoder Transcoder
	dir        string
}

// Compress transcodes the artifact at the current CRF
func (e *VideoEngine) Compress(ctx context.Context, artifact *assemble.Artifact) (*Result, error) {
	crf := clamp(e.model.GetDefault(ParamVideoCRF, defaultVideoCRF), minVideoCRF, maxVideoCRF)

	path := outPath(e.dir, artifact.Path, filepath.Ext(artifact.Filename))

	err := e.transcoder.Transcode(ctx, artifact.Path, crf, path)
	if err != nil {
		e.logger.Warn("transcode failed",
			zap.String("filename", artifact.Filename),
			zap.Int("crf", crf),
			zap.Error(err))

		// The process may still have produced usable output; if it did not,
		// fall back to the uncompressed artifact and skip the feedback call
		// entirely since there is no size pair to learn from
		info, statErr := os.Stat(path)
		if statErr != nil || info.Size() == 0 {
			_ = os.Remove(path)
			return passThrough(artifact, path)
		}
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, Error.Wrap(err)
	}

	e.model.Adjust(ParamVideoCRF, crf, artifact.Size, info.Size())

	if err := os.Remove(artifact.Path); err != nil {
		e.logger.Warn("failed to delete raw artifact", zap.Error(err))
	}

	e.logger.Info("video transcoded",
		zap.String("filename", artifact.Filename),
		zap.Int("crf", crf),
		zap.Int64("originalSize", artifact.Size),
		zap.Int64("compressedSize", info.Size()))

	return &Result{
		Path:         path,
		Filename:     artifact.Filename,
		Size:         info.Size(),
		OriginalSize: artifact.Size,
	}, nil
}
