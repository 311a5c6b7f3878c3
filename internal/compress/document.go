package compress

import (
	"context"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"

	"github.com/Gammanik/upload-compress/internal/assemble"
)

// DocumentEngine applies lossless zstd stream compression. Documents carry
// no quality parameter and produce no adaptive feedback
type DocumentEngine struct {
	logger *zap.Logger
	dir    string
}

// Compress writes the zstd stream next to the raw artifact and removes the
// raw form once the stream is complete
func (e *DocumentEngine) Compress(ctx context.Context, artifact *assemble.Artifact) (*Result, error) {
	in, err := os.Open(artifact.Path)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer in.Close()

	path := outPath(e.dir, artifact.Path, ".zst")
	out, err := os.Create(path)
	if err != nil {
		return nil, Error.Wrap(err)
	}

	zw, err := zstd.NewWriter(out)
	if err != nil {
		_ = out.Close()
		_ = os.Remove(path)
		return nil, Error.Wrap(err)
	}
	if _, err := io.Copy(zw, in); err != nil {
		_ = zw.Close()
		_ = out.Close()
		_ = os.Remove(path)
		return nil, Error.Wrap(err)
	}
	if err := zw.Close(); err != nil {
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

	if err := os.Remove(artifact.Path); err != nil {
		e.logger.Warn("failed to delete raw artifact", zap.Error(err))
	}

	e.logger.Info("document compressed",
		zap.String("filename", artifact.Filename),
		zap.Int64("originalSize", artifact.Size),
		zap.Int64("compressedSize", info.Size()))

	return &Result{
		Path:         path,
		Filename:     artifact.Filename + ".zst",
		Size:         info.Size(),
		OriginalSize: artifact.Size,
	}, nil
}
