package assemble

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"

	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"github.com/Gammanik/upload-compress/internal/chunkstore"
)

// ErrIncomplete means finalize was requested before all declared chunks were
// staged, or chunks were lost to a prior crash. The client must restart the
// whole upload
var ErrIncomplete = errs.Class("incomplete upload")

// Error wraps assembly I/O failures
var Error = errs.Class("assemble")

// Artifact is the reassembled file before compression
type Artifact struct {
	Path     string
	Filename string
	Size     int64
	Category Category
}

// Assembler concatenates staged chunks into single artifacts
type Assembler struct {
	logger *zap.Logger
	chunks chunkstore.Store
	dir    string
}

// NewAssembler writes artifacts into dir
func NewAssembler(logger *zap.Logger, chunks chunkstore.Store, dir string) (*Assembler, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, Error.Wrap(err)
	}
	return &Assembler{logger: logger, chunks: chunks, dir: dir}, nil
}

// Assemble verifies that the staged chunks for uploadID form the exact index
// range [0,total), then streams them in order into one artifact file. Each
// chunk is deleted right after it is appended, so memory stays bounded by one
// chunk; the flip side is that a crash mid-assembly loses the consumed chunks
// and a retry fails with ErrIncomplete
func (a *Assembler) Assemble(uploadID, filename string, total int) (*Artifact, error) {
	refs, err := a.chunks.ListOrdered(uploadID)
	if err != nil {
		return nil, err
	}

	if err := verifyComplete(refs, total); err != nil {
		return nil, err
	}

	outPath := filepath.Join(a.dir, safeName(uploadID)+".raw")
	out, err := os.Create(outPath)
	if err != nil {
		return nil, Error.Wrap(err)
	}

	var written int64
	for _, ref := range refs {
		n, err := a.appendChunk(out, ref)
		if err != nil {
			_ = out.Close()
			_ = os.Remove(outPath)
			return nil, err
		}
		written += n

		if err := a.chunks.Remove(uploadID, ref.Index); err != nil {
			a.logger.Warn("failed to delete consumed chunk",
				zap.String("uploadID", uploadID),
				zap.Int("index", ref.Index),
				zap.Error(err))
		}
	}

	if err := out.Close(); err != nil {
		_ = os.Remove(outPath)
		return nil, Error.Wrap(err)
	}

	category := Classify(filename)
	a.logger.Info("upload reassembled",
		zap.String("uploadID", uploadID),
		zap.String("filename", filename),
		zap.Int("chunks", total),
		zap.Int64("sizeBytes", written),
		zap.String("category", string(category)))

	return &Artifact{
		Path:     outPath,
		Filename: filename,
		Size:     written,
		Category: category,
	}, nil
}

func (a *Assembler) appendChunk(out io.Writer, ref chunkstore.Ref) (int64, error) {
	rc, err := a.chunks.Open(ref)
	if err != nil {
		return 0, err
	}
	defer rc.Close()

	n, err := io.Copy(out, rc)
	if err != nil {
		return n, Error.Wrap(err)
	}
	return n, nil
}

// verifyComplete checks the refs cover exactly [0,total). ListOrdered never
// returns duplicate indices (one file per index), so a count match plus a
// positional check is sufficient
func verifyComplete(refs []chunkstore.Ref, total int) error {
	if total <= 0 {
		return ErrIncomplete.New("declared total %d", total)
	}
	if len(refs) != total {
		return ErrIncomplete.New("have %d of %d chunks", len(refs), total)
	}
	for i, ref := range refs {
		if ref.Index != i {
			return ErrIncomplete.New("missing chunk %d", i)
		}
	}
	return nil
}

// safeName mirrors the chunkstore's id hashing so artifact names stay inside
// the artifacts directory regardless of the client-chosen upload id
func safeName(uploadID string) string {
	sum := sha256.Sum256([]byte(uploadID))
	return hex.EncodeToString(sum[:])
}
