package chunkstore

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pierrec/lz4/v4"
	"go.uber.org/zap"
)

const (
	chunkSuffix = ".lz4"
	totalFile   = "total"
)

// DiskStore stages chunks on the local filesystem. Chunks are written
// lz4-framed through a temporary file and renamed into place, so a partially
// written chunk is never visible to ListOrdered
type DiskStore struct {
	logger *zap.Logger
	dir    string
}

// NewDiskStore creates the staging root if needed
func NewDiskStore(logger *zap.Logger, dir string) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, Error.Wrap(err)
	}
	return &DiskStore{logger: logger, dir: dir}, nil
}

// uploadDir maps an opaque client-chosen upload id to a directory name.
// Hashing keeps hostile ids out of the filesystem namespace
func (s *DiskStore) uploadDir(uploadID string) string {
	sum := sha256.Sum256([]byte(uploadID))
	return filepath.Join(s.dir, hex.EncodeToString(sum[:]))
}

// Put stores one chunk under (uploadID, index)
func (s *DiskStore) Put(uploadID string, index, total int, r io.Reader) error {
	if index < 0 || total <= 0 || index >= total {
		return Error.New("index %d out of range for total %d", index, total)
	}

	dir := s.uploadDir(uploadID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return Error.Wrap(err)
	}

	if err := s.recordTotal(dir, total); err != nil {
		return err
	}

	chunkPath := filepath.Join(dir, strconv.Itoa(index)+chunkSuffix)
	tmpPath := chunkPath + ".tmp"

	file, err := os.Create(tmpPath)
	if err != nil {
		return Error.Wrap(err)
	}

	zw := lz4.NewWriter(file)
	if _, err := io.Copy(zw, r); err != nil {
		_ = file.Close()
		_ = os.Remove(tmpPath)
		return Error.Wrap(err)
	}
	if err := zw.Close(); err != nil {
		_ = file.Close()
		_ = os.Remove(tmpPath)
		return Error.Wrap(err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return Error.Wrap(err)
	}

	if err := os.Rename(tmpPath, chunkPath); err != nil {
		_ = os.Remove(tmpPath)
		return Error.Wrap(err)
	}

	s.logger.Debug("chunk staged",
		zap.String("uploadID", uploadID),
		zap.Int("index", index),
		zap.Int("total", total))
	return nil
}

// recordTotal fixes the declared total on first write and verifies later
// chunks agree with it
func (s *DiskStore) recordTotal(dir string, total int) error {
	path := filepath.Join(dir, totalFile)

	data, err := os.ReadFile(path)
	if err == nil {
		recorded, convErr := strconv.Atoi(strings.TrimSpace(string(data)))
		if convErr != nil {
			return Error.Wrap(convErr)
		}
		if recorded != total {
			return ErrTotalMismatch.New("declared %d, recorded %d", total, recorded)
		}
		return nil
	}
	if !os.IsNotExist(err) {
		return Error.Wrap(err)
	}

	// unique temp name: concurrent first chunks may both get here, and they
	// all record the same total, so last rename wins harmlessly
	tmp, err := os.CreateTemp(dir, totalFile+"-*.tmp")
	if err != nil {
		return Error.Wrap(err)
	}
	if _, err := tmp.WriteString(strconv.Itoa(total)); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return Error.Wrap(err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return Error.Wrap(err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return Error.Wrap(err)
	}
	return nil
}

// ListOrdered returns staged chunks sorted by numeric index
func (s *DiskStore) ListOrdered(uploadID string) ([]Ref, error) {
	dir := s.uploadDir(uploadID)

	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, Error.Wrap(err)
	}

	refs := make([]Ref, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, chunkSuffix) {
			continue
		}
		index, err := strconv.Atoi(strings.TrimSuffix(name, chunkSuffix))
		if err != nil {
			continue
		}
		refs = append(refs, Ref{Index: index, Path: filepath.Join(dir, name)})
	}

	sort.Slice(refs, func(i, j int) bool { return refs[i].Index < refs[j].Index })
	return refs, nil
}

// Remove deletes one staged chunk
func (s *DiskStore) Remove(uploadID string, index int) error {
	path := filepath.Join(s.uploadDir(uploadID), strconv.Itoa(index)+chunkSuffix)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return Error.Wrap(err)
	}
	return nil
}

// DeclaredTotal returns the total recorded by the first staged chunk
func (s *DiskStore) DeclaredTotal(uploadID string) (int, error) {
	data, err := os.ReadFile(filepath.Join(s.uploadDir(uploadID), totalFile))
	if os.IsNotExist(err) {
		return 0, ErrUnknownUpload.New("%s", uploadID)
	}
	if err != nil {
		return 0, Error.Wrap(err)
	}
	total, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, Error.Wrap(err)
	}
	return total, nil
}

// Open returns a decompressing reader over the chunk's original bytes
func (s *DiskStore) Open(ref Ref) (io.ReadCloser, error) {
	file, err := os.Open(ref.Path)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return &chunkReader{zr: lz4.NewReader(file), file: file}, nil
}

type chunkReader struct {
	zr   *lz4.Reader
	file *os.File
}

func (r *chunkReader) Read(p []byte) (int, error) { return r.zr.Read(p) }
func (r *chunkReader) Close() error               { return r.file.Close() }
