package pipeline

import (
	"context"
	"io"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/Gammanik/upload-compress/internal/assemble"
	"github.com/Gammanik/upload-compress/internal/catalog"
	"github.com/Gammanik/upload-compress/internal/chunkstore"
	"github.com/Gammanik/upload-compress/internal/compress"
)

// Pipeline ties the staging, reassembly, compression and catalog stages
// together behind the interface the transport layer consumes
type Pipeline struct {
	logger    *zap.Logger
	chunks    chunkstore.Store
	assembler *assemble.Assembler
	engines   map[assemble.Category]compress.Engine
	catalog   *catalog.Catalog

	mu       sync.Mutex
	inFlight map[string]*sync.Mutex
}

// New wires the pipeline stages
func New(logger *zap.Logger, chunks chunkstore.Store, assembler *assemble.Assembler, engines map[assemble.Category]compress.Engine, cat *catalog.Catalog) *Pipeline {
	return &Pipeline{
		logger:    logger,
		chunks:    chunks,
		assembler: assembler,
		engines:   engines,
		catalog:   cat,
		inFlight:  make(map[string]*sync.Mutex),
	}
}

// uploadLock returns the mutex scoping exclusion to one upload's pipeline.
// Chunk receives stay lock-free; only finalize needs it
func (p *Pipeline) uploadLock(uploadID string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	lock, ok := p.inFlight[uploadID]
	if !ok {
		lock = &sync.Mutex{}
		p.inFlight[uploadID] = lock
	}
	return lock
}

// ReceiveChunk stages one chunk. Concurrent receives for different indices
// of the same upload are safe; retrying the same index overwrites cleanly
func (p *Pipeline) ReceiveChunk(uploadID string, index, total int, filename string, r io.Reader) error {
	return p.chunks.Put(uploadID, index, total, r)
}

// Finalize reassembles the upload, compresses it and registers the result.
// At most one finalize runs per upload id at a time; the lock spans assembly
// plus compression so a concurrent retry cannot interleave with either
func (p *Pipeline) Finalize(ctx context.Context, uploadID, filename string) (*catalog.Entry, error) {
	lock := p.uploadLock(uploadID)
	lock.Lock()
	defer lock.Unlock()

	total, err := p.chunks.DeclaredTotal(uploadID)
	if err != nil {
		if chunkstore.ErrUnknownUpload.Has(err) {
			return nil, assemble.ErrIncomplete.New("no chunks staged for %s", uploadID)
		}
		return nil, err
	}

	artifact, err := p.assembler.Assemble(uploadID, filename, total)
	if err != nil {
		return nil, err
	}

	engine, ok := p.engines[artifact.Category]
	if !ok {
		engine = p.engines[assemble.CategoryDocument]
	}

	result, err := engine.Compress(ctx, artifact)
	if err != nil {
		return nil, err
	}

	entry, err := p.catalog.Register(result.Filename, artifact.Category, result.Size, result.Path)
	if err != nil {
		return nil, err
	}

	p.logger.Info("upload finalized",
		zap.String("uploadID", uploadID),
		zap.String("id", entry.ID),
		zap.Int64("originalSize", result.OriginalSize),
		zap.Int64("finalSize", result.Size))
	return entry, nil
}

// Retrieve looks up the entry (counting the download) and opens the stored
// artifact for streaming
func (p *Pipeline) Retrieve(id string) (*catalog.Entry, io.ReadCloser, error) {
	entry, err := p.catalog.Fetch(id)
	if err != nil {
		return nil, nil, err
	}

	file, err := os.Open(entry.StorageLocation)
	if err != nil {
		return nil, nil, catalog.Error.Wrap(err)
	}
	return entry, file, nil
}

// RecentUploads lists catalog entries newest first
func (p *Pipeline) RecentUploads(limit int) ([]catalog.Entry, error) {
	return p.catalog.ListRecent(limit)
}

// Stats reports the catalog's artifact count and combined size
func (p *Pipeline) Stats() (int, int64, error) {
	return p.catalog.Stats()
}
