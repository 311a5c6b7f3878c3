package assemble

import (
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Gammanik/upload-compress/internal/chunkstore"
)

func newFixture(t *testing.T) (*Assembler, chunkstore.Store) {
	logger := zaptest.NewLogger(t)
	chunks, err := chunkstore.NewDiskStore(logger, t.TempDir())
	require.NoError(t, err)
	assembler, err := NewAssembler(logger, chunks, t.TempDir())
	require.NoError(t, err)
	return assembler, chunks
}

func stage(t *testing.T, chunks chunkstore.Store, uploadID string, total int, indices ...int) {
	for _, i := range indices {
		err := chunks.Put(uploadID, i, total, strings.NewReader(fmt.Sprintf("part-%02d|", i)))
		require.NoError(t, err)
	}
}

func TestAssembleOrderIndependence(t *testing.T) {
	assembler, chunks := newFixture(t)

	stage(t, chunks, "forward", 4, 0, 1, 2, 3)
	stage(t, chunks, "reverse", 4, 3, 2, 1, 0)

	a, err := assembler.Assemble("forward", "a.bin", 4)
	require.NoError(t, err)
	b, err := assembler.Assemble("reverse", "b.bin", 4)
	require.NoError(t, err)

	first, err := os.ReadFile(a.Path)
	require.NoError(t, err)
	second, err := os.ReadFile(b.Path)
	require.NoError(t, err)

	require.Equal(t, first, second)
	require.Equal(t, "part-00|part-01|part-02|part-03|", string(first))
	require.Equal(t, int64(len(first)), a.Size)
}

func TestAssembleIncompleteLeavesChunks(t *testing.T) {
	assembler, chunks := newFixture(t)

	stage(t, chunks, "u", 3, 0, 2)

	_, err := assembler.Assemble("u", "file.txt", 3)
	require.True(t, ErrIncomplete.Has(err))

	// present chunks must not be consumed by a failed assembly
	refs, err := chunks.ListOrdered("u")
	require.NoError(t, err)
	require.Len(t, refs, 2)
}

func TestAssembleConsumesChunks(t *testing.T) {
	assembler, chunks := newFixture(t)

	stage(t, chunks, "u", 3, 0, 1, 2)

	_, err := assembler.Assemble("u", "file.txt", 3)
	require.NoError(t, err)

	refs, err := chunks.ListOrdered("u")
	require.NoError(t, err)
	require.Empty(t, refs)

	// reassembly is not crash-safe: once the chunks are consumed a second
	// run for the same upload fails rather than recovering
	_, err = assembler.Assemble("u", "file.txt", 3)
	require.True(t, ErrIncomplete.Has(err))
}

func TestAssembleRejectsBadTotal(t *testing.T) {
	assembler, _ := newFixture(t)

	_, err := assembler.Assemble("u", "file.txt", 0)
	require.True(t, ErrIncomplete.Has(err))
}

func TestClassify(t *testing.T) {
	cases := map[string]Category{
		"photo.jpg":        CategoryImage,
		"PHOTO.JPEG":       CategoryImage,
		"scan.png":         CategoryImage,
		"anim.gif":         CategoryImage,
		"clip.mp4":         CategoryVideo,
		"movie.MKV":        CategoryVideo,
		"stream.webm":      CategoryVideo,
		"notes.txt":        CategoryDocument,
		"report.pdf":       CategoryDocument,
		"archive.tar.gz":   CategoryDocument,
		"no-extension":     CategoryDocument,
		"weird.unknownext": CategoryDocument,
	}
	for filename, want := range cases {
		require.Equal(t, want, Classify(filename), "filename %q", filename)
	}
}
