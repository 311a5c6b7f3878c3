package chunkstore

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestStore(t *testing.T) *DiskStore {
	store, err := NewDiskStore(zaptest.NewLogger(t), t.TempDir())
	require.NoError(t, err)
	return store
}

func readChunk(t *testing.T, store *DiskStore, ref Ref) []byte {
	rc, err := store.Open(ref)
	require.NoError(t, err)
	defer rc.Close()

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	return data
}

func TestPutAndListOrdered(t *testing.T) {
	store := newTestStore(t)

	// deliver out of order, with enough chunks that lexicographic ordering
	// of names would be wrong (10 before 9)
	total := 12
	order := []int{11, 3, 10, 0, 9, 5, 1, 7, 2, 8, 4, 6}
	for _, index := range order {
		err := store.Put("upload-1", index, total, strings.NewReader(fmt.Sprintf("chunk-%d", index)))
		require.NoError(t, err)
	}

	refs, err := store.ListOrdered("upload-1")
	require.NoError(t, err)
	require.Len(t, refs, total)

	for i, ref := range refs {
		require.Equal(t, i, ref.Index)
		require.Equal(t, []byte(fmt.Sprintf("chunk-%d", i)), readChunk(t, store, ref))
	}
}

func TestPutOverwrite(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Put("u", 0, 2, strings.NewReader("first try")))
	require.NoError(t, store.Put("u", 0, 2, strings.NewReader("retried")))

	refs, err := store.ListOrdered("u")
	require.NoError(t, err)
	require.Len(t, refs, 1)
	require.Equal(t, []byte("retried"), readChunk(t, store, refs[0]))
}

func TestPutRejectsBadIndex(t *testing.T) {
	store := newTestStore(t)

	require.Error(t, store.Put("u", -1, 3, bytes.NewReader(nil)))
	require.Error(t, store.Put("u", 3, 3, bytes.NewReader(nil)))
	require.Error(t, store.Put("u", 0, 0, bytes.NewReader(nil)))
}

func TestDeclaredTotal(t *testing.T) {
	store := newTestStore(t)

	_, err := store.DeclaredTotal("nothing-here")
	require.True(t, ErrUnknownUpload.Has(err))

	require.NoError(t, store.Put("u", 1, 4, strings.NewReader("x")))
	total, err := store.DeclaredTotal("u")
	require.NoError(t, err)
	require.Equal(t, 4, total)

	// later chunks must agree with the first chunk's declaration
	err = store.Put("u", 2, 5, strings.NewReader("y"))
	require.True(t, ErrTotalMismatch.Has(err))
}

func TestRemove(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Put("u", 0, 1, strings.NewReader("x")))
	require.NoError(t, store.Remove("u", 0))

	refs, err := store.ListOrdered("u")
	require.NoError(t, err)
	require.Empty(t, refs)

	// removing an absent chunk is a no-op
	require.NoError(t, store.Remove("u", 0))
	require.NoError(t, store.Remove("never-seen", 7))
}

func TestListOrderedUnknownUpload(t *testing.T) {
	store := newTestStore(t)

	refs, err := store.ListOrdered("unknown")
	require.NoError(t, err)
	require.Empty(t, refs)
}

func TestHostileUploadIDs(t *testing.T) {
	store := newTestStore(t)

	for _, id := range []string{"../../etc/passwd", "a/b/c", ".", "..", ""} {
		require.NoError(t, store.Put(id, 0, 1, strings.NewReader("data")))
		refs, err := store.ListOrdered(id)
		require.NoError(t, err)
		require.Len(t, refs, 1)
	}
}
