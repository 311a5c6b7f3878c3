package kvstore

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestBolt(t *testing.T) *BoltStore {
	store, err := NewBoltStore(zaptest.NewLogger(t), filepath.Join(t.TempDir(), "test.db"), "testbucket")
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, store.Close()) })
	return store
}

func TestPutGetDelete(t *testing.T) {
	store := newTestBolt(t)

	require.NoError(t, store.Put(Key("alpha"), Value("one")))

	value, err := store.Get(Key("alpha"))
	require.NoError(t, err)
	require.Equal(t, Value("one"), value)

	// absent keys read as zero values, not errors
	value, err = store.Get(Key("missing"))
	require.NoError(t, err)
	require.True(t, value.IsZero())

	require.NoError(t, store.Delete(Key("alpha")))
	value, err = store.Get(Key("alpha"))
	require.NoError(t, err)
	require.True(t, value.IsZero())

	// deleting an absent key is a no-op
	require.NoError(t, store.Delete(Key("alpha")))
}

func TestListByPrefix(t *testing.T) {
	store := newTestBolt(t)

	for i := 0; i < 5; i++ {
		require.NoError(t, store.Put(Key(fmt.Sprintf("param:%d", i)), Value("v")))
	}
	require.NoError(t, store.Put(Key("other:0"), Value("v")))

	keys, err := store.List(Key("param:"), 0)
	require.NoError(t, err)
	require.Len(t, keys, 5)
	require.Equal(t, "param:0", keys[0].String())
	require.Equal(t, "param:4", keys[4].String())

	keys, err = store.List(Key("param:"), 2)
	require.NoError(t, err)
	require.Len(t, keys, 2)
}

func TestReverseListByPrefix(t *testing.T) {
	store := newTestBolt(t)

	for i := 0; i < 5; i++ {
		require.NoError(t, store.Put(Key(fmt.Sprintf("history:%03d", i)), Value("v")))
	}
	require.NoError(t, store.Put(Key("zzz"), Value("v")))

	keys, err := store.ReverseList(Key("history:"), 0)
	require.NoError(t, err)
	require.Len(t, keys, 5)
	require.Equal(t, "history:004", keys[0].String())
	require.Equal(t, "history:000", keys[4].String())

	keys, err = store.ReverseList(Key("history:"), 3)
	require.NoError(t, err)
	require.Len(t, keys, 3)
	require.Equal(t, "history:004", keys[0].String())
}
