package snapshot

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"exsim/domain/orderbook"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample(at time.Time) *Snapshot {
	return &Snapshot{
		Created:    at,
		OrderIDSeq: 42,
		Books: []BookState{
			{
				Security:    "AAPL",
				IntentSeq:   17,
				ExecutionID: 8,
				MatchID:     4,
				Orders: []orderbook.RestingOrder{{
					ID: 3, ClientID: 1, ClientOrderID: "a", Side: orderbook.Buy,
					TimeInForce: orderbook.GTC, Price: 100, OriginalSize: 10, TotalSize: 10,
					ExecutedSize: 4, AcceptTime: 1, RestTime: 1, ReduceTime: -1, ExecuteTime: 2,
				}},
			},
			{Security: "MSFT", IntentSeq: 9, Halted: true},
		},
	}
}

func TestWriteAndLoadLatest(t *testing.T) {
	dir := t.TempDir()
	w := &Writer{Dir: dir}

	base := time.Unix(1_700_000_000, 0)
	_, err := w.Write(sample(base))
	require.NoError(t, err)
	want := sample(base.Add(time.Second))
	want.OrderIDSeq = 99
	path, err := w.Write(want)
	require.NoError(t, err)

	got, gotPath, err := LoadLatest(dir)
	require.NoError(t, err)
	assert.Equal(t, path, gotPath)
	assert.Equal(t, uint64(99), got.OrderIDSeq)
	assert.Equal(t, want.Books, got.Books)
	assert.True(t, want.Created.Equal(got.Created))
}

func TestWritePrunesOldSnapshots(t *testing.T) {
	dir := t.TempDir()
	w := &Writer{Dir: dir, Keep: 2}
	base := time.Unix(1_700_000_000, 0)
	for i := 0; i < 4; i++ {
		_, err := w.Write(sample(base.Add(time.Duration(i) * time.Second)))
		require.NoError(t, err)
	}
	files, err := list(dir)
	require.NoError(t, err)
	assert.Len(t, files, 2)

	leftovers, err := filepath.Glob(filepath.Join(dir, "*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestLoadLatestEmptyDir(t *testing.T) {
	s, path, err := LoadLatest(t.TempDir())
	require.NoError(t, err)
	assert.Nil(t, s)
	assert.Empty(t, path)
}

func TestLoadRejectsCorruptFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, filePrefix+"00000000000000000001"+fileSuffix)
	require.NoError(t, os.WriteFile(path, []byte("not zstd"), 0o644))
	_, _, err := LoadLatest(dir)
	assert.Error(t, err)
}

func TestMinIntentSeq(t *testing.T) {
	s := sample(time.Now())
	assert.Equal(t, uint64(9), s.MinIntentSeq())
	assert.Equal(t, uint64(0), (&Snapshot{}).MinIntentSeq())

	b, ok := s.Book("MSFT")
	require.True(t, ok)
	assert.True(t, b.Halted)
	_, ok = s.Book("GOOG")
	assert.False(t, ok)
}
