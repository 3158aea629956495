package journal

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/pebble"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ulikunitz/xz"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()

	j, err := Open(filepath.Join(t.TempDir(), "state"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func record(jobID string, unix, at int64, transcript string) RunRecord {
	return RunRecord{
		JobID:       jobID,
		Unix:        unix,
		RecordedAt:  at,
		Fingerprint: "QmTest",
		Lines:       16,
		Transcript:  []byte(transcript),
	}
}

func TestAppendAndList(t *testing.T) {
	j := openTestJournal(t)

	require.NoError(t, j.Append(record("debug-test-100", 100, 3, "third")))
	require.NoError(t, j.Append(record("debug-test-99", 99, 1, "first")))
	require.NoError(t, j.Append(record("debug-test-99", 99, 2, "second")))

	runs, err := j.List()
	require.NoError(t, err)
	require.Len(t, runs, 3)

	assert.Equal(t, "first", string(runs[0].Transcript))
	assert.Equal(t, "second", string(runs[1].Transcript))
	assert.Equal(t, "third", string(runs[2].Transcript))
	assert.Equal(t, int64(100), runs[2].Unix)
	assert.Equal(t, 16, runs[0].Lines)
}

func TestAppendSetsRecordedAt(t *testing.T) {
	j := openTestJournal(t)

	require.NoError(t, j.Append(record("debug-test-1", 1, 0, "x")))

	runs, err := j.List()
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.NotZero(t, runs[0].RecordedAt)
}

func TestLatest(t *testing.T) {
	j := openTestJournal(t)

	require.NoError(t, j.Append(record("debug-test-5", 5, 10, "older")))
	require.NoError(t, j.Append(record("debug-test-5", 5, 20, "newer")))
	require.NoError(t, j.Append(record("debug-test-6", 6, 30, "other")))

	rec, err := j.Latest("debug-test-5")
	require.NoError(t, err)
	assert.Equal(t, "newer", string(rec.Transcript))

	_, err = j.Latest("debug-test-7")
	assert.True(t, errors.Is(err, ErrNotFound), "expected ErrNotFound, got %v", err)
}

func TestTranscriptCompressedAtRest(t *testing.T) {
	j := openTestJournal(t)

	transcript := bytes.Repeat([]byte("  Step 4: waitForVMFullyProvisioned waits for root volume\n"), 50)
	require.NoError(t, j.Append(record("debug-test-1", 1, 1, string(transcript))))

	iter, err := newPrefixIter(j.db, PrefixRun)
	require.NoError(t, err)
	defer iter.Close()

	require.True(t, iter.First())
	var stored RunRecord
	require.NoError(t, json.Unmarshal(iter.Value(), &stored))
	assert.True(t, bytes.HasPrefix(stored.Transcript, []byte(compressionMagic)))
	assert.Less(t, len(stored.Transcript), len(transcript))
}

func TestCorruptRecordSkipped(t *testing.T) {
	j := openTestJournal(t)

	require.NoError(t, j.db.Set([]byte(PrefixRun+"00000000000000000000:bad"), []byte("{not json"), pebble.Sync))
	require.NoError(t, j.Append(record("debug-test-2", 2, 5, "ok")))

	runs, err := j.List()
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "debug-test-2", runs[0].JobID)
}

func TestUncompressedTranscriptPassthrough(t *testing.T) {
	out, err := decompressTranscript([]byte("plain"))
	require.NoError(t, err)
	assert.Equal(t, "plain", string(out))
}

func TestExport(t *testing.T) {
	j := openTestJournal(t)

	require.NoError(t, j.Append(record("debug-test-1", 1, 1, "one")))
	require.NoError(t, j.Append(record("debug-test-2", 2, 2, "two")))

	var buf bytes.Buffer
	n, err := j.Export(&buf)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	xr, err := xz.NewReader(&buf)
	require.NoError(t, err)

	var got []RunRecord
	sc := bufio.NewScanner(xr)
	for sc.Scan() {
		var rec RunRecord
		require.NoError(t, json.Unmarshal(sc.Bytes(), &rec))
		got = append(got, rec)
	}
	require.NoError(t, sc.Err())
	require.Len(t, got, 2)
	assert.Equal(t, "one", string(got[0].Transcript))
	assert.Equal(t, "debug-test-2", got[1].JobID)
}

func TestReopenKeepsRecords(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "state")

	j, err := Open(dir, nil)
	require.NoError(t, err)
	require.NoError(t, j.Append(record("debug-test-9", 9, 9, "persisted")))
	require.NoError(t, j.Close())

	j, err = Open(dir, nil)
	require.NoError(t, err)
	defer j.Close()

	rec, err := j.Latest("debug-test-9")
	require.NoError(t, err)
	assert.Equal(t, "persisted", string(rec.Transcript))
}

func TestNilJournal(t *testing.T) {
	var j *Journal
	assert.NoError(t, j.Close())
	assert.Error(t, j.Append(RunRecord{}))
	_, err := j.List()
	assert.Error(t, err)
}
