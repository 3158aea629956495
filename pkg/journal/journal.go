package journal

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/saworbit/vmdebug/internal/platform"
	"github.com/ulikunitz/xz"
	"go.uber.org/zap"
)

// PrefixRun namespaces run records; keys sort by recording time.
const PrefixRun = "run:"

// ErrNotFound is returned when no run carries the requested job id.
var ErrNotFound = errors.New("run not found")

// RunRecord is one printed narrative.
type RunRecord struct {
	JobID       string `json:"job_id"`
	Unix        int64  `json:"unix"`
	RecordedAt  int64  `json:"recorded_at"` // Nanoseconds
	Fingerprint string `json:"fingerprint"`
	Lines       int    `json:"lines"`
	Transcript  []byte `json:"transcript"`
}

// Journal stores run records in Pebble.
type Journal struct {
	db     *pebble.DB
	logger *zap.Logger
}

// Open creates dir if needed and opens the journal inside it.
func Open(dir string, logger *zap.Logger) (*Journal, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	dir = platform.StatePath(dir)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}

	db, err := pebble.Open(dir, &pebble.Options{Logger: logger.Named("pebble").Sugar()})
	if err != nil {
		return nil, fmt.Errorf("open pebble: %w", err)
	}

	logger.Debug("journal opened", zap.String("dir", dir))
	return &Journal{db: db, logger: logger}, nil
}

// Close flushes and closes the underlying database.
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	if err := j.db.Flush(); err != nil {
		_ = j.db.Close()
		return fmt.Errorf("flush journal: %w", err)
	}
	return j.db.Close()
}

// Append writes rec. RecordedAt is set to now when zero.
func (j *Journal) Append(rec RunRecord) error {
	if j == nil || j.db == nil {
		return fmt.Errorf("pebble database is not initialized")
	}
	if rec.RecordedAt == 0 {
		rec.RecordedAt = time.Now().UnixNano()
	}

	compressed, err := compressTranscript(rec.Transcript)
	if err != nil {
		return fmt.Errorf("compress transcript: %w", err)
	}
	stored := rec
	stored.Transcript = compressed

	payload, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("marshal run record: %w", err)
	}

	keySuffix, err := randomSuffix()
	if err != nil {
		return fmt.Errorf("generate run key: %w", err)
	}
	key := []byte(fmt.Sprintf("%s%020d:%s", PrefixRun, rec.RecordedAt, keySuffix))

	if err := j.db.Set(key, payload, pebble.Sync); err != nil {
		return fmt.Errorf("write run record: %w", err)
	}

	j.logger.Debug("run recorded",
		zap.String("job_id", rec.JobID),
		zap.Int("transcript_bytes", len(rec.Transcript)),
		zap.Int("stored_bytes", len(compressed)),
	)
	return nil
}

// List returns every record in recording order.
func (j *Journal) List() ([]RunRecord, error) {
	var out []RunRecord
	err := j.scan(false, func(rec RunRecord) bool {
		out = append(out, rec)
		return true
	})
	return out, err
}

// Latest returns the most recently recorded run with jobID.
func (j *Journal) Latest(jobID string) (RunRecord, error) {
	var (
		found RunRecord
		ok    bool
	)
	err := j.scan(true, func(rec RunRecord) bool {
		if rec.JobID == jobID {
			found, ok = rec, true
			return false
		}
		return true
	})
	if err != nil {
		return RunRecord{}, err
	}
	if !ok {
		return RunRecord{}, fmt.Errorf("%w: %s", ErrNotFound, jobID)
	}
	return found, nil
}

// Export writes every record as a JSON line into an xz stream on w and
// returns the number of records written.
func (j *Journal) Export(w io.Writer) (int, error) {
	xw, err := xz.NewWriter(w)
	if err != nil {
		return 0, fmt.Errorf("init xz writer: %w", err)
	}

	enc := json.NewEncoder(xw)
	count := 0
	var encErr error
	scanErr := j.scan(false, func(rec RunRecord) bool {
		if encErr = enc.Encode(rec); encErr != nil {
			return false
		}
		count++
		return true
	})

	if scanErr != nil {
		_ = xw.Close()
		return count, scanErr
	}
	if encErr != nil {
		_ = xw.Close()
		return count, fmt.Errorf("encode run record: %w", encErr)
	}
	if err := xw.Close(); err != nil {
		return count, fmt.Errorf("close xz writer: %w", err)
	}
	return count, nil
}

// scan visits records in key order (or reverse) until fn returns false.
// Corrupt values are logged and skipped.
func (j *Journal) scan(reverse bool, fn func(RunRecord) bool) error {
	if j == nil || j.db == nil {
		return fmt.Errorf("pebble database is not initialized")
	}

	iter, err := newPrefixIter(j.db, PrefixRun)
	if err != nil {
		return err
	}
	defer iter.Close()

	valid := iter.First
	step := iter.Next
	if reverse {
		valid, step = iter.Last, iter.Prev
	}

	for ok := valid(); ok; ok = step() {
		rec, err := decodeRecord(iter.Value())
		if err != nil {
			j.logger.Warn("skip corrupt run record", zap.ByteString("key", iter.Key()), zap.Error(err))
			continue
		}
		if !fn(rec) {
			break
		}
	}

	return iter.Error()
}

func decodeRecord(val []byte) (RunRecord, error) {
	var rec RunRecord
	if err := json.Unmarshal(val, &rec); err != nil {
		return RunRecord{}, fmt.Errorf("decode run record: %w", err)
	}
	transcript, err := decompressTranscript(rec.Transcript)
	if err != nil {
		return RunRecord{}, fmt.Errorf("decompress transcript: %w", err)
	}
	rec.Transcript = transcript
	return rec, nil
}

func newPrefixIter(db *pebble.DB, prefix string) (*pebble.Iterator, error) {
	upper := append([]byte(prefix), 0xff)
	return db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(prefix),
		UpperBound: upper,
	})
}

func randomSuffix() (string, error) {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf[:]), nil
}
