package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/parquet-go/parquet-go"

	"intraday/internal/domain"
)

// Compile-time interface check.
var _ PartitionStore = (*ParquetStore)(nil)

// QuoteRecord is the Parquet schema for partition files: long format, one row
// per observed sample. A record with Timestamp == SentinelTimestamp is the
// end-of-file sentinel distinguishing a finished partition from one abandoned
// mid-write after a crash.
type QuoteRecord struct {
	Timestamp int64   `parquet:"timestamp"`
	Strike    int32   `parquet:"strike"`
	Right     string  `parquet:"right"`
	Side      string  `parquet:"side"`
	Price     float64 `parquet:"price"`
}

// SentinelTimestamp marks the partition-complete sentinel record. Real
// timestamps are epoch seconds and always positive.
const SentinelTimestamp int64 = -1

// ParquetStore implements PartitionStore with one Parquet file per strike
// under WorkDir, named "<strike>.parquet". Parquet files are append-only in
// the read-merge-rewrite sense: Append loads the existing records and
// rewrites the file with the new rows concatenated.
type ParquetStore struct {
	WorkDir string
}

// NewParquetStore creates a ParquetStore rooted at workDir, creating the
// directory if needed.
func NewParquetStore(workDir string) (*ParquetStore, error) {
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating work dir: %w", err)
	}
	return &ParquetStore{WorkDir: workDir}, nil
}

func (s *ParquetStore) path(strike int) string {
	return filepath.Join(s.WorkDir, strconv.Itoa(strike)+".parquet")
}

// Reset truncates/recreates the partition for a strike.
func (s *ParquetStore) Reset(strike int) error {
	if err := writeQuoteFile(s.path(strike), nil); err != nil {
		return fmt.Errorf("resetting partition %d: %w", strike, err)
	}
	return nil
}

// Append appends rows to the strike's partition preserving their order.
// Rows for other strikes are rejected: a writer must never interleave two
// partitions into one file.
func (s *ParquetStore) Append(strike int, rows []domain.Quote) error {
	if len(rows) == 0 {
		return nil
	}
	for _, q := range rows {
		if q.Strike != strike {
			return fmt.Errorf("partition %d: row for strike %d", strike, q.Strike)
		}
	}

	existing, err := readQuoteFile(s.path(strike))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("reading partition %d: %w", strike, err)
	}

	records := make([]QuoteRecord, 0, len(existing)+len(rows))
	records = append(records, existing...)
	for _, q := range rows {
		records = append(records, QuoteRecord{
			Timestamp: q.Timestamp,
			Strike:    int32(q.Strike),
			Right:     string(q.Right),
			Side:      string(q.Side),
			Price:     q.Price,
		})
	}

	if err := writeQuoteFile(s.path(strike), records); err != nil {
		return fmt.Errorf("writing partition %d: %w", strike, err)
	}
	return nil
}

// Complete appends the end-of-file sentinel. Completing an already complete
// partition is a no-op.
func (s *ParquetStore) Complete(strike int) error {
	records, err := readQuoteFile(s.path(strike))
	if err != nil {
		return fmt.Errorf("reading partition %d: %w", strike, err)
	}
	if hasSentinel(records) {
		return nil
	}
	records = append(records, QuoteRecord{Timestamp: SentinelTimestamp, Strike: int32(strike)})
	if err := writeQuoteFile(s.path(strike), records); err != nil {
		return fmt.Errorf("completing partition %d: %w", strike, err)
	}
	return nil
}

// IsComplete reports whether the partition carries the sentinel.
func (s *ParquetStore) IsComplete(strike int) (bool, error) {
	records, err := readQuoteFile(s.path(strike))
	if err != nil {
		return false, err
	}
	return hasSentinel(records), nil
}

// Strikes lists the strikes with partition files, ascending.
func (s *ParquetStore) Strikes() ([]int, error) {
	entries, err := os.ReadDir(s.WorkDir)
	if err != nil {
		return nil, err
	}

	var strikes []int
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".parquet") {
			continue
		}
		strike, err := strconv.Atoi(strings.TrimSuffix(name, ".parquet"))
		if err != nil {
			continue
		}
		strikes = append(strikes, strike)
	}
	sort.Ints(strikes)
	return strikes, nil
}

// read returns the partition's records for the merger.
func (s *ParquetStore) read(strike int) ([]QuoteRecord, error) {
	return readQuoteFile(s.path(strike))
}

// remove deletes the partition file. Only the merger calls it, after the
// merged artifact is durably written.
func (s *ParquetStore) remove(strike int) error {
	return os.Remove(s.path(strike))
}

func hasSentinel(records []QuoteRecord) bool {
	return len(records) > 0 && records[len(records)-1].Timestamp == SentinelTimestamp
}

// writeQuoteFile rewrites the partition through a temp file and a rename, so
// a crash mid-rewrite leaves the previous contents in place rather than a
// truncated file.
func writeQuoteFile(path string, records []QuoteRecord) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	w := parquet.NewGenericWriter[QuoteRecord](f)
	if len(records) > 0 {
		if _, err := w.Write(records); err != nil {
			f.Close()
			os.Remove(tmp)
			return err
		}
	}
	if err := w.Close(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func readQuoteFile(path string) ([]QuoteRecord, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	return parquet.ReadFile[QuoteRecord](path)
}
