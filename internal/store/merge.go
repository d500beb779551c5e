package store

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"os"
	"sort"

	"github.com/parquet-go/parquet-go"

	"intraday/internal/domain"
)

// Artifact format selectors. They mirror the config surface so the merger
// can be driven without importing the config package.
const (
	FormatBinary  = "binary"
	FormatTabular = "tabular"
)

// IncompletePartitionError reports a partition without its end-of-file
// sentinel: the run that produced it did not finish.
type IncompletePartitionError struct {
	Strike int
}

func (e *IncompletePartitionError) Error() string {
	return fmt.Sprintf("partition %d has no end-of-file sentinel; run incomplete", e.Strike)
}

// SchemaError reports a partition whose records do not conform to the quote
// schema. It is a fatal merge error, never a silent coercion.
type SchemaError struct {
	Strike int
	Detail string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("partition %d: schema violation: %s", e.Strike, e.Detail)
}

// MergeResult summarizes a successful merge.
type MergeResult struct {
	Path       string
	Partitions int
	Rows       int
}

// Merger consolidates all completed partitions into one artifact. It is the
// only component permitted to delete partition files, and does so only after
// the artifact is durably written; on any error the partitions are left
// intact for diagnosis.
type Merger struct {
	parts *ParquetStore
	log   *slog.Logger
}

// NewMerger creates a Merger over the given partition store.
func NewMerger(parts *ParquetStore, log *slog.Logger) *Merger {
	if log == nil {
		log = slog.Default()
	}
	return &Merger{parts: parts, log: log.With("component", "merger")}
}

// Merge validates every partition, concatenates their rows in ascending
// strike order preserving each partition's internal order, writes the
// artifact in the selected format, and deletes the partitions.
//
// Rows duplicated by a crash-resumed batch are deduplicated by full row key,
// keeping the later (re-fetched) row.
func (m *Merger) Merge(outBase, format string) (MergeResult, error) {
	if format != FormatBinary && format != FormatTabular {
		return MergeResult{}, fmt.Errorf("unknown output format %q", format)
	}

	strikes, err := m.parts.Strikes()
	if err != nil {
		return MergeResult{}, fmt.Errorf("listing partitions: %w", err)
	}
	if len(strikes) == 0 {
		return MergeResult{}, fmt.Errorf("no partitions under %s", m.parts.WorkDir)
	}

	// Validate everything before writing anything.
	partitions := make(map[int][]domain.Quote, len(strikes))
	for _, strike := range strikes {
		rows, err := m.loadPartition(strike)
		if err != nil {
			return MergeResult{}, err
		}
		partitions[strike] = rows
	}

	var merged []domain.Quote
	for _, strike := range strikes {
		merged = append(merged, partitions[strike]...)
	}

	var path string
	switch format {
	case FormatBinary:
		path = outBase + ".bin"
		err = writeBinaryArtifact(path, merged)
	case FormatTabular:
		path = outBase + ".parquet"
		err = writeTabularArtifact(path, merged)
	}
	if err != nil {
		return MergeResult{}, fmt.Errorf("writing %s: %w", path, err)
	}

	for _, strike := range strikes {
		if err := m.parts.remove(strike); err != nil {
			m.log.Warn("could not remove merged partition", "strike", strike, "error", err)
		}
	}

	m.log.Info("merge complete", "path", path, "partitions", len(strikes), "rows", len(merged))
	return MergeResult{Path: path, Partitions: len(strikes), Rows: len(merged)}, nil
}

// loadPartition reads one partition, checks its sentinel and schema, and
// returns its rows deduplicated by row key (keep-last) in time order.
func (m *Merger) loadPartition(strike int) ([]domain.Quote, error) {
	records, err := m.parts.read(strike)
	if err != nil {
		return nil, fmt.Errorf("reading partition %d: %w", strike, err)
	}
	if !hasSentinel(records) {
		return nil, &IncompletePartitionError{Strike: strike}
	}
	records = records[:len(records)-1]

	seen := make(map[domain.Key]int, len(records))
	rows := make([]domain.Quote, 0, len(records))
	for _, r := range records {
		if r.Timestamp <= 0 {
			return nil, &SchemaError{Strike: strike, Detail: fmt.Sprintf("non-positive timestamp %d", r.Timestamp)}
		}
		right, side := domain.Right(r.Right), domain.Side(r.Side)
		if !right.Valid() || !side.Valid() {
			return nil, &SchemaError{Strike: strike, Detail: fmt.Sprintf("unknown right/side %q/%q", r.Right, r.Side)}
		}
		if int(r.Strike) != strike {
			return nil, &SchemaError{Strike: strike, Detail: fmt.Sprintf("row for strike %d", r.Strike)}
		}

		q := domain.Quote{
			Timestamp: r.Timestamp,
			Strike:    int(r.Strike),
			Right:     right,
			Side:      side,
			Price:     r.Price,
		}
		if i, dup := seen[q.Key()]; dup {
			rows[i] = q
			continue
		}
		seen[q.Key()] = len(rows)
		rows = append(rows, q)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Timestamp < rows[j].Timestamp
	})
	return rows, nil
}

// ---------------------------------------------------------------------------
// Artifact encoders
// ---------------------------------------------------------------------------

// writeBinaryArtifact writes packed little-endian records with no header:
// timestamp:int32, right:int32, side:int32, price:float32, strike:int32.
// The file is written to a temp path and renamed into place.
func writeBinaryArtifact(path string, rows []domain.Quote) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}

	w := bufio.NewWriter(f)
	buf := make([]byte, 20)
	for _, q := range rows {
		binary.LittleEndian.PutUint32(buf[0:4], uint32(int32(q.Timestamp)))
		binary.LittleEndian.PutUint32(buf[4:8], uint32(q.Right.Code()))
		binary.LittleEndian.PutUint32(buf[8:12], uint32(q.Side.Code()))
		binary.LittleEndian.PutUint32(buf[12:16], math.Float32bits(float32(q.Price)))
		binary.LittleEndian.PutUint32(buf[16:20], uint32(int32(q.Strike)))
		if _, err := w.Write(buf); err != nil {
			f.Close()
			os.Remove(tmp)
			return err
		}
	}
	if err := w.Flush(); err != nil {
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

// TabularRecord is the Parquet schema of the tabular artifact: one row per
// (strike, timestamp) with the four quote columns.
type TabularRecord struct {
	Timestamp int64   `parquet:"timestamp"`
	Strike    int32   `parquet:"strike"`
	CallBid   float64 `parquet:"CallBid"`
	CallAsk   float64 `parquet:"CallAsk"`
	PutBid    float64 `parquet:"PutBid"`
	PutAsk    float64 `parquet:"PutAsk"`
}

// writeTabularArtifact pivots long-format rows into the four-column layout
// and writes one Parquet file.
func writeTabularArtifact(path string, rows []domain.Quote) error {
	type cell struct {
		strike int
		ts     int64
	}
	pivot := make(map[cell]*TabularRecord)
	var order []cell
	for _, q := range rows {
		c := cell{strike: q.Strike, ts: q.Timestamp}
		rec, ok := pivot[c]
		if !ok {
			rec = &TabularRecord{Timestamp: q.Timestamp, Strike: int32(q.Strike)}
			pivot[c] = rec
			order = append(order, c)
		}
		switch {
		case q.Right == domain.RightCall && q.Side == domain.SideBid:
			rec.CallBid = q.Price
		case q.Right == domain.RightCall && q.Side == domain.SideAsk:
			rec.CallAsk = q.Price
		case q.Right == domain.RightPut && q.Side == domain.SideBid:
			rec.PutBid = q.Price
		default:
			rec.PutAsk = q.Price
		}
	}

	sort.Slice(order, func(i, j int) bool {
		if order[i].strike != order[j].strike {
			return order[i].strike < order[j].strike
		}
		return order[i].ts < order[j].ts
	})

	records := make([]TabularRecord, 0, len(order))
	for _, c := range order {
		records = append(records, *pivot[c])
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	w := parquet.NewGenericWriter[TabularRecord](f)
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
