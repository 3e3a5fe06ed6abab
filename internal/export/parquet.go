// Package export writes query results to Parquet files.
//
// Series are flattened to long-format rows (experiment, scalar, step, value)
// so downstream tools can read them without knowing the per-project dynamic
// schema. This is local operator tooling; it is not the object-storage
// snapshot service.
package export

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress"

	"github.com/MalchuL/experiment-tracker-sub000/internal/metrics/types"
)

// Options configures the Parquet writer.
type Options struct {
	// Compression algorithm
	Compression CompressionType

	// RowGroupSize is the target number of rows per row group
	RowGroupSize int
}

// CompressionType represents a Parquet compression algorithm.
type CompressionType int

const (
	CompressionNone CompressionType = iota
	CompressionSnappy
	CompressionZstd
	CompressionLZ4
	CompressionGzip
)

// DefaultOptions returns default Parquet options.
func DefaultOptions() Options {
	return Options{
		Compression:  CompressionZstd,
		RowGroupSize: 100000,
	}
}

// ParseCompressionType parses a compression type string.
func ParseCompressionType(s string) CompressionType {
	switch s {
	case "snappy":
		return CompressionSnappy
	case "zstd":
		return CompressionZstd
	case "lz4":
		return CompressionLZ4
	case "gzip":
		return CompressionGzip
	case "none", "":
		return CompressionNone
	default:
		return CompressionZstd
	}
}

// getCompression returns the parquet-go compression codec.
func getCompression(ct CompressionType) compress.Codec {
	switch ct {
	case CompressionSnappy:
		return &parquet.Snappy
	case CompressionZstd:
		return &parquet.Zstd
	case CompressionLZ4:
		return &parquet.Lz4Raw
	case CompressionGzip:
		return &parquet.Gzip
	default:
		return &parquet.Uncompressed
	}
}

// ScalarRow is one point in long format.
type ScalarRow struct {
	ExperimentID string  `parquet:"experiment_id,zstd"`
	Scalar       string  `parquet:"scalar,zstd"`
	Step         int64   `parquet:"step"`
	Value        float64 `parquet:"value"`
}

// Flatten converts reconstructed series to long-format rows, in experiment
// order, scalar name order within an experiment, step order within a scalar.
func Flatten(series []*types.ExperimentSeries) []ScalarRow {
	var rows []ScalarRow
	for _, es := range series {
		for _, name := range sortedScalarNames(es) {
			s := es.Scalars[name]
			for i := range s.Steps {
				rows = append(rows, ScalarRow{
					ExperimentID: es.ExperimentID,
					Scalar:       name,
					Step:         s.Steps[i],
					Value:        s.Values[i],
				})
			}
		}
	}
	return rows
}

func sortedScalarNames(es *types.ExperimentSeries) []string {
	names := make([]string, 0, len(es.Scalars))
	for name := range es.Scalars {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// WriteSeries writes reconstructed series to a Parquet file at path,
// creating parent directories as needed. It returns the number of rows
// written.
func WriteSeries(path string, series []*types.ExperimentSeries, opts Options) (int, error) {
	rows := Flatten(series)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, fmt.Errorf("create export dir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create export file: %w", err)
	}
	defer f.Close()

	writer := parquet.NewGenericWriter[ScalarRow](f,
		parquet.Compression(getCompression(opts.Compression)),
		parquet.MaxRowsPerRowGroup(int64(opts.RowGroupSize)),
	)

	if len(rows) > 0 {
		if _, err := writer.Write(rows); err != nil {
			writer.Close()
			return 0, fmt.Errorf("write rows: %w", err)
		}
	}

	if err := writer.Close(); err != nil {
		return 0, fmt.Errorf("close writer: %w", err)
	}

	return len(rows), nil
}

// ReadSeriesRows reads back all rows from an exported file. Used by tests
// and ad-hoc inspection.
func ReadSeriesRows(path string) ([]ScalarRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open export file: %w", err)
	}
	defer f.Close()

	reader := parquet.NewGenericReader[ScalarRow](f)
	defer reader.Close()

	var rows []ScalarRow
	buf := make([]ScalarRow, 256)
	for {
		n, err := reader.Read(buf)
		rows = append(rows, buf[:n]...)
		if err != nil {
			break
		}
	}
	return rows, nil
}
