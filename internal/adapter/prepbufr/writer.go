package prepbufr

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"

	"github.com/couchcryptid/prepbufr-etl/internal/domain"
	"github.com/couchcryptid/prepbufr-etl/internal/observability"
)

// Extension is the file suffix of written batches.
const Extension = ".prepbufr"

// Writer writes one file per report batch into a directory.
// It implements pipeline.BatchLoader.
type Writer struct {
	dir     string
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewWriter creates a writer that places files under dir.
func NewWriter(dir string, metrics *observability.Metrics, logger *slog.Logger) *Writer {
	return &Writer{dir: dir, metrics: metrics, logger: logger}
}

// Path returns the file a batch is written to.
func (w *Writer) Path(batch domain.ReportBatch) string {
	return filepath.Join(w.dir, batch.Name+Extension)
}

// LoadBatch encodes the batch and atomically replaces its file. Empty
// batches produce no file.
func (w *Writer) LoadBatch(ctx context.Context, batch domain.ReportBatch) error {
	if len(batch.Reports) == 0 {
		w.logger.Info("no reports, skipping", "batch", batch.Name)
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	tmp, err := os.CreateTemp(w.dir, "."+batch.Name+"-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // no-op after rename

	if err := Encode(tmp, batch); err != nil {
		tmp.Close()
		return fmt.Errorf("encode batch %s: %w", batch.Name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	path := w.Path(batch)
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename output: %w", err)
	}

	w.metrics.BatchesWritten.WithLabelValues("prepbufr").Inc()
	w.logger.Info("prepbufr batch written",
		"path", path,
		"reports", len(batch.Reports),
		"subsets", batch.SubRecords(),
		"date", domain.CycleDate(batch.Label),
	)
	return nil
}

// Encode writes every report of the batch as a message of two subsets,
// dated by the batch label.
func Encode(out io.Writer, batch domain.ReportBatch) error {
	bw := bufio.NewWriter(out)
	date := int32(domain.CycleDate(batch.Label))

	var body bytes.Buffer
	for i := range batch.Reports {
		body.Reset()
		kin, th := Subsets(batch.Reports[i])
		writeMessageBody(&body, date, kin, th)

		if _, err := bw.WriteString(magic); err != nil {
			return err
		}
		if err := binary.Write(bw, binary.BigEndian, uint32(body.Len())); err != nil {
			return err
		}
		if _, err := bw.Write(body.Bytes()); err != nil {
			return err
		}
		if _, err := bw.WriteString(endMarker); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func writeMessageBody(buf *bytes.Buffer, date int32, subsets ...Subset) {
	var typ [typeWidth]byte
	copy(typ[:], domain.MessageType)
	for i := len(domain.MessageType); i < typeWidth; i++ {
		typ[i] = ' '
	}
	buf.Write(typ[:])
	_ = binary.Write(buf, binary.BigEndian, date)
	_ = binary.Write(buf, binary.BigEndian, uint16(len(subsets)))

	for _, s := range subsets {
		for a, arr := range s.arrays() {
			buf.WriteByte(byte(len(arr)))
			for i, v := range arr {
				bits := math.Float64bits(v)
				if a == arrHDR && i == 0 {
					bits = sidBits(s.SID)
				}
				_ = binary.Write(buf, binary.BigEndian, bits)
			}
		}
	}
}
