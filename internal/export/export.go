// Package export writes a user's transactions as CSV to object storage.
package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/cashflow-tracker/internal/domain"
	"github.com/dvloznov/cashflow-tracker/internal/gcs"
	"github.com/dvloznov/cashflow-tracker/internal/jobs"
	"github.com/dvloznov/cashflow-tracker/internal/store"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ContentType of exported objects.
const ContentType = "text/csv"

// Header is the first CSV row.
var Header = []string{"id", "date", "type", "amount", "category", "description", "tags"}

// ErrNoBucket is returned when exporting without a configured bucket.
var ErrNoBucket = errors.New("export bucket is not configured")

// Result describes a finished export.
type Result struct {
	URI  string `json:"uri"`
	Rows int    `json:"rows"`
}

type Exporter struct {
	txs     store.TransactionStore
	objects gcs.ObjectWriter
	bucket  string
	now     func() time.Time
	log     zerolog.Logger
}

func New(txs store.TransactionStore, objects gcs.ObjectWriter, bucket string, log zerolog.Logger) *Exporter {
	return &Exporter{txs: txs, objects: objects, bucket: bucket, now: time.Now, log: log}
}

// ObjectName is exports/{user}/{YYYY-MM-DD}/{id}.csv.
func ObjectName(userID string, day civil.Date, id string) string {
	return fmt.Sprintf("exports/%s/%s/%s.csv", userID, day, id)
}

// Export writes every transaction of userID, oldest first.
func (e *Exporter) Export(ctx context.Context, userID string) (*Result, error) {
	if e.bucket == "" || e.objects == nil {
		return nil, ErrNoBucket
	}

	txs, err := store.ListAll(ctx, e.txs, domain.TransactionFilter{UserID: userID})
	if err != nil {
		return nil, fmt.Errorf("Export: loading transactions: %w", err)
	}

	var buf bytes.Buffer
	rows, err := WriteCSV(&buf, txs, nil)
	if err != nil {
		return nil, fmt.Errorf("Export: %w", err)
	}

	object := ObjectName(userID, civil.DateOf(e.now().UTC()), uuid.New().String())
	uri, err := e.objects.WriteObject(ctx, e.bucket, object, ContentType, &buf)
	if err != nil {
		return nil, fmt.Errorf("Export: uploading %s: %w", object, err)
	}

	e.log.Info().Str("user_id", userID).Str("uri", uri).Int("rows", rows).Msg("Transactions exported")
	return &Result{URI: uri, Rows: rows}, nil
}

// WriteCSV writes Header and one row per transaction. onRow, when set, is
// called after each row.
func WriteCSV(w io.Writer, txs []*domain.Transaction, onRow func()) (int, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return 0, fmt.Errorf("writing header: %w", err)
	}
	for i, t := range txs {
		record := []string{
			t.ID,
			civil.DateOf(t.Date.UTC()).String(),
			string(t.Type),
			t.Amount.StringFixed(2),
			t.Category,
			t.Description,
			strings.Join(t.Tags, ";"),
		}
		if err := cw.Write(record); err != nil {
			return i, fmt.Errorf("writing row %d: %w", i+1, err)
		}
		if onRow != nil {
			onRow()
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return len(txs), fmt.Errorf("flushing csv: %w", err)
	}
	return len(txs), nil
}

// JobHandler runs export jobs.
func (e *Exporter) JobHandler() jobs.JobHandler {
	return func(ctx context.Context, job *jobs.Job) (map[string]any, error) {
		res, err := e.Export(ctx, job.UserID)
		if err != nil {
			return nil, err
		}
		return map[string]any{"uri": res.URI, "rows": res.Rows}, nil
	}
}
