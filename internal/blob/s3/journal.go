package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/alanyoungcy/pairbot/internal/domain"
)

const journalContentType = "application/x-ndjson"

// journalLine is one JSONL record: a fill, or the closing window result.
type journalLine struct {
	Kind   string               `json:"kind"`
	Fill   *domain.Fill         `json:"fill,omitempty"`
	Result *domain.WindowResult `json:"result,omitempty"`
}

// JournalArchiver uploads a window's fills and result as newline-delimited
// JSON at journals/YYYY/MM/DD/<slug>.jsonl.
type JournalArchiver struct {
	writer domain.BlobWriter
}

// NewJournalArchiver creates an archiver.
func NewJournalArchiver(writer domain.BlobWriter) *JournalArchiver {
	return &JournalArchiver{writer: writer}
}

// Archive uploads the journal and returns its path.
func (a *JournalArchiver) Archive(ctx context.Context, result domain.WindowResult, fills []domain.Fill) (string, error) {
	lines := make([]journalLine, 0, len(fills)+1)
	for i := range fills {
		lines = append(lines, journalLine{Kind: "fill", Fill: &fills[i]})
	}
	lines = append(lines, journalLine{Kind: "result", Result: &result})

	buf, err := marshalJSONL(lines)
	if err != nil {
		return "", fmt.Errorf("s3blob: journal %s: %w", result.Slug, err)
	}

	path := JournalPath(result.Slug, result.SlotStart)
	err = a.writer.Upload(ctx, domain.BlobObject{
		Path:        path,
		Body:        buf,
		ContentType: journalContentType,
		Metadata: map[string]string{
			"slug":    result.Slug,
			"outcome": string(result.Outcome),
			"fills":   strconv.Itoa(len(fills)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("s3blob: upload journal %s: %w", result.Slug, err)
	}
	return path, nil
}

// JournalPath partitions journals by the UTC day of the slot start.
//
//	journals/2025/01/01/btc-updown-15m-1735689600.jsonl
func JournalPath(slug string, slotStart time.Time) string {
	return fmt.Sprintf("journals/%s/%s.jsonl", slotStart.UTC().Format("2006/01/02"), slug)
}

// marshalJSONL encodes each record as one compact JSON line.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
