package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/alanyoungcy/pairbot/internal/domain"
)

type memWriter struct {
	obj domain.BlobObject
	err error
}

func (m *memWriter) Upload(_ context.Context, obj domain.BlobObject) error {
	if m.err != nil {
		return m.err
	}
	m.obj = obj
	return nil
}

func sampleWindow() (domain.WindowResult, []domain.Fill) {
	start := time.Unix(1735689600, 0).UTC()
	result := domain.WindowResult{
		Slug:      "btc-updown-15m-1735689600",
		SlotStart: start,
		SlotEnd:   start.Add(15 * time.Minute),
		Outcome:   domain.OutcomeUp,
	}
	fills := []domain.Fill{
		{ID: "a", Slug: result.Slug, Leg: domain.LegUp, Price: 0.45, Size: 10},
		{ID: "b", Slug: result.Slug, Leg: domain.LegDown, Price: 0.5, Size: 10},
	}
	return result, fills
}

func TestJournalArchive(t *testing.T) {
	w := &memWriter{}
	a := NewJournalArchiver(w)
	result, fills := sampleWindow()

	path, err := a.Archive(context.Background(), result, fills)
	if err != nil {
		t.Fatalf("Archive: %v", err)
	}
	if want := "journals/2025/01/01/btc-updown-15m-1735689600.jsonl"; path != want || w.obj.Path != want {
		t.Fatalf("path = %q (written %q), want %q", path, w.obj.Path, want)
	}
	if w.obj.ContentType != "application/x-ndjson" {
		t.Errorf("contentType = %q", w.obj.ContentType)
	}
	if md := w.obj.Metadata; md["slug"] != result.Slug || md["outcome"] != "up" || md["fills"] != "2" {
		t.Errorf("metadata = %v", md)
	}

	var kinds []string
	sc := bufio.NewScanner(bytes.NewReader(w.obj.Body))
	for sc.Scan() {
		var line journalLine
		if err := json.Unmarshal(sc.Bytes(), &line); err != nil {
			t.Fatalf("line %q: %v", sc.Text(), err)
		}
		kinds = append(kinds, line.Kind)
	}
	if len(kinds) != 3 || kinds[0] != "fill" || kinds[2] != "result" {
		t.Fatalf("kinds = %v", kinds)
	}
}

func TestWriterThreshold(t *testing.T) {
	w := NewWriter(&Client{s3: s3.New(s3.Options{Region: "us-east-1"})}, 16)
	if w.threshold != minPartSize {
		t.Fatalf("threshold = %d, want the part minimum", w.threshold)
	}
	if w.multipart(int(minPartSize)) || !w.multipart(int(minPartSize)+1) {
		t.Error("multipart switch should sit at the threshold")
	}
	if d := NewWriter(&Client{s3: s3.New(s3.Options{Region: "us-east-1"})}, 0); d.threshold != DefaultMultipartThreshold {
		t.Errorf("default threshold = %d", d.threshold)
	}
}

func TestJournalArchiveError(t *testing.T) {
	boom := errors.New("boom")
	a := NewJournalArchiver(&memWriter{err: boom})
	result, fills := sampleWindow()
	if _, err := a.Archive(context.Background(), result, fills); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
}

func TestKeysAndEndpoints(t *testing.T) {
	c := &Client{prefix: normalisePrefix("/pairbot/")}
	if got := c.objectKey("/journals/x.jsonl"); got != "pairbot/journals/x.jsonl" {
		t.Errorf("objectKey = %q", got)
	}
	if got := normaliseEndpoint("e2.example.com", true); got != "https://e2.example.com" {
		t.Errorf("endpoint = %q", got)
	}
	if got := normaliseEndpoint("http://minio:9000", true); got != "http://minio:9000" {
		t.Errorf("endpoint with scheme = %q", got)
	}
}
