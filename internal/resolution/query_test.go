package resolution

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/alanyoungcy/pairbot/internal/domain"
	"github.com/alanyoungcy/pairbot/internal/platform/goldsky"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeFetcher struct {
	cond  goldsky.Condition
	found bool
	err   error
	calls int
	ids   []string
}

func (f *fakeFetcher) FetchCondition(_ context.Context, id string) (goldsky.Condition, bool, error) {
	f.calls++
	f.ids = append(f.ids, id)
	return f.cond, f.found, f.err
}

type fakeRecorder struct {
	mu      sync.Mutex
	records []domain.Resolution
	err     error
}

func (f *fakeRecorder) Record(_ context.Context, r domain.Resolution) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, r)
	return f.err
}

func (f *fakeRecorder) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records)
}

func TestFromPayouts(t *testing.T) {
	tests := []struct {
		name     string
		nums     []string
		den      string
		resolved bool
		winner   int // -1 for none
		wantErr  bool
	}{
		{"unresolved", nil, "0", false, -1, false},
		{"down wins", []string{"0", "1"}, "1", true, 1, false},
		{"up wins scaled", []string{"1000000", "0"}, "1000000", true, 0, false},
		{"split", []string{"1", "1"}, "2", true, -1, false},
		{"bad numerator", []string{"x"}, "1", false, -1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolved, winner, err := FromPayouts(tt.nums, tt.den)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if resolved != tt.resolved {
				t.Fatalf("resolved = %v", resolved)
			}
			switch {
			case tt.winner < 0 && winner != nil:
				t.Fatalf("winner = %d, want none", *winner)
			case tt.winner >= 0 && (winner == nil || *winner != tt.winner):
				t.Fatalf("winner = %v, want %d", winner, tt.winner)
			}
		})
	}
}

func TestQueryResolvedMemoizesSettledAnswer(t *testing.T) {
	f := &fakeFetcher{
		found: true,
		cond:  goldsky.Condition{ID: "0xabc", PayoutNumerators: []string{"0", "1"}, PayoutDenominator: "1"},
	}
	rec := &fakeRecorder{}
	q := NewQuery(f, nil, rec, 0, discardLogger())

	r := q.Resolved(context.Background(), "0xABC")
	resolved, idx, ok := r.Outcome()
	if !resolved || !ok || idx != 1 {
		t.Fatalf("Outcome = %v %d %v", resolved, idx, ok)
	}
	if f.ids[0] != "0xabc" {
		t.Fatalf("queried id %q, want normalized", f.ids[0])
	}

	// The subgraph changing its answer must not change ours.
	f.cond.PayoutNumerators = []string{"1", "0"}
	for i := 0; i < 3; i++ {
		r = q.Resolved(context.Background(), "abc")
		if *r.WinningIndex != 1 {
			t.Fatalf("winner changed to %d", *r.WinningIndex)
		}
	}
	if f.calls != 1 {
		t.Fatalf("fetcher called %d times, want 1", f.calls)
	}
	if rec.count() != 1 {
		t.Fatalf("recorded %d times, want 1", rec.count())
	}
}

func TestQueryUnresolvedAndMissing(t *testing.T) {
	f := &fakeFetcher{found: false}
	q := NewQuery(f, nil, nil, 0, discardLogger())
	if r := q.Resolved(context.Background(), "0x01"); r.Resolved {
		t.Fatal("missing condition reported resolved")
	}

	f.found = true
	f.cond = goldsky.Condition{ID: "0x01", PayoutDenominator: "0"}
	if r := q.Resolved(context.Background(), "0x01"); r.Resolved {
		t.Fatal("empty payouts reported resolved")
	}
	if f.calls != 2 {
		t.Fatalf("calls = %d, want a fresh lookup each time", f.calls)
	}
}

func TestQueryResolvedWithoutWinnerKeepsPolling(t *testing.T) {
	f := &fakeFetcher{
		found: true,
		cond:  goldsky.Condition{ID: "0x02", PayoutNumerators: []string{"1", "1"}, PayoutDenominator: "2"},
	}
	q := NewQuery(f, nil, nil, 0, discardLogger())
	r := q.Resolved(context.Background(), "0x02")
	resolved, _, ok := r.Outcome()
	if !resolved || ok {
		t.Fatalf("Outcome resolved=%v ok=%v, want resolved without winner", resolved, ok)
	}
	q.Resolved(context.Background(), "0x02")
	if f.calls != 2 {
		t.Fatalf("calls = %d, want 2", f.calls)
	}
}

func TestQueryResolvedStaysResolvedAfterLookupError(t *testing.T) {
	f := &fakeFetcher{
		found: true,
		cond:  goldsky.Condition{ID: "0x05", PayoutNumerators: []string{"1", "1"}, PayoutDenominator: "2"},
	}
	q := NewQuery(f, nil, nil, 0, discardLogger())
	if r := q.Resolved(context.Background(), "0x05"); !r.Resolved {
		t.Fatalf("first lookup not resolved: %+v", r)
	}

	f.err = errors.New("connection reset")
	if r := q.Resolved(context.Background(), "0x05"); !r.Resolved {
		t.Fatalf("resolved record lost after lookup error: %+v", r)
	}

	f.err = nil
	f.found = false
	if r := q.Resolved(context.Background(), "0x05"); !r.Resolved {
		t.Fatalf("resolved record lost after a missing condition: %+v", r)
	}
	if f.calls != 3 {
		t.Fatalf("calls = %d, want 3", f.calls)
	}
}

func TestQueryLookupErrorReportsUnresolved(t *testing.T) {
	f := &fakeFetcher{err: errors.New("connection refused")}
	q := NewQuery(f, nil, nil, 0, discardLogger())
	r := q.Resolved(context.Background(), "0x03")
	if r.Resolved || r.ConditionID != "0x03" {
		t.Fatalf("unexpected %+v", r)
	}
}

func TestQueryMirrorFailureIsNotFatal(t *testing.T) {
	f := &fakeFetcher{
		found: true,
		cond:  goldsky.Condition{ID: "0x04", PayoutNumerators: []string{"1", "0"}, PayoutDenominator: "1"},
	}
	rec := &fakeRecorder{err: errors.New("redis down")}
	q := NewQuery(f, nil, rec, 0, discardLogger())
	if r := q.Resolved(context.Background(), "0x04"); !r.Settled() {
		t.Fatalf("not settled: %+v", r)
	}
}
