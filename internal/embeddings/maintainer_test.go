package embeddings

import (
	"context"
	"errors"
	"hash/fnv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/talaqi/talaqi/internal/embedder"
	"github.com/talaqi/talaqi/internal/errs"
	"github.com/talaqi/talaqi/internal/store"
)

type fakeEmbedder struct {
	mu     sync.Mutex
	calls  []string
	failOn string
	empty  bool
	block  bool
	onCall func(n int)
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	f.calls = append(f.calls, text)
	n := len(f.calls)
	f.mu.Unlock()

	if f.onCall != nil {
		f.onCall(n)
	}

	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.failOn != "" && strings.Contains(text, f.failOn) {
		return nil, errors.New("provider unavailable")
	}
	if f.empty {
		return nil, nil
	}

	h := fnv.New32a()
	h.Write([]byte(text))
	sum := h.Sum32()
	return []float32{float32(sum%97) + 1, float32(sum%89) + 1, float32(sum%83) + 1}, nil
}

func (f *fakeEmbedder) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func openTestStore(t *testing.T) *store.Store {
	t.Helper()

	s, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	return s
}

func seedReport(t *testing.T, s *store.Store, r *store.Report) *store.Report {
	t.Helper()

	if err := s.SaveReport(context.Background(), r); err != nil {
		t.Fatalf("failed to save report: %v", err)
	}
	return r
}

func TestEmbedNormalizesAndReturnsVerbatim(t *testing.T) {
	fake := &fakeEmbedder{}
	m := New(openTestStore(t), fake)

	v, err := m.Embed(context.Background(), "  Black   WALLET ")
	if err != nil {
		t.Fatalf("embed failed: %v", err)
	}

	calls := fake.Calls()
	if len(calls) != 1 || calls[0] != "black wallet" {
		t.Errorf("expected one call with normalized text, got %v", calls)
	}

	want, _ := fake.Embed(context.Background(), "black wallet")
	for i := range want {
		if v[i] != want[i] {
			t.Fatalf("expected vector %v, got %v", want, v)
		}
	}
}

func TestEmbedProviderErrors(t *testing.T) {
	tests := []struct {
		name string
		fake *fakeEmbedder
	}{
		{"transport failure", &fakeEmbedder{failOn: "wallet"}},
		{"empty result", &fakeEmbedder{empty: true}},
		{"timeout", &fakeEmbedder{block: true}},
	}

	for _, tt := range tests {
		m := New(openTestStore(t), tt.fake, WithTimeout(20*time.Millisecond))

		_, err := m.Embed(context.Background(), "wallet")
		if !errs.IsProvider(err) {
			t.Errorf("%s: expected provider error, got %v", tt.name, err)
		}
	}

	m := New(openTestStore(t), &fakeEmbedder{empty: true})
	if _, err := m.Embed(context.Background(), "wallet"); !errors.Is(err, embedder.ErrEmptyEmbedding) {
		t.Errorf("expected empty embedding to stay distinguishable, got %v", err)
	}
}

func TestEmbedWithoutProvider(t *testing.T) {
	m := New(openTestStore(t), nil)

	if _, err := m.Embed(context.Background(), "wallet"); !errs.IsProvider(err) {
		t.Errorf("expected provider error, got %v", err)
	}
	if _, err := m.Embed(context.Background(), "   "); !errs.IsValidation(err) {
		t.Errorf("expected validation error for blank text, got %v", err)
	}
}

func TestUpsertItemEmbeddingIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	tick := time.Date(2024, 1, 12, 8, 0, 0, 0, time.UTC)
	m := New(s, &fakeEmbedder{}, WithClock(func() time.Time {
		tick = tick.Add(time.Minute)
		return tick
	}))

	r := seedReport(t, s, &store.Report{
		OwnerID: "u1", Type: store.ItemLost, Category: "Wallets", Title: "Black wallet",
		Description: "two cards inside", Location: store.Location{City: "Cairo", Governorate: "Cairo"},
	})

	if err := m.UpsertItemEmbedding(ctx, r); err != nil {
		t.Fatalf("first upsert failed: %v", err)
	}
	first, err := s.FindItemEmbedding(ctx, r.ID, store.ItemLost)
	if err != nil || first == nil {
		t.Fatalf("expected stored row, got %v, %v", first, err)
	}

	if err := m.UpsertItemEmbedding(ctx, r); err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}

	rows, err := s.QueryItemEmbeddings(ctx, store.EmbeddingFilter{})
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected exactly 1 row, got %d", len(rows))
	}

	second := rows[0]
	if second.ID != first.ID || second.Text != first.Text || second.Category != "wallets" ||
		second.City != "cairo" || second.Governorate != "cairo" {
		t.Errorf("expected unchanged fields, got %+v vs %+v", second, first)
	}
	for i := range first.Vector {
		if first.Vector[i] != second.Vector[i] {
			t.Fatalf("vector changed: %v vs %v", first.Vector, second.Vector)
		}
	}
	if !second.UpdatedAt.After(first.UpdatedAt) {
		t.Errorf("expected timestamp to move, got %v then %v", first.UpdatedAt, second.UpdatedAt)
	}
}

// overlapEmbedder records how many calls were in flight at once.
type overlapEmbedder struct {
	inflight atomic.Int32
	peak     atomic.Int32
}

func (o *overlapEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	n := o.inflight.Add(1)
	defer o.inflight.Add(-1)

	for {
		peak := o.peak.Load()
		if n <= peak || o.peak.CompareAndSwap(peak, n) {
			break
		}
	}

	time.Sleep(5 * time.Millisecond)
	return []float32{1, 2, 3}, nil
}

func TestUpsertItemEmbeddingSerialisesSameKey(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	provider := &overlapEmbedder{}
	m := New(s, provider)

	r := seedReport(t, s, &store.Report{OwnerID: "u1", Type: store.ItemFound, Title: "Blue umbrella"})

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := m.UpsertItemEmbedding(ctx, r); err != nil {
				t.Errorf("upsert failed: %v", err)
			}
		}()
	}
	wg.Wait()

	if peak := provider.peak.Load(); peak != 1 {
		t.Errorf("expected same-key upserts to run one at a time, peak was %d", peak)
	}

	rows, err := s.QueryItemEmbeddings(ctx, store.EmbeddingFilter{})
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(rows) != 1 {
		t.Errorf("expected exactly 1 row, got %d", len(rows))
	}
}

func TestBulkRefreshOrderAndIsolation(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	seedReport(t, s, &store.Report{OwnerID: "u1", Type: store.ItemLost, Title: "lost keys"})
	seedReport(t, s, &store.Report{OwnerID: "u2", Type: store.ItemLost, Title: "lost broken umbrella"})
	seedReport(t, s, &store.Report{OwnerID: "u3", Type: store.ItemLost, Title: "lost deleted", Deleted: true})
	seedReport(t, s, &store.Report{OwnerID: "u4", Type: store.ItemFound, Title: "found phone"})

	if err := s.SaveKnowledge(ctx, &store.KnowledgeEntry{Title: "How matching works", Content: "reports are compared daily"}); err != nil {
		t.Fatalf("failed to save knowledge: %v", err)
	}

	fake := &fakeEmbedder{failOn: "broken"}
	m := New(s, fake)

	summary, err := m.BulkRefresh(ctx)
	if err != nil {
		t.Fatalf("refresh failed: %v", err)
	}

	want := RefreshSummary{Lost: 1, Found: 1, Knowledge: 1, Failed: 1}
	if summary != want {
		t.Errorf("expected %+v, got %+v", want, summary)
	}

	calls := fake.Calls()
	if len(calls) != 4 {
		t.Fatalf("expected 4 provider calls, got %v", calls)
	}
	if !strings.HasPrefix(calls[0], "lost") || !strings.HasPrefix(calls[2], "found") ||
		!strings.HasPrefix(calls[3], "how matching works") {
		t.Errorf("expected lost, found, knowledge order, got %v", calls)
	}

	rows, _ := s.QueryItemEmbeddings(ctx, store.EmbeddingFilter{})
	if len(rows) != 2 {
		t.Errorf("expected 2 item rows, got %d", len(rows))
	}
}

func TestBulkRefreshCancellation(t *testing.T) {
	s := openTestStore(t)

	for _, title := range []string{"one", "two", "three"} {
		seedReport(t, s, &store.Report{OwnerID: "u", Type: store.ItemLost, Title: title})
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fake := &fakeEmbedder{onCall: func(n int) {
		if n == 1 {
			cancel()
		}
	}}
	m := New(s, fake)

	summary, err := m.BulkRefresh(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	// the in-flight entity is accounted for before the next check
	if summary.Lost+summary.Failed != 1 {
		t.Errorf("expected 1 attempted entity, got %+v", summary)
	}
	if len(fake.Calls()) != 1 {
		t.Errorf("expected no calls after cancellation, got %v", fake.Calls())
	}
}

func TestRemoveItemEmbedding(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	m := New(s, &fakeEmbedder{})

	r := seedReport(t, s, &store.Report{OwnerID: "u", Type: store.ItemFound, Title: "umbrella"})
	if err := m.UpsertItemEmbedding(ctx, r); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	if err := m.RemoveItemEmbedding(ctx, r.ID, store.ItemFound); err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	if err := m.RemoveItemEmbedding(ctx, r.ID, store.ItemFound); err != nil {
		t.Fatalf("second remove should be a no-op, got %v", err)
	}

	row, _ := s.FindItemEmbedding(ctx, r.ID, store.ItemFound)
	if row != nil {
		t.Error("expected row to be gone")
	}
}
