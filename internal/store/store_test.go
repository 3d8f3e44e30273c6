package store

import (
	"context"
	"testing"
	"time"

	"github.com/talaqi/talaqi/internal/errs"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	return s
}

func TestOpenAndClose(t *testing.T) {
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("failed to close store: %v", err)
	}
}

func TestVecVersion(t *testing.T) {
	s := openTestStore(t)

	version, err := s.VecVersion(context.Background())
	if err != nil {
		t.Fatalf("vec_version failed: %v", err)
	}
	if version == "" {
		t.Error("expected a sqlite-vec version")
	}
}

func TestSaveAndGetReport(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	lat, lng := 30.0444, 31.2357
	lost := &Report{
		OwnerID:     "user-1",
		Type:        ItemLost,
		Category:    "Wallets",
		Title:       "Black wallet",
		Description: "black wallet with two cards",
		Location:    Location{City: "Cairo", Governorate: "Cairo", Latitude: &lat, Longitude: &lng},
		OccurredAt:  time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC),
	}

	if err := s.SaveReport(ctx, lost); err != nil {
		t.Fatalf("failed to save report: %v", err)
	}

	if lost.ID == "" {
		t.Fatal("expected an id to be assigned")
	}

	got, err := s.GetReport(ctx, ItemLost, lost.ID, ExcludeDeleted)
	if err != nil {
		t.Fatalf("failed to get report: %v", err)
	}

	if got.Title != "Black wallet" {
		t.Errorf("expected 'Black wallet', got '%s'", got.Title)
	}
	if got.Status != StatusActive {
		t.Errorf("expected Active status, got %s", got.Status)
	}
	if !got.Location.HasCoordinates() || *got.Location.Latitude != lat {
		t.Errorf("expected coordinates to round-trip, got %+v", got.Location)
	}
	if !got.OccurredAt.Equal(lost.OccurredAt) {
		t.Errorf("expected occurred_at %v, got %v", lost.OccurredAt, got.OccurredAt)
	}

	// lost ids are not visible as found reports
	if _, err := s.GetReport(ctx, ItemFound, lost.ID, ExcludeDeleted); !errs.IsNotFound(err) {
		t.Errorf("expected not found error, got %v", err)
	}
}

func TestListReportsDeletedFilter(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	active := &Report{OwnerID: "u1", Type: ItemFound, Title: "keys"}
	deleted := &Report{OwnerID: "u2", Type: ItemFound, Title: "phone", Deleted: true}
	resolved := &Report{OwnerID: "u3", Type: ItemFound, Title: "bag", Status: StatusResolved}

	for _, r := range []*Report{active, deleted, resolved} {
		if err := s.SaveReport(ctx, r); err != nil {
			t.Fatalf("failed to save report: %v", err)
		}
	}

	live, err := s.ListReports(ctx, ItemFound, ExcludeDeleted)
	if err != nil {
		t.Fatalf("failed to list: %v", err)
	}
	if len(live) != 2 {
		t.Errorf("expected 2 non-deleted reports, got %d", len(live))
	}

	all, err := s.ListReports(ctx, ItemFound, IncludeDeleted)
	if err != nil {
		t.Fatalf("failed to list: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("expected 3 reports, got %d", len(all))
	}

	onlyActive, err := s.ListReports(ctx, ItemFound, ExcludeDeleted, StatusActive)
	if err != nil {
		t.Fatalf("failed to list: %v", err)
	}
	if len(onlyActive) != 1 || onlyActive[0].ID != active.ID {
		t.Errorf("expected only the active report, got %d", len(onlyActive))
	}

	if _, err := s.GetReport(ctx, ItemFound, deleted.ID, ExcludeDeleted); !errs.IsNotFound(err) {
		t.Errorf("expected deleted report to be hidden, got %v", err)
	}
	if _, err := s.GetReport(ctx, ItemFound, deleted.ID, IncludeDeleted); err != nil {
		t.Errorf("expected deleted report with IncludeDeleted, got %v", err)
	}
}

func TestReportTypeValidation(t *testing.T) {
	s := openTestStore(t)

	_, err := s.ListReports(context.Background(), ItemKnowledge, ExcludeDeleted)
	if !errs.IsValidation(err) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestUpsertCandidateKeepsOneRowPerPair(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	first := &MatchCandidate{
		LostItemID:     "lost-1",
		FoundItemID:    "found-1",
		TextScore:      0.4,
		AggregateScore: 0.3,
		Reasons:        Reasons{SignalText: {Score: 0.4, Weight: 0.5, Weighted: 0.2}},
		CreatedAt:      time.Date(2024, 1, 12, 0, 0, 0, 0, time.UTC),
	}
	if err := s.UpsertCandidate(ctx, first); err != nil {
		t.Fatalf("failed to upsert: %v", err)
	}

	second := &MatchCandidate{
		LostItemID:     "lost-1",
		FoundItemID:    "found-1",
		TextScore:      0.9,
		AggregateScore: 0.8,
		Reasons:        Reasons{SignalText: {Score: 0.9, Weight: 0.5, Weighted: 0.45, Detail: "embedding"}},
	}
	if err := s.UpsertCandidate(ctx, second); err != nil {
		t.Fatalf("failed to upsert: %v", err)
	}

	if second.ID != first.ID {
		t.Errorf("expected id %s to be kept, got %s", first.ID, second.ID)
	}
	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Errorf("expected created_at to be kept, got %v", second.CreatedAt)
	}

	candidates, err := s.ListCandidates(ctx, CandidateFilter{})
	if err != nil {
		t.Fatalf("failed to list: %v", err)
	}
	if len(candidates) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(candidates))
	}

	got := candidates[0]
	if got.AggregateScore != 0.8 {
		t.Errorf("expected aggregate 0.8, got %f", got.AggregateScore)
	}
	if got.Reasons[SignalText].Detail != "embedding" {
		t.Errorf("expected text reason detail to round-trip, got %+v", got.Reasons)
	}
}

func TestListCandidatesUnpromotedAndDelete(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	promoted := &MatchCandidate{LostItemID: "l1", FoundItemID: "f1", Promoted: true}
	pending := &MatchCandidate{LostItemID: "l1", FoundItemID: "f2"}

	for _, c := range []*MatchCandidate{promoted, pending} {
		if err := s.UpsertCandidate(ctx, c); err != nil {
			t.Fatalf("failed to upsert: %v", err)
		}
	}

	unpromoted, err := s.ListCandidates(ctx, CandidateFilter{OnlyUnpromoted: true})
	if err != nil {
		t.Fatalf("failed to list: %v", err)
	}
	if len(unpromoted) != 1 || unpromoted[0].ID != pending.ID {
		t.Fatalf("expected only the pending candidate, got %d", len(unpromoted))
	}

	if err := s.DeleteCandidate(ctx, pending.ID); err != nil {
		t.Fatalf("failed to delete: %v", err)
	}

	found, err := s.FindCandidate(ctx, "l1", "f2")
	if err != nil {
		t.Fatalf("find failed: %v", err)
	}
	if found != nil {
		t.Error("expected candidate to be gone")
	}
}

func TestUpsertCandidateKeepsPromotedFlag(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	c := &MatchCandidate{LostItemID: "l1", FoundItemID: "f1", AggregateScore: 0.9}
	if err := s.UpsertCandidate(ctx, c); err != nil {
		t.Fatalf("failed to upsert: %v", err)
	}
	if err := s.SetCandidatePromoted(ctx, c.ID, true); err != nil {
		t.Fatalf("failed to promote: %v", err)
	}

	rescored := &MatchCandidate{LostItemID: "l1", FoundItemID: "f1", AggregateScore: 0.7}
	if err := s.UpsertCandidate(ctx, rescored); err != nil {
		t.Fatalf("failed to upsert: %v", err)
	}
	if !rescored.Promoted {
		t.Error("expected promoted flag to be copied back")
	}

	got, err := s.FindCandidate(ctx, "l1", "f1")
	if err != nil || got == nil {
		t.Fatalf("find failed: %v", err)
	}
	if !got.Promoted || got.AggregateScore != 0.7 {
		t.Errorf("expected promoted row with new score, got %+v", got)
	}
}

func TestCreateMatchIsIdempotentPerPair(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	created, err := s.CreateMatch(ctx, &Match{LostItemID: "l1", FoundItemID: "f1", ConfidenceScore: 0.8})
	if err != nil {
		t.Fatalf("failed to create match: %v", err)
	}
	if !created {
		t.Error("expected first create to write a row")
	}

	created, err = s.CreateMatch(ctx, &Match{LostItemID: "l1", FoundItemID: "f1", ConfidenceScore: 0.9})
	if err != nil {
		t.Fatalf("failed to create match: %v", err)
	}
	if created {
		t.Error("expected second create to be a no-op")
	}

	matches, err := s.ListMatches(ctx)
	if err != nil {
		t.Fatalf("failed to list matches: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(matches))
	}
	if matches[0].Status != MatchPending {
		t.Errorf("expected Pending, got %s", matches[0].Status)
	}

	m, err := s.FindMatch(ctx, "l1", "f1")
	if err != nil || m == nil {
		t.Fatalf("expected match, got %v, %v", m, err)
	}
	if m.ConfidenceScore != 0.8 {
		t.Errorf("expected original confidence 0.8, got %f", m.ConfidenceScore)
	}
}

func TestItemEmbeddingUpsertAndQuery(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	wallet := &ItemEmbedding{
		ItemID: "l1", ItemType: ItemLost, Vector: []float32{0.1, 0.2, 0.3},
		Text: "black wallet", Category: "wallets", City: "cairo", Governorate: "cairo",
	}
	phone := &ItemEmbedding{
		ItemID: "f1", ItemType: ItemFound, Vector: []float32{0.5, 0.5, 0},
		Text: "phone", Category: "phones", City: "giza", Governorate: "giza",
	}

	for _, e := range []*ItemEmbedding{wallet, phone} {
		if err := s.UpsertItemEmbedding(ctx, e); err != nil {
			t.Fatalf("failed to upsert: %v", err)
		}
	}

	again := &ItemEmbedding{
		ItemID: "l1", ItemType: ItemLost, Vector: []float32{0.3, 0.2, 0.1},
		Text: "black wallet", Category: "wallets", City: "cairo", Governorate: "cairo",
	}
	if err := s.UpsertItemEmbedding(ctx, again); err != nil {
		t.Fatalf("failed to upsert: %v", err)
	}
	if again.ID != wallet.ID {
		t.Errorf("expected id to be kept, got %s vs %s", again.ID, wallet.ID)
	}

	all, err := s.QueryItemEmbeddings(ctx, EmbeddingFilter{})
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(all))
	}

	cairo, err := s.QueryItemEmbeddings(ctx, EmbeddingFilter{City: "cairo"})
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(cairo) != 1 || cairo[0].ItemID != "l1" {
		t.Fatalf("expected the cairo row only, got %d", len(cairo))
	}
	if cairo[0].Vector[0] != 0.3 {
		t.Errorf("expected overwritten vector, got %v", cairo[0].Vector)
	}

	removed, err := s.DeleteItemEmbedding(ctx, "l1", ItemLost)
	if err != nil || !removed {
		t.Fatalf("expected delete to remove a row, got %v, %v", removed, err)
	}

	removed, err = s.DeleteItemEmbedding(ctx, "l1", ItemLost)
	if err != nil || removed {
		t.Errorf("expected second delete to be a no-op, got %v, %v", removed, err)
	}
}

func TestKnowledgeEmbeddingUpsert(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		e := &KnowledgeEmbedding{KnowledgeID: "k1", Category: "faq", Text: "how to report", Vector: []float32{1, 0}}
		if err := s.UpsertKnowledgeEmbedding(ctx, e); err != nil {
			t.Fatalf("failed to upsert: %v", err)
		}
	}

	rows, err := s.ListKnowledgeEmbeddings(ctx)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(rows) != 1 {
		t.Errorf("expected 1 knowledge row, got %d", len(rows))
	}
}

func TestDeserializeEmbeddingRejectsTruncatedBlob(t *testing.T) {
	if _, err := deserializeEmbedding([]byte{1, 2, 3}); err == nil {
		t.Error("expected error for truncated blob")
	}

	blob, err := serializeEmbedding([]float32{1.5, -2})
	if err != nil {
		t.Fatalf("serialize failed: %v", err)
	}
	v, err := deserializeEmbedding(blob)
	if err != nil || len(v) != 2 || v[0] != 1.5 || v[1] != -2 {
		t.Errorf("unexpected decode %v, %v", v, err)
	}
}
