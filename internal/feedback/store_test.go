package feedback

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"lia/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestStore(t *testing.T, vectors *VectorIndex) *Store {
	t.Helper()
	s, err := NewStore(Config{
		DBPath:  filepath.Join(t.TempDir(), "feedback.db"),
		Vectors: vectors,
		Logger:  testLogger(),
	})
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// --- Recording and history ---

func TestRecordAndHistory(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()

	recs := []domain.FeedbackRecord{
		{Query: "show disk usage", Capability: "sys", Tool: "check_disk", Command: "df -h", Result: "ok", Success: true},
		{Query: "ping example.com", Capability: "net", Tool: "ping_host", Command: "ping -c 4 example.com", Result: "4 packets", Success: true},
	}
	for _, rec := range recs {
		if err := s.Record(ctx, rec); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	history, err := s.History(ctx, 10)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(history))
	}
	// Newest first.
	if history[0].Query != "ping example.com" {
		t.Fatalf("expected newest first, got %q", history[0].Query)
	}
	if history[0].Rating != 0 {
		t.Fatalf("fresh records are unrated, got %d", history[0].Rating)
	}
	if history[0].Timestamp.IsZero() {
		t.Fatal("timestamp must be set")
	}
}

func TestRecord_CapsResultText(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()

	if err := s.Record(ctx, domain.FeedbackRecord{
		Query:   "long output",
		Result:  strings.Repeat("x", resultCap+500),
		Success: true,
	}); err != nil {
		t.Fatalf("record: %v", err)
	}

	var stored string
	if err := s.db.QueryRow(`SELECT result FROM command_history`).Scan(&stored); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(stored) != resultCap {
		t.Fatalf("result must be capped at %d, got %d", resultCap, len(stored))
	}
}

// --- Rating ---

func TestRateLast_ClampsRange(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()

	if err := s.Record(ctx, domain.FeedbackRecord{Query: "one", Success: true}); err != nil {
		t.Fatal(err)
	}
	if err := s.RateLast(ctx, 10); err != nil {
		t.Fatalf("rate: %v", err)
	}
	history, _ := s.History(ctx, 1)
	if history[0].Rating != 5 {
		t.Fatalf("rating 10 must clamp to 5, got %d", history[0].Rating)
	}

	if err := s.RateLast(ctx, -3); err != nil {
		t.Fatalf("rate: %v", err)
	}
	history, _ = s.History(ctx, 1)
	if history[0].Rating != 1 {
		t.Fatalf("rating -3 must clamp to 1, got %d", history[0].Rating)
	}
}

func TestRateLast_EmptyStore(t *testing.T) {
	s := newTestStore(t, nil)
	if err := s.RateLast(context.Background(), 4); err == nil {
		t.Fatal("rating with no history must fail")
	}
}

func TestRateLast_OnlyTouchesNewestRow(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()

	for _, q := range []string{"first", "second"} {
		if err := s.Record(ctx, domain.FeedbackRecord{Query: q, Success: true}); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.RateLast(ctx, 5); err != nil {
		t.Fatal(err)
	}

	history, _ := s.History(ctx, 10)
	if history[0].Rating != 5 || history[1].Rating != 0 {
		t.Fatalf("only the newest row may be rated: %+v", history)
	}
}

// --- Keyword retrieval ---

func TestFindSimilar_KeywordFallback(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()

	if err := s.Record(ctx, domain.FeedbackRecord{
		Query: "check disk usage on the server", Capability: "sys",
		Tool: "check_disk", Command: "df -h", Success: true,
	}); err != nil {
		t.Fatal(err)
	}
	if err := s.RateLast(ctx, 5); err != nil {
		t.Fatal(err)
	}

	got := s.FindSimilar(ctx, "how is the disk doing", 3, 3)
	if len(got) != 1 {
		t.Fatalf("expected 1 hit, got %d", len(got))
	}
	if got[0].Command != "df -h" {
		t.Fatalf("wrong command retrieved: %q", got[0].Command)
	}
}

func TestFindSimilar_RespectsMinRatingAndSuccess(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()

	// Low-rated success.
	if err := s.Record(ctx, domain.FeedbackRecord{Query: "disk check weak", Success: true}); err != nil {
		t.Fatal(err)
	}
	if err := s.RateLast(ctx, 1); err != nil {
		t.Fatal(err)
	}
	// Highly rated but failed.
	if err := s.Record(ctx, domain.FeedbackRecord{Query: "disk check broken", Success: false}); err != nil {
		t.Fatal(err)
	}
	if err := s.RateLast(ctx, 5); err != nil {
		t.Fatal(err)
	}

	if got := s.FindSimilar(ctx, "disk check", 3, 3); len(got) != 0 {
		t.Fatalf("expected no hits, got %+v", got)
	}
}

func TestFindSimilar_StopwordsOnlyQuery(t *testing.T) {
	s := newTestStore(t, nil)
	if got := s.FindSimilar(context.Background(), "how is the a an", 3, 3); got != nil {
		t.Fatalf("stopword-only query must return nothing, got %+v", got)
	}
}

// --- Vector retrieval ---

// flatEmbed maps every text to the same unit vector so every indexed
// document is a perfect-similarity hit.
func flatEmbed(_ context.Context, _ string) ([]float32, error) {
	return []float32{1, 0, 0}, nil
}

func TestFindSimilar_VectorPathWins(t *testing.T) {
	vectors, err := NewVectorIndex(filepath.Join(t.TempDir(), "vectors"), flatEmbed, testLogger())
	if err != nil {
		t.Fatalf("vector index: %v", err)
	}
	s := newTestStore(t, vectors)
	ctx := context.Background()

	if err := s.Record(ctx, domain.FeedbackRecord{
		Query: "restart the web server", Capability: "sys",
		Tool: "manage_service", Command: "systemctl restart nginx", Success: true,
	}); err != nil {
		t.Fatal(err)
	}

	// Query shares no keywords with the stored row; only the vector
	// path can find it.
	got := s.FindSimilar(ctx, "bounce nginx", 3, 3)
	if len(got) != 1 {
		t.Fatalf("expected 1 vector hit, got %d", len(got))
	}
	if got[0].Command != "systemctl restart nginx" {
		t.Fatalf("wrong command: %q", got[0].Command)
	}
}

func TestRecord_FailedStepNotIndexed(t *testing.T) {
	vectors, err := NewVectorIndex(filepath.Join(t.TempDir(), "vectors"), flatEmbed, testLogger())
	if err != nil {
		t.Fatalf("vector index: %v", err)
	}
	s := newTestStore(t, vectors)

	if err := s.Record(context.Background(), domain.FeedbackRecord{Query: "broke", Success: false}); err != nil {
		t.Fatal(err)
	}
	if vectors.Count() != 0 {
		t.Fatalf("failed steps must not be indexed, count=%d", vectors.Count())
	}
}

// --- Stats ---

func TestStats(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()

	if st, err := s.Stats(ctx); err != nil || st.Total != 0 {
		t.Fatalf("empty stats: %+v err=%v", st, err)
	}

	for rating, q := range map[int]string{5: "great", 4: "good", 1: "bad"} {
		if err := s.Record(ctx, domain.FeedbackRecord{Query: q, Success: true}); err != nil {
			t.Fatal(err)
		}
		if err := s.RateLast(ctx, rating); err != nil {
			t.Fatal(err)
		}
	}

	st, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if st.Total != 3 || st.Positive != 2 || st.Negative != 1 {
		t.Fatalf("unexpected stats: %+v", st)
	}
	if st.AvgRating < 3.32 || st.AvgRating > 3.34 {
		t.Fatalf("avg rating should be ~3.33, got %f", st.AvgRating)
	}
}
