package knowledge

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"campus-assist/internal/lang"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := NewStore(dir)
	if err != nil {
		t.Fatalf("初始化知识库失败: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store, dir
}

func TestIngestAndGet(t *testing.T) {
	store, _ := newTestStore(t)

	doc, err := store.Ingest(IngestInput{
		Title:      "Fee Notice",
		RawText:    "1. Fees\nQ: What is the fee? A: The fee is ₹50,000 due January 15.",
		SourcePath: "inbox/fee-notice.txt",
	})
	if err != nil {
		t.Fatalf("unexpected ingest error: %v", err)
	}
	if doc.ID == "" {
		t.Fatalf("expected generated document id")
	}
	if doc.Language != lang.English {
		t.Fatalf("expected english document, got %s", doc.Language)
	}
	if len(doc.FAQs) != 1 {
		t.Fatalf("expected faq to survive ingest, got %d", len(doc.FAQs))
	}

	got, err := store.Get(doc.ID)
	if err != nil {
		t.Fatalf("unexpected get error: %v", err)
	}
	if got.Title != "Fee Notice" {
		t.Fatalf("unexpected title: %q", got.Title)
	}
	if store.Count() != 1 {
		t.Fatalf("expected 1 document, got %d", store.Count())
	}
}

func TestGetMissingDocument(t *testing.T) {
	store, _ := newTestStore(t)
	if _, err := store.Get("missing-id"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestIngestRejectsEmptyText(t *testing.T) {
	store, _ := newTestStore(t)
	if _, err := store.Ingest(IngestInput{Title: "empty", RawText: "   "}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestSearchTitleHitOutweighsBodyHit(t *testing.T) {
	store, _ := newTestStore(t)

	titled, err := store.Ingest(IngestInput{
		Title:   "Scholarships",
		RawText: "1. Scholarship Deadlines\nApply before the end of June.",
	})
	if err != nil {
		t.Fatalf("unexpected ingest error: %v", err)
	}
	if _, err := store.Ingest(IngestInput{
		Title:   "General",
		RawText: "1. Notices\nThe scholarship desk moved to block C.",
	}); err != nil {
		t.Fatalf("unexpected ingest error: %v", err)
	}

	results, err := store.Search("scholarship", "", 10)
	if err != nil {
		t.Fatalf("unexpected search error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d: %+v", len(results), results)
	}
	if results[0].DocumentID != titled.ID {
		t.Fatalf("title hit should rank first, got %+v", results)
	}
	if results[0].Score <= results[1].Score {
		t.Fatalf("title hit should outscore body hit: %+v", results)
	}
}

func TestSearchLanguageFilter(t *testing.T) {
	store, _ := newTestStore(t)

	if _, err := store.Ingest(IngestInput{
		Title:   "Hostel Rules",
		RawText: "1. Hostel\nLights out at eleven.",
	}); err != nil {
		t.Fatalf("unexpected ingest error: %v", err)
	}
	hindi, err := store.Ingest(IngestInput{
		Title:    "Hostel Niyam",
		RawText:  "1. Hostel\nछात्रावास के नियम यहां दिए गए हैं।",
		Language: "hindi",
	})
	if err != nil {
		t.Fatalf("unexpected ingest error: %v", err)
	}

	results, err := store.Search("hostel", lang.Hindi, 10)
	if err != nil {
		t.Fatalf("unexpected search error: %v", err)
	}
	for _, r := range results {
		if r.DocumentID != hindi.ID {
			t.Fatalf("language filter leaked foreign document: %+v", r)
		}
	}
	if len(results) == 0 {
		t.Fatalf("expected hindi results")
	}
}

func TestReingestSameSourceReplacesPostings(t *testing.T) {
	store, _ := newTestStore(t)

	first, err := store.Ingest(IngestInput{
		Title:      "Library Hours",
		RawText:    "1. Library\nThe library closes at midnight during examinations.",
		SourcePath: "inbox/library.txt",
	})
	if err != nil {
		t.Fatalf("unexpected ingest error: %v", err)
	}
	second, err := store.Ingest(IngestInput{
		Title:      "Library Hours",
		RawText:    "1. Library\nThe library closes at ten in winter.",
		SourcePath: "inbox/library.txt",
	})
	if err != nil {
		t.Fatalf("unexpected ingest error: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("re-ingest should keep stable id: %s vs %s", first.ID, second.ID)
	}
	if store.Count() != 1 {
		t.Fatalf("expected 1 document after re-ingest, got %d", store.Count())
	}

	stale, err := store.Search("examinations", "", 10)
	if err != nil {
		t.Fatalf("unexpected search error: %v", err)
	}
	if len(stale) != 0 {
		t.Fatalf("stale postings should be removed on re-ingest: %+v", stale)
	}
	fresh, err := store.Search("winter", "", 10)
	if err != nil {
		t.Fatalf("unexpected search error: %v", err)
	}
	if len(fresh) == 0 {
		t.Fatalf("re-ingested content should be searchable")
	}
}

func TestDocumentsSurviveReopen(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	if err != nil {
		t.Fatalf("初始化知识库失败: %v", err)
	}
	if _, err := store.Ingest(IngestInput{
		Title:   "Placement Drive",
		RawText: "1. Placement\nRegistration opens on Monday for the placement drive.",
	}); err != nil {
		t.Fatalf("unexpected ingest error: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	reopened, err := NewStore(dir)
	if err != nil {
		t.Fatalf("重新打开知识库失败: %v", err)
	}
	defer reopened.Close()
	if reopened.Count() != 1 {
		t.Fatalf("expected persisted document after reopen, got %d", reopened.Count())
	}
	results, err := reopened.Search("placement", "", 10)
	if err != nil {
		t.Fatalf("unexpected search error: %v", err)
	}
	if len(results) == 0 {
		t.Fatalf("index should be rebuilt from persisted documents")
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	source, _ := newTestStore(t)
	if _, err := source.Ingest(IngestInput{
		Title:   "Refund Policy",
		RawText: "1. Refunds\nRefund requests take ten working days.",
	}); err != nil {
		t.Fatalf("unexpected ingest error: %v", err)
	}

	snapshotPath := filepath.Join(t.TempDir(), "snapshot.json")
	if err := source.Export(snapshotPath); err != nil {
		t.Fatalf("export failed: %v", err)
	}

	target, _ := newTestStore(t)
	imported, err := target.Import(snapshotPath)
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}
	if imported != 1 {
		t.Fatalf("expected 1 imported document, got %d", imported)
	}
	results, err := target.Search("refund", "", 10)
	if err != nil {
		t.Fatalf("unexpected search error: %v", err)
	}
	if len(results) == 0 {
		t.Fatalf("imported documents should be searchable")
	}
}

func TestTokenizeDropsShortAndDuplicateTokens(t *testing.T) {
	tokens := tokenize("The fee, the FEE is due! at 10")
	joined := strings.Join(tokens, " ")
	if strings.Contains(joined, "at") || strings.Contains(joined, "10") {
		t.Fatalf("short tokens should be dropped: %v", tokens)
	}
	count := 0
	for _, token := range tokens {
		if token == "fee" {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("tokens should be deduplicated: %v", tokens)
	}
}
