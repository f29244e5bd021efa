// 本文件用于校园助手服务编排相关测试
package service

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"campus-assist/internal/extract"
	"campus-assist/internal/handoff"
	"campus-assist/internal/knowledge"
	"campus-assist/internal/models"
)

func newTestService(t *testing.T) *AssistantService {
	t.Helper()
	dir := t.TempDir()
	config := &models.Config{
		DataDir:   filepath.Join(dir, "knowledge"),
		QueueFile: filepath.Join(dir, "queue.json"),
	}
	service, err := NewAssistantService(config)
	if err != nil {
		t.Fatalf("create service: %v", err)
	}
	t.Cleanup(func() { _ = service.Stop() })
	return service
}

func TestIngestPathAndSearch(t *testing.T) {
	service := newTestService(t)

	docPath := filepath.Join(t.TempDir(), "hostel-rules.txt")
	content := "1. Hostel Rules\nThe hostel gate closes at 10 pm. Visitors must register at the security desk."
	if err := os.WriteFile(docPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write doc: %v", err)
	}

	summary, err := service.IngestPath(docPath)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if summary.DocumentID == "" {
		t.Fatal("expected document id")
	}
	if summary.DetectedLanguage != "english" {
		t.Fatalf("expected english, got %s", summary.DetectedLanguage)
	}

	results, err := service.Search("hostel gate", "", 5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("expected search results")
	}
	if results[0].DocumentID != summary.DocumentID {
		t.Fatalf("expected document %s, got %s", summary.DocumentID, results[0].DocumentID)
	}
}

func TestIngestPathRejectsUnknownFormat(t *testing.T) {
	service := newTestService(t)
	docPath := filepath.Join(t.TempDir(), "photo.png")
	if err := os.WriteFile(docPath, []byte("not a document"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if _, err := service.IngestPath(docPath); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestAssessEscalatesAndEnqueues(t *testing.T) {
	service := newTestService(t)

	outcome, err := service.Assess("stu-1", "portal not working and the exam registration closes tomorrow", nil)
	if err != nil {
		t.Fatalf("assess: %v", err)
	}
	if !outcome.Assessment.ShouldEscalate {
		t.Fatal("expected escalation")
	}
	if outcome.Handoff == nil {
		t.Fatal("expected handoff request")
	}
	if outcome.Handoff.QueuePosition != 1 {
		t.Fatalf("expected queue position 1, got %d", outcome.Handoff.QueuePosition)
	}

	stats, active := service.QueueStatus()
	if stats.PendingTotal != 1 || len(active) != 1 {
		t.Fatalf("expected one pending request, stats=%+v active=%d", stats, len(active))
	}

	report := service.Analytics()
	if report.Handoffs != 1 || report.Conversations != 1 {
		t.Fatalf("unexpected analytics: %+v", report)
	}
}

func TestAssessPlainQuestionDoesNotEnqueue(t *testing.T) {
	service := newTestService(t)
	outcome, err := service.Assess("stu-2", "what are the library opening hours", nil)
	if err != nil {
		t.Fatalf("assess: %v", err)
	}
	if outcome.Assessment.ShouldEscalate || outcome.Handoff != nil {
		t.Fatalf("plain question should not escalate: %+v", outcome)
	}
}

func TestAssessRejectsEmptyUser(t *testing.T) {
	service := newTestService(t)
	if _, err := service.Assess("   ", "help", nil); err == nil {
		t.Fatal("expected error for empty user")
	}
}

func TestTransitionActions(t *testing.T) {
	service := newTestService(t)
	outcome, err := service.Assess("stu-3", "portal not working, need help immediately", nil)
	if err != nil || outcome.Handoff == nil {
		t.Fatalf("expected escalation, outcome=%+v err=%v", outcome, err)
	}
	id := outcome.Handoff.ID

	request, err := service.Transition(id, "assign")
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if request.Status != handoff.StatusAssigned {
		t.Fatalf("expected assigned, got %s", request.Status)
	}

	if _, err := service.Transition(id, "escalate-more"); !errors.Is(err, handoff.ErrInvalidInput) {
		t.Fatalf("expected invalid action error, got %v", err)
	}

	request, err = service.Transition(id, "resolve")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if request.Status != handoff.StatusResolved {
		t.Fatalf("expected resolved, got %s", request.Status)
	}
}

func TestIngestFailureCause(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{name: "nil", err: nil, want: ""},
		{name: "unsupported format", err: fmt.Errorf("读取失败: %w", extract.ErrUnsupportedFormat), want: "unsupported_format"},
		{name: "extraction failed", err: fmt.Errorf("%w: bad pdf", extract.ErrExtractionFailed), want: "extraction_failed"},
		{name: "other error", err: errors.New("标题不能为空"), want: "invalid_input"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ingestFailureCause(tc.err); got != tc.want {
				t.Fatalf("ingestFailureCause(%v) = %q, want %q", tc.err, got, tc.want)
			}
		})
	}
}

func TestHealthReportCountsDocuments(t *testing.T) {
	service := newTestService(t)
	if _, err := service.IngestText(knowledge.IngestInput{
		Title:   "Fee Notice",
		RawText: "The admission fee is Rs. 45,000 payable before June 30.",
	}); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	report := service.Health()
	if report.DocumentsTotal != 1 {
		t.Fatalf("expected 1 document, got %d", report.DocumentsTotal)
	}
	if report.System != nil {
		t.Fatal("system snapshot should be disabled by default")
	}
}
