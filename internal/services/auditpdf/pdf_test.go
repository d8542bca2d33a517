package auditpdf

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"testing"

	sqliteadapter "password-auditor/internal/adapters/store/sqlite"
	"password-auditor/internal/domain/model"

	_ "modernc.org/sqlite"
)

func setupStore(t *testing.T) (*sqliteadapter.Store, string) {
	t.Helper()

	dir := t.TempDir()
	db, err := sql.Open("sqlite", filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	db.SetMaxOpenConns(1)
	if err := sqliteadapter.NewMigrator(db).Up(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return sqliteadapter.NewStore(db), dir
}

func seedRun(t *testing.T, store *sqliteadapter.Store) string {
	t.Helper()
	ctx := context.Background()

	runID, err := store.EnsureRun(ctx, model.AuditRun{
		SourceFile:  "/data/in.csv",
		RuleVersion: "builtin-1.0.0",
		RuleSHA256:  "cafe",
	})
	if err != nil {
		t.Fatalf("ensure run: %v", err)
	}

	results := []model.ScoreBreakdown{
		{Index: 0, Username: "john", Password: "123456", EntropyScore: 1, ReuseScore: 25, TotalScore: 26, Category: model.StrengthWeak, DuplicateCount: 1},
		{Index: 1, Username: "erin", Password: "X9#mK2$vL8@qR5!w", EntropyScore: 24, DictionaryScore: 30, ReuseScore: 30, TotalScore: 84, Category: model.StrengthVeryStrong},
	}
	if err := store.SaveResults(ctx, runID, results); err != nil {
		t.Fatalf("save results: %v", err)
	}
	summary := model.BatchSummary{Count: 2, MeanScore: 55, MinScore: 26, MaxScore: 84}
	if err := store.FinishRun(ctx, runID, summary, "finished"); err != nil {
		t.Fatalf("finish run: %v", err)
	}
	if err := store.AppendAudit(ctx, runID, "audit", "score_batch", "success", "tester", "test", nil); err != nil {
		t.Fatalf("append audit: %v", err)
	}
	return runID
}

func TestGenerateAuditPDF(t *testing.T) {
	store, dir := setupStore(t)
	runID := seedRun(t, store)
	ctx := context.Background()

	res, err := GenerateAuditPDF(ctx, store, Options{
		RunID:     runID,
		ReportDir: filepath.Join(dir, "reports"),
		Operator:  "tester",
		Note:      "quarterly audit",
	})
	if err != nil {
		t.Fatalf("generate pdf: %v", err)
	}

	info, err := os.Stat(res.PDFPath)
	if err != nil {
		t.Fatalf("pdf not on disk: %v", err)
	}
	if info.Size() == 0 {
		t.Fatalf("pdf is empty")
	}
	if !strings.HasSuffix(res.PDFPath, ".pdf") {
		t.Fatalf("pdf path = %q", res.PDFPath)
	}
	if res.PDFSHA256 == "" || res.ReportID == "" {
		t.Fatalf("result incomplete: %+v", res)
	}

	saved, err := store.GetReportByID(ctx, res.ReportID)
	if err != nil {
		t.Fatalf("report lookup: %v", err)
	}
	if saved == nil || saved.ReportType != "audit_pdf" || saved.SHA256 != res.PDFSHA256 {
		t.Fatalf("report registration = %+v", saved)
	}

	logs, err := store.ListAuditLogs(ctx, runID, 0)
	if err != nil {
		t.Fatalf("list logs: %v", err)
	}
	last := logs[len(logs)-1]
	if last.Action != "audit_pdf" || last.EventType != "export" {
		t.Fatalf("last audit entry = %+v", last)
	}
}

func TestGenerateAuditPDF_RunRequired(t *testing.T) {
	store, dir := setupStore(t)

	if _, err := GenerateAuditPDF(context.Background(), store, Options{ReportDir: dir}); err == nil {
		t.Fatalf("expected error without run_id")
	}
	if _, err := GenerateAuditPDF(context.Background(), store, Options{RunID: "run_missing", ReportDir: dir}); err == nil {
		t.Fatalf("expected error for unknown run")
	}
}

func TestSafeText(t *testing.T) {
	if got := safeText("abc\ndef\tg", true); got != "abc def g" {
		t.Fatalf("safeText = %q", got)
	}
	// 无 UTF-8 字体时非 ASCII 字符降级为 '?'。
	if got := safeText("口令abc", false); got != "??abc" {
		t.Fatalf("safeText fallback = %q", got)
	}
}

func TestClipText(t *testing.T) {
	if got := clipText("short", 10); got != "short" {
		t.Fatalf("clipText = %q", got)
	}
	if got := clipText("abcdefghij", 5); got != "abcd~" {
		t.Fatalf("clipText = %q", got)
	}
}
