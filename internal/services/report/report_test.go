package report

import (
	"context"
	"database/sql"
	"encoding/json"
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
		SourceFile:  "/home/auditor/inputs/in.csv",
		RuleVersion: "builtin-1.0.0",
		RuleSHA256:  "0123456789abcdef0123456789abcdef",
	})
	if err != nil {
		t.Fatalf("ensure run: %v", err)
	}

	results := []model.ScoreBreakdown{
		{
			Index: 0, Username: "john", Password: "123456",
			EntropyScore: 1, ReuseScore: 25, TotalScore: 26, Category: model.StrengthWeak,
			DuplicateCount: 1,
			Dictionary:     model.DictionaryMatch{CommonPassword: true},
		},
		{
			Index: 1, Username: "erin", Password: "X9#mK2$vL8@qR5!w",
			EntropyScore: 24, DictionaryScore: 30, ReuseScore: 30, TotalScore: 84,
			Category: model.StrengthVeryStrong,
		},
	}
	if err := store.SaveResults(ctx, runID, results); err != nil {
		t.Fatalf("save results: %v", err)
	}
	summary := model.BatchSummary{Count: 2, MeanScore: 55, MinScore: 26, MaxScore: 84}
	if err := store.FinishRun(ctx, runID, summary, "finished"); err != nil {
		t.Fatalf("finish run: %v", err)
	}
	return runID
}

func TestGenerate(t *testing.T) {
	store, dir := setupStore(t)
	runID := seedRun(t, store)
	ctx := context.Background()

	res, err := Generate(ctx, store, Options{
		RunID:     runID,
		ReportDir: filepath.Join(dir, "reports"),
		Operator:  "tester",
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	raw, err := os.ReadFile(res.TextPath)
	if err != nil {
		t.Fatalf("read text report: %v", err)
	}
	text := string(raw)
	for _, want := range []string{
		"Password Audit Report",
		"Run ID:       " + runID,
		"Strength distribution:",
		"Weakest Passwords",
		"Recommendations",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("text report missing %q:\n%s", want, text)
		}
	}
	// 报告中的来源只保留文件名。
	if strings.Contains(text, "/home/auditor") {
		t.Fatalf("text report leaked the source directory:\n%s", text)
	}
	// 弱口令在前。
	if strings.Index(text, "john") > strings.Index(text, "erin") {
		t.Fatalf("weakest list not sorted ascending:\n%s", text)
	}

	rawJSON, err := os.ReadFile(res.JSONPath)
	if err != nil {
		t.Fatalf("read json report: %v", err)
	}
	var payload jsonReport
	if err := json.Unmarshal(rawJSON, &payload); err != nil {
		t.Fatalf("decode json report: %v", err)
	}
	if payload.Run.RunID != runID || len(payload.Results) != 2 || payload.Masked {
		t.Fatalf("json payload = %+v", payload)
	}
	if payload.Generator != generatorVer {
		t.Fatalf("generator = %q", payload.Generator)
	}

	// 两份报告都应登记在案。
	reports, err := store.ListReportsByRun(ctx, runID)
	if err != nil {
		t.Fatalf("list reports: %v", err)
	}
	if len(reports) != 2 {
		t.Fatalf("reports = %d, want 2", len(reports))
	}
	types := map[string]bool{}
	for _, r := range reports {
		types[r.ReportType] = true
	}
	if !types["audit_text"] || !types["audit_json"] {
		t.Fatalf("report types = %v", types)
	}
}

func TestGenerate_Masked(t *testing.T) {
	store, dir := setupStore(t)
	runID := seedRun(t, store)

	res, err := Generate(context.Background(), store, Options{
		RunID:         runID,
		ReportDir:     filepath.Join(dir, "reports"),
		MaskPasswords: true,
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	for _, path := range []string{res.TextPath, res.JSONPath} {
		raw, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("read %s: %v", path, err)
		}
		if strings.Contains(string(raw), "X9#mK2$vL8@qR5!w") {
			t.Fatalf("masked report leaked a password: %s", path)
		}
	}
}

func TestGenerate_RunRequired(t *testing.T) {
	store, dir := setupStore(t)

	if _, err := Generate(context.Background(), store, Options{ReportDir: dir}); err == nil {
		t.Fatalf("expected error without run_id")
	}
	if _, err := Generate(context.Background(), store, Options{RunID: "run_missing", ReportDir: dir}); err == nil {
		t.Fatalf("expected error for unknown run")
	}
}

func TestRecommendations(t *testing.T) {
	recs := recommendations([]model.ScoreBreakdown{
		{Dictionary: model.DictionaryMatch{CommonPassword: true}, DuplicateCount: 1, EntropyScore: 5},
		{UserReuse: true, DuplicateCount: 1, EntropyScore: 30,
			Dictionary: model.DictionaryMatch{PersonalInfo: []string{"username"}}},
	})
	if len(recs) != 5 {
		t.Fatalf("recs = %v, want 5 entries", recs)
	}

	if got := recommendations(nil); len(got) != 0 {
		t.Fatalf("empty input recs = %v", got)
	}
}

func TestClipAndBarLen(t *testing.T) {
	if got := clip("abcdefgh", 5); got != "abcd~" {
		t.Fatalf("clip = %q", got)
	}
	if got := barLen(0, 10); got != 0 {
		t.Fatalf("barLen(0) = %d", got)
	}
	// 非零计数至少画一格。
	if got := barLen(1, 1000); got != 1 {
		t.Fatalf("barLen(1,1000) = %d", got)
	}
	if got := barLen(10, 10); got != 40 {
		t.Fatalf("barLen(10,10) = %d", got)
	}
}
