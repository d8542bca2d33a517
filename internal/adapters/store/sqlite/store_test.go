package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"password-auditor/internal/domain/model"

	_ "modernc.org/sqlite"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(context.Background(), "PRAGMA busy_timeout = 5000"); err != nil {
		t.Fatalf("set busy_timeout: %v", err)
	}
	if err := NewMigrator(db).Up(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return NewStore(db)
}

func TestMigrator_SchemaVersion(t *testing.T) {
	s := openTestStore(t)

	v, err := s.GetSchemaMetaValue(context.Background(), "schema_version")
	if err != nil {
		t.Fatalf("query schema_version: %v", err)
	}
	if v != "1" {
		t.Fatalf("schema_version = %q, want 1", v)
	}
}

func TestEnsureRun_GeneratesIDAndUpserts(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	runID, err := s.EnsureRun(ctx, model.AuditRun{
		SourceFile:  "in.csv",
		RuleVersion: "builtin-1.0.0",
		RuleSHA256:  "abc",
	})
	if err != nil {
		t.Fatalf("ensure run: %v", err)
	}
	if runID == "" {
		t.Fatalf("expected a generated run id")
	}

	// 同一 run_id 再次写入不报错，规则信息按新值覆盖。
	again, err := s.EnsureRun(ctx, model.AuditRun{
		RunID:       runID,
		SourceFile:  "in2.csv",
		RuleVersion: "custom-2",
		RuleSHA256:  "def",
	})
	if err != nil {
		t.Fatalf("ensure run again: %v", err)
	}
	if again != runID {
		t.Fatalf("run id changed on upsert: %s vs %s", again, runID)
	}

	overview, err := s.GetRunOverview(ctx, runID)
	if err != nil {
		t.Fatalf("overview: %v", err)
	}
	if overview == nil {
		t.Fatalf("overview is nil")
	}
	if overview.Run.SourceFile != "in2.csv" || overview.Run.RuleVersion != "custom-2" {
		t.Fatalf("upsert did not apply: %+v", overview.Run)
	}
	if overview.Run.Status != "running" {
		t.Fatalf("status = %q, want running", overview.Run.Status)
	}
}

func TestSaveResults_RoundTripAndFilters(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	runID, err := s.EnsureRun(ctx, model.AuditRun{SourceFile: "in.csv", RuleVersion: "v", RuleSHA256: "x"})
	if err != nil {
		t.Fatalf("ensure run: %v", err)
	}

	results := []model.ScoreBreakdown{
		{
			Index: 0, Username: "john", Password: "123456",
			EntropyBits: 2.585, EntropyScore: 1, DictionaryScore: 0, ReuseScore: 25,
			TotalScore: 26, Category: model.StrengthWeak, DuplicateCount: 1,
			CharacterSets: model.CharacterSetProfile{Digits: true},
			Patterns:      model.PatternFindings{Sequential: true, Keyboard: true},
			Dictionary:    model.DictionaryMatch{CommonPassword: true},
		},
		{
			Index: 1, Username: "erin", Password: "X9#mK2$vL8@qR5!w",
			EntropyBits: 4.0, EntropyScore: 20, DictionaryScore: 30, ReuseScore: 30,
			TotalScore: 80, Category: model.StrengthVeryStrong,
			CharacterSets: model.CharacterSetProfile{Lowercase: true, Uppercase: true, Digits: true, Special: true},
		},
	}
	if err := s.SaveResults(ctx, runID, results); err != nil {
		t.Fatalf("save results: %v", err)
	}

	got, err := s.ListRunResults(ctx, runID, ResultFilter{})
	if err != nil {
		t.Fatalf("list results: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("results = %d, want 2", len(got))
	}
	if got[0].Index != 0 || got[1].Index != 1 {
		t.Fatalf("results out of order: %+v", got)
	}
	// detail_json 往返后明细字段保持一致。
	if !got[0].Dictionary.CommonPassword || !got[0].Patterns.Keyboard || !got[0].CharacterSets.Digits {
		t.Fatalf("detail lost on round trip: %+v", got[0])
	}
	if got[0].DuplicateCount != 1 || got[0].UserReuse {
		t.Fatalf("reuse columns lost: %+v", got[0])
	}

	weak, err := s.ListRunResults(ctx, runID, ResultFilter{Category: string(model.StrengthWeak)})
	if err != nil {
		t.Fatalf("list weak: %v", err)
	}
	if len(weak) != 1 || weak[0].Username != "john" {
		t.Fatalf("category filter = %+v", weak)
	}

	below, err := s.ListRunResults(ctx, runID, ResultFilter{BelowScore: 60})
	if err != nil {
		t.Fatalf("list below: %v", err)
	}
	if len(below) != 1 || below[0].TotalScore != 26 {
		t.Fatalf("below filter = %+v", below)
	}

	limited, err := s.ListRunResults(ctx, runID, ResultFilter{Limit: 1})
	if err != nil {
		t.Fatalf("list limited: %v", err)
	}
	if len(limited) != 1 {
		t.Fatalf("limit filter = %d rows, want 1", len(limited))
	}
}

func TestFinishRun_UpdatesOverview(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	runID, err := s.EnsureRun(ctx, model.AuditRun{SourceFile: "in.csv", RuleVersion: "v", RuleSHA256: "x"})
	if err != nil {
		t.Fatalf("ensure run: %v", err)
	}

	summary := model.BatchSummary{Count: 3, MeanScore: 40.5, MinScore: 10, MaxScore: 80}
	if err := s.FinishRun(ctx, runID, summary, "finished"); err != nil {
		t.Fatalf("finish run: %v", err)
	}

	overview, err := s.GetRunOverview(ctx, runID)
	if err != nil {
		t.Fatalf("overview: %v", err)
	}
	if overview.Run.Status != "finished" || overview.Run.RecordCount != 3 {
		t.Fatalf("finish not applied: %+v", overview.Run)
	}
	if overview.Run.MinScore != 10 || overview.Run.MaxScore != 80 {
		t.Fatalf("scores not applied: %+v", overview.Run)
	}
	if overview.Run.FinishedAt == 0 {
		t.Fatalf("finished_at not set")
	}
}

func TestGetLatestRunID(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	latest, err := s.GetLatestRunID(ctx)
	if err != nil {
		t.Fatalf("latest on empty db: %v", err)
	}
	if latest != "" {
		t.Fatalf("latest = %q, want empty", latest)
	}

	first, err := s.EnsureRun(ctx, model.AuditRun{SourceFile: "a.csv", RuleVersion: "v", RuleSHA256: "x", StartedAt: 100})
	if err != nil {
		t.Fatalf("ensure first: %v", err)
	}
	second, err := s.EnsureRun(ctx, model.AuditRun{SourceFile: "b.csv", RuleVersion: "v", RuleSHA256: "x", StartedAt: 200})
	if err != nil {
		t.Fatalf("ensure second: %v", err)
	}
	_ = first

	latest, err = s.GetLatestRunID(ctx)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest != second {
		t.Fatalf("latest = %q, want %q", latest, second)
	}
}

func TestAppendAudit_ChainsHashes(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	runID, err := s.EnsureRun(ctx, model.AuditRun{SourceFile: "in.csv", RuleVersion: "v", RuleSHA256: "x"})
	if err != nil {
		t.Fatalf("ensure run: %v", err)
	}

	if err := s.AppendAudit(ctx, runID, "run", "run_start", "success", "tester", "in.csv", map[string]any{"records": 3}); err != nil {
		t.Fatalf("append first: %v", err)
	}
	if err := s.AppendAudit(ctx, runID, "score", "score_batch", "success", "tester", "in.csv", nil); err != nil {
		t.Fatalf("append second: %v", err)
	}

	logs, err := s.ListAuditLogs(ctx, runID, 0)
	if err != nil {
		t.Fatalf("list logs: %v", err)
	}
	if len(logs) != 2 {
		t.Fatalf("logs = %d, want 2", len(logs))
	}
	if logs[0].ChainPrevHash != "" {
		t.Fatalf("first entry prev hash = %q, want empty", logs[0].ChainPrevHash)
	}
	if logs[1].ChainPrevHash != logs[0].ChainHash {
		t.Fatalf("chain broken: prev %q != %q", logs[1].ChainPrevHash, logs[0].ChainHash)
	}
	if logs[0].ChainHash == "" || logs[0].ChainHash == logs[1].ChainHash {
		t.Fatalf("chain hashes suspicious: %q vs %q", logs[0].ChainHash, logs[1].ChainHash)
	}
}

func TestSaveReport_QueryPaths(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	runID, err := s.EnsureRun(ctx, model.AuditRun{SourceFile: "in.csv", RuleVersion: "v", RuleSHA256: "x"})
	if err != nil {
		t.Fatalf("ensure run: %v", err)
	}

	reportID, err := s.SaveReport(ctx, runID, "audit_text", "/tmp/r.txt", "deadbeef", "report-0.1.0", "generated")
	if err != nil {
		t.Fatalf("save report: %v", err)
	}

	byID, err := s.GetReportByID(ctx, reportID)
	if err != nil {
		t.Fatalf("get by id: %v", err)
	}
	if byID == nil || byID.ReportType != "audit_text" || byID.SHA256 != "deadbeef" {
		t.Fatalf("report = %+v", byID)
	}

	latest, err := s.GetLatestReportByRun(ctx, runID)
	if err != nil {
		t.Fatalf("latest report: %v", err)
	}
	if latest == nil || latest.ReportID != reportID {
		t.Fatalf("latest = %+v, want %s", latest, reportID)
	}

	all, err := s.ListReportsByRun(ctx, runID)
	if err != nil {
		t.Fatalf("list reports: %v", err)
	}
	if len(all) != 1 || all[0].ReportID != reportID {
		t.Fatalf("reports = %+v", all)
	}

	missing, err := s.GetReportByID(ctx, "report_missing")
	if err != nil {
		t.Fatalf("missing report lookup: %v", err)
	}
	if missing != nil {
		t.Fatalf("missing report = %+v, want nil", missing)
	}
}
