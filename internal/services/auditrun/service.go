package auditrun

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"password-auditor/internal/adapters/csvsource"
	"password-auditor/internal/adapters/rules"
	sqliteadapter "password-auditor/internal/adapters/store/sqlite"
	"password-auditor/internal/app"
	"password-auditor/internal/domain/model"
	"password-auditor/internal/services/analyzer"
	"password-auditor/internal/services/report"

	_ "modernc.org/sqlite"
)

// Options 定义一次批量审计的输入参数。
type Options struct {
	DBPath         string
	SourceFile     string
	RulePath       string
	DictionaryFile string
	ReportDir      string
	RunID          string
	Operator       string
	Note           string

	// MaskReports 为真时生成的报告对口令做掩码。
	MaskReports bool
	// SkipReports 为真时只评分入库，不产出报告文件。
	SkipReports bool
}

// Result 定义一次批量审计的摘要输出。
type Result struct {
	RunID       string                         `json:"run_id"`
	RecordCount int                            `json:"record_count"`
	MeanScore   float64                        `json:"mean_score"`
	MinScore    int                            `json:"min_score"`
	MaxScore    int                            `json:"max_score"`
	Categories  map[model.StrengthCategory]int `json:"categories"`
	RuleVersion string                         `json:"rule_version"`
	RuleSHA256  string                         `json:"rule_sha256"`
	Warnings    []string                       `json:"warnings,omitempty"`
	TextReport  string                         `json:"text_report,omitempty"`
	JSONReport  string                         `json:"json_report,omitempty"`
	StartedAt   int64                          `json:"started_at"`
	FinishedAt  int64                          `json:"finished_at"`
}

// Run 执行批量审计主流程：
// 1) 准备数据库与目录
// 2) 迁移建表
// 3) 读取口令清单并加载规则
// 4) 逐条评分并入库
// 5) 生成报告与审计日志
func Run(ctx context.Context, opts Options) (*Result, error) {
	defaults := app.DefaultConfig()
	if opts.DBPath == "" {
		opts.DBPath = defaults.DBPath
	}
	if opts.RulePath == "" {
		opts.RulePath = defaults.RulePath
	}
	if opts.ReportDir == "" {
		opts.ReportDir = defaults.ReportDir
	}
	sourceFile := strings.TrimSpace(opts.SourceFile)
	if sourceFile == "" {
		return nil, fmt.Errorf("source file is required")
	}
	operator := strings.TrimSpace(opts.Operator)
	if operator == "" {
		operator = "system"
	}

	startedAt := time.Now().Unix()

	if err := os.MkdirAll(filepath.Dir(opts.DBPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", opts.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	defer db.Close()
	// 内部单机工具优先稳定性：SQLite 用单连接 + busy_timeout 减少“database is locked”。
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, `PRAGMA busy_timeout = 5000`); err != nil {
		return nil, fmt.Errorf("set busy_timeout: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	migrator := sqliteadapter.NewMigrator(db)
	if err := migrator.Up(ctx); err != nil {
		return nil, fmt.Errorf("apply migrations: %w", err)
	}
	store := sqliteadapter.NewStore(db)

	warnings := []string{}

	// 规则在读清单之前加载：规则包坏了就不要开始动数据。
	loader := rules.NewLoader(opts.RulePath, opts.DictionaryFile)
	loaded, err := loader.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}
	warnings = append(warnings, loaded.Warnings...)

	source, err := csvsource.ReadRecords(sourceFile)
	if err != nil {
		return nil, fmt.Errorf("read source: %w", err)
	}
	warnings = append(warnings, source.Warnings...)

	runID, err := store.EnsureRun(ctx, model.AuditRun{
		RunID:          opts.RunID,
		SourceFile:     sourceFile,
		Operator:       operator,
		Note:           opts.Note,
		RuleVersion:    loaded.Bundle.Version,
		RuleSHA256:     loaded.BundleSHA256,
		DictionaryFile: opts.DictionaryFile,
		StartedAt:      startedAt,
	})
	if err != nil {
		return nil, err
	}

	_ = store.AppendAudit(ctx, runID, "audit", "run_start", "success", operator, "auditrun.Run", map[string]any{
		"source":       sourceFile,
		"rule_version": loaded.Bundle.Version,
		"rule_sha256":  loaded.BundleSHA256,
		"record_count": len(source.Records),
		"warnings":     warnings,
	})

	an := analyzer.New(loaded)
	results, err := an.AnalyzeBatch(ctx, source.Records)
	if err != nil {
		_ = store.AppendAudit(ctx, runID, "audit", "score_batch", "failed", operator, "auditrun.Run", map[string]any{
			"error": err.Error(),
		})
		_ = store.FinishRun(ctx, runID, model.BatchSummary{}, "failed")
		return nil, fmt.Errorf("analyze batch: %w", err)
	}

	if err := store.SaveResults(ctx, runID, results); err != nil {
		_ = store.FinishRun(ctx, runID, model.BatchSummary{}, "failed")
		return nil, err
	}

	summary := analyzer.Summarize(results)
	if err := store.FinishRun(ctx, runID, summary, "finished"); err != nil {
		return nil, err
	}

	_ = store.AppendAudit(ctx, runID, "audit", "score_batch", "success", operator, "auditrun.Run", map[string]any{
		"record_count": summary.Count,
		"mean_score":   summary.MeanScore,
		"min_score":    summary.MinScore,
		"max_score":    summary.MaxScore,
	})

	out := &Result{
		RunID:       runID,
		RecordCount: summary.Count,
		MeanScore:   summary.MeanScore,
		MinScore:    summary.MinScore,
		MaxScore:    summary.MaxScore,
		Categories:  summary.Categories,
		RuleVersion: loaded.Bundle.Version,
		RuleSHA256:  loaded.BundleSHA256,
		StartedAt:   startedAt,
	}

	if !opts.SkipReports {
		rep, err := report.Generate(ctx, store, report.Options{
			RunID:         runID,
			ReportDir:     opts.ReportDir,
			Operator:      operator,
			Note:          opts.Note,
			MaskPasswords: opts.MaskReports,
		})
		if err != nil {
			// 报告失败不推翻已入库的评分结果，降级为警告。
			warnings = append(warnings, "generate reports failed: "+err.Error())
			_ = store.AppendAudit(ctx, runID, "export", "audit_report", "failed", operator, "auditrun.Run", map[string]any{
				"error": err.Error(),
			})
		} else {
			out.TextReport = rep.TextPath
			out.JSONReport = rep.JSONPath
			warnings = append(warnings, rep.Warnings...)
		}
	}

	out.Warnings = warnings
	out.FinishedAt = time.Now().Unix()
	return out, nil
}
