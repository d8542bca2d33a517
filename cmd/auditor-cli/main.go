package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"password-auditor/internal/adapters/csvsource"
	"password-auditor/internal/adapters/rules"
	sqliteadapter "password-auditor/internal/adapters/store/sqlite"
	"password-auditor/internal/app"
	"password-auditor/internal/services/auditpdf"
	"password-auditor/internal/services/auditrun"
	"password-auditor/internal/services/privacy"
	"password-auditor/internal/services/resultview"

	_ "modernc.org/sqlite"
)

// CLI 入口。所有子命令错误都统一输出到 stderr 并返回非 0 状态码。
func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// run 是一级命令路由：migrate / rules / audit / query / export / verify。
func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		printUsage()
		return nil
	}

	switch args[0] {
	case "migrate":
		return runMigrate(ctx, args[1:])
	case "rules":
		return runRules(ctx, args[1:])
	case "audit":
		return runAudit(ctx, args[1:])
	case "query":
		return runQuery(ctx, args[1:])
	case "export":
		return runExport(ctx, args[1:])
	case "verify":
		return runVerify(ctx, args[1:])
	default:
		printUsage()
		return fmt.Errorf("unknown command: %s", args[0])
	}
}

// runMigrate 执行 SQLite 迁移，确保数据库结构完整。
func runMigrate(ctx context.Context, args []string) error {
	cfg := app.DefaultConfig()

	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	dbPath := fs.String("db", cfg.DBPath, "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(*dbPath), 0o755); err != nil {
		return fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", *dbPath)
	if err != nil {
		return fmt.Errorf("open sqlite: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping sqlite: %w", err)
	}

	m := sqliteadapter.NewMigrator(db)
	if err := m.Up(ctx); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}

	fmt.Printf("migrations applied successfully: db=%s\n", *dbPath)
	return nil
}

// runRules 是二级命令路由，目前支持 rules validate。
func runRules(ctx context.Context, args []string) error {
	if len(args) == 0 {
		printRulesUsage()
		return nil
	}

	switch args[0] {
	case "validate":
		return runRulesValidate(ctx, args[1:])
	default:
		printRulesUsage()
		return fmt.Errorf("unknown rules command: %s", args[0])
	}
}

// runRulesValidate 用于规则文件合法性检查，输出规则版本与哈希摘要。
func runRulesValidate(ctx context.Context, args []string) error {
	cfg := app.DefaultConfig()

	fs := flag.NewFlagSet("rules validate", flag.ContinueOnError)
	rulePath := fs.String("rules", cfg.RulePath, "rule bundle file (empty for builtin)")
	dictPath := fs.String("dictionary", "", "custom dictionary file (optional)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	loader := rules.NewLoader(*rulePath, *dictPath)
	loaded, err := loader.Load(ctx)
	if err != nil {
		return err
	}

	fmt.Println("rule validation passed")
	fmt.Printf("bundle: version=%s source=%s sha256=%s\n",
		loaded.Bundle.Version, loaded.BundleSource, loaded.BundleSHA256)
	fmt.Printf("lists: common_passwords=%d common_words=%d keyboard_patterns=%d leet_map=%d custom_words=%d\n",
		len(loaded.Bundle.CommonPasswords),
		len(loaded.Bundle.CommonWords),
		len(loaded.Bundle.KeyboardPatterns),
		len(loaded.Bundle.LeetMap),
		len(loaded.CustomWords),
	)
	if len(loaded.Warnings) > 0 {
		fmt.Printf("warnings=%s\n", strings.Join(loaded.Warnings, " | "))
	}
	return nil
}

// runAudit 是二级命令路由：audit run / audit sample / audit validate。
func runAudit(ctx context.Context, args []string) error {
	if len(args) == 0 {
		printAuditUsage()
		return nil
	}

	switch args[0] {
	case "run":
		return runAuditRun(ctx, args[1:])
	case "sample":
		return runAuditSample(ctx, args[1:])
	case "validate":
		return runAuditValidate(ctx, args[1:])
	default:
		printAuditUsage()
		return fmt.Errorf("unknown audit command: %s", args[0])
	}
}

// runAuditRun 执行批量审计全流程（读清单 -> 评分 -> 入库 -> 报告）。
func runAuditRun(ctx context.Context, args []string) error {
	cfg := app.DefaultConfig()

	fs := flag.NewFlagSet("audit run", flag.ContinueOnError)
	dbPath := fs.String("db", cfg.DBPath, "sqlite database path")
	sourceFile := fs.String("source", "", "password csv file (required)")
	rulePath := fs.String("rules", cfg.RulePath, "rule bundle file (empty for builtin)")
	dictPath := fs.String("dictionary", "", "custom dictionary file (optional)")
	reportDir := fs.String("report-dir", cfg.ReportDir, "report output directory")
	runID := fs.String("run-id", "", "existing run id (optional)")
	operator := fs.String("operator", "system", "operator id or name")
	note := fs.String("note", "", "run note")
	maskReports := fs.Bool("mask-reports", false, "mask passwords in generated reports")
	skipReports := fs.Bool("skip-reports", false, "score and persist only, skip report files")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*sourceFile) == "" {
		return fmt.Errorf("--source is required")
	}

	result, err := auditrun.Run(ctx, auditrun.Options{
		DBPath:         *dbPath,
		SourceFile:     *sourceFile,
		RulePath:       *rulePath,
		DictionaryFile: *dictPath,
		ReportDir:      *reportDir,
		RunID:          *runID,
		Operator:       *operator,
		Note:           *note,
		MaskReports:    *maskReports,
		SkipReports:    *skipReports,
	})
	if err != nil {
		return err
	}

	fmt.Println("audit run completed")
	fmt.Printf("run_id=%s\n", result.RunID)
	fmt.Printf("records=%d mean=%.1f min=%d max=%d\n",
		result.RecordCount, result.MeanScore, result.MinScore, result.MaxScore)
	fmt.Printf("rules=%s sha256=%s\n", result.RuleVersion, result.RuleSHA256)
	if result.TextReport != "" {
		fmt.Printf("text_report=%s\n", result.TextReport)
	}
	if result.JSONReport != "" {
		fmt.Printf("json_report=%s\n", result.JSONReport)
	}
	if len(result.Warnings) > 0 {
		fmt.Printf("warnings=%s\n", strings.Join(result.Warnings, " | "))
	}
	return nil
}

// runAuditSample 生成演示输入文件，便于试跑整条审计链路。
func runAuditSample(ctx context.Context, args []string) error {
	_ = ctx

	fs := flag.NewFlagSet("audit sample", flag.ContinueOnError)
	outPath := fs.String("out", "data/sample_passwords.csv", "sample csv output path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(*outPath), 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	if err := csvsource.WriteSampleCSV(*outPath); err != nil {
		return err
	}
	fmt.Printf("sample csv written: %s\n", *outPath)
	return nil
}

// runAuditValidate 只做输入结构检查（干跑），不评分不入库。
func runAuditValidate(ctx context.Context, args []string) error {
	_ = ctx

	fs := flag.NewFlagSet("audit validate", flag.ContinueOnError)
	sourceFile := fs.String("source", "", "password csv file (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*sourceFile) == "" {
		return fmt.Errorf("--source is required")
	}

	result, err := csvsource.Validate(*sourceFile)
	if err != nil {
		return err
	}

	fmt.Println("source validation passed")
	fmt.Printf("records=%d delimiter=%q\n", len(result.Records), result.Delimiter)
	if len(result.Warnings) > 0 {
		fmt.Printf("warnings=%s\n", strings.Join(result.Warnings, " | "))
	}
	return nil
}

// runQuery 是查询命令路由（评分明细/摘要/报告展示）。
func runQuery(ctx context.Context, args []string) error {
	if len(args) == 0 {
		printQueryUsage()
		return nil
	}
	switch args[0] {
	case "results":
		return runQueryResults(ctx, args[1:])
	case "summary":
		return runQuerySummary(ctx, args[1:])
	case "report":
		return runQueryReport(ctx, args[1:])
	default:
		printQueryUsage()
		return fmt.Errorf("unknown query command: %s", args[0])
	}
}

// runQueryResults 查询评分明细，支持按档位与分数阈值过滤。
func runQueryResults(ctx context.Context, args []string) error {
	cfg := app.DefaultConfig()

	fs := flag.NewFlagSet("query results", flag.ContinueOnError)
	dbPath := fs.String("db", cfg.DBPath, "sqlite database path")
	runID := fs.String("run-id", "", "run id (defaults to latest run)")
	category := fs.String("category", "", "strength category filter")
	below := fs.Int("below", 0, "only results with total score below this value")
	limit := fs.Int("limit", 0, "max rows")
	masked := fs.Bool("masked", false, "mask passwords in output")
	similar := fs.Bool("similar", false, "group near-duplicate passwords instead of listing results (O(n^2), gated)")
	similarThreshold := fs.Float64("similar-threshold", 0, "jaccard threshold for --similar (default 0.8)")
	maxRecords := fs.Int("max-records", 0, "batch size limit override for --similar")
	asJSON := fs.Bool("json", true, "print as json")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *similar {
		view, err := resultview.GetSimilarView(ctx, *dbPath, strings.TrimSpace(*runID), *similarThreshold, *maxRecords)
		if err != nil {
			return err
		}
		if *asJSON {
			return printJSON(view)
		}
		fmt.Printf("run_id=%s records=%d threshold=%.2f groups=%d\n",
			view.RunID, view.Records, view.Threshold, len(view.Groups))
		for i, g := range view.Groups {
			fmt.Printf("group %d:\n", i+1)
			for _, m := range g.Members {
				fmt.Printf("  idx=%d user=%s password=%s total=%d\n", m.Index, m.Username, m.Password, m.Total)
			}
		}
		return nil
	}

	view, err := resultview.GetResultsView(ctx, *dbPath, strings.TrimSpace(*runID), sqliteadapter.ResultFilter{
		Category:   strings.TrimSpace(*category),
		BelowScore: *below,
		Limit:      *limit,
	}, *masked)
	if err != nil {
		return err
	}
	if *asJSON {
		return printJSON(view)
	}

	fmt.Printf("run_id=%s result_count=%d\n", view.Overview.Run.RunID, len(view.Results))
	for _, r := range view.Results {
		fmt.Printf("idx=%d user=%s password=%s entropy=%d dict=%d reuse=%d total=%d category=%s\n",
			r.Index, r.Username, r.Password, r.EntropyScore, r.DictionaryScore, r.ReuseScore, r.TotalScore, r.Category)
	}
	return nil
}

// runQuerySummary 查询运行摘要（记录数、均值、档位分布）。
func runQuerySummary(ctx context.Context, args []string) error {
	cfg := app.DefaultConfig()

	fs := flag.NewFlagSet("query summary", flag.ContinueOnError)
	dbPath := fs.String("db", cfg.DBPath, "sqlite database path")
	runID := fs.String("run-id", "", "run id (defaults to latest run)")
	asJSON := fs.Bool("json", true, "print as json")
	if err := fs.Parse(args); err != nil {
		return err
	}

	view, err := resultview.GetSummaryView(ctx, *dbPath, strings.TrimSpace(*runID))
	if err != nil {
		return err
	}
	if *asJSON {
		return printJSON(view)
	}

	run := view.Overview.Run
	fmt.Printf("run_id=%s status=%s records=%d mean=%.1f min=%d max=%d\n",
		run.RunID, run.Status, run.RecordCount, run.MeanScore, run.MinScore, run.MaxScore)
	for cat, n := range view.Overview.Categories {
		fmt.Printf("category %s=%d\n", cat, n)
	}
	return nil
}

// runQueryReport 查询报告索引与内容。
func runQueryReport(ctx context.Context, args []string) error {
	cfg := app.DefaultConfig()

	fs := flag.NewFlagSet("query report", flag.ContinueOnError)
	dbPath := fs.String("db", cfg.DBPath, "sqlite database path")
	runID := fs.String("run-id", "", "run id (defaults to latest run)")
	reportID := fs.String("report-id", "", "optional report id")
	includeContent := fs.Bool("content", false, "include report file content (text reports)")
	asJSON := fs.Bool("json", true, "print as json")
	if err := fs.Parse(args); err != nil {
		return err
	}

	view, err := resultview.GetReportView(ctx, *dbPath, strings.TrimSpace(*runID), strings.TrimSpace(*reportID), *includeContent)
	if err != nil {
		return err
	}
	if *asJSON {
		return printJSON(view)
	}

	if view.Report == nil {
		fmt.Printf("run_id=%s no report found\n", view.Overview.Run.RunID)
		return nil
	}
	fmt.Printf("run_id=%s report_id=%s type=%s path=%s generated_at=%d\n",
		view.Report.RunID, view.Report.ReportID, view.Report.ReportType, view.Report.FilePath, view.Report.GeneratedAt)
	if *includeContent {
		fmt.Printf("content_length=%d\n", view.ContentLength)
		fmt.Println(view.Content)
	}
	return nil
}

// runExport 是导出命令路由：CSV / PDF 报告产物。
func runExport(ctx context.Context, args []string) error {
	if len(args) == 0 {
		printExportUsage()
		return nil
	}
	switch args[0] {
	case "report-csv":
		return runExportReportCSV(ctx, args[1:])
	case "report-pdf":
		return runExportReportPDF(ctx, args[1:])
	default:
		printExportUsage()
		return fmt.Errorf("unknown export command: %s", args[0])
	}
}

// runExportReportCSV 把评分结果导出为 CSV 文件。
func runExportReportCSV(ctx context.Context, args []string) error {
	cfg := app.DefaultConfig()

	fs := flag.NewFlagSet("export report-csv", flag.ContinueOnError)
	dbPath := fs.String("db", cfg.DBPath, "sqlite database path")
	runID := fs.String("run-id", "", "run id (defaults to latest run)")
	outPath := fs.String("out", "", "csv output path (required)")
	masked := fs.Bool("masked", true, "mask passwords in exported csv")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*outPath) == "" {
		return fmt.Errorf("--out is required")
	}

	view, err := resultview.GetResultsView(ctx, *dbPath, strings.TrimSpace(*runID), sqliteadapter.ResultFilter{}, false)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(*outPath), 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	if err := csvsource.WriteResultsCSV(*outPath, view.Results, *masked, privacy.MaskPassword); err != nil {
		return err
	}

	fmt.Println("csv export completed")
	fmt.Printf("run_id=%s rows=%d masked=%t\n", view.Overview.Run.RunID, len(view.Results), *masked)
	fmt.Printf("csv=%s\n", *outPath)
	return nil
}

// runExportReportPDF 生成审计 PDF 报告并登记。
func runExportReportPDF(ctx context.Context, args []string) error {
	cfg := app.DefaultConfig()

	fs := flag.NewFlagSet("export report-pdf", flag.ContinueOnError)
	dbPath := fs.String("db", cfg.DBPath, "sqlite database path")
	runID := fs.String("run-id", "", "run id (defaults to latest run)")
	reportDir := fs.String("report-dir", cfg.ReportDir, "report output directory")
	operator := fs.String("operator", "system", "operator id or name")
	note := fs.String("note", "", "export note")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(*dbPath), 0o755); err != nil {
		return fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", *dbPath)
	if err != nil {
		return fmt.Errorf("open sqlite: %w", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, `PRAGMA busy_timeout = 5000`); err != nil {
		return fmt.Errorf("set busy_timeout: %w", err)
	}

	migrator := sqliteadapter.NewMigrator(db)
	if err := migrator.Up(ctx); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}

	store := sqliteadapter.NewStore(db)
	resolved := strings.TrimSpace(*runID)
	if resolved == "" {
		resolved, err = store.GetLatestRunID(ctx)
		if err != nil {
			return err
		}
		if resolved == "" {
			return fmt.Errorf("no audit runs found")
		}
	}

	res, err := auditpdf.GenerateAuditPDF(ctx, store, auditpdf.Options{
		RunID:     resolved,
		ReportDir: *reportDir,
		Operator:  strings.TrimSpace(*operator),
		Note:      strings.TrimSpace(*note),
	})
	if err != nil {
		return err
	}

	fmt.Println("pdf export completed")
	fmt.Printf("run_id=%s report_id=%s\n", resolved, res.ReportID)
	fmt.Printf("pdf=%s\n", res.PDFPath)
	fmt.Printf("pdf_sha256=%s\n", res.PDFSHA256)
	if len(res.Warnings) > 0 {
		fmt.Printf("warnings=%s\n", strings.Join(res.Warnings, " | "))
	}
	return nil
}

// printUsage 输出一级命令帮助。
func printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  auditor-cli migrate [--db data/auditor.db]")
	fmt.Println("  auditor-cli rules validate [--rules rules/password_rules.template.yaml] [--dictionary words.txt]")
	fmt.Println("  auditor-cli audit run --source passwords.csv [--db data/auditor.db] [--rules path] [--dictionary path] [--mask-reports]")
	fmt.Println("  auditor-cli audit sample [--out data/sample_passwords.csv]")
	fmt.Println("  auditor-cli audit validate --source passwords.csv")
	fmt.Println("  auditor-cli query results [--run-id RUN_ID] [--category \"Very Weak\"] [--below 40] [--masked] [--similar]")
	fmt.Println("  auditor-cli query summary [--run-id RUN_ID]")
	fmt.Println("  auditor-cli query report [--run-id RUN_ID] [--report-id REPORT_ID] [--content]")
	fmt.Println("  auditor-cli export report-csv --out results.csv [--run-id RUN_ID] [--masked=true]")
	fmt.Println("  auditor-cli export report-pdf [--run-id RUN_ID] [--db data/auditor.db]")
	fmt.Println("  auditor-cli verify report [--report-id REPORT_ID | --run-id RUN_ID]")
	fmt.Println("  auditor-cli verify audit-chain [--run-id RUN_ID] [--limit 5000]")
}

// printRulesUsage 输出 rules 子命令帮助。
func printRulesUsage() {
	fmt.Println("Usage:")
	fmt.Println("  auditor-cli rules validate [--rules path] [--dictionary path]")
}

// printAuditUsage 输出 audit 子命令帮助。
func printAuditUsage() {
	fmt.Println("Usage:")
	fmt.Println("  auditor-cli audit run --source passwords.csv [--db path] [--rules path] [--dictionary path] [--report-dir path] [--run-id id] [--operator name] [--note text] [--mask-reports] [--skip-reports]")
	fmt.Println("  auditor-cli audit sample [--out path]")
	fmt.Println("  auditor-cli audit validate --source passwords.csv")
}

// printQueryUsage 输出 query 子命令帮助。
func printQueryUsage() {
	fmt.Println("Usage:")
	fmt.Println("  auditor-cli query results [--run-id id] [--db path] [--category name] [--below score] [--limit n] [--masked] [--similar] [--similar-threshold 0.8] [--max-records n] [--json=true]")
	fmt.Println("  auditor-cli query summary [--run-id id] [--db path] [--json=true]")
	fmt.Println("  auditor-cli query report [--run-id id] [--report-id id] [--db path] [--content] [--json=true]")
}

func printExportUsage() {
	fmt.Println("Usage:")
	fmt.Println("  auditor-cli export report-csv --out results.csv [--run-id id] [--db path] [--masked=true]")
	fmt.Println("  auditor-cli export report-pdf [--run-id id] [--db path] [--report-dir path] [--operator name] [--note text]")
}

func printJSON(v any) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(raw))
	return nil
}
