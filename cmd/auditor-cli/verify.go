package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"strings"

	sqliteadapter "password-auditor/internal/adapters/store/sqlite"
	"password-auditor/internal/app"
	"password-auditor/internal/services/auditverify"

	_ "modernc.org/sqlite"
)

// runVerify 是 verify 子命令路由：
// - verify report：复核报告文件哈希（与 reports 表入库 sha256 对比）
// - verify audit-chain：校验 audit_logs 链式哈希完整性
func runVerify(ctx context.Context, args []string) error {
	if len(args) == 0 {
		printVerifyUsage()
		return nil
	}

	switch args[0] {
	case "report":
		return runVerifyReport(ctx, args[1:])
	case "audit-chain":
		return runVerifyAuditChain(ctx, args[1:])
	default:
		printVerifyUsage()
		return fmt.Errorf("unknown verify command: %s", args[0])
	}
}

func printVerifyUsage() {
	fmt.Println("Usage:")
	fmt.Println("  auditor-cli verify report [--report-id REPORT_ID | --run-id RUN_ID] [--db data/auditor.db]")
	fmt.Println("  auditor-cli verify audit-chain [--run-id RUN_ID] [--db data/auditor.db] [--limit 5000]")
}

func openVerifyDB(ctx context.Context, dbPath string) (*sql.DB, *sqliteadapter.Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, `PRAGMA busy_timeout = 5000`); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("set busy_timeout: %w", err)
	}
	return db, sqliteadapter.NewStore(db), nil
}

// runVerifyReport 重算报告文件哈希并与入库值对比。
// 指定 --report-id 时校验单份报告；只给 --run-id（或都不给）时校验该运行的全部报告。
func runVerifyReport(ctx context.Context, args []string) error {
	cfg := app.DefaultConfig()

	fs := flag.NewFlagSet("verify report", flag.ContinueOnError)
	dbPath := fs.String("db", cfg.DBPath, "sqlite database path")
	reportID := fs.String("report-id", "", "report id (optional)")
	runID := fs.String("run-id", "", "run id (defaults to latest run)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	db, store, err := openVerifyDB(ctx, *dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	var checks []auditverify.ReportCheck
	if strings.TrimSpace(*reportID) != "" {
		info, err := store.GetReportByID(ctx, strings.TrimSpace(*reportID))
		if err != nil {
			return err
		}
		if info == nil {
			return fmt.Errorf("report not found: %s", *reportID)
		}
		checks = append(checks, auditverify.VerifyReport(info))
	} else {
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
		reports, err := store.ListReportsByRun(ctx, resolved)
		if err != nil {
			return err
		}
		if len(reports) == 0 {
			return fmt.Errorf("no reports found for run: %s", resolved)
		}
		for i := range reports {
			checks = append(checks, auditverify.VerifyReport(&reports[i]))
		}
	}

	failed := 0
	for _, c := range checks {
		if c.OK {
			fmt.Printf("OK   %s %s\n", c.ReportID, c.FilePath)
			continue
		}
		failed++
		fmt.Printf("FAIL %s %s stored=%s actual=%s message=%s\n",
			c.ReportID, c.FilePath, c.StoredSHA256, c.ActualSHA256, c.Message)
	}

	fmt.Printf("reports_total=%d ok=%d failed=%d\n", len(checks), len(checks)-failed, failed)
	if failed > 0 {
		return fmt.Errorf("report verify failed: %d report(s) mismatch", failed)
	}
	return nil
}

// runVerifyAuditChain 校验 audit_logs 的链式哈希，对任何篡改给出逐条定位。
func runVerifyAuditChain(ctx context.Context, args []string) error {
	cfg := app.DefaultConfig()

	fs := flag.NewFlagSet("verify audit-chain", flag.ContinueOnError)
	dbPath := fs.String("db", cfg.DBPath, "sqlite database path")
	runID := fs.String("run-id", "", "run id (defaults to latest run)")
	limit := fs.Int("limit", 5000, "max audit log rows to verify")
	if err := fs.Parse(args); err != nil {
		return err
	}

	db, store, err := openVerifyDB(ctx, *dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

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

	logs, err := store.ListAuditLogs(ctx, resolved, *limit)
	if err != nil {
		return err
	}

	res := auditverify.VerifyAuditLogs(logs)
	fmt.Printf("audit chain verify completed run_id=%s\n", resolved)
	fmt.Printf("total=%d failed=%d prev_hash_failed=%d chain_hash_failed=%d\n",
		res.Total, res.Failed, res.PrevHashFailed, res.ChainHashFailed)
	if res.LastChainHash != "" {
		fmt.Printf("last_chain_hash=%s\n", res.LastChainHash)
	}

	if !res.OK {
		for _, f := range res.Failures {
			fmt.Printf("FAIL index=%d event_id=%s message=%s expected_prev=%s actual_prev=%s expected_hash=%s actual_hash=%s\n",
				f.Index, f.EventID, f.Message, f.ExpectedPrevHash, f.ActualPrevHash, f.ExpectedChainHash, f.ActualChainHash)
		}
		return fmt.Errorf("audit chain verify failed: %d record(s) mismatch", res.Failed)
	}
	return nil
}
