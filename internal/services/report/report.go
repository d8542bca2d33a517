package report

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	sqliteadapter "password-auditor/internal/adapters/store/sqlite"
	"password-auditor/internal/domain/model"
	"password-auditor/internal/platform/hash"
	"password-auditor/internal/services/privacy"
)

// 审计报告（text / json 双形态）
//
// - text 形态给人看：摘要、档位分布、最弱口令清单、整改建议
// - json 形态给程序看：结构化全量结果，供下游工具二次加工
// 两者都登记到 reports 表并写 audit_logs 留痕。

const generatorVer = "report-0.1.0"

type Options struct {
	RunID     string
	ReportDir string
	Operator  string
	Note      string

	// MaskPasswords 为真时报告中的口令走掩码形态（外发场景）。
	MaskPasswords bool
	// WeakestLimit 限制最弱口令清单长度，<=0 时取 20。
	WeakestLimit int
}

type Result struct {
	TextReportID string   `json:"text_report_id"`
	TextPath     string   `json:"text_path"`
	TextSHA256   string   `json:"text_sha256"`
	JSONReportID string   `json:"json_report_id"`
	JSONPath     string   `json:"json_path"`
	JSONSHA256   string   `json:"json_sha256"`
	GeneratedAt  int64    `json:"generated_at"`
	Warnings     []string `json:"warnings,omitempty"`
}

// jsonReport 是 json 形态报告的顶层结构。
type jsonReport struct {
	Run         model.AuditRun         `json:"run"`
	Summary     model.BatchSummary     `json:"summary"`
	Results     []model.ScoreBreakdown `json:"results"`
	Masked      bool                   `json:"masked"`
	GeneratedAt int64                  `json:"generated_at"`
	Generator   string                 `json:"generator"`
}

// Generate 从库中取出一次运行的全部结果，生成 text + json 报告并登记。
func Generate(ctx context.Context, store *sqliteadapter.Store, opts Options) (*Result, error) {
	runID := strings.TrimSpace(opts.RunID)
	if runID == "" {
		return nil, fmt.Errorf("run_id is required")
	}
	operator := strings.TrimSpace(opts.Operator)
	if operator == "" {
		operator = "system"
	}
	weakestLimit := opts.WeakestLimit
	if weakestLimit <= 0 {
		weakestLimit = 20
	}

	ov, err := store.GetRunOverview(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("get run overview: %w", err)
	}
	if ov == nil {
		return nil, fmt.Errorf("run not found: %s", runID)
	}

	results, err := store.ListRunResults(ctx, runID, sqliteadapter.ResultFilter{})
	if err != nil {
		return nil, fmt.Errorf("list run results: %w", err)
	}

	display := results
	if opts.MaskPasswords {
		display = privacy.MaskBreakdownsForReport(results)
	}

	summary := model.BatchSummary{
		Count:      ov.Run.RecordCount,
		MeanScore:  ov.Run.MeanScore,
		MinScore:   ov.Run.MinScore,
		MaxScore:   ov.Run.MaxScore,
		Categories: ov.Categories,
	}

	now := time.Now().Unix()
	reportDir := strings.TrimSpace(opts.ReportDir)
	if reportDir == "" {
		reportDir = "data/reports"
	}
	if err := os.MkdirAll(reportDir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir reports: %w", err)
	}

	out := &Result{GeneratedAt: now}

	// text 报告
	textPath := filepath.Join(reportDir, fmt.Sprintf("%s_audit_%d.txt", runID, now))
	text := buildText(ov.Run, summary, display, weakestLimit, opts.MaskPasswords, now)
	if err := os.WriteFile(textPath, []byte(text), 0o644); err != nil {
		return nil, fmt.Errorf("write text report: %w", err)
	}
	textSum, _, err := hash.File(textPath)
	if err != nil {
		return nil, fmt.Errorf("sha256 text report: %w", err)
	}
	textID, err := store.SaveReport(ctx, runID, "audit_text", textPath, textSum, generatorVer, "ready")
	if err != nil {
		return nil, fmt.Errorf("save text report: %w", err)
	}
	out.TextReportID = textID
	out.TextPath = textPath
	out.TextSHA256 = textSum

	// json 报告
	jsonPath := filepath.Join(reportDir, fmt.Sprintf("%s_audit_%d.json", runID, now))
	payload := jsonReport{
		Run:         ov.Run,
		Summary:     summary,
		Results:     display,
		Masked:      opts.MaskPasswords,
		GeneratedAt: now,
		Generator:   generatorVer,
	}
	raw, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal json report: %w", err)
	}
	if err := os.WriteFile(jsonPath, raw, 0o644); err != nil {
		return nil, fmt.Errorf("write json report: %w", err)
	}
	jsonSum, _, err := hash.File(jsonPath)
	if err != nil {
		return nil, fmt.Errorf("sha256 json report: %w", err)
	}
	jsonID, err := store.SaveReport(ctx, runID, "audit_json", jsonPath, jsonSum, generatorVer, "ready")
	if err != nil {
		return nil, fmt.Errorf("save json report: %w", err)
	}
	out.JSONReportID = jsonID
	out.JSONPath = jsonPath
	out.JSONSHA256 = jsonSum

	_ = store.AppendAudit(ctx, runID, "export", "audit_report", "success", operator, "report.Generate", map[string]any{
		"text":        textPath,
		"text_sha256": textSum,
		"json":        jsonPath,
		"json_sha256": jsonSum,
		"masked":      opts.MaskPasswords,
		"note":        strings.TrimSpace(opts.Note),
	})

	return out, nil
}

// buildText 渲染人读报告。
func buildText(run model.AuditRun, summary model.BatchSummary, results []model.ScoreBreakdown, weakestLimit int, masked bool, generatedAt int64) string {
	var b strings.Builder

	b.WriteString("Password Audit Report\n")
	b.WriteString(strings.Repeat("=", 60) + "\n\n")
	b.WriteString(fmt.Sprintf("Run ID:       %s\n", run.RunID))
	b.WriteString(fmt.Sprintf("Source:       %s\n", privacy.MaskSourcePath(run.SourceFile)))
	b.WriteString(fmt.Sprintf("Rule Bundle:  %s (sha256 %s)\n", run.RuleVersion, shortHash(run.RuleSHA256)))
	if run.DictionaryFile != "" {
		b.WriteString(fmt.Sprintf("Dictionary:   %s\n", privacy.MaskSourcePath(run.DictionaryFile)))
	}
	b.WriteString(fmt.Sprintf("Generated:    %s\n", time.Unix(generatedAt, 0).Format("2006-01-02 15:04:05")))
	if masked {
		b.WriteString("Passwords:    masked\n")
	}
	b.WriteString("\n")

	b.WriteString("Summary\n")
	b.WriteString(strings.Repeat("-", 60) + "\n")
	if summary.Empty() {
		b.WriteString("No records were scored in this run.\n\n")
	} else {
		b.WriteString(fmt.Sprintf("Records:      %d\n", summary.Count))
		b.WriteString(fmt.Sprintf("Mean score:   %.1f / 100\n", summary.MeanScore))
		b.WriteString(fmt.Sprintf("Min score:    %d\n", summary.MinScore))
		b.WriteString(fmt.Sprintf("Max score:    %d\n\n", summary.MaxScore))

		b.WriteString("Strength distribution:\n")
		for _, cat := range model.StrengthCategories {
			n := summary.Categories[cat]
			bar := strings.Repeat("#", barLen(n, summary.Count))
			b.WriteString(fmt.Sprintf("  %-12s %4d  %s\n", cat, n, bar))
		}
		b.WriteString("\n")
	}

	if len(results) > 0 {
		weakest := append([]model.ScoreBreakdown(nil), results...)
		sort.SliceStable(weakest, func(i, j int) bool {
			return weakest[i].TotalScore < weakest[j].TotalScore
		})
		if len(weakest) > weakestLimit {
			weakest = weakest[:weakestLimit]
		}

		b.WriteString(fmt.Sprintf("Weakest Passwords (bottom %d)\n", len(weakest)))
		b.WriteString(strings.Repeat("-", 60) + "\n")
		b.WriteString(fmt.Sprintf("%-5s %-16s %-20s %5s %5s %5s %5s  %s\n",
			"idx", "username", "password", "ent", "dict", "reuse", "total", "category"))
		for _, r := range weakest {
			b.WriteString(fmt.Sprintf("%-5d %-16s %-20s %5d %5d %5d %5d  %s\n",
				r.Index, clip(r.Username, 16), clip(r.Password, 20),
				r.EntropyScore, r.DictionaryScore, r.ReuseScore, r.TotalScore, r.Category))
		}
		b.WriteString("\n")
	}

	recs := recommendations(results)
	if len(recs) > 0 {
		b.WriteString("Recommendations\n")
		b.WriteString(strings.Repeat("-", 60) + "\n")
		for _, r := range recs {
			b.WriteString("- " + r + "\n")
		}
		b.WriteString("\n")
	}

	return b.String()
}

// recommendations 从命中明细归纳整改建议，只列出确有命中的条目。
func recommendations(results []model.ScoreBreakdown) []string {
	var (
		commonHits  int
		reuseHits   int
		userReuse   int
		shortOrFlat int
		personal    int
	)
	for _, r := range results {
		if r.Dictionary.CommonPassword {
			commonHits++
		}
		if r.DuplicateCount > 0 {
			reuseHits++
		}
		if r.UserReuse {
			userReuse++
		}
		if r.EntropyScore < 15 {
			shortOrFlat++
		}
		if len(r.Dictionary.PersonalInfo) > 0 {
			personal++
		}
	}

	var recs []string
	if commonHits > 0 {
		recs = append(recs, fmt.Sprintf("%d password(s) appear on the common-password list; block them at creation time.", commonHits))
	}
	if reuseHits > 0 {
		recs = append(recs, fmt.Sprintf("%d password(s) are shared across accounts; require unique passwords per account.", reuseHits))
	}
	if userReuse > 0 {
		recs = append(recs, fmt.Sprintf("%d account(s) reuse the same password under one username; force rotation for those accounts.", userReuse))
	}
	if shortOrFlat > 0 {
		recs = append(recs, fmt.Sprintf("%d password(s) score low on entropy; enforce a minimum length of 12 with mixed character classes.", shortOrFlat))
	}
	if personal > 0 {
		recs = append(recs, fmt.Sprintf("%d password(s) embed personal information (username, year or phone); warn users against it.", personal))
	}
	return recs
}

func barLen(n, total int) int {
	if total <= 0 || n <= 0 {
		return 0
	}
	l := n * 40 / total
	if l == 0 {
		l = 1
	}
	return l
}

func clip(s string, max int) string {
	rs := []rune(s)
	if len(rs) <= max {
		return s
	}
	return string(rs[:max-1]) + "~"
}

func shortHash(h string) string {
	if len(h) <= 12 {
		return h
	}
	return h[:12]
}
