package auditpdf

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	sqliteadapter "password-auditor/internal/adapters/store/sqlite"
	"password-auditor/internal/domain/model"
	"password-auditor/internal/platform/hash"
	"password-auditor/internal/services/privacy"

	"github.com/phpdave11/gofpdf"
)

// 审计 PDF 报告（audit_pdf）
//
// 面向汇报场景的归档产物：摘要、强度分布柱状图、最弱口令清单。
// PDF 中的口令一律走掩码形态，PDF 本身按外发材料对待。

const pdfGeneratorVer = "auditpdf-0.1.0"

type Options struct {
	RunID     string
	ReportDir string
	Operator  string
	Note      string

	// WeakestLimit 限制最弱口令清单长度，<=0 时取 20。
	WeakestLimit int
}

type Result struct {
	ReportID    string   `json:"report_id"`
	PDFPath     string   `json:"pdf_path"`
	PDFSHA256   string   `json:"pdf_sha256"`
	Warnings    []string `json:"warnings,omitempty"`
	GeneratedAt int64    `json:"generated_at"`
}

// GenerateAuditPDF 生成审计 PDF，并在 reports 表中登记为 report_type=audit_pdf。
func GenerateAuditPDF(ctx context.Context, store *sqliteadapter.Store, opts Options) (*Result, error) {
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

	warnings := []string{}

	results, err := store.ListRunResults(ctx, runID, sqliteadapter.ResultFilter{})
	if err != nil {
		warnings = append(warnings, "list results failed: "+err.Error())
		results = []model.ScoreBreakdown{}
	}
	// PDF 是外发材料，口令统一掩码。
	results = privacy.MaskBreakdownsForReport(results)

	audits, err := store.ListAuditLogs(ctx, runID, 5000)
	if err != nil {
		warnings = append(warnings, "list audits failed: "+err.Error())
		audits = []model.AuditLog{}
	}
	lastAuditHash := ""
	if len(audits) > 0 {
		lastAuditHash = audits[len(audits)-1].ChainHash
	}

	now := time.Now().Unix()
	reportDir := strings.TrimSpace(opts.ReportDir)
	if reportDir == "" {
		reportDir = "data/reports"
	}
	if err := os.MkdirAll(reportDir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir reports: %w", err)
	}
	pdfPath := filepath.Join(reportDir, fmt.Sprintf("%s_audit_%d.pdf", runID, now))

	pdf, utf8OK := buildPDF(*ov, results, operator, opts.Note, weakestLimit, lastAuditHash, now)
	if !utf8OK {
		warnings = append(warnings, "pdf utf8 font not available; non-ascii text may be replaced with '?'")
	}
	if err := pdf.OutputFileAndClose(pdfPath); err != nil {
		return nil, fmt.Errorf("write pdf: %w", err)
	}

	sum, _, err := hash.File(pdfPath)
	if err != nil {
		return nil, fmt.Errorf("sha256 pdf: %w", err)
	}

	reportID, err := store.SaveReport(ctx, runID, "audit_pdf", pdfPath, sum, pdfGeneratorVer, "ready")
	if err != nil {
		return nil, fmt.Errorf("save report: %w", err)
	}

	_ = store.AppendAudit(ctx, runID, "export", "audit_pdf", "success", operator, "auditpdf.GenerateAuditPDF", map[string]any{
		"pdf":          pdfPath,
		"pdf_sha256":   sum,
		"record_count": ov.Run.RecordCount,
		"note":         strings.TrimSpace(opts.Note),
		"warnings":     warnings,
	})

	return &Result{
		ReportID:    reportID,
		PDFPath:     pdfPath,
		PDFSHA256:   sum,
		Warnings:    warnings,
		GeneratedAt: now,
	}, nil
}

func buildPDF(
	ov model.RunOverview,
	results []model.ScoreBreakdown,
	operator string,
	note string,
	weakestLimit int,
	lastAuditHash string,
	generatedAt int64,
) (*gofpdf.Fpdf, bool) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(14, 14, 14)
	pdf.SetAutoPageBreak(true, 14)
	pdf.SetTitle("Password Auditor - Audit Report", false)

	fontFamily, utf8OK := initPDFUnicodeFont(pdf)

	pdf.AddPage()

	// 标题
	pdf.SetFont(fontFamily, "B", 16)
	pdf.CellFormat(0, 9, "Password Audit Report", "", 1, "L", false, 0, "")

	pdf.SetFont(fontFamily, "", 10)
	pdf.SetTextColor(60, 60, 60)
	pdf.CellFormat(0, 6, fmt.Sprintf("Generated at: %s", fmtTime(generatedAt)), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 6, fmt.Sprintf("Operator: %s", safeText(operator, utf8OK)), "", 1, "L", false, 0, "")
	if strings.TrimSpace(note) != "" {
		pdf.MultiCell(0, 5, fmt.Sprintf("Note: %s", safeText(note, utf8OK)), "", "L", false)
	}
	pdf.Ln(2)

	// Overview
	sectionTitle(pdf, fontFamily, "1. Run Overview")
	kv(pdf, fontFamily, utf8OK, "Run ID", ov.Run.RunID)
	kv(pdf, fontFamily, utf8OK, "Source", privacy.MaskSourcePath(ov.Run.SourceFile))
	kv(pdf, fontFamily, utf8OK, "Rule Bundle", ov.Run.RuleVersion)
	kv(pdf, fontFamily, utf8OK, "Rule SHA256", ov.Run.RuleSHA256)
	kv(pdf, fontFamily, utf8OK, "Status", ov.Run.Status)
	kv(pdf, fontFamily, utf8OK, "Started At", fmtTime(ov.Run.StartedAt))
	kv(pdf, fontFamily, utf8OK, "Finished At", fmtTime(ov.Run.FinishedAt))
	kv(pdf, fontFamily, utf8OK, "Records", fmt.Sprintf("%d", ov.Run.RecordCount))
	if ov.Run.RecordCount > 0 {
		kv(pdf, fontFamily, utf8OK, "Mean Score", fmt.Sprintf("%.1f / 100", ov.Run.MeanScore))
		kv(pdf, fontFamily, utf8OK, "Score Range", fmt.Sprintf("%d - %d", ov.Run.MinScore, ov.Run.MaxScore))
	}
	if strings.TrimSpace(lastAuditHash) != "" {
		kv(pdf, fontFamily, utf8OK, "Audit Chain Last Hash", lastAuditHash)
	}
	pdf.Ln(2)

	// 强度分布柱状图
	sectionTitle(pdf, fontFamily, "2. Strength Distribution")
	if ov.Run.RecordCount == 0 {
		pdf.SetFont(fontFamily, "", 10)
		pdf.SetTextColor(90, 90, 90)
		pdf.MultiCell(0, 5, "(empty run)", "", "L", false)
	} else {
		drawCategoryChart(pdf, fontFamily, ov.Categories, ov.Run.RecordCount)
	}
	pdf.Ln(4)

	// 总分分段柱状图
	sectionTitle(pdf, fontFamily, "3. Score Buckets")
	if len(results) == 0 {
		pdf.SetFont(fontFamily, "", 10)
		pdf.SetTextColor(90, 90, 90)
		pdf.MultiCell(0, 5, "(empty)", "", "L", false)
	} else {
		drawScoreBuckets(pdf, fontFamily, results)
	}
	pdf.Ln(4)

	// 最弱口令
	sectionTitle(pdf, fontFamily, fmt.Sprintf("4. Weakest Passwords (bottom %d, masked)", weakestLimit))
	if len(results) == 0 {
		pdf.SetFont(fontFamily, "", 10)
		pdf.SetTextColor(90, 90, 90)
		pdf.MultiCell(0, 5, "(empty)", "", "L", false)
	} else {
		weakest := append([]model.ScoreBreakdown(nil), results...)
		sort.SliceStable(weakest, func(i, j int) bool {
			return weakest[i].TotalScore < weakest[j].TotalScore
		})
		if len(weakest) > weakestLimit {
			weakest = weakest[:weakestLimit]
		}
		drawWeakestTable(pdf, fontFamily, utf8OK, weakest)
	}

	// 尾注
	pdf.Ln(4)
	pdf.SetFont(fontFamily, "", 9)
	pdf.SetTextColor(90, 90, 90)
	pdf.MultiCell(0, 4.5, "Note: Passwords in this PDF are masked. Full results remain in the audit database for authorized review.", "", "L", false)

	return pdf, utf8OK
}

// drawCategoryChart 画强度档位水平柱状图。
func drawCategoryChart(pdf *gofpdf.Fpdf, fontFamily string, categories map[model.StrengthCategory]int, total int) {
	const (
		labelW  = 30.0
		countW  = 12.0
		maxBarW = 120.0
		rowH    = 7.0
		barH    = 5.0
	)

	colors := map[model.StrengthCategory][3]int{
		model.StrengthVeryWeak:   {200, 60, 60},
		model.StrengthWeak:       {230, 140, 60},
		model.StrengthMedium:     {230, 200, 60},
		model.StrengthStrong:     {140, 200, 80},
		model.StrengthVeryStrong: {60, 160, 80},
	}

	for _, cat := range model.StrengthCategories {
		n := categories[cat]
		pdf.SetFont(fontFamily, "", 9)
		pdf.SetTextColor(30, 30, 30)
		pdf.CellFormat(labelW, rowH, string(cat), "", 0, "L", false, 0, "")
		pdf.CellFormat(countW, rowH, fmt.Sprintf("%d", n), "", 0, "R", false, 0, "")

		w := 0.0
		if total > 0 {
			w = maxBarW * float64(n) / float64(total)
		}
		c := colors[cat]
		pdf.SetFillColor(c[0], c[1], c[2])
		x, y := pdf.GetX()+2, pdf.GetY()+(rowH-barH)/2
		if w > 0.5 {
			pdf.Rect(x, y, w, barH, "F")
		}
		pdf.Ln(rowH)
	}
}

// drawScoreBuckets 画总分五分段（0-19 / 20-39 / 40-59 / 60-79 / 80-100）柱状图。
func drawScoreBuckets(pdf *gofpdf.Fpdf, fontFamily string, results []model.ScoreBreakdown) {
	labels := []string{"0-19", "20-39", "40-59", "60-79", "80-100"}
	buckets := make([]int, len(labels))
	for _, r := range results {
		i := r.TotalScore / 20
		if i >= len(buckets) {
			i = len(buckets) - 1
		}
		buckets[i]++
	}

	maxN := 0
	for _, n := range buckets {
		if n > maxN {
			maxN = n
		}
	}

	const (
		labelW  = 30.0
		countW  = 12.0
		maxBarW = 120.0
		rowH    = 7.0
		barH    = 5.0
	)
	for i, label := range labels {
		n := buckets[i]
		pdf.SetFont(fontFamily, "", 9)
		pdf.SetTextColor(30, 30, 30)
		pdf.CellFormat(labelW, rowH, label, "", 0, "L", false, 0, "")
		pdf.CellFormat(countW, rowH, fmt.Sprintf("%d", n), "", 0, "R", false, 0, "")

		w := 0.0
		if maxN > 0 {
			w = maxBarW * float64(n) / float64(maxN)
		}
		pdf.SetFillColor(80, 120, 200)
		x, y := pdf.GetX()+2, pdf.GetY()+(rowH-barH)/2
		if w > 0.5 {
			pdf.Rect(x, y, w, barH, "F")
		}
		pdf.Ln(rowH)
	}
}

// drawWeakestTable 画最弱口令表格（口令列已掩码）。
func drawWeakestTable(pdf *gofpdf.Fpdf, fontFamily string, utf8OK bool, rows []model.ScoreBreakdown) {
	headers := []string{"idx", "username", "password", "ent", "dict", "reuse", "total", "category"}
	widths := []float64{10, 32, 40, 12, 12, 12, 14, 26}

	pdf.SetFont(fontFamily, "B", 8)
	pdf.SetFillColor(230, 230, 230)
	pdf.SetTextColor(20, 20, 20)
	for i, h := range headers {
		pdf.CellFormat(widths[i], 6, h, "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont(fontFamily, "", 8)
	pdf.SetTextColor(30, 30, 30)
	for _, r := range rows {
		cells := []string{
			fmt.Sprintf("%d", r.Index),
			clipText(safeText(r.Username, utf8OK), 20),
			clipText(safeText(r.Password, utf8OK), 26),
			fmt.Sprintf("%d", r.EntropyScore),
			fmt.Sprintf("%d", r.DictionaryScore),
			fmt.Sprintf("%d", r.ReuseScore),
			fmt.Sprintf("%d", r.TotalScore),
			string(r.Category),
		}
		for i, c := range cells {
			align := "L"
			if i >= 3 && i <= 6 {
				align = "R"
			}
			pdf.CellFormat(widths[i], 5.5, c, "1", 0, align, false, 0, "")
		}
		pdf.Ln(-1)
	}
}

func sectionTitle(pdf *gofpdf.Fpdf, fontFamily string, title string) {
	pdf.SetFont(fontFamily, "B", 12)
	pdf.SetTextColor(0, 0, 0)
	pdf.CellFormat(0, 7, title, "", 1, "L", false, 0, "")
	pdf.SetDrawColor(200, 200, 200)
	pdf.Line(pdf.GetX(), pdf.GetY(), 200, pdf.GetY())
	pdf.Ln(2)
}

func kv(pdf *gofpdf.Fpdf, fontFamily string, utf8OK bool, key string, value string) {
	if strings.TrimSpace(value) == "" {
		value = "-"
	}
	pdf.SetFont(fontFamily, "B", 10)
	pdf.SetTextColor(30, 30, 30)
	pdf.CellFormat(42, 5.2, key+":", "", 0, "L", false, 0, "")
	pdf.SetFont(fontFamily, "", 10)
	pdf.SetTextColor(20, 20, 20)
	pdf.MultiCell(0, 5.2, safeText(value, utf8OK), "", "L", false)
}

func fmtTime(ts int64) string {
	if ts <= 0 {
		return "-"
	}
	return time.Unix(ts, 0).Format("2006-01-02 15:04:05")
}

func safeText(s string, utf8OK bool) string {
	s = strings.ReplaceAll(s, "\r", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\t", " ")
	s = strings.TrimSpace(s)
	if utf8OK {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= 32 && r <= 126 {
			b.WriteRune(r)
		} else {
			b.WriteRune('?')
		}
	}
	return b.String()
}

func clipText(s string, max int) string {
	rs := []rune(s)
	if len(rs) <= max {
		return s
	}
	return string(rs[:max-1]) + "~"
}

// initPDFUnicodeFont 尝试加载 UTF-8 字体（TrueType），以支持中文等非 ASCII 字符。
//
// 规则：
// 1) 如果设置了环境变量 PASSWORD_AUDITOR_PDF_FONT，优先使用该文件路径。
// 2) 否则按常见系统字体路径探测（macOS/Windows/Linux）。
// 3) 加载失败则回退到核心字体（Helvetica），并通过 safeText() 兜底替换非 ASCII 字符。
func initPDFUnicodeFont(pdf *gofpdf.Fpdf) (family string, utf8OK bool) {
	const familyName = "unicode"
	candidates := []string{}

	if v := strings.TrimSpace(os.Getenv("PASSWORD_AUDITOR_PDF_FONT")); v != "" {
		candidates = append(candidates, v)
	}

	switch runtime.GOOS {
	case "darwin":
		candidates = append(candidates,
			"/System/Library/Fonts/Supplemental/Arial Unicode.ttf",
			"/System/Library/Fonts/Supplemental/AppleMyungjo.ttf",
			"/System/Library/Fonts/Supplemental/AppleGothic.ttf",
			"/System/Library/Fonts/Hiragino Sans GB.ttc",
			"/System/Library/Fonts/PingFang.ttc",
		)
	case "windows":
		candidates = append(candidates,
			`C:\Windows\Fonts\arialuni.ttf`,
			`C:\Windows\Fonts\simhei.ttf`,
			`C:\Windows\Fonts\simsun.ttc`,
			`C:\Windows\Fonts\msyh.ttc`,
		)
	default:
		// Linux (best effort)
		candidates = append(candidates,
			"/usr/share/fonts/truetype/dejavu/DejaVuSans.ttf",
			"/usr/share/fonts/truetype/noto/NotoSansCJK-Regular.ttc",
			"/usr/share/fonts/opentype/noto/NotoSansCJK-Regular.ttc",
			"/usr/share/fonts/truetype/arphic/uming.ttc",
		)
	}

	for _, p := range candidates {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err != nil {
			continue
		}

		// 即使只有一个字体文件，这里也注册 B 样式，避免 SetFont(...,"B",...) 报错。
		pdf.AddUTF8Font(familyName, "", p)
		if pdf.Err() {
			pdf.ClearError()
			continue
		}
		pdf.AddUTF8Font(familyName, "B", p)
		if pdf.Err() {
			// bold 失败也不致命：清错后仍可用 regular
			pdf.ClearError()
		}
		return familyName, true
	}

	return "Helvetica", false
}
