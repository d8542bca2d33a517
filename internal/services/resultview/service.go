package resultview

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	sqliteadapter "password-auditor/internal/adapters/store/sqlite"
	"password-auditor/internal/domain/model"
	"password-auditor/internal/services/privacy"
	"password-auditor/internal/services/reuse"

	_ "modernc.org/sqlite"
)

// ResultsView 是评分明细查询结果。
type ResultsView struct {
	Overview *model.RunOverview     `json:"overview,omitempty"`
	Results  []model.ScoreBreakdown `json:"results"`
	Masked   bool                   `json:"masked"`
}

// SummaryView 是运行摘要查询结果。
type SummaryView struct {
	Overview *model.RunOverview `json:"overview"`
}

// SimilarMember 是近似重复组内的单条记录（口令已掩码）。
type SimilarMember struct {
	Index    int    `json:"index"`
	Username string `json:"username"`
	Password string `json:"password"`
	Total    int    `json:"total_score"`
}

// SimilarGroup 是一组近似重复口令。
type SimilarGroup struct {
	Members []SimilarMember `json:"members"`
}

// SimilarView 是近似重复检测查询结果。
type SimilarView struct {
	RunID     string         `json:"run_id"`
	Threshold float64        `json:"threshold"`
	Records   int            `json:"records"`
	Groups    []SimilarGroup `json:"groups"`
}

// ReportView 是报告展示查询结果。
type ReportView struct {
	Overview      *model.RunOverview `json:"overview,omitempty"`
	Report        *model.ReportInfo  `json:"report,omitempty"`
	Reports       []model.ReportInfo `json:"reports,omitempty"`
	Content       string             `json:"content,omitempty"`
	ContentLength int                `json:"content_length,omitempty"`
}

func openStore(ctx context.Context, dbPath string) (*sql.DB, *sqliteadapter.Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, `PRAGMA busy_timeout = 5000`); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("set busy_timeout: %w", err)
	}
	return db, sqliteadapter.NewStore(db), nil
}

// resolveRunID 支持 runID 为空时回退到最近一次运行。
func resolveRunID(ctx context.Context, store *sqliteadapter.Store, runID string) (string, error) {
	if runID != "" {
		return runID, nil
	}
	latest, err := store.GetLatestRunID(ctx)
	if err != nil {
		return "", err
	}
	if latest == "" {
		return "", fmt.Errorf("no audit runs found")
	}
	return latest, nil
}

// GetResultsView 查询一次运行的评分明细。
// runID 为空时取最近一次运行；masked 为真时对口令做展示层掩码。
func GetResultsView(ctx context.Context, dbPath, runID string, filter sqliteadapter.ResultFilter, masked bool) (*ResultsView, error) {
	db, store, err := openStore(ctx, dbPath)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	runID, err = resolveRunID(ctx, store, runID)
	if err != nil {
		return nil, err
	}
	overview, err := store.GetRunOverview(ctx, runID)
	if err != nil {
		return nil, err
	}
	if overview == nil {
		return nil, fmt.Errorf("run not found: %s", runID)
	}

	results, err := store.ListRunResults(ctx, runID, filter)
	if err != nil {
		return nil, err
	}
	if masked {
		results = privacy.MaskBreakdownsForReport(results)
		if results == nil {
			results = []model.ScoreBreakdown{}
		}
	}

	return &ResultsView{
		Overview: overview,
		Results:  results,
		Masked:   masked,
	}, nil
}

// GetSimilarView 对一次运行的口令做近似重复（Jaccard）分组。
//
// O(n²) 的门控操作：批次超过 maxRecords（<=0 时取默认上限）直接拒绝，
// 不进入默认评分管线。输出中的口令一律掩码。
func GetSimilarView(ctx context.Context, dbPath, runID string, threshold float64, maxRecords int) (*SimilarView, error) {
	db, store, err := openStore(ctx, dbPath)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	runID, err = resolveRunID(ctx, store, runID)
	if err != nil {
		return nil, err
	}

	results, err := store.ListRunResults(ctx, runID, sqliteadapter.ResultFilter{})
	if err != nil {
		return nil, err
	}

	records := make([]model.PasswordRecord, len(results))
	for i, r := range results {
		records[i] = model.PasswordRecord{Index: r.Index, Username: r.Username, Password: r.Password}
	}

	tracker := reuse.NewTracker()
	tracker.Ingest(records)
	if threshold <= 0 {
		threshold = reuse.DefaultSimilarityThreshold
	}
	groups, err := tracker.SimilarGroups(threshold, maxRecords)
	if err != nil {
		return nil, err
	}

	view := &SimilarView{
		RunID:     runID,
		Threshold: threshold,
		Records:   len(results),
		Groups:    []SimilarGroup{},
	}
	for _, g := range groups {
		group := SimilarGroup{}
		for _, i := range g {
			group.Members = append(group.Members, SimilarMember{
				Index:    results[i].Index,
				Username: results[i].Username,
				Password: privacy.MaskPassword(results[i].Password),
				Total:    results[i].TotalScore,
			})
		}
		view.Groups = append(view.Groups, group)
	}
	return view, nil
}

// GetSummaryView 查询一次运行的聚合摘要。runID 为空时取最近一次运行。
func GetSummaryView(ctx context.Context, dbPath, runID string) (*SummaryView, error) {
	db, store, err := openStore(ctx, dbPath)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	runID, err = resolveRunID(ctx, store, runID)
	if err != nil {
		return nil, err
	}
	overview, err := store.GetRunOverview(ctx, runID)
	if err != nil {
		return nil, err
	}
	if overview == nil {
		return nil, fmt.Errorf("run not found: %s", runID)
	}
	return &SummaryView{Overview: overview}, nil
}

// GetReportView 查询报告索引与可选内容。
// reportID 为空时返回该运行最新报告；includeContent 只对文本类报告有意义。
func GetReportView(ctx context.Context, dbPath, runID, reportID string, includeContent bool) (*ReportView, error) {
	db, store, err := openStore(ctx, dbPath)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	runID, err = resolveRunID(ctx, store, runID)
	if err != nil {
		return nil, err
	}
	overview, err := store.GetRunOverview(ctx, runID)
	if err != nil {
		return nil, err
	}
	if overview == nil {
		return nil, fmt.Errorf("run not found: %s", runID)
	}

	reports, err := store.ListReportsByRun(ctx, runID)
	if err != nil {
		return nil, err
	}

	var report *model.ReportInfo
	if reportID != "" {
		report, err = store.GetReportByID(ctx, reportID)
	} else {
		report, err = store.GetLatestReportByRun(ctx, runID)
	}
	if err != nil {
		return nil, err
	}
	if report == nil {
		return &ReportView{Overview: overview, Reports: reports}, nil
	}

	out := &ReportView{
		Overview: overview,
		Report:   report,
		Reports:  reports,
	}
	if includeContent {
		raw, err := os.ReadFile(report.FilePath)
		if err != nil {
			return nil, fmt.Errorf("read report file: %w", err)
		}
		out.Content = string(raw)
		out.ContentLength = len(raw)
	}

	return out, nil
}
