package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"password-auditor/internal/domain/model"
	"password-auditor/internal/platform/hash"
	"password-auditor/internal/platform/id"
)

// Store 封装与 SQLite 的读写逻辑。
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// EnsureRun 创建一次审计运行记录；未传 runID 时自动生成。
// 规则包版本与摘要随运行落库，结果可追溯到当时生效的规则。
func (s *Store) EnsureRun(ctx context.Context, run model.AuditRun) (string, error) {
	now := time.Now().Unix()
	if run.RunID == "" {
		run.RunID = id.New("run")
	}
	if run.Status == "" {
		run.Status = "running"
	}
	if run.StartedAt <= 0 {
		run.StartedAt = now
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_runs(
			run_id, source_file, operator, note, rule_version, rule_sha256,
			dictionary_file, record_count, mean_score, min_score, max_score,
			status, started_at
		)
		VALUES(?, ?, ?, ?, ?, ?, ?, 0, 0, 0, 0, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			source_file=excluded.source_file,
			rule_version=excluded.rule_version,
			rule_sha256=excluded.rule_sha256,
			status=excluded.status
	`, run.RunID, run.SourceFile, run.Operator, run.Note, run.RuleVersion,
		run.RuleSHA256, nullIfEmpty(run.DictionaryFile), run.Status, run.StartedAt)
	if err != nil {
		return "", fmt.Errorf("upsert audit run: %w", err)
	}

	return run.RunID, nil
}

// FinishRun 回填运行的聚合统计并标记结束状态。
func (s *Store) FinishRun(ctx context.Context, runID string, summary model.BatchSummary, status string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE audit_runs
		SET record_count=?, mean_score=?, min_score=?, max_score=?, status=?, finished_at=?
		WHERE run_id=?
	`, summary.Count, summary.MeanScore, summary.MinScore, summary.MaxScore, status, time.Now().Unix(), runID)
	if err != nil {
		return fmt.Errorf("finish audit run: %w", err)
	}
	return nil
}

// GetSchemaMetaValue 查询 schema_meta 表指定 key 的 value。
func (s *Store) GetSchemaMetaValue(ctx context.Context, key string) (string, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `
		SELECT value
		FROM schema_meta
		WHERE key = ?
		LIMIT 1
	`, key).Scan(&v)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", fmt.Errorf("query schema_meta %s: %w", key, err)
	}
	return v, nil
}

// SaveResults 批量写入评分结果，使用事务保证原子性。
// 明细（字符集/模式/字典命中）整体落到 detail_json 列。
func (s *Store) SaveResults(ctx context.Context, runID string, results []model.ScoreBreakdown) error {
	if len(results) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx save results: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO audit_results(
			result_id, run_id, record_index, username, password, fingerprint,
			entropy_bits, entropy_score, dictionary_score, reuse_score,
			total_score, category, duplicate_count, user_reuse, detail_json, created_at
		)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare insert results: %w", err)
	}
	defer stmt.Close()

	now := time.Now().Unix()
	for _, r := range results {
		detail, merr := json.Marshal(model.ResultDetail{
			CharacterSets: r.CharacterSets,
			Patterns:      r.Patterns,
			Dictionary:    r.Dictionary,
		})
		if merr != nil {
			err = fmt.Errorf("marshal result detail %d: %w", r.Index, merr)
			return err
		}

		_, err = stmt.ExecContext(ctx,
			id.New("res"),
			runID,
			r.Index,
			r.Username,
			r.Password,
			hash.Fingerprint(r.Password),
			r.EntropyBits,
			r.EntropyScore,
			r.DictionaryScore,
			r.ReuseScore,
			r.TotalScore,
			string(r.Category),
			r.DuplicateCount,
			boolToInt(r.UserReuse),
			string(detail),
			now,
		)
		if err != nil {
			return fmt.Errorf("insert result %d: %w", r.Index, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit save results: %w", err)
	}
	return nil
}

// GetRunOverview 返回一次运行的聚合摘要（结果数/报告数/档位分布）。
func (s *Store) GetRunOverview(ctx context.Context, runID string) (*model.RunOverview, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT
			r.run_id,
			r.source_file,
			COALESCE(r.operator, ''),
			COALESCE(r.note, ''),
			r.rule_version,
			r.rule_sha256,
			COALESCE(r.dictionary_file, ''),
			r.record_count,
			r.mean_score,
			r.min_score,
			r.max_score,
			r.status,
			r.started_at,
			COALESCE(r.finished_at, 0),
			(SELECT COUNT(*) FROM audit_results x WHERE x.run_id = r.run_id),
			(SELECT COUNT(*) FROM reports p WHERE p.run_id = r.run_id)
		FROM audit_runs r
		WHERE r.run_id = ?
	`, runID)

	var out model.RunOverview
	if err := row.Scan(
		&out.Run.RunID,
		&out.Run.SourceFile,
		&out.Run.Operator,
		&out.Run.Note,
		&out.Run.RuleVersion,
		&out.Run.RuleSHA256,
		&out.Run.DictionaryFile,
		&out.Run.RecordCount,
		&out.Run.MeanScore,
		&out.Run.MinScore,
		&out.Run.MaxScore,
		&out.Run.Status,
		&out.Run.StartedAt,
		&out.Run.FinishedAt,
		&out.ResultCount,
		&out.ReportCount,
	); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("query run overview: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT category, COUNT(*)
		FROM audit_results
		WHERE run_id = ?
		GROUP BY category
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query run categories: %w", err)
	}
	defer rows.Close()

	out.Categories = map[model.StrengthCategory]int{}
	for rows.Next() {
		var cat string
		var n int
		if err := rows.Scan(&cat, &n); err != nil {
			return nil, fmt.Errorf("scan run category: %w", err)
		}
		out.Categories[model.StrengthCategory(cat)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run categories: %w", err)
	}
	return &out, nil
}

// ResultFilter 限定结果查询范围；零值表示不过滤。
type ResultFilter struct {
	Category   string
	BelowScore int // >0 时只取 total_score 低于该值的结果
	Limit      int
}

// ListRunResults 返回一次运行的评分明细，按 record_index 升序。
func (s *Store) ListRunResults(ctx context.Context, runID string, filter ResultFilter) ([]model.ScoreBreakdown, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 10000
	}

	query := `
		SELECT
			record_index, username, password,
			entropy_bits, entropy_score, dictionary_score, reuse_score,
			total_score, category, duplicate_count, user_reuse,
			COALESCE(detail_json, '{}')
		FROM audit_results
		WHERE run_id = ?`
	args := []any{runID}
	if filter.Category != "" {
		query += ` AND category = ?`
		args = append(args, filter.Category)
	}
	if filter.BelowScore > 0 {
		query += ` AND total_score < ?`
		args = append(args, filter.BelowScore)
	}
	query += `
		ORDER BY record_index ASC
		LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query run results: %w", err)
	}
	defer rows.Close()

	var out []model.ScoreBreakdown
	for rows.Next() {
		var item model.ScoreBreakdown
		var cat, detail string
		var userReuseInt int
		if err := rows.Scan(
			&item.Index,
			&item.Username,
			&item.Password,
			&item.EntropyBits,
			&item.EntropyScore,
			&item.DictionaryScore,
			&item.ReuseScore,
			&item.TotalScore,
			&cat,
			&item.DuplicateCount,
			&userReuseInt,
			&detail,
		); err != nil {
			return nil, fmt.Errorf("scan run result: %w", err)
		}
		item.Category = model.StrengthCategory(cat)
		item.UserReuse = userReuseInt == 1

		var d model.ResultDetail
		if err := json.Unmarshal([]byte(detail), &d); err != nil {
			return nil, fmt.Errorf("decode result detail %d: %w", item.Index, err)
		}
		item.CharacterSets = d.CharacterSets
		item.Patterns = d.Patterns
		item.Dictionary = d.Dictionary
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run results: %w", err)
	}
	if out == nil {
		out = []model.ScoreBreakdown{}
	}
	return out, nil
}

// GetLatestRunID 返回最近一次启动的运行 ID；库中无运行时返回空串。
func (s *Store) GetLatestRunID(ctx context.Context) (string, error) {
	var runID string
	err := s.db.QueryRowContext(ctx, `
		SELECT run_id
		FROM audit_runs
		ORDER BY started_at DESC, run_id DESC
		LIMIT 1
	`).Scan(&runID)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", fmt.Errorf("query latest run: %w", err)
	}
	return runID, nil
}

// AppendAudit 写入审计日志，并生成链式 hash 以便后续校验完整性。
func (s *Store) AppendAudit(ctx context.Context, runID, eventType, action, status, actor, source string, detail any) error {
	detailJSON := []byte("{}")
	if detail != nil {
		raw, err := json.Marshal(detail)
		if err == nil {
			detailJSON = raw
		}
	}

	prev := ""
	err := s.db.QueryRowContext(ctx, `
		SELECT chain_hash
		FROM audit_logs
		WHERE run_id = ?
		ORDER BY occurred_at DESC, event_id DESC
		LIMIT 1
	`, runID).Scan(&prev)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("query previous chain hash: %w", err)
	}

	now := time.Now().Unix()
	eventID := id.New("evt")
	chain := hash.Text(prev, runID, eventType, action, status, fmt.Sprintf("%d", now), string(detailJSON))

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_logs(
			event_id, run_id, event_type, action, status,
			actor, source, detail_json, occurred_at, chain_prev_hash, chain_hash
		)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, eventID, runID, eventType, action, status, actor, source, string(detailJSON), now, nullIfEmpty(prev), chain)
	if err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}

	return nil
}

// ListAuditLogs 返回一次运行的审计日志（按时间升序）。
func (s *Store) ListAuditLogs(ctx context.Context, runID string, limit int) ([]model.AuditLog, error) {
	if limit <= 0 {
		limit = 500
	}
	if limit > 5000 {
		limit = 5000
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT
			event_id,
			run_id,
			event_type,
			action,
			status,
			COALESCE(actor, ''),
			COALESCE(source, ''),
			COALESCE(detail_json, '{}'),
			occurred_at,
			COALESCE(chain_prev_hash, ''),
			chain_hash
		FROM audit_logs
		WHERE run_id = ?
		ORDER BY occurred_at ASC, event_id ASC
		LIMIT ?
	`, runID, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit logs: %w", err)
	}
	defer rows.Close()

	var out []model.AuditLog
	for rows.Next() {
		var item model.AuditLog
		var detail string
		if err := rows.Scan(
			&item.EventID,
			&item.RunID,
			&item.EventType,
			&item.Action,
			&item.Status,
			&item.Actor,
			&item.Source,
			&detail,
			&item.OccurredAt,
			&item.ChainPrevHash,
			&item.ChainHash,
		); err != nil {
			return nil, fmt.Errorf("scan audit log: %w", err)
		}
		item.DetailJSON = json.RawMessage(detail)
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit logs: %w", err)
	}
	if out == nil {
		out = []model.AuditLog{}
	}
	return out, nil
}

// SaveReport 记录报告产物信息，供查询与校验流程追踪。
func (s *Store) SaveReport(ctx context.Context, runID, reportType, filePath, sha256, generatorVersion, status string) (string, error) {
	reportID := id.New("report")
	now := time.Now().Unix()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reports(
			report_id, run_id, report_type, file_path, sha256, generated_at, generator_version, status
		)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?)
	`, reportID, runID, reportType, filePath, sha256, now, generatorVersion, status)
	if err != nil {
		return "", fmt.Errorf("insert report: %w", err)
	}
	return reportID, nil
}

// GetReportByID 按报告 ID 查询报告索引。
func (s *Store) GetReportByID(ctx context.Context, reportID string) (*model.ReportInfo, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT report_id, run_id, report_type, file_path, sha256, generated_at, COALESCE(generator_version, ''), status
		FROM reports
		WHERE report_id = ?
		LIMIT 1
	`, reportID)
	return scanReportInfo(row)
}

// GetLatestReportByRun 返回一次运行最新的报告索引。
func (s *Store) GetLatestReportByRun(ctx context.Context, runID string) (*model.ReportInfo, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT report_id, run_id, report_type, file_path, sha256, generated_at, COALESCE(generator_version, ''), status
		FROM reports
		WHERE run_id = ?
		ORDER BY generated_at DESC, report_id DESC
		LIMIT 1
	`, runID)
	return scanReportInfo(row)
}

// ListReportsByRun 返回一次运行全部报告索引，按生成时间倒序。
func (s *Store) ListReportsByRun(ctx context.Context, runID string) ([]model.ReportInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT report_id, run_id, report_type, file_path, sha256, generated_at, COALESCE(generator_version, ''), status
		FROM reports
		WHERE run_id = ?
		ORDER BY generated_at DESC, report_id DESC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query reports by run: %w", err)
	}
	defer rows.Close()

	var out []model.ReportInfo
	for rows.Next() {
		var item model.ReportInfo
		if err := rows.Scan(
			&item.ReportID,
			&item.RunID,
			&item.ReportType,
			&item.FilePath,
			&item.SHA256,
			&item.GeneratedAt,
			&item.GeneratorVersion,
			&item.Status,
		); err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reports: %w", err)
	}
	if out == nil {
		out = []model.ReportInfo{}
	}
	return out, nil
}

func scanReportInfo(row *sql.Row) (*model.ReportInfo, error) {
	var out model.ReportInfo
	if err := row.Scan(
		&out.ReportID,
		&out.RunID,
		&out.ReportType,
		&out.FilePath,
		&out.SHA256,
		&out.GeneratedAt,
		&out.GeneratorVersion,
		&out.Status,
	); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("query report info: %w", err)
	}
	return &out, nil
}

// SQLite 中没有布尔类型，统一转 0/1 存储。
func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

// 空字符串按 NULL 写入，避免无意义空值污染查询条件。
func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
