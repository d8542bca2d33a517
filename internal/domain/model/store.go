package model

// AuditRun 对应 audit_runs 表：一次批量审计的元数据与聚合结果。
type AuditRun struct {
	RunID          string  `json:"run_id"`
	SourceFile     string  `json:"source_file"`
	Operator       string  `json:"operator"`
	Note           string  `json:"note,omitempty"`
	RuleVersion    string  `json:"rule_version"`
	RuleSHA256     string  `json:"rule_sha256"`
	DictionaryFile string  `json:"dictionary_file,omitempty"`
	RecordCount    int     `json:"record_count"`
	MeanScore      float64 `json:"mean_score"`
	MinScore       int     `json:"min_score"`
	MaxScore       int     `json:"max_score"`
	Status         string  `json:"status"`
	StartedAt      int64   `json:"started_at"`
	FinishedAt     int64   `json:"finished_at,omitempty"`
}

// RunOverview 是查询视图使用的审计概览。
type RunOverview struct {
	Run         AuditRun                 `json:"run"`
	ResultCount int                      `json:"result_count"`
	ReportCount int                      `json:"report_count"`
	Categories  map[StrengthCategory]int `json:"categories"`
}

// ReportInfo 对应 reports 表：一份已生成的报告产物。
type ReportInfo struct {
	ReportID         string `json:"report_id"`
	RunID            string `json:"run_id"`
	ReportType       string `json:"report_type"`
	FilePath         string `json:"file_path"`
	SHA256           string `json:"sha256"`
	GeneratedAt      int64  `json:"generated_at"`
	GeneratorVersion string `json:"generator_version"`
	Status           string `json:"status"`
}

// AuditLog 对应 audit_logs 表：运行留痕，按 chain_hash 串链防篡改。
type AuditLog struct {
	EventID       string `json:"event_id"`
	RunID         string `json:"run_id"`
	EventType     string `json:"event_type"`
	Action        string `json:"action"`
	Status        string `json:"status"`
	Actor         string `json:"actor,omitempty"`
	Source        string `json:"source,omitempty"`
	DetailJSON    []byte `json:"detail_json,omitempty"`
	OccurredAt    int64  `json:"occurred_at"`
	ChainPrevHash string `json:"chain_prev_hash,omitempty"`
	ChainHash     string `json:"chain_hash"`
}
