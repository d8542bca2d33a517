package auditverify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"password-auditor/internal/domain/model"
	"password-auditor/internal/platform/hash"
)

// FailureItem 表示一次审计链校验失败的明细项（用于 CLI 展示）。
type FailureItem struct {
	Index int `json:"index"`

	EventID    string `json:"event_id"`
	OccurredAt int64  `json:"occurred_at"`
	EventType  string `json:"event_type"`
	Action     string `json:"action"`
	Status     string `json:"status"`

	// PrevHashMismatch 表示当前记录的 chain_prev_hash 与上一条记录 chain_hash 不一致。
	PrevHashMismatch bool   `json:"prev_hash_mismatch"`
	ExpectedPrevHash string `json:"expected_prev_hash,omitempty"`
	ActualPrevHash   string `json:"actual_prev_hash,omitempty"`

	// ChainHashMismatch 表示当前记录 chain_hash 与按公式重算的值不一致。
	ChainHashMismatch bool   `json:"chain_hash_mismatch"`
	ExpectedChainHash string `json:"expected_chain_hash,omitempty"`
	ActualChainHash   string `json:"actual_chain_hash,omitempty"`

	Message string `json:"message,omitempty"`
}

// Result 是审计链强校验结果。
type Result struct {
	OK bool `json:"ok"`

	Total int `json:"total"`

	Failed          int `json:"failed"`
	PrevHashFailed  int `json:"prev_hash_failed"`
	ChainHashFailed int `json:"chain_hash_failed"`

	LastChainHash string `json:"last_chain_hash,omitempty"`

	Failures []FailureItem `json:"failures,omitempty"`
}

// VerifyAuditLogs 对 audit_logs 做强校验：
// 1) chain_prev_hash 连续性
// 2) 重算 chain_hash 并与存量字段对比
//
// 校验公式必须与 Store.AppendAudit 保持一致。
func VerifyAuditLogs(logs []model.AuditLog) Result {
	res := Result{
		OK:       true,
		Total:    len(logs),
		Failures: []FailureItem{},
	}

	prev := ""
	for i, it := range logs {
		expectedPrev := prev
		actualPrev := strings.TrimSpace(it.ChainPrevHash)

		// 入库时 detail_json 是 json.Marshal 的紧凑形态；导出物可能被美化过，
		// 这里先 compact，只对比真正的内容差异。
		detail := compactJSON(it.DetailJSON)
		expectedChain := hash.Text(
			expectedPrev,
			it.RunID,
			it.EventType,
			it.Action,
			it.Status,
			fmt.Sprintf("%d", it.OccurredAt),
			detail,
		)
		actualChain := strings.TrimSpace(it.ChainHash)

		prevMismatch := actualPrev != expectedPrev
		chainMismatch := actualChain != expectedChain

		if prevMismatch || chainMismatch {
			res.OK = false
			res.Failed++
			if prevMismatch {
				res.PrevHashFailed++
			}
			if chainMismatch {
				res.ChainHashFailed++
			}

			msg := ""
			switch {
			case prevMismatch && chainMismatch:
				msg = "chain_prev_hash and chain_hash mismatch"
			case prevMismatch:
				msg = "chain_prev_hash mismatch"
			case chainMismatch:
				msg = "chain_hash mismatch"
			}

			res.Failures = append(res.Failures, FailureItem{
				Index:      i,
				EventID:    it.EventID,
				OccurredAt: it.OccurredAt,
				EventType:  it.EventType,
				Action:     it.Action,
				Status:     it.Status,

				PrevHashMismatch: prevMismatch,
				ExpectedPrevHash: expectedPrev,
				ActualPrevHash:   actualPrev,

				ChainHashMismatch: chainMismatch,
				ExpectedChainHash: expectedChain,
				ActualChainHash:   actualChain,

				Message: msg,
			})
		}

		// 链推进以库中记录的 chain_hash 为准，坏链之后的记录仍能继续定位异常。
		prev = actualChain
		res.LastChainHash = actualChain
	}

	return res
}

// ReportCheck 是报告完整性校验结果。
type ReportCheck struct {
	OK           bool   `json:"ok"`
	ReportID     string `json:"report_id"`
	FilePath     string `json:"file_path"`
	StoredSHA256 string `json:"stored_sha256"`
	ActualSHA256 string `json:"actual_sha256,omitempty"`
	SizeBytes    int64  `json:"size_bytes,omitempty"`
	Message      string `json:"message,omitempty"`
}

// VerifyReport 重算报告文件哈希并与 reports 表存量值对比。
func VerifyReport(info *model.ReportInfo) ReportCheck {
	check := ReportCheck{
		ReportID:     info.ReportID,
		FilePath:     info.FilePath,
		StoredSHA256: info.SHA256,
	}

	sum, size, err := hash.File(info.FilePath)
	if err != nil {
		check.Message = fmt.Sprintf("read report file: %v", err)
		return check
	}
	check.ActualSHA256 = sum
	check.SizeBytes = size

	if sum != info.SHA256 {
		check.Message = "sha256 mismatch"
		return check
	}
	check.OK = true
	return check
}

func compactJSON(in []byte) string {
	if len(bytes.TrimSpace(in)) == 0 {
		return "{}"
	}
	var b bytes.Buffer
	if err := json.Compact(&b, in); err == nil {
		return b.String()
	}
	// 兜底：出现非 JSON 时尽量保持与原始输入一致。
	return strings.TrimSpace(string(in))
}
