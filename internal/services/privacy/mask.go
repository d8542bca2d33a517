package privacy

import (
	"path/filepath"
	"strings"

	"password-auditor/internal/domain/model"
)

// MaskPassword 对口令做“部分展示”：保留首尾各一个字符，中间用 * 填充。
// 过短的口令（两个字符以内）全量隐藏，避免等于明示。
func MaskPassword(password string) string {
	rs := []rune(password)
	if len(rs) == 0 {
		return ""
	}
	if len(rs) <= 2 {
		return "**"
	}
	return string(rs[0]) + strings.Repeat("*", len(rs)-2) + string(rs[len(rs)-1])
}

// MaskBreakdownsForReport 对评分结果做“展示层脱敏”（不修改数据库原始记录）。
//
// masked 模式用于报告外发/演示场景：数据库里的原文仍可供授权人员复核，
// 离开审计机的报告与导出文件一律走这里。
func MaskBreakdownsForReport(results []model.ScoreBreakdown) []model.ScoreBreakdown {
	if len(results) == 0 {
		return nil
	}

	out := make([]model.ScoreBreakdown, 0, len(results))
	for _, r := range results {
		rr := r // copy
		rr.Password = MaskPassword(rr.Password)
		out = append(out, rr)
	}
	return out
}

// MaskSourcePath 把绝对路径压缩为文件名形式，避免报告中暴露目录结构。
func MaskSourcePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	return filepath.Base(p)
}
