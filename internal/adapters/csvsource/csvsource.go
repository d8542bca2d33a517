package csvsource

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"strings"

	"password-auditor/internal/domain/model"
)

// 列名按小写匹配；username/password 必须同时出现，notes 可选。
const (
	columnUsername = "username"
	columnPassword = "password"
	columnNotes    = "notes"
)

// candidateDelimiters 是表头探测时尝试的分隔符（按优先级）。
var candidateDelimiters = []rune{',', ';', '\t'}

// ReadResult 是一次 CSV 读取的产出：记录 + 非致命问题清单。
type ReadResult struct {
	Records   []model.PasswordRecord
	Delimiter rune
	Warnings  []string
}

// ReadRecords 读取口令清单 CSV。
//
// 分隔符从表头行探测（逗号/分号/制表符）。空口令、空用户名的行照常
// 保留并进入评分（空口令就该得低分），只有结构性坏行（列数对不上）
// 才跳过并记入 Warnings。整个文件读不出任何记录时返回错误。
func ReadRecords(path string) (*ReadResult, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read source csv: %w", err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("source csv is empty: %s", path)
	}

	delim, header, err := detectHeader(raw)
	if err != nil {
		return nil, err
	}

	userIdx, passIdx, notesIdx := -1, -1, -1
	for i, col := range header {
		switch strings.ToLower(strings.TrimSpace(col)) {
		case columnUsername:
			userIdx = i
		case columnPassword:
			passIdx = i
		case columnNotes:
			notesIdx = i
		}
	}
	if userIdx < 0 || passIdx < 0 {
		return nil, fmt.Errorf("source csv must have %s and %s columns: %s", columnUsername, columnPassword, path)
	}

	reader := csv.NewReader(strings.NewReader(string(raw)))
	reader.Comma = delim
	reader.FieldsPerRecord = -1

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse source csv: %w", err)
	}

	result := &ReadResult{Delimiter: delim}
	need := userIdx
	if passIdx > need {
		need = passIdx
	}
	for line, row := range rows[1:] {
		if len(row) <= need {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("line %d skipped: expected at least %d columns, got %d", line+2, need+1, len(row)))
			continue
		}
		rec := model.PasswordRecord{
			Index:    len(result.Records),
			Username: strings.TrimSpace(row[userIdx]),
			Password: row[passIdx],
		}
		if notesIdx >= 0 && notesIdx < len(row) {
			rec.Notes = strings.TrimSpace(row[notesIdx])
		}
		result.Records = append(result.Records, rec)
	}

	if len(result.Records) == 0 {
		return nil, fmt.Errorf("source csv has no data rows: %s", path)
	}
	return result, nil
}

// detectHeader 用候选分隔符逐个解析首行，取首个能拆出多列的。
// 单列表头无法同时容纳 username 与 password，直接判为格式错误。
func detectHeader(raw []byte) (rune, []string, error) {
	firstLine := string(raw)
	if i := strings.IndexAny(firstLine, "\r\n"); i >= 0 {
		firstLine = firstLine[:i]
	}

	for _, delim := range candidateDelimiters {
		reader := csv.NewReader(strings.NewReader(firstLine))
		reader.Comma = delim
		header, err := reader.Read()
		if err != nil {
			continue
		}
		if len(header) >= 2 {
			return delim, header, nil
		}
	}
	return 0, nil, errors.New("source csv header not recognized: need username and password columns")
}

// Validate 只做结构检查，不评分。供 audit validate 子命令干跑。
func Validate(path string) (*ReadResult, error) {
	return ReadRecords(path)
}

// WriteResultsCSV 把评分结果导出为 CSV。
// maskPasswords 为真时口令列写掩码形态，导出文件可以离开审计机。
func WriteResultsCSV(path string, results []model.ScoreBreakdown, maskPasswords bool, mask func(string) string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create results csv: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := []string{
		"index", "username", "password",
		"entropy_bits", "entropy_score", "dictionary_score", "reuse_score",
		"total_score", "strength_category", "duplicate_count", "user_reuse",
	}
	if err := w.Write(header); err != nil {
		return fmt.Errorf("write results csv header: %w", err)
	}

	for _, r := range results {
		password := r.Password
		if maskPasswords && mask != nil {
			password = mask(password)
		}
		row := []string{
			fmt.Sprintf("%d", r.Index),
			r.Username,
			password,
			fmt.Sprintf("%.3f", r.EntropyBits),
			fmt.Sprintf("%d", r.EntropyScore),
			fmt.Sprintf("%d", r.DictionaryScore),
			fmt.Sprintf("%d", r.ReuseScore),
			fmt.Sprintf("%d", r.TotalScore),
			string(r.Category),
			fmt.Sprintf("%d", r.DuplicateCount),
			fmt.Sprintf("%t", r.UserReuse),
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("write results csv row %d: %w", r.Index, err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush results csv: %w", err)
	}
	return nil
}

// sampleRows 是 audit sample 生成的演示数据，覆盖弱口令、复用与强口令几种形态。
var sampleRows = [][]string{
	{"john", "123456", "legacy account"},
	{"jane", "123456", ""},
	{"admin", "admin", "service account"},
	{"alice", "Summer2023!", ""},
	{"bob", "qwerty123", ""},
	{"carol", "MyStr0ng!P@ssw0rd", ""},
	{"dave", "iloveyou", ""},
	{"erin", "X9#mK2$vL8@qR5!w", "generated"},
}

// WriteSampleCSV 生成演示输入文件，便于试跑整条审计链路。
func WriteSampleCSV(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create sample csv: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{columnUsername, columnPassword, columnNotes}); err != nil {
		return fmt.Errorf("write sample csv header: %w", err)
	}
	for i, row := range sampleRows {
		if err := w.Write(row); err != nil {
			return fmt.Errorf("write sample csv row %d: %w", i+1, err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush sample csv: %w", err)
	}
	return nil
}
