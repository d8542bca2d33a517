package reuse

import (
	"errors"
	"fmt"
	"strings"

	"password-auditor/internal/domain/model"
	"password-auditor/internal/platform/hash"
)

// 复用子分（0-30）的扣分参数。
const (
	maxReuseScore        = 30
	duplicatePenaltyEach = 5
	duplicatePenaltyCap  = 3 // 重复计数封顶，最多扣 15
	userReusePenalty     = 10
)

// DefaultSimilarityThreshold 是近似重复判定的 Jaccard 阈值。
const DefaultSimilarityThreshold = 0.8

// DefaultSimilarityLimit 是近似重复检测默认允许的最大批次规模。
// 该检测是 O(n²) 的，超限时必须显式放开（见 SimilarGroups 的 maxRecords 参数）。
const DefaultSimilarityLimit = 1000

// Tracker 独占持有整个批次的指纹索引。
// 两阶段使用：先 Ingest 观察全量记录（单写者构建索引），
// 之后索引只读，Score 可任意顺序、可并行地查询。
type Tracker struct {
	fingerprints []string
	usernames    []string
	passwords    []string
	index        map[string][]int // 指纹 -> 记录下标列表
	ingested     bool
}

func NewTracker() *Tracker {
	return &Tracker{index: map[string][]int{}}
}

// Ingest 单趟吞入整个批次并构建指纹索引。
// 必须先于任何 Score 调用完成：重复计数要反映全批次，而不是“至今为止”。
func (t *Tracker) Ingest(records []model.PasswordRecord) {
	t.fingerprints = make([]string, len(records))
	t.usernames = make([]string, len(records))
	t.passwords = make([]string, len(records))
	t.index = make(map[string][]int, len(records))

	for i, rec := range records {
		fp := hash.Fingerprint(rec.Password)
		t.fingerprints[i] = fp
		t.usernames[i] = rec.Username
		t.passwords[i] = rec.Password
		t.index[fp] = append(t.index[fp], i)
	}
	t.ingested = true
}

// Score 返回第 i 条记录的复用子分、重复计数（不含自身）与同用户复用标记。
// 仅在 Ingest 完成后有效。
func (t *Tracker) Score(i int) (score, duplicateCount int, userReuse bool, err error) {
	if !t.ingested {
		return 0, 0, false, errors.New("reuse tracker: batch not ingested")
	}
	if i < 0 || i >= len(t.fingerprints) {
		return 0, 0, false, fmt.Errorf("reuse tracker: record index out of range: %d", i)
	}

	peers := t.index[t.fingerprints[i]]
	duplicateCount = len(peers) - 1

	for _, j := range peers {
		if j != i && t.usernames[j] != "" && t.usernames[j] == t.usernames[i] {
			userReuse = true
			break
		}
	}

	score = maxReuseScore
	capped := duplicateCount
	if capped > duplicatePenaltyCap {
		capped = duplicatePenaltyCap
	}
	score -= duplicatePenaltyEach * capped
	if userReuse {
		score -= userReusePenalty
	}
	if score < 0 {
		score = 0
	}
	return score, duplicateCount, userReuse, nil
}

// Stats 汇总复用情况，供批次级报告使用。
type Stats struct {
	TotalRecords       int `json:"total_records"`
	UniqueFingerprints int `json:"unique_fingerprints"`
	DuplicatedRecords  int `json:"duplicated_records"`
	UsersWithReuse     int `json:"users_with_reuse"`
}

// Summarize 在索引只读阶段计算复用统计。
func (t *Tracker) Summarize() Stats {
	st := Stats{
		TotalRecords:       len(t.fingerprints),
		UniqueFingerprints: len(t.index),
	}
	usersSeen := map[string]struct{}{}
	for _, peers := range t.index {
		if len(peers) <= 1 {
			continue
		}
		st.DuplicatedRecords += len(peers)
		perUser := map[string]int{}
		for _, j := range peers {
			if t.usernames[j] != "" {
				perUser[t.usernames[j]]++
			}
		}
		for u, n := range perUser {
			if n > 1 {
				usersSeen[u] = struct{}{}
			}
		}
	}
	st.UsersWithReuse = len(usersSeen)
	return st
}

// SimilarGroups 做近似重复（Jaccard 字符集相似度）分组。
//
// 显式门控的可选操作：O(n²) 两两比较，默认不在主评分管线中调用。
// maxRecords <= 0 时取 DefaultSimilarityLimit；批次超限直接拒绝，
// 调用方想强行跑大批次必须显式传入更大的 maxRecords。
func (t *Tracker) SimilarGroups(threshold float64, maxRecords int) ([][]int, error) {
	if !t.ingested {
		return nil, errors.New("reuse tracker: batch not ingested")
	}
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultSimilarityThreshold
	}
	if maxRecords <= 0 {
		maxRecords = DefaultSimilarityLimit
	}
	if len(t.passwords) > maxRecords {
		return nil, fmt.Errorf("reuse tracker: similarity detection refused for %d records (limit %d)", len(t.passwords), maxRecords)
	}

	sets := make([]map[rune]struct{}, len(t.passwords))
	for i, p := range t.passwords {
		sets[i] = runeSet(p)
	}

	assigned := make([]bool, len(t.passwords))
	var groups [][]int
	for i := range t.passwords {
		if assigned[i] || t.passwords[i] == "" {
			continue
		}
		group := []int{i}
		for j := i + 1; j < len(t.passwords); j++ {
			if assigned[j] || t.passwords[j] == "" {
				continue
			}
			if jaccard(sets[i], sets[j]) >= threshold {
				group = append(group, j)
				assigned[j] = true
			}
		}
		assigned[i] = true
		if len(group) > 1 {
			groups = append(groups, group)
		}
	}
	return groups, nil
}

func runeSet(s string) map[rune]struct{} {
	set := map[rune]struct{}{}
	for _, r := range strings.ToLower(s) {
		set[r] = struct{}{}
	}
	return set
}

func jaccard(a, b map[rune]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for r := range a {
		if _, ok := b[r]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}
