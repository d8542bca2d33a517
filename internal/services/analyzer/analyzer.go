package analyzer

import (
	"context"
	"fmt"

	"password-auditor/internal/adapters/rules"
	"password-auditor/internal/domain/model"
	"password-auditor/internal/services/dictionary"
	"password-auditor/internal/services/entropy"
	"password-auditor/internal/services/reuse"
)

// Analyzer 把熵、字典、复用三个维度组合成单条记录的完整评分。
// 规则数据在构造时注入，之后整个批次评分期间不变。
type Analyzer struct {
	entropy    *entropy.Scorer
	dictionary *dictionary.Checker
}

func New(loaded *rules.LoadedRules) *Analyzer {
	return &Analyzer{
		entropy:    entropy.NewScorer(),
		dictionary: dictionary.NewChecker(loaded),
	}
}

// Categorize 把 0-100 总分映射为强度档位。边界归属固定：
// [0,19] / [20,39] / [40,59] / [60,79] / [80,100]。
func Categorize(total int) model.StrengthCategory {
	switch {
	case total <= 19:
		return model.StrengthVeryWeak
	case total <= 39:
		return model.StrengthWeak
	case total <= 59:
		return model.StrengthMedium
	case total <= 79:
		return model.StrengthStrong
	default:
		return model.StrengthVeryStrong
	}
}

// AnalyzeBatch 对整个批次评分，结果与输入同序同长。
// 两阶段：先把全批次吞入复用索引，再逐条评分。
// 空批次返回空切片，不报错（空批次是合法状态，由调用方在汇总中体现）。
func (a *Analyzer) AnalyzeBatch(ctx context.Context, records []model.PasswordRecord) ([]model.ScoreBreakdown, error) {
	tracker := reuse.NewTracker()
	tracker.Ingest(records)

	results := make([]model.ScoreBreakdown, 0, len(records))
	for i, rec := range records {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		bits, entropyScore := a.entropy.Score(rec.Password)
		dictScore, match := a.dictionary.Score(rec.Password, rec.Username)
		reuseScore, dupCount, userReuse, err := tracker.Score(i)
		if err != nil {
			return nil, fmt.Errorf("score record %d: %w", rec.Index, err)
		}

		total := entropyScore + dictScore + reuseScore
		results = append(results, model.ScoreBreakdown{
			Index:           rec.Index,
			Username:        rec.Username,
			Password:        rec.Password,
			EntropyBits:     bits,
			EntropyScore:    entropyScore,
			DictionaryScore: dictScore,
			ReuseScore:      reuseScore,
			TotalScore:      total,
			Category:        Categorize(total),
			CharacterSets:   a.entropy.CharacterSets(rec.Password),
			Patterns:        a.entropy.DetectPatterns(rec.Password),
			Dictionary:      match,
			DuplicateCount:  dupCount,
			UserReuse:       userReuse,
		})
	}
	return results, nil
}

// Summarize 计算批次聚合统计。空批次返回 Count==0，Mean/Min/Max 保持零值。
func Summarize(results []model.ScoreBreakdown) model.BatchSummary {
	summary := model.BatchSummary{
		Count:      len(results),
		Categories: map[model.StrengthCategory]int{},
	}
	if summary.Count == 0 {
		return summary
	}

	sum := 0
	summary.MinScore = results[0].TotalScore
	summary.MaxScore = results[0].TotalScore
	for _, r := range results {
		sum += r.TotalScore
		if r.TotalScore < summary.MinScore {
			summary.MinScore = r.TotalScore
		}
		if r.TotalScore > summary.MaxScore {
			summary.MaxScore = r.TotalScore
		}
		summary.Categories[r.Category]++
	}
	summary.MeanScore = float64(sum) / float64(summary.Count)
	return summary
}
