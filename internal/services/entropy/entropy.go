package entropy

import (
	"math"
	"regexp"
	"strings"

	"password-auditor/internal/domain/model"
)

// 熵子分（0-40）的计分参数。
// 注意：base 上限取 bits*2 封顶 20 是沿用已久的启发式，
// 配套文档里的算例都依赖这个公式，不要往“理论最大熵”方向改。
const (
	maxBaseScore    = 20.0
	maxLengthBonus  = 10.0
	classBonusEach  = 2
	patternPenalty  = 3
	maxEntropyScore = 40
)

// specialChars 是固定的符号类字符集；非 ASCII 码点不归入任何一类。
const specialChars = "!@#$%^&*()_+-=[]{}|;:,.<>?"

// keyboardRows 按从左到右方向展开的四条键盘行。
var keyboardRows = []string{
	"qwertyuiop",
	"asdfghjkl",
	"zxcvbnm",
	"1234567890",
}

var (
	reDatePatterns = []*regexp.Regexp{
		regexp.MustCompile(`\d{1,2}[/-]\d{1,2}[/-]\d{2,4}`), // MM/DD/YYYY 等
		regexp.MustCompile(`\d{4}[/-]\d{1,2}[/-]\d{1,2}`),   // YYYY/MM/DD
		regexp.MustCompile(`\d{6,8}`),                       // YYYYMMDD / MMDDYYYY
	}
	rePhonePattern = regexp.MustCompile(`\d{3}[-.]?\d{3}[-.]?\d{4}`)
)

// Scorer 计算单条口令的香农熵与 0-40 熵子分。
// 纯函数式组件：无共享可变状态，可跨记录并行使用。
type Scorer struct {
	special map[rune]struct{}
}

func NewScorer() *Scorer {
	special := make(map[rune]struct{}, len(specialChars))
	for _, r := range specialChars {
		special[r] = struct{}{}
	}
	return &Scorer{special: special}
}

// Entropy 按口令自身的经验分布计算香农熵（bit）。
// 空串返回 0。这是“可解释”的逐字符不可预测度，不是猜测熵估计。
func (s *Scorer) Entropy(password string) float64 {
	if password == "" {
		return 0
	}

	runes := []rune(password)
	counts := make(map[rune]int, len(runes))
	for _, r := range runes {
		counts[r]++
	}

	total := float64(len(runes))
	bits := 0.0
	for _, n := range counts {
		p := float64(n) / total
		bits -= p * math.Log2(p)
	}
	return bits
}

// CharacterSets 判定五类固定字符集是否出现。
func (s *Scorer) CharacterSets(password string) model.CharacterSetProfile {
	var p model.CharacterSetProfile
	for _, r := range password {
		switch {
		case r >= 'a' && r <= 'z':
			p.Lowercase = true
		case r >= 'A' && r <= 'Z':
			p.Uppercase = true
		case r >= '0' && r <= '9':
			p.Digits = true
		case r == ' ':
			p.Space = true
		default:
			if _, ok := s.special[r]; ok {
				p.Special = true
			}
		}
	}
	return p
}

// DetectPatterns 检测五类弱模式，每类返回布尔命中。
func (s *Scorer) DetectPatterns(password string) model.PatternFindings {
	return model.PatternFindings{
		Sequential: hasSequentialRun(password),
		Repeated:   hasRepeatedRun(password),
		Keyboard:   hasKeyboardRun(password),
		Date:       hasDatePattern(password),
		Phone:      rePhonePattern.MatchString(password),
	}
}

// Score 返回 (熵 bit, 0-40 子分)。
// 公式：clamp(min(bits*2,20) + 2*字符集数 + min(len*0.5,10) - 3*模式数, 0, 40)，截断取整。
func (s *Scorer) Score(password string) (float64, int) {
	if password == "" {
		return 0, 0
	}

	bits := s.Entropy(password)
	base := math.Min(bits*2, maxBaseScore)
	classBonus := float64(classBonusEach * s.CharacterSets(password).Count())
	lengthBonus := math.Min(float64(len([]rune(password)))*0.5, maxLengthBonus)
	penalty := float64(patternPenalty * s.DetectPatterns(password).Count())

	score := base + classBonus + lengthBonus - penalty
	if score < 0 {
		score = 0
	}
	if score > maxEntropyScore {
		score = maxEntropyScore
	}
	return bits, int(score)
}

// hasSequentialRun 检测码点逐 +1 的三连（字母数字通吃，区分大小写）。
func hasSequentialRun(password string) bool {
	rs := []rune(password)
	for i := 0; i+2 < len(rs); i++ {
		if rs[i+1] == rs[i]+1 && rs[i+2] == rs[i]+2 {
			return true
		}
	}
	return false
}

// hasRepeatedRun 检测任意相邻重复字符。
func hasRepeatedRun(password string) bool {
	rs := []rune(password)
	for i := 0; i+1 < len(rs); i++ {
		if rs[i] == rs[i+1] {
			return true
		}
	}
	return false
}

// hasKeyboardRun 检测键盘行上长度 3 的连续指法（不区分大小写，仅左到右）。
func hasKeyboardRun(password string) bool {
	lower := strings.ToLower(password)
	for _, row := range keyboardRows {
		for i := 0; i+3 <= len(row); i++ {
			if strings.Contains(lower, row[i:i+3]) {
				return true
			}
		}
	}
	return false
}

func hasDatePattern(password string) bool {
	for _, re := range reDatePatterns {
		if re.MatchString(password) {
			return true
		}
	}
	return false
}
