package dictionary

import (
	"regexp"
	"sort"
	"strings"
	"unicode"

	"password-auditor/internal/adapters/rules"
	"password-auditor/internal/domain/model"
)

// 字典子分（0-30）的扣分参数。起点 30，逐项扣减，下限 0。
const (
	maxDictionaryScore      = 30
	commonPasswordPenalty   = 20
	wordPenalty             = 3
	leetPenalty             = 5
	keyboardPenalty         = 4
	sequentialPenalty       = 3
	personalInfoPenalty     = 2
	minCustomSubstringToken = 3
)

var (
	reYearToken = regexp.MustCompile(`\b(19|20)\d{2}\b`)
	rePhone     = regexp.MustCompile(`\d{3}[-.]?\d{3}[-.]?\d{4}`)
)

// Checker 基于已加载的规则数据对口令做字典维度评估。
// 构造后只读，可跨记录并行使用。
type Checker struct {
	commonPasswords map[string]struct{}
	words           []string
	wordSet         map[string]struct{}
	keyboard        []string
	leet            map[rune]rune // 数字 -> 字母（还原方向）
}

// NewChecker 用规则包 + 自定义字典构造检查器。
// 自定义字典词条同时参与整串弱口令匹配与子串词匹配，
// 这样 "zephyr" 入典后 "zephyr123" 也会被扣分，而不仅是完全相同的口令。
func NewChecker(loaded *rules.LoadedRules) *Checker {
	c := &Checker{
		commonPasswords: make(map[string]struct{}),
		wordSet:         make(map[string]struct{}),
		leet:            make(map[rune]rune),
	}

	for _, p := range loaded.Bundle.CommonPasswords {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			c.commonPasswords[p] = struct{}{}
		}
	}
	for _, w := range loaded.Bundle.CommonWords {
		w = strings.ToLower(strings.TrimSpace(w))
		if w != "" {
			c.wordSet[w] = struct{}{}
		}
	}
	for token := range loaded.CustomWords {
		c.commonPasswords[token] = struct{}{}
		if len([]rune(token)) >= minCustomSubstringToken {
			c.wordSet[token] = struct{}{}
		}
	}

	c.words = make([]string, 0, len(c.wordSet))
	for w := range c.wordSet {
		c.words = append(c.words, w)
	}
	sort.Strings(c.words)

	for _, p := range loaded.Bundle.KeyboardPatterns {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			c.keyboard = append(c.keyboard, p)
		}
	}

	for letter, digit := range loaded.Bundle.LeetMap {
		lr := []rune(letter)
		dr := []rune(digit)
		if len(lr) == 1 && len(dr) == 1 {
			c.leet[dr[0]] = unicode.ToLower(lr[0])
		}
	}

	return c
}

// Score 计算字典子分与命中明细。username 为空时跳过用户名相关检查。
func (c *Checker) Score(password, username string) (int, model.DictionaryMatch) {
	score := maxDictionaryScore
	match := model.DictionaryMatch{}
	lower := strings.ToLower(password)

	// 弱口令整串命中：不论与后续检查如何重叠，至多扣一次。
	if _, ok := c.commonPasswords[lower]; ok {
		score -= commonPasswordPenalty
		match.CommonPassword = true
	}

	match.Words = c.matchWords(lower)
	score -= wordPenalty * len(match.Words)

	if c.isLeetVariant(lower) {
		score -= leetPenalty
		match.LeetSpeak = true
	}

	match.KeyboardPatterns = c.matchKeyboard(lower)
	score -= keyboardPenalty * len(match.KeyboardPatterns)

	match.SequentialPatterns = sequentialRuns(password)
	score -= sequentialPenalty * len(match.SequentialPatterns)

	match.PersonalInfo = personalInfoKinds(password, lower, username)
	score -= personalInfoPenalty * len(match.PersonalInfo)

	if score < 0 {
		score = 0
	}
	return score, match
}

// matchWords 返回去重后的词表子串命中（按字典序，结果确定）。
func (c *Checker) matchWords(lower string) []string {
	var found []string
	for _, w := range c.words {
		if strings.Contains(lower, w) {
			found = append(found, w)
		}
	}
	return found
}

// isLeetVariant 判定口令是否是常见词的 leet 变体：
// 把映射表中的数字还原为字母后，恰好命中弱口令表或词表，且至少发生过一次替换。
// 只要求“还原后命中”而不是“包含数字就算”，否则 MyStr0ng!P@ssw0rd 这类
// 正常混排口令会被误伤。
func (c *Checker) isLeetVariant(lower string) bool {
	if len(c.leet) == 0 {
		return false
	}

	substituted := false
	hasLetter := false
	normalized := strings.Map(func(r rune) rune {
		if out, ok := c.leet[r]; ok {
			substituted = true
			return out
		}
		if r >= 'a' && r <= 'z' {
			hasLetter = true
		}
		return r
	}, lower)

	if !substituted || !hasLetter {
		return false
	}
	if _, ok := c.commonPasswords[normalized]; ok {
		return true
	}
	_, ok := c.wordSet[normalized]
	return ok
}

// matchKeyboard 返回命中的键盘指法串（与熵维度的键盘行检测独立计分）。
func (c *Checker) matchKeyboard(lower string) []string {
	var found []string
	for _, p := range c.keyboard {
		if strings.Contains(lower, p) {
			found = append(found, p)
		}
	}
	return found
}

// sequentialRuns 收集所有长度 3 的递增连（纯数字或纯字母，字母不区分大小写）。
func sequentialRuns(password string) []string {
	rs := []rune(password)
	var runs []string
	for i := 0; i+2 < len(rs); i++ {
		a, b, c := rs[i], rs[i+1], rs[i+2]
		switch {
		case isDigitRun(a, b, c):
			runs = append(runs, string(rs[i:i+3]))
		case isLetterRun(a, b, c):
			runs = append(runs, string(rs[i:i+3]))
		}
	}
	return runs
}

func isDigitRun(a, b, c rune) bool {
	return a >= '0' && c <= '9' && b == a+1 && c == a+2
}

func isLetterRun(a, b, c rune) bool {
	if !unicode.IsLetter(a) || !unicode.IsLetter(b) || !unicode.IsLetter(c) {
		return false
	}
	la, lb, lc := unicode.ToLower(a), unicode.ToLower(b), unicode.ToLower(c)
	return lb == la+1 && lc == la+2
}

// personalInfoKinds 返回命中的个人信息种类（username/year/phone），逐类至多一次。
func personalInfoKinds(password, lower, username string) []string {
	var kinds []string
	if u := strings.ToLower(strings.TrimSpace(username)); u != "" && strings.Contains(lower, u) {
		kinds = append(kinds, model.PersonalInfoUsername)
	}
	if reYearToken.MatchString(password) {
		kinds = append(kinds, model.PersonalInfoYear)
	}
	if rePhone.MatchString(password) {
		kinds = append(kinds, model.PersonalInfoPhone)
	}
	return kinds
}
