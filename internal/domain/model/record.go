package model

// PasswordRecord 是一条待审计的输入记录。
// 创建后不再修改；notes 仅用于展示，评分逻辑不读取。
type PasswordRecord struct {
	Index    int    `json:"index"`
	Username string `json:"username"`
	Password string `json:"password"`
	Notes    string `json:"notes,omitempty"`
}

// CharacterSetProfile 表示五类固定字符集在口令中是否出现。
// 逐条口令重新计算，不持久化为独立对象（仅随 detail_json 留痕）。
type CharacterSetProfile struct {
	Lowercase bool `json:"lowercase"`
	Uppercase bool `json:"uppercase"`
	Digits    bool `json:"digits"`
	Special   bool `json:"special"`
	Space     bool `json:"space"`
}

// Count 返回出现的字符集数量（0-5）。
func (p CharacterSetProfile) Count() int {
	n := 0
	for _, ok := range []bool{p.Lowercase, p.Uppercase, p.Digits, p.Special, p.Space} {
		if ok {
			n++
		}
	}
	return n
}

// PatternFindings 表示五类弱模式的检测结果。
type PatternFindings struct {
	Sequential bool `json:"sequential"`
	Repeated   bool `json:"repeated"`
	Keyboard   bool `json:"keyboard"`
	Date       bool `json:"date"`
	Phone      bool `json:"phone"`
}

// Count 返回命中的模式种类数量（0-5）。
func (f PatternFindings) Count() int {
	n := 0
	for _, ok := range []bool{f.Sequential, f.Repeated, f.Keyboard, f.Date, f.Phone} {
		if ok {
			n++
		}
	}
	return n
}

// 个人信息命中种类（DictionaryMatch.PersonalInfo 的取值）。
const (
	PersonalInfoUsername = "username"
	PersonalInfoYear     = "year"
	PersonalInfoPhone    = "phone"
)

// DictionaryMatch 表示字典维度的命中明细，用于报告解释扣分来源。
type DictionaryMatch struct {
	CommonPassword     bool     `json:"common_password"`
	Words              []string `json:"words,omitempty"`
	LeetSpeak          bool     `json:"leet_speak"`
	KeyboardPatterns   []string `json:"keyboard_patterns,omitempty"`
	SequentialPatterns []string `json:"sequential_patterns,omitempty"`
	PersonalInfo       []string `json:"personal_info,omitempty"`
}

// StrengthCategory 是总分映射出的强度档位。
type StrengthCategory string

const (
	StrengthVeryWeak   StrengthCategory = "Very Weak"
	StrengthWeak       StrengthCategory = "Weak"
	StrengthMedium     StrengthCategory = "Medium"
	StrengthStrong     StrengthCategory = "Strong"
	StrengthVeryStrong StrengthCategory = "Very Strong"
)

// StrengthCategories 是固定的展示顺序（从弱到强）。
var StrengthCategories = []StrengthCategory{
	StrengthVeryWeak,
	StrengthWeak,
	StrengthMedium,
	StrengthStrong,
	StrengthVeryStrong,
}

// ScoreBreakdown 是单条记录的评分结果，由 Analyzer 一次性生成，之后只读。
// 三个子分各自在组件边界内收敛到各自区间，total 是精确求和（0-100）。
type ScoreBreakdown struct {
	Index           int              `json:"index"`
	Username        string           `json:"username"`
	Password        string           `json:"password"`
	EntropyBits     float64          `json:"entropy_bits"`
	EntropyScore    int              `json:"entropy_score"`
	DictionaryScore int              `json:"dictionary_score"`
	ReuseScore      int              `json:"reuse_score"`
	TotalScore      int              `json:"total_score"`
	Category        StrengthCategory `json:"strength_category"`

	CharacterSets  CharacterSetProfile `json:"character_sets"`
	Patterns       PatternFindings     `json:"patterns"`
	Dictionary     DictionaryMatch     `json:"dictionary"`
	DuplicateCount int                 `json:"duplicate_count"`
	UserReuse      bool                `json:"user_reuse"`
}

// ResultDetail 是落库到 audit_results.detail_json 的明细部分。
type ResultDetail struct {
	CharacterSets CharacterSetProfile `json:"character_sets"`
	Patterns      PatternFindings     `json:"patterns"`
	Dictionary    DictionaryMatch     `json:"dictionary"`
}

// BatchSummary 是整个批次的聚合统计。
// Count 为 0 表示“空批次”：此时 Mean/Min/Max 未计算，调用方不应读取。
type BatchSummary struct {
	Count      int                      `json:"count"`
	MeanScore  float64                  `json:"mean_score"`
	MinScore   int                      `json:"min_score"`
	MaxScore   int                      `json:"max_score"`
	Categories map[StrengthCategory]int `json:"categories"`
}

// Empty 返回该批次是否为空批次。
func (s BatchSummary) Empty() bool {
	return s.Count == 0
}
