package model

// RuleBundle 是口令字典/模式规则包（YAML）。
// 规则在进程启动时加载一次，之后只读共享，不存在运行期可变全局状态。
type RuleBundle struct {
	Version    string `yaml:"version" json:"version"`
	BundleType string `yaml:"bundle_type" json:"bundle_type"`
	UpdatedAt  string `yaml:"updated_at,omitempty" json:"updated_at,omitempty"`

	// CommonPasswords 参与大小写不敏感的整串匹配（命中一次 -20）。
	CommonPasswords []string `yaml:"common_passwords" json:"common_passwords"`
	// CommonWords 参与大小写不敏感的子串匹配（每个去重后的命中 -3）。
	CommonWords []string `yaml:"common_words" json:"common_words"`
	// KeyboardPatterns 是字典维度的键盘指法串（每个命中 -4），
	// 与熵维度的键盘行检测相互独立。
	KeyboardPatterns []string `yaml:"keyboard_patterns" json:"keyboard_patterns"`
	// LeetMap 是字母 -> 数字的替换表（例如 a -> "4"），用于还原 leet 变体。
	LeetMap map[string]string `yaml:"leet_map" json:"leet_map"`
}
