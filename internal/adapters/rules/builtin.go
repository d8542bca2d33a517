package rules

import "password-auditor/internal/domain/model"

// 内置规则包：规则文件缺席时的兜底数据。
// 与 rules/password_rules.template.yaml 保持同构，内容只在版本升级时变动。

const builtinVersion = "builtin-1.0.0"

// builtinCommonPasswords 是高频弱口令表（整串命中 -20）。
var builtinCommonPasswords = []string{
	"password", "123456", "123456789", "qwerty", "abc123",
	"password123", "admin", "letmein", "welcome", "monkey",
	"1234567890", "password1", "qwerty123", "dragon", "master",
	"hello", "freedom", "whatever", "qazwsx", "trustno1",
	"654321", "jordan23", "harley", "shadow", "superman",
	"michael", "football", "jordan", "hunter", "ranger",
	"daniel", "hannah", "maggie", "jessica", "charlie",
	"michelle", "andrew", "joshua", "jennifer", "amanda",
	"samantha", "ashley", "matthew", "christopher", "anthony",
	"david", "william", "james", "robert", "john",
	"iloveyou", "princess", "sunshine", "123123", "696969",
	"batman", "pokemon", "starwars", "baseball", "soccer",
	"killer", "secret", "summer", "flower",
}

// builtinCommonWords 是常见构词表（子串命中逐词 -3）。
var builtinCommonWords = []string{
	"love", "life", "happy", "dream", "hope", "peace", "faith",
	"angel", "heart", "soul", "spirit", "magic", "power",
	"strong", "brave", "courage", "wisdom", "truth", "beauty",
	"freedom", "justice", "honor", "loyalty", "family", "friend",
	"home", "house", "car", "money", "work", "time", "day",
	"night", "sun", "moon", "star", "sky", "sea", "mountain",
	"river", "tree", "flower", "bird", "cat", "dog", "horse",
	"lion", "tiger", "bear", "wolf", "eagle", "fish", "snake",
}

// builtinKeyboardPatterns 是字典维度的键盘指法串（逐个命中 -4）。
var builtinKeyboardPatterns = []string{
	"qwerty", "asdfgh", "zxcvbn", "qwertyuiop", "asdfghjkl",
	"zxcvbnm", "123456", "654321", "qazwsx", "wsxedc",
	"rfvtgb", "yhnujm", "qwertyuiopasdfghjklzxcvbnm",
}

// builtinLeetMap 是字母 -> 数字替换表，用于还原 leet 变体。
var builtinLeetMap = map[string]string{
	"a": "4",
	"e": "3",
	"i": "1",
	"o": "0",
	"s": "5",
}

// BuiltinBundle 返回内置规则包的一份拷贝（调用方可安全持有）。
func BuiltinBundle() model.RuleBundle {
	leet := make(map[string]string, len(builtinLeetMap))
	for k, v := range builtinLeetMap {
		leet[k] = v
	}
	return model.RuleBundle{
		Version:          builtinVersion,
		BundleType:       bundleTypePasswordRules,
		CommonPasswords:  append([]string(nil), builtinCommonPasswords...),
		CommonWords:      append([]string(nil), builtinCommonWords...),
		KeyboardPatterns: append([]string(nil), builtinKeyboardPatterns...),
		LeetMap:          leet,
	}
}
