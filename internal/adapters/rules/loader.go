package rules

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"password-auditor/internal/domain/model"
	"password-auditor/internal/platform/hash"

	"gopkg.in/yaml.v3"
)

const bundleTypePasswordRules = "password_rules"

// Loader 负责从磁盘读取并校验规则包与可选的自定义字典。
type Loader struct {
	// RuleFile 为空时使用内置规则包。
	RuleFile string
	// DictionaryFile 是可选的自定义字典（逐行一个词条）。
	// 读取失败不致命：降级为仅内置规则，并通过 Warnings 上抛。
	DictionaryFile string
}

// LoadedRules 是加载后的规则数据与其摘要，评分器据此构造，不再回读磁盘。
type LoadedRules struct {
	Bundle       model.RuleBundle
	BundleSHA256 string
	BundleSource string // "builtin" 或规则文件路径

	// CustomWords 是自定义字典词条（小写去重）。
	// 同时参与整串弱口令匹配与子串词匹配。
	CustomWords map[string]struct{}

	Warnings []string
}

func NewLoader(ruleFile, dictionaryFile string) *Loader {
	return &Loader{RuleFile: ruleFile, DictionaryFile: dictionaryFile}
}

// Load 加载规则包并执行基础结构校验，随后尽力加载自定义字典。
// 规则包本身非法会返回错误；自定义字典的问题只产生 Warnings。
func (l *Loader) Load(ctx context.Context) (*LoadedRules, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	loaded := &LoadedRules{
		CustomWords: map[string]struct{}{},
	}

	if strings.TrimSpace(l.RuleFile) == "" {
		loaded.Bundle = BuiltinBundle()
		loaded.BundleSHA256 = bundleDigest(loaded.Bundle)
		loaded.BundleSource = "builtin"
	} else {
		raw, err := os.ReadFile(l.RuleFile)
		if err != nil {
			return nil, fmt.Errorf("read rule bundle: %w", err)
		}
		var bundle model.RuleBundle
		if err := yaml.Unmarshal(raw, &bundle); err != nil {
			return nil, fmt.Errorf("parse rule bundle: %w", err)
		}
		if err := validateBundle(bundle); err != nil {
			return nil, err
		}
		sum := sha256.Sum256(raw)
		loaded.Bundle = bundle
		loaded.BundleSHA256 = hex.EncodeToString(sum[:])
		loaded.BundleSource = l.RuleFile
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.loadCustomDictionary(loaded)
	return loaded, nil
}

// loadCustomDictionary 读取自定义字典；任何失败都降级为警告。
func (l *Loader) loadCustomDictionary(loaded *LoadedRules) {
	path := strings.TrimSpace(l.DictionaryFile)
	if path == "" {
		return
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		loaded.Warnings = append(loaded.Warnings,
			fmt.Sprintf("custom dictionary unavailable, falling back to builtin lists: %v", err))
		return
	}

	sc := bufio.NewScanner(bytes.NewReader(raw))
	// 兜底：个别字典单行可能很长。
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		token := strings.ToLower(strings.TrimSpace(sc.Text()))
		if token == "" {
			continue
		}
		loaded.CustomWords[token] = struct{}{}
	}
	if err := sc.Err(); err != nil {
		loaded.Warnings = append(loaded.Warnings,
			fmt.Sprintf("custom dictionary partially read: %v", err))
	}
	if len(loaded.CustomWords) == 0 {
		loaded.Warnings = append(loaded.Warnings,
			fmt.Sprintf("custom dictionary is empty: %s", path))
	}
}

// validateBundle 检查规则包的完整性。
func validateBundle(bundle model.RuleBundle) error {
	if strings.TrimSpace(bundle.Version) == "" {
		return errors.New("rule bundle: version is required")
	}
	if strings.TrimSpace(bundle.BundleType) != bundleTypePasswordRules {
		return fmt.Errorf("rule bundle: bundle_type must be %q", bundleTypePasswordRules)
	}
	if len(bundle.CommonPasswords) == 0 {
		return errors.New("rule bundle: common_passwords is empty")
	}
	if len(bundle.CommonWords) == 0 {
		return errors.New("rule bundle: common_words is empty")
	}
	for _, p := range bundle.KeyboardPatterns {
		if strings.TrimSpace(p) == "" {
			return errors.New("rule bundle: keyboard_patterns contains an empty entry")
		}
	}
	for letter, digit := range bundle.LeetMap {
		if len([]rune(letter)) != 1 || len([]rune(digit)) != 1 {
			return fmt.Errorf("rule bundle: leet_map entry must map one rune to one rune: %q -> %q", letter, digit)
		}
	}
	return nil
}

// bundleDigest 为内置规则包计算确定性摘要（文件形态时直接取文件哈希）。
func bundleDigest(bundle model.RuleBundle) string {
	leetKeys := make([]string, 0, len(bundle.LeetMap))
	for k := range bundle.LeetMap {
		leetKeys = append(leetKeys, k)
	}
	sort.Strings(leetKeys)
	leetPairs := make([]string, 0, len(leetKeys))
	for _, k := range leetKeys {
		leetPairs = append(leetPairs, k+"="+bundle.LeetMap[k])
	}

	return hash.Text(
		bundle.Version,
		bundle.BundleType,
		strings.Join(bundle.CommonPasswords, ","),
		strings.Join(bundle.CommonWords, ","),
		strings.Join(bundle.KeyboardPatterns, ","),
		strings.Join(leetPairs, ","),
	)
}
