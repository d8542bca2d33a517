package rules

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoad_BuiltinFallback(t *testing.T) {
	loaded, err := NewLoader("", "").Load(context.Background())
	if err != nil {
		t.Fatalf("load builtin: %v", err)
	}
	if loaded.BundleSource != "builtin" {
		t.Fatalf("source = %q, want builtin", loaded.BundleSource)
	}
	if loaded.BundleSHA256 == "" {
		t.Fatalf("builtin bundle digest is empty")
	}
	if len(loaded.Bundle.CommonPasswords) == 0 || len(loaded.Bundle.CommonWords) == 0 {
		t.Fatalf("builtin bundle incomplete: %+v", loaded.Bundle)
	}
	if len(loaded.Warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", loaded.Warnings)
	}
}

func TestLoad_BuiltinDigestIsStable(t *testing.T) {
	a, err := NewLoader("", "").Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	b, err := NewLoader("", "").Load(context.Background())
	if err != nil {
		t.Fatalf("load again: %v", err)
	}
	if a.BundleSHA256 != b.BundleSHA256 {
		t.Fatalf("builtin digest not stable: %s vs %s", a.BundleSHA256, b.BundleSHA256)
	}
}

func TestLoad_RuleFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	content := `version: "test-1"
bundle_type: "password_rules"
common_passwords:
  - hunter2
common_words:
  - hunt
keyboard_patterns:
  - qwerty
leet_map:
  a: "4"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write rule file: %v", err)
	}

	loaded, err := NewLoader(path, "").Load(context.Background())
	if err != nil {
		t.Fatalf("load rule file: %v", err)
	}
	if loaded.BundleSource != path {
		t.Fatalf("source = %q, want %q", loaded.BundleSource, path)
	}
	if loaded.Bundle.Version != "test-1" {
		t.Fatalf("version = %q, want test-1", loaded.Bundle.Version)
	}
	if len(loaded.Bundle.CommonPasswords) != 1 || loaded.Bundle.CommonPasswords[0] != "hunter2" {
		t.Fatalf("common_passwords = %v", loaded.Bundle.CommonPasswords)
	}
}

func TestLoad_InvalidBundle(t *testing.T) {
	dir := t.TempDir()

	cases := []struct {
		name    string
		content string
	}{
		{"wrong_type", "version: \"v1\"\nbundle_type: \"host_rules\"\ncommon_passwords: [x]\ncommon_words: [y]\n"},
		{"missing_version", "bundle_type: \"password_rules\"\ncommon_passwords: [x]\ncommon_words: [y]\n"},
		{"empty_passwords", "version: \"v1\"\nbundle_type: \"password_rules\"\ncommon_words: [y]\n"},
		{"bad_leet", "version: \"v1\"\nbundle_type: \"password_rules\"\ncommon_passwords: [x]\ncommon_words: [y]\nleet_map:\n  ab: \"4\"\n"},
	}
	for _, c := range cases {
		path := filepath.Join(dir, c.name+".yaml")
		if err := os.WriteFile(path, []byte(c.content), 0o644); err != nil {
			t.Fatalf("write %s: %v", c.name, err)
		}
		if _, err := NewLoader(path, "").Load(context.Background()); err == nil {
			t.Fatalf("%s: expected validation error", c.name)
		}
	}
}

func TestLoad_MissingRuleFileIsFatal(t *testing.T) {
	if _, err := NewLoader(filepath.Join(t.TempDir(), "absent.yaml"), "").Load(context.Background()); err == nil {
		t.Fatalf("expected error for missing rule file")
	}
}

func TestLoad_MissingDictionaryDegrades(t *testing.T) {
	loaded, err := NewLoader("", filepath.Join(t.TempDir(), "absent.txt")).Load(context.Background())
	if err != nil {
		t.Fatalf("missing dictionary must not be fatal: %v", err)
	}
	if len(loaded.Warnings) == 0 {
		t.Fatalf("expected a warning for missing dictionary")
	}
	if !strings.Contains(loaded.Warnings[0], "custom dictionary unavailable") {
		t.Fatalf("warning = %q", loaded.Warnings[0])
	}
	if len(loaded.CustomWords) != 0 {
		t.Fatalf("custom words = %v, want empty", loaded.CustomWords)
	}
}

func TestLoad_CustomDictionaryTokens(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dict.txt")
	content := "Zephyr\n\n  Quartz  \nzephyr\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write dictionary: %v", err)
	}

	loaded, err := NewLoader("", path).Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	// 词条小写去重，空行忽略。
	if len(loaded.CustomWords) != 2 {
		t.Fatalf("custom words = %v, want 2 entries", loaded.CustomWords)
	}
	for _, token := range []string{"zephyr", "quartz"} {
		if _, ok := loaded.CustomWords[token]; !ok {
			t.Fatalf("missing token %q in %v", token, loaded.CustomWords)
		}
	}
}

func TestLoad_EmptyDictionaryWarns(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.txt")
	if err := os.WriteFile(path, []byte("\n\n"), 0o644); err != nil {
		t.Fatalf("write dictionary: %v", err)
	}

	loaded, err := NewLoader("", path).Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(loaded.Warnings) == 0 {
		t.Fatalf("expected empty-dictionary warning")
	}
}
