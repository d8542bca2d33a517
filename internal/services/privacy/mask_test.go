package privacy

import (
	"testing"

	"password-auditor/internal/domain/model"
)

func TestMaskPassword(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"a", "**"},
		{"ab", "**"},
		{"abc", "a*c"},
		{"secret", "s****t"},
		{"密码口令", "密**令"},
	}
	for _, c := range cases {
		if got := MaskPassword(c.in); got != c.want {
			t.Fatalf("MaskPassword(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestMaskBreakdownsForReport(t *testing.T) {
	in := []model.ScoreBreakdown{
		{Index: 0, Username: "john", Password: "secret", TotalScore: 12},
		{Index: 1, Username: "jane", Password: "ab", TotalScore: 5},
	}

	out := MaskBreakdownsForReport(in)
	if len(out) != 2 {
		t.Fatalf("out = %d rows, want 2", len(out))
	}
	if out[0].Password != "s****t" || out[1].Password != "**" {
		t.Fatalf("masked = %q, %q", out[0].Password, out[1].Password)
	}
	// 入参不被原地修改。
	if in[0].Password != "secret" {
		t.Fatalf("input mutated: %q", in[0].Password)
	}
	if out[0].Username != "john" || out[0].TotalScore != 12 {
		t.Fatalf("non-password fields changed: %+v", out[0])
	}

	if got := MaskBreakdownsForReport(nil); got != nil {
		t.Fatalf("empty input = %v, want nil", got)
	}
}

func TestMaskSourcePath(t *testing.T) {
	if got := MaskSourcePath("/home/auditor/inputs/passwords.csv"); got != "passwords.csv" {
		t.Fatalf("MaskSourcePath = %q", got)
	}
	if got := MaskSourcePath("  "); got != "" {
		t.Fatalf("blank path = %q, want empty", got)
	}
	if got := MaskSourcePath("plain.csv"); got != "plain.csv" {
		t.Fatalf("relative path = %q", got)
	}
}
