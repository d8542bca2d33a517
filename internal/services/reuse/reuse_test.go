package reuse

import (
	"testing"

	"password-auditor/internal/domain/model"
)

func records(pairs ...[2]string) []model.PasswordRecord {
	out := make([]model.PasswordRecord, 0, len(pairs))
	for i, p := range pairs {
		out = append(out, model.PasswordRecord{Index: i, Username: p[0], Password: p[1]})
	}
	return out
}

func TestScore_BeforeIngest(t *testing.T) {
	tr := NewTracker()
	if _, _, _, err := tr.Score(0); err == nil {
		t.Fatalf("expected error before ingest")
	}
}

func TestScore_UniquePasswords(t *testing.T) {
	tr := NewTracker()
	tr.Ingest(records([2]string{"a", "one"}, [2]string{"b", "two"}, [2]string{"c", "three"}))

	for i := 0; i < 3; i++ {
		score, dup, userReuse, err := tr.Score(i)
		if err != nil {
			t.Fatalf("score %d: %v", i, err)
		}
		if score != 30 || dup != 0 || userReuse {
			t.Fatalf("record %d = (%d,%d,%v), want (30,0,false)", i, score, dup, userReuse)
		}
	}
}

func TestScore_DuplicatesAcrossUsers(t *testing.T) {
	tr := NewTracker()
	tr.Ingest(records(
		[2]string{"john", "123456"},
		[2]string{"jane", "123456"},
		[2]string{"erin", "unique"},
	))

	score, dup, userReuse, err := tr.Score(0)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if dup != 1 || userReuse {
		t.Fatalf("got dup=%d userReuse=%v, want dup=1 userReuse=false", dup, userReuse)
	}
	if score != 25 {
		t.Fatalf("score = %d, want 25", score)
	}
}

func TestScore_SameUserReuse(t *testing.T) {
	tr := NewTracker()
	tr.Ingest(records(
		[2]string{"john", "hunter2"},
		[2]string{"john", "hunter2"},
	))

	score, dup, userReuse, err := tr.Score(0)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if dup != 1 || !userReuse {
		t.Fatalf("got dup=%d userReuse=%v, want dup=1 userReuse=true", dup, userReuse)
	}
	// 30 - 5*1 - 10。
	if score != 15 {
		t.Fatalf("score = %d, want 15", score)
	}
}

func TestScore_DuplicatePenaltyCapped(t *testing.T) {
	tr := NewTracker()
	tr.Ingest(records(
		[2]string{"u1", "same"},
		[2]string{"u2", "same"},
		[2]string{"u3", "same"},
		[2]string{"u4", "same"},
		[2]string{"u5", "same"},
		[2]string{"u6", "same"},
	))

	score, dup, _, err := tr.Score(0)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if dup != 5 {
		t.Fatalf("dup = %d, want 5", dup)
	}
	// 重复计数封顶 3：30 - 15。
	if score != 15 {
		t.Fatalf("score = %d, want 15", score)
	}
}

func TestScore_OrderInvariant(t *testing.T) {
	a := records([2]string{"x", "dup"}, [2]string{"y", "dup"}, [2]string{"z", "solo"})
	b := records([2]string{"z", "solo"}, [2]string{"y", "dup"}, [2]string{"x", "dup"})

	ta := NewTracker()
	ta.Ingest(a)
	tb := NewTracker()
	tb.Ingest(b)

	// 同一口令无论出现在批次的哪个位置，复用子分一致。
	sa, _, _, _ := ta.Score(0)
	sb, _, _, _ := tb.Score(2)
	if sa != sb {
		t.Fatalf("order changed score: %d vs %d", sa, sb)
	}
}

func TestSummarize(t *testing.T) {
	tr := NewTracker()
	tr.Ingest(records(
		[2]string{"john", "dup"},
		[2]string{"john", "dup"},
		[2]string{"jane", "solo"},
	))

	st := tr.Summarize()
	if st.TotalRecords != 3 || st.UniqueFingerprints != 2 {
		t.Fatalf("unexpected stats: %+v", st)
	}
	if st.DuplicatedRecords != 2 || st.UsersWithReuse != 1 {
		t.Fatalf("unexpected reuse stats: %+v", st)
	}
}

func TestSimilarGroups_Gated(t *testing.T) {
	tr := NewTracker()

	big := make([]model.PasswordRecord, DefaultSimilarityLimit+1)
	for i := range big {
		big[i] = model.PasswordRecord{Index: i, Username: "u", Password: "p"}
	}
	tr.Ingest(big)

	if _, err := tr.SimilarGroups(0, 0); err == nil {
		t.Fatalf("expected refusal above the default limit")
	}
	// 调用方显式放开限制后允许执行。
	if _, err := tr.SimilarGroups(0, len(big)); err != nil {
		t.Fatalf("explicit limit should allow the batch: %v", err)
	}
}

func TestSimilarGroups_Jaccard(t *testing.T) {
	tr := NewTracker()
	tr.Ingest(records(
		[2]string{"a", "summer2023"},
		[2]string{"b", "summer2023!"},
		[2]string{"c", "completely-different"},
	))

	groups, err := tr.SimilarGroups(0.8, 0)
	if err != nil {
		t.Fatalf("similar groups: %v", err)
	}
	if len(groups) != 1 {
		t.Fatalf("groups = %v, want one group", groups)
	}
	if len(groups[0]) != 2 || groups[0][0] != 0 || groups[0][1] != 1 {
		t.Fatalf("group = %v, want [0 1]", groups[0])
	}
}
