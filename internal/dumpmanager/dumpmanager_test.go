package dumpmanager

import "testing"

func TestFormatYYMMDD(t *testing.T) {
	// 2021-01-15T00:00:00Z
	got := formatYYMMDD(1610668800)
	if got != "210115" {
		t.Errorf("formatYYMMDD = %q, want 210115", got)
	}
}

func TestHasPrefix(t *testing.T) {
	cases := []struct {
		s, prefix string
		want      bool
	}{
		{"sumav_graph_210101-210201", "sumav", true},
		{"postgres", "sumav", false},
		{"sumav", "sumav", true},
		{"su", "sumav", false},
	}
	for _, c := range cases {
		if got := hasPrefix(c.s, c.prefix); got != c.want {
			t.Errorf("hasPrefix(%q, %q) = %v, want %v", c.s, c.prefix, got, c.want)
		}
	}
}

func TestSuffix6(t *testing.T) {
	if got := suffix6("sumav_210101-210201"); got != "210201" {
		t.Errorf("suffix6 = %q, want 210201", got)
	}
	if got := suffix6("ab"); got != "ab" {
		t.Errorf("suffix6 of short string should return itself, got %q", got)
	}
}

func TestDumpedNamePattern(t *testing.T) {
	if !dumpedNamePtn.MatchString("sumav_210101-210201") {
		t.Errorf("expected already-dumped name to match")
	}
	if dumpedNamePtn.MatchString("sumav") {
		t.Errorf("expected plain database name not to match")
	}
}
