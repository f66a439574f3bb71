package tokenizer

import (
	"reflect"
	"strings"
	"testing"
)

func TestTokens_S5(t *testing.T) {
	got := Tokens([]string{"Generic.mg.a24374c791796544"})
	want := []string{"generic"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestTokens_S1(t *testing.T) {
	verdicts := []string{"Win32/Nabucur", "Win32:VirLock", "Win32.Virus.Virlock.a"}
	got := Tokens(verdicts)

	mustContain := []string{"win32", "virlock", "virus"}
	for _, m := range mustContain {
		found := false
		for _, tok := range got {
			if tok == m {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("expected token %q in %v", m, got)
		}
	}
}

func TestTokens_RejectsNull(t *testing.T) {
	got := Tokens([]string{"Win32/Nabucur", ""})
	if len(got) == 0 {
		t.Fatal("expected tokens from non-empty verdict")
	}
}

func TestTokens_LengthBounds(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"xyz", nil},              // too short (3)
		{"wxyz", []string{"wxyz"}}, // exactly 4
		{strings.Repeat("z", 31), nil},
		{strings.Repeat("z", 30), []string{strings.Repeat("z", 30)}},
	}

	for _, c := range cases {
		got := Tokens([]string{c.in})
		if !reflect.DeepEqual(got, c.want) {
			t.Errorf("Tokens(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestTokens_RejectsDecimalAndHex(t *testing.T) {
	for _, in := range []string{"a24374c791796544", "1234567890"} {
		got := Tokens([]string{in})
		if got != nil {
			t.Errorf("Tokens(%q) = %v, want nil", in, got)
		}
	}
}

func TestTokens_NumericInfixShape(t *testing.T) {
	got := Tokens([]string{"w32s27bc0672eldorado"})
	// a single run with more than 2 digits in the middle does not match the
	// leading-alpha/≤2-digit/trailing-alpha shape as one token, so the whole
	// fragment is rejected.
	if got != nil {
		t.Errorf("Tokens(%q) = %v, want nil", "w32s27bc0672eldorado", got)
	}
}

func TestTokenize_S4Fragment(t *testing.T) {
	verdicts := []string{
		"Win32/Nabucur", "Win32:VirLock", "Win32.Virus.Virlock.a",
		"Packed.Win32.Graybird.B@5hgpd5", "W32/S-27bc0672!Eldorado",
		"Win32.VirLock.1", "Generic.mg.a24374c791796544", "",
	}
	got := Tokens(verdicts)
	if len(got) == 0 {
		t.Fatal("expected non-empty token list")
	}
}

func TestUniqueTokens_SortedDistinct(t *testing.T) {
	got := UniqueTokens([]string{"Win32/Nabucur", "Win32:VirLock"})
	want := []string{"nabucur", "virlock", "win32"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestTokens_Idempotent(t *testing.T) {
	verdicts := []string{"Win32/Nabucur", "Win32:VirLock", "Win32.Virus.Virlock.a"}
	first := Tokens(verdicts)
	rejoined := joinWithSpace(first)
	second := Tokens([]string{rejoined})
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("not idempotent: %v != %v", first, second)
	}
}

func joinWithSpace(tokens []string) string {
	out := ""
	for i, t := range tokens {
		if i > 0 {
			out += " "
		}
		out += t
	}
	return out
}
