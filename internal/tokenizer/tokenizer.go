// Package tokenizer turns raw AV engine verdict strings into the normalized
// token vocabulary the rest of sumav operates on.
package tokenizer

import (
	"regexp"
	"sort"
	"strings"
)

const (
	minTokenLen = 4
	maxTokenLen = 30
)

var (
	splitPtn = regexp.MustCompile(`[^0-9a-z]+`)
	tknPtn   = regexp.MustCompile(`^[a-z]+[0-9]{0,2}[a-z]*$`)
	hashPtn  = regexp.MustCompile(`^[0-9a-f]+$`)
	decPtn   = regexp.MustCompile(`^[0-9]+$`)
)

// Tokens extracts the ordered, multiplicity-preserving token sequence from a
// list of raw AV verdict strings. Absent/empty verdicts are skipped. The
// result is deterministic and idempotent: re-tokenizing a string built by
// joining the output with spaces reproduces the same tokens.
func Tokens(verdicts []string) []string {
	var out []string
	for _, verdict := range verdicts {
		if verdict == "" {
			continue
		}

		for _, fragment := range splitPtn.Split(strings.ToLower(verdict), -1) {
			if fragment == "" {
				continue
			}

			tok, ok := extract(fragment)
			if !ok {
				continue
			}

			out = append(out, tok)
		}
	}

	return out
}

// UniqueTokens returns the sorted distinct tokens produced by Tokens.
func UniqueTokens(verdicts []string) []string {
	return uniqueSorted(Tokens(verdicts))
}

// extract validates a single split fragment against the token shape
// (leading alpha run, at most two digits, trailing alpha run), then applies
// the length and decimal/hex rejection rules.
func extract(fragment string) (string, bool) {
	loc := tknPtn.FindString(fragment)
	if loc == "" {
		return "", false
	}

	if len(loc) < minTokenLen || len(loc) > maxTokenLen {
		return "", false
	}

	if decPtn.MatchString(loc) {
		return "", false
	}

	if hashPtn.MatchString(loc) {
		return "", false
	}

	return loc, true
}

func uniqueSorted(tokens []string) []string {
	seen := make(map[string]struct{}, len(tokens))
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}

	sort.Strings(out)
	return out
}
