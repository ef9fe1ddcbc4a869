package quiz

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var (
	leadingDigitsRe = regexp.MustCompile(`^\d+\s*`)
	nonAlnumRe      = regexp.MustCompile(`[^0-9a-z\s]`)
	whitespaceRe    = regexp.MustCompile(`\s+`)

	romanMarkerRe = regexp.MustCompile(`(?:^|\n)\s*(I{1,3}|IV|V)\s*[.)]\s*`)
	romanTokenRe  = regexp.MustCompile(`(?i)\b(IV|III|II|I|V)\b`)
)

// NormalizeText canonicalizes text for loose matching across casing,
// diacritics and numbering prefixes. Mirrors the normalization used when
// signatures were first written, so stored signatures stay comparable.
func NormalizeText(text string) string {
	text = strings.TrimSpace(text)
	text = leadingDigitsRe.ReplaceAllString(text, "")

	// NFKD then drop combining marks
	decomposed := norm.NFKD.String(text)
	var b strings.Builder
	b.Grow(len(decomposed))
	for _, r := range decomposed {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		b.WriteRune(r)
	}

	text = strings.ToLower(b.String())
	text = strings.ReplaceAll(text, "ı", "i")
	text = nonAlnumRe.ReplaceAllString(text, " ")
	text = whitespaceRe.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// extractRomanStatements pulls "I. ..." style statements out of a stem.
// A statement runs from its numeral marker to the next marker or the end.
func extractRomanStatements(stem string) map[string]string {
	if stem == "" {
		return nil
	}
	text := strings.ReplaceAll(stem, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	matches := romanMarkerRe.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return nil
	}

	statements := make(map[string]string, len(matches))
	for i, m := range matches {
		numeral := text[m[2]:m[3]]
		start := m[1]
		end := len(text)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		stmt := whitespaceRe.ReplaceAllString(text[start:end], " ")
		stmt = strings.TrimSpace(stmt)
		if stmt != "" {
			statements[numeral] = stmt
		}
	}
	return statements
}

// ExpandRomanAnswer replaces roman-numeral tokens in an answer ("I ve III")
// with the full statements they reference in the stem, joined by " / ".
// The answer is returned unchanged unless every token resolves.
func ExpandRomanAnswer(stem, answer string) string {
	if stem == "" || answer == "" {
		return answer
	}

	statements := extractRomanStatements(stem)
	if len(statements) == 0 {
		return answer
	}

	tokens := romanTokenRe.FindAllString(answer, -1)
	if len(tokens) == 0 {
		return answer
	}

	for i, tok := range tokens {
		tokens[i] = strings.ToUpper(tok)
	}
	for _, tok := range tokens {
		if _, ok := statements[tok]; !ok {
			return answer
		}
	}

	seen := make(map[string]bool, len(tokens))
	var expanded []string
	for _, tok := range tokens {
		if seen[tok] {
			continue
		}
		seen[tok] = true
		expanded = append(expanded, statements[tok])
	}
	if len(expanded) == 0 {
		return answer
	}
	return strings.Join(expanded, " / ")
}

// Signature builds the concept+answer identity used for exact duplicate
// detection: normalize(concept, or the stem when no concept tag exists)
// joined with the normalized, roman-expanded answer. Returns "" when the
// question has no resolvable answer or base text.
func (d *Draft) Signature() string {
	answer, ok := d.CorrectAnswerText()
	if !ok || answer == "" {
		return ""
	}
	answer = ExpandRomanAnswer(d.Stem, answer)

	base := d.Concept()
	if base == "" {
		base = d.Stem
	}
	if strings.TrimSpace(base) == "" {
		return ""
	}
	return NormalizeText(base) + "||" + NormalizeText(answer)
}

// HistoryText renders a question the way prior questions are surfaced to
// the dedup engine and to prompts: answer first, then the stem.
func (d *Draft) HistoryText() string {
	answer, _ := d.CorrectAnswerText()
	answer = ExpandRomanAnswer(d.Stem, answer)
	return fmt.Sprintf("Answer: %s | Question: %s", answer, d.Stem)
}
