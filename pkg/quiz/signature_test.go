package quiz_test

import (
	"testing"

	"github.com/Abraxas-365/examforge/pkg/quiz"
)

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"lowercases", "Akut Pankreatit", "akut pankreatit"},
		{"strips leading numbering", "12 Kalp Yetmezliği", "kalp yetmezligi"},
		{"strips diacritics", "Çölyak Hastalığı", "colyak hastaligi"},
		{"dotless i folds to i", "KRONİK BÖBREK YETMEZLİĞİ ı", "kronik bobrek yetmezligi i"},
		{"punctuation becomes space", "alfa-1 antitripsin (AAT) eksikliği", "alfa 1 antitripsin aat eksikligi"},
		{"collapses whitespace", "  a   b\t c ", "a b c"},
		{"empty", "   ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := quiz.NormalizeText(tt.in); got != tt.want {
				t.Errorf("NormalizeText(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

const romanStem = `Aşağıdakilerden hangileri doğrudur?
I. Birinci ifade burada
II. İkinci ifade burada
III. Üçüncü ifade burada`

func TestExpandRomanAnswer(t *testing.T) {
	got := quiz.ExpandRomanAnswer(romanStem, "I ve III")
	want := "Birinci ifade burada / Üçüncü ifade burada"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestExpandRomanAnswerDeduplicatesTokens(t *testing.T) {
	got := quiz.ExpandRomanAnswer(romanStem, "I, II ve I")
	want := "Birinci ifade burada / İkinci ifade burada"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestExpandRomanAnswerUnresolvedTokenLeftAlone(t *testing.T) {
	// IV is referenced but never stated in the stem
	if got := quiz.ExpandRomanAnswer(romanStem, "I ve IV"); got != "I ve IV" {
		t.Errorf("expected answer unchanged, got %q", got)
	}
}

func TestExpandRomanAnswerWithoutStatements(t *testing.T) {
	if got := quiz.ExpandRomanAnswer("Plain stem without statements", "I ve II"); got != "I ve II" {
		t.Errorf("expected answer unchanged, got %q", got)
	}
}

func TestSignatureUsesConceptOverStem(t *testing.T) {
	d := &quiz.Draft{
		Stem:            "Hangisi en olası tanıdır? Uzun bir vaka metni...",
		Options:         []quiz.Option{{ID: "A", Text: "Akut Apandisit"}, {ID: "B", Text: "Kolesistit"}},
		CorrectOptionID: "A",
		Tags:            []string{"concept: Akut Apandisit"},
	}

	want := "akut apandisit||akut apandisit"
	if got := d.Signature(); got != want {
		t.Errorf("Signature() = %q, want %q", got, want)
	}
}

func TestSignatureFallsBackToStem(t *testing.T) {
	d := &quiz.Draft{
		Stem:            "Kısa soru metni",
		Options:         []quiz.Option{{ID: "A", Text: "Cevap"}, {ID: "B", Text: "Diğer"}},
		CorrectOptionID: "A",
	}

	if got := d.Signature(); got != "kisa soru metni||cevap" {
		t.Errorf("Signature() = %q", got)
	}
}

func TestSignatureEmptyWhenNoAnswer(t *testing.T) {
	d := &quiz.Draft{
		Stem:            "Soru",
		Options:         []quiz.Option{{ID: "A", Text: "x"}},
		CorrectOptionID: "B",
	}
	if got := d.Signature(); got != "" {
		t.Errorf("expected empty signature, got %q", got)
	}
}

func TestSignatureExpandsRomanAnswers(t *testing.T) {
	d := &quiz.Draft{
		Stem:            romanStem,
		Options:         []quiz.Option{{ID: "A", Text: "I ve III"}, {ID: "B", Text: "Yalnız II"}},
		CorrectOptionID: "A",
		Tags:            []string{"concept:Roma Testi"},
	}

	want := "roma testi||birinci ifade burada ucuncu ifade burada"
	if got := d.Signature(); got != want {
		t.Errorf("Signature() = %q, want %q", got, want)
	}
}

func TestHistoryText(t *testing.T) {
	d := &quiz.Draft{
		Stem:            "Soru metni",
		Options:         []quiz.Option{{ID: "A", Text: "Cevap metni"}},
		CorrectOptionID: "A",
	}
	want := "Answer: Cevap metni | Question: Soru metni"
	if got := d.HistoryText(); got != want {
		t.Errorf("HistoryText() = %q, want %q", got, want)
	}
}
