package genx

import (
	"strings"
	"testing"

	"github.com/Abraxas-365/examforge/pkg/quiz"
)

const bulkSample = `Soru 1: Epileptik Ensefalopatiler
3 aylık bebekte fleksör spazmlar ve hipsaritmi saptanıyor. En olası tanı hangisidir?
A) Lennox-Gastaut sendromu
B) West sendromu
C) Dravet sendromu
D) Ohtahara sendromu
Doğru Cevap: B
Açıklama: Hipsaritmi EEG bulgusu ile fleksör spazmların birlikteliği West sendromu için tanı koydurucudur.
Karşılaştırma Tablosu: Epileptik Ensefalopatiler
| Sendrom | Başlangıç | EEG |
|---|---|---|
| West | 3-12 ay | Hipsaritmi |
| Lennox-Gastaut | 1-8 yaş | Yavaş diken-dalga |
---
Soru 2: Menenjit BOS Bulguları
Ateş ve ense sertliği olan hastada BOS incelemesinde glukoz düşük, protein yüksek bulunuyor. En olası etken hangisidir?
A) Enterovirüs
B) Streptococcus pneumoniae
C) HSV-1
Doğru Cevap: B
Açıklama: Düşük BOS glukozu bakteriyel menenjiti düşündürür.
---
Başarılar dilerim, umarım sınavda çok faydası olur!`

func TestParseBulkResponse(t *testing.T) {
	questions := ParseBulkResponse(bulkSample, "pediatrik nöroloji")
	if len(questions) != 2 {
		t.Fatalf("parsed %d questions, want 2", len(questions))
	}

	q1 := questions[0]
	if !strings.Contains(q1.Stem, "hipsaritmi") {
		t.Errorf("stem = %q", q1.Stem)
	}
	if len(q1.Options) != 4 {
		t.Errorf("options = %d, want 4", len(q1.Options))
	}
	if q1.CorrectOptionID != "B" {
		t.Errorf("correct = %q, want B", q1.CorrectOptionID)
	}
	if q1.Concept() != "Epileptik Ensefalopatiler" {
		t.Errorf("concept = %q", q1.Concept())
	}
	if q1.Topic != "pediatrik nöroloji" {
		t.Errorf("topic = %q", q1.Topic)
	}

	if len(q1.Explanation.Blocks) != 3 {
		t.Fatalf("blocks = %d, want heading+callout+table", len(q1.Explanation.Blocks))
	}
	table, ok := q1.Explanation.Blocks[2].(*quiz.TableBlock)
	if !ok {
		t.Fatalf("third block is %T, want table", q1.Explanation.Blocks[2])
	}
	if len(table.Headers) != 3 {
		t.Errorf("table headers = %v", table.Headers)
	}
	if len(table.Rows) != 2 {
		t.Fatalf("table rows = %d, want 2", len(table.Rows))
	}
	if table.Rows[0].Entity != "West" || len(table.Rows[0].Cells) != 2 {
		t.Errorf("row 0 = %+v", table.Rows[0])
	}

	q2 := questions[1]
	if q2.CorrectOptionID != "B" {
		t.Errorf("q2 correct = %q", q2.CorrectOptionID)
	}
	if strings.Contains(q2.Stem, "Başarılar") {
		t.Error("trailing chatter leaked into the last question")
	}
	for _, opt := range q2.Options {
		if strings.Contains(opt.Text, "Başarılar") {
			t.Error("trailing chatter leaked into an option")
		}
	}
}

func TestParseBulkResponseDropsBlocksWithoutOptions(t *testing.T) {
	text := `Soru 1: Eksik Soru
Bu blokta şık bulunmuyor, bu yüzden atlanmalıdır.
Doğru Cevap: A
---
Soru 2: Geçerli Soru
Yenidoğanda fizyolojik sarılık en erken hangi günde beklenir?
A) İlk 24 saat
B) 2-3. gün
Doğru Cevap: B
Açıklama: Fizyolojik sarılık 2-3. günde başlar.`

	questions := ParseBulkResponse(text, "pediatri")
	if len(questions) != 1 {
		t.Fatalf("parsed %d questions, want 1 (block without options dropped)", len(questions))
	}
	if questions[0].Concept() != "Geçerli Soru" {
		t.Errorf("concept = %q", questions[0].Concept())
	}
}

func TestParseBulkResponseUnknownFormat(t *testing.T) {
	if got := ParseBulkResponse("Elbette! İşte istediğiniz sorular hakkında genel bir yorum.", "x"); len(got) != 0 {
		t.Errorf("parsed %d questions from chatter-only text", len(got))
	}
}

func TestParseBulkResponseLegacyTableFallsBackToCallout(t *testing.T) {
	text := `Soru 1: Asit Baz Dengesi
Metabolik asidozda beklenen kompansasyon yanıtı hangisidir?
A) Hipoventilasyon
B) Hiperventilasyon
Doğru Cevap: B
Açıklama: Kussmaul solunumu metabolik asidozun kompansasyonudur.
Tablo: Asit Baz Bozuklukları
Durum        pH       pCO2
Metabolik asidoz   düşük    düşük`

	questions := ParseBulkResponse(text, "nefroloji")
	if len(questions) != 1 {
		t.Fatalf("parsed %d questions, want 1", len(questions))
	}
	blocks := questions[0].Explanation.Blocks
	last := blocks[len(blocks)-1]
	callout, ok := last.(*quiz.CalloutBlock)
	if !ok {
		t.Fatalf("last block is %T, want callout fallback for non-markdown table", last)
	}
	if !strings.Contains(callout.Items[0].Text, "Metabolik asidoz") {
		t.Errorf("fallback callout lost table text: %q", callout.Items[0].Text)
	}
}
