package genx

import (
	"fmt"
	"strings"
)

// Named prompt sections. Requests may override any of them through
// PromptSections; unknown names are appended after the defaults.
const (
	SectionRole       = "role"
	SectionRules      = "rules"
	SectionFormat     = "format"
	SectionDifficulty = "difficulty"
)

var defaultSections = map[string]string{
	SectionRole: "Sen TUS sınavına hazırlanan öğrenciler için soru yazan deneyimli bir tıp eğitimcisisin. " +
		"Soruları yalnızca sana verilen kaynak metindeki bilgilerle kurgula; dış bilgi ekleme.",
	SectionRules: "Kurallar:\n" +
		"1. Soru kökü klinik vinyet, roma rakamlı önerme veya spot bilgi içerebilir.\n" +
		"2. Hatalı veya kaynakta olmayan bilgi kullanma.\n" +
		"3. Şıklar birbirine yakın uzunlukta ve ayırt edici olmalı.\n" +
		"4. Daha önce sorulmuş sorularla aynı kavram ve cevabı tekrarlama.",
	SectionFormat: "Çıktıyı yalnızca geçerli JSON olarak ver. Şema: " +
		`{"insufficient_evidence": bool, "reason": string, "question_text": string, ` +
		`"options": [{"id": "A", "text": string}], "correct_option_id": string, "tags": ["concept:..."]}`,
}

var difficultyDirectives = map[string]string{
	"easy":   "Zorluk: KOLAY. Kaynaktaki en temel, olmazsa olmaz bilgileri sor.",
	"medium": "Zorluk: ORTA. Standart sınav seviyesi; kaynakta vurgulanan ana başlıkları sor.",
	"hard":   "Zorluk: ZOR. Klinik vaka ağırlıklı, ayırt edici detay soruları kur.",
}

// promptBuilder assembles stage prompts from the default sections plus
// per-request overrides.
type promptBuilder struct {
	req *Request
}

func newPromptBuilder(req *Request) *promptBuilder {
	return &promptBuilder{req: req}
}

func (b *promptBuilder) section(name string) string {
	if b.req.PromptSections != nil {
		if s, ok := b.req.PromptSections[name]; ok {
			return s
		}
	}
	return defaultSections[name]
}

func (b *promptBuilder) difficulty() string {
	if b.req.PromptSections != nil {
		if s, ok := b.req.PromptSections[SectionDifficulty]; ok {
			return s
		}
	}
	if s, ok := b.req.CustomDifficultyLevels[b.req.Difficulty]; ok {
		return s
	}
	if d, ok := difficultyDirectives[b.req.Difficulty]; ok {
		return d
	}
	return difficultyDirectives["medium"]
}

// contextLine renders the request metadata line shared by the stage
// prompts.
func (b *promptBuilder) contextLine(concept string) string {
	line := "Konu: " + b.req.Topic
	if b.req.MainHeader != "" {
		line += " | Bölüm: " + b.req.MainHeader
	}
	if concept != "" {
		line += " | Kavram: " + concept
	}
	return line + " | Kaynak: " + b.req.SourceMaterial
}

func (b *promptBuilder) history(items []string) string {
	if len(items) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("Daha önce üretilen sorular (bunları TEKRARLAMA):\n")
	for _, item := range items {
		sb.WriteString("- ")
		sb.WriteString(item)
		sb.WriteString("\n")
	}
	return sb.String()
}

// DraftSystem is the system message for the JSON stages.
func (b *promptBuilder) DraftSystem() string {
	return joinSections(b.section(SectionRole), b.section(SectionRules), b.section(SectionFormat))
}

// BulkSystem is the system message for the plain-text bulk stage.
func (b *promptBuilder) BulkSystem() string {
	return joinSections(b.section(SectionRole), b.section(SectionRules))
}

// Draft builds the drafting user message. In relaxed mode the evidence
// gate is softened after a keyword-overlap check passed.
func (b *promptBuilder) Draft(concept string, ev Evidence, history []string, relaxed bool) string {
	gate := "Kaynak metin bu kavram için yeterli bilgi içermiyorsa soru üretme; " +
		`"insufficient_evidence": true ve "reason" alanını doldur.`
	if relaxed {
		gate = "Kaynak metin kavramı kısmen kapsıyor; metindeki en yakın ilişkili bilgiden soru üret. " +
			"Yalnızca metin tamamen ilgisizse insufficient_evidence döndür."
	}

	return joinSections(
		b.contextLine(concept),
		b.difficulty(),
		gate,
		b.history(history),
		"--- KAYNAK METİN ---\n"+ev.Text,
	)
}

// Bulk builds the free-form multi-question prompt. The response is plain
// text parsed by the bulk parser, not JSON.
func (b *promptBuilder) Bulk(ev Evidence, history []string) string {
	format := `Her soru "Soru X: [Başlık]" satırıyla başlamalı. Şıklar "A) ..." formatında, ` +
		`ardından "Doğru Cevap: X" ve "Açıklama: ..." gelmeli. Gerekirse açıklamanın sonuna ` +
		"\"Karşılaştırma Tablosu:\" başlıklı bir markdown tablo ekle. Her sorunun bitimine \"---\" koy. " +
		"Çıktının sonuna bitirme veya yorum cümlesi EKLEME."

	return joinSections(
		b.section(SectionRole),
		b.section(SectionRules),
		fmt.Sprintf("%s | İstenen soru sayısı: %d", b.contextLine(""), b.req.Count),
		b.difficulty(),
		format,
		b.history(history),
		"--- KAYNAK METİN ---\n"+ev.Text,
	)
}

// Explanation builds the explanation stage prompt for a drafted question.
func (b *promptBuilder) Explanation(draftJSON string, ev Evidence) string {
	schema := `{"question_text": string, "options": [...], "correct_option_id": string, ` +
		`"tags": [...], "explanation": {"main_mechanism": string, "clinical_significance": string, ` +
		`"sibling_entities": [string], "blocks": [{"type": "heading"|"callout"|"numbered_steps"|"mini_ddx"|"table", ...}]}}`

	return joinSections(
		"Aşağıdaki taslak soru için derinlemesine açıklama blokları üret. "+
			"Soru metninde tıbbi bir hata görürsen düzeltebilirsin.",
		"Çıktıyı yalnızca geçerli JSON olarak ver. Şema: "+schema,
		"--- TASLAK ---\n"+draftJSON,
		"--- KAYNAK METİN ---\n"+ev.Text,
	)
}

// Repair builds the single-pass repair prompt, embedding the validation
// error verbatim.
func (b *promptBuilder) Repair(rawJSON string, validationErr error) string {
	return joinSections(
		"Aşağıdaki JSON şema doğrulamasından geçemedi. Hatanın tarifini oku ve JSON'u düzelterek "+
			"aynı şemada, yalnızca geçerli JSON olarak yeniden ver. İçeriği değiştirme, sadece hatayı gider.",
		"Doğrulama hatası: "+validationErr.Error(),
		"--- JSON ---\n"+rawJSON,
	)
}

func joinSections(sections ...string) string {
	parts := make([]string, 0, len(sections))
	for _, s := range sections {
		if strings.TrimSpace(s) != "" {
			parts = append(parts, strings.TrimSpace(s))
		}
	}
	return strings.Join(parts, "\n\n")
}
