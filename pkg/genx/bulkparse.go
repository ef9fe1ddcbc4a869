package genx

import (
	"regexp"
	"strings"

	"github.com/Abraxas-365/examforge/pkg/logx"
	"github.com/Abraxas-365/examforge/pkg/quiz"
)

// The bulk stage asks for plain text, one "Soru N:" block per question.
// Parsing is deliberately forgiving: models drift on formatting, so a
// block is only dropped when no stem or fewer than two options survive.

var (
	questionHeaderRe = regexp.MustCompile(`(?i)Soru\s+\d+\s*:`)
	headerTitleRe    = regexp.MustCompile(`(?i)^Soru\s+\d+\s*:\s*(.*)$`)
	optionLineRe     = regexp.MustCompile(`^\s*([A-E])\)\s*(.*)$`)
	correctAnswerRe  = regexp.MustCompile(`(?i)doğru\s+cevap\s*[:|-]?\s*([A-E])`)
	explanationRe    = regexp.MustCompile(`(?i)(?:\*\*|__)?açıklama(?:\*\*|__)?\s*:`)
	tableHeaderRe    = regexp.MustCompile(`(?i)(karşılaştırma|özet|farklar)\s*tablosu`)

	chatterRes = []*regexp.Regexp{
		regexp.MustCompile(`(?is)-+\s*Bu sorular.*`),
		regexp.MustCompile(`(?is)Başarılar dilerim.*`),
		regexp.MustCompile(`(?is)Umarım faydalı.*`),
	}
)

// ParseBulkResponse splits a multi-question model response into
// questions. Unparseable blocks are logged and skipped.
func ParseBulkResponse(text, topic string) []*quiz.ValidatedQuestion {
	blocks := splitQuestionBlocks(text)
	questions := make([]*quiz.ValidatedQuestion, 0, len(blocks))
	for _, block := range blocks {
		if q := parseQuestionBlock(block, topic); q != nil {
			questions = append(questions, q)
		}
	}
	return questions
}

func splitQuestionBlocks(text string) []string {
	starts := questionHeaderRe.FindAllStringIndex(text, -1)
	if len(starts) == 0 {
		return nil
	}

	blocks := make([]string, 0, len(starts))
	for i, loc := range starts {
		end := len(text)
		if i+1 < len(starts) {
			end = starts[i+1][0]
		}
		blocks = append(blocks, text[loc[0]:end])
	}

	// Models often close with well-wishes; strip them off the last block.
	last := blocks[len(blocks)-1]
	for _, re := range chatterRes {
		last = re.ReplaceAllString(last, "")
	}
	blocks[len(blocks)-1] = strings.TrimSpace(last)
	return blocks
}

func parseQuestionBlock(block, topic string) *quiz.ValidatedQuestion {
	rawLines := strings.Split(block, "\n")
	title := "Bilinmeyen Başlık"
	if m := headerTitleRe.FindStringSubmatch(strings.TrimSpace(rawLines[0])); m != nil {
		if t := strings.TrimSpace(m[1]); t != "" {
			title = t
		}
	}

	lines := make([]string, 0, len(rawLines))
	for _, l := range rawLines {
		if t := strings.TrimSpace(l); t != "" {
			lines = append(lines, t)
		}
	}

	// A bare "---" ends the question; "|---|" is a table separator and
	// must survive.
	for i, line := range lines {
		if strings.HasPrefix(line, "---") && !strings.Contains(line, "|") && len(line) < 10 {
			lines = lines[:i]
			break
		}
	}

	var (
		processed        []string
		correctOptionID  string
		explanationStart = -1
	)
	for i := 0; i < len(lines); i++ {
		line := lines[i]

		if strings.Contains(strings.ToLower(line), "doğru cevap") {
			if m := correctAnswerRe.FindStringSubmatch(line); m != nil {
				correctOptionID = strings.ToUpper(m[1])
			}
			line = strings.TrimSpace(correctAnswerRe.ReplaceAllString(line, ""))
			if line == "" {
				continue
			}
		}

		if loc := explanationRe.FindStringIndex(line); loc != nil {
			explanationStart = i
			if loc[0] > 0 {
				if pre := strings.TrimSpace(line[:loc[0]]); pre != "" {
					processed = append(processed, pre)
				}
				lines[i] = strings.TrimSpace(line[loc[0]:])
			}
			break
		}

		processed = append(processed, line)
	}

	var (
		stemLines []string
		options   []quiz.Option
	)
	for _, line := range processed {
		if strings.HasPrefix(line, "Soru") && headerTitleRe.MatchString(line) {
			continue
		}
		if m := optionLineRe.FindStringSubmatch(line); m != nil {
			options = append(options, quiz.Option{ID: m[1], Text: strings.TrimSpace(m[2])})
			continue
		}
		if len(options) == 0 {
			stemLines = append(stemLines, line)
		} else {
			// Wrapped option text continues the previous option.
			options[len(options)-1].Text += " " + line
		}
	}
	stem := strings.TrimSpace(strings.Join(stemLines, "\n"))

	explanationText, tableText := splitExplanation(lines, explanationStart)

	if stem == "" || len(options) < 2 {
		logx.Warnf("genx: dropping unparseable bulk block %q (stem=%d chars, options=%d)",
			title, len(stem), len(options))
		return nil
	}
	if correctOptionID == "" {
		correctOptionID = "A"
	}

	blocks := quiz.BlockList{
		&quiz.HeadingBlock{Level: 1, Text: title},
		&quiz.CalloutBlock{
			Style: "clinical_pearl",
			Title: "Açıklama",
			Items: []quiz.CalloutItem{{Text: orDefault(explanationText, "Açıklama mevcut değil.")}},
		},
	}
	if tableText != "" {
		blocks = append(blocks, parseTableBlock(tableText))
	}

	return &quiz.ValidatedQuestion{
		Draft: quiz.Draft{
			Stem:            stem,
			Options:         options,
			CorrectOptionID: correctOptionID,
			Tags:            []string{"concept:" + title},
		},
		Topic: topic,
		Explanation: &quiz.Explanation{
			MainMechanism:        truncateRunes(explanationText, 400),
			ClinicalSignificance: "Yüksek (TUS/USMLE)",
			Blocks:               blocks,
		},
	}
}

func splitExplanation(lines []string, start int) (explanation, table string) {
	if start < 0 || start >= len(lines) {
		return "", ""
	}
	exLines := append([]string(nil), lines[start:]...)
	exLines[0] = strings.TrimSpace(explanationRe.ReplaceAllString(exLines[0], ""))

	tableStart := -1
	for i, l := range exLines {
		if tableHeaderRe.MatchString(l) || strings.HasPrefix(strings.ToLower(l), "tablo:") {
			tableStart = i
			break
		}
	}
	if tableStart >= 0 {
		return strings.TrimSpace(strings.Join(exLines[:tableStart], "\n")),
			strings.TrimSpace(strings.Join(exLines[tableStart:], "\n"))
	}
	return strings.TrimSpace(strings.Join(exLines, "\n")), ""
}

// parseTableBlock understands markdown pipe tables. Anything else keeps
// the raw text in a callout so no content is lost.
func parseTableBlock(tableText string) quiz.Block {
	lines := strings.Split(tableText, "\n")
	title := strings.TrimSpace(lines[0])

	var mdLines []string
	for _, l := range lines {
		if strings.Contains(l, "|") {
			mdLines = append(mdLines, l)
		}
	}

	if len(mdLines) >= 2 {
		headers := splitPipeCells(mdLines[0])
		var rows []quiz.TableRow
		for _, line := range mdLines[1:] {
			if strings.Contains(line, "---") {
				continue
			}
			cells := splitPipeCells(line)
			if len(cells) == 0 {
				continue
			}
			for len(cells) < len(headers) {
				cells = append(cells, "")
			}
			rows = append(rows, quiz.TableRow{Entity: cells[0], Cells: cells[1:len(headers)]})
		}
		if len(headers) >= 2 && len(rows) > 0 {
			return &quiz.TableBlock{Title: title, Headers: headers, Rows: rows}
		}
	}

	return &quiz.CalloutBlock{
		Style: "key_clues",
		Title: "Tablo",
		Items: []quiz.CalloutItem{{Text: tableText}},
	}
}

func splitPipeCells(line string) []string {
	var cells []string
	for _, c := range strings.Split(line, "|") {
		if t := strings.TrimSpace(c); t != "" {
			cells = append(cells, t)
		}
	}
	return cells
}

func orDefault(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
