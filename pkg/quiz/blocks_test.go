package quiz_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/Abraxas-365/examforge/pkg/quiz"
)

func TestBlockListUnmarshalTaggedUnion(t *testing.T) {
	raw := `[
		{"type": "heading", "level": 2, "text": "Patofizyoloji"},
		{"type": "callout", "style": "key_clues", "title": "Anahtar İpuçları", "items": [{"text": "Ateş"}, {"text": "Sağ alt kadran ağrısı"}]},
		{"type": "numbered_steps", "title": "Mekanizma Zinciri", "steps": ["Obstrüksiyon", "İskemi", "Perforasyon"]},
		{"type": "mini_ddx", "title": "Ayırıcı Tanı", "items": [{"option_id": "B", "label": "Kolesistit", "why_wrong": "Sağ üst kadran"}]},
		{"type": "table", "title": "Karşılaştırma", "headers": ["Özellik", "A", "B"], "rows": [{"entity": "Yaş", "cells": ["genç", "yaşlı"]}]}
	]`

	var blocks quiz.BlockList
	if err := json.Unmarshal([]byte(raw), &blocks); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(blocks) != 5 {
		t.Fatalf("expected 5 blocks, got %d", len(blocks))
	}

	heading, ok := blocks[0].(*quiz.HeadingBlock)
	if !ok || heading.Level != 2 || heading.Text != "Patofizyoloji" {
		t.Errorf("heading decoded wrong: %+v", blocks[0])
	}

	callout, ok := blocks[1].(*quiz.CalloutBlock)
	if !ok || callout.Style != quiz.CalloutKeyClues || len(callout.Items) != 2 {
		t.Errorf("callout decoded wrong: %+v", blocks[1])
	}

	table, ok := blocks[4].(*quiz.TableBlock)
	if !ok || len(table.Headers) != 3 || table.Rows[0].Entity != "Yaş" {
		t.Errorf("table decoded wrong: %+v", blocks[4])
	}
}

func TestBlockListUnknownTypeRejected(t *testing.T) {
	raw := `[{"type": "marquee", "text": "nope"}]`

	var blocks quiz.BlockList
	err := json.Unmarshal([]byte(raw), &blocks)
	if err == nil || !strings.Contains(err.Error(), "marquee") {
		t.Errorf("expected unknown type error, got %v", err)
	}
}

func TestBlockListMarshalRoundTrip(t *testing.T) {
	blocks := quiz.BlockList{
		&quiz.HeadingBlock{Level: 1, Text: "Başlık"},
		&quiz.MiniDDXBlock{
			Title: "Ayırıcı Tanı",
			Items: []quiz.DDXItem{{OptionID: "C", Label: "Pankreatit"}},
		},
	}

	data, err := json.Marshal(blocks)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(data), `"type":"heading"`) ||
		!strings.Contains(string(data), `"type":"mini_ddx"`) {
		t.Fatalf("missing type discriminators: %s", data)
	}

	var back quiz.BlockList
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(back) != 2 || back[1].BlockType() != quiz.BlockTypeMiniDDX {
		t.Errorf("round trip lost blocks: %+v", back)
	}
}
