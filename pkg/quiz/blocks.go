package quiz

import (
	"encoding/json"
	"fmt"
)

// Block type discriminators
const (
	BlockTypeHeading       = "heading"
	BlockTypeCallout       = "callout"
	BlockTypeNumberedSteps = "numbered_steps"
	BlockTypeMiniDDX       = "mini_ddx"
	BlockTypeTable         = "table"
)

// Callout styles
const (
	CalloutKeyClues      = "key_clues"
	CalloutExamTrap      = "exam_trap"
	CalloutClinicalPearl = "clinical_pearl"
	CalloutWarning       = "warning"
)

// Block is one element of an explanation. The set of implementations is
// closed: heading, callout, numbered_steps, mini_ddx and table.
type Block interface {
	BlockType() string
	validate() error
}

// HeadingBlock is a section heading, level 1-3
type HeadingBlock struct {
	Level int    `json:"level"`
	Text  string `json:"text"`
}

func (b *HeadingBlock) BlockType() string { return BlockTypeHeading }

func (b *HeadingBlock) validate() error {
	if b.Level < 1 || b.Level > 3 {
		return fmt.Errorf("heading level must be 1-3, got %d", b.Level)
	}
	if len(b.Text) < 3 {
		return fmt.Errorf("heading text too short")
	}
	return nil
}

// CalloutItem is one bullet inside a callout
type CalloutItem struct {
	Text string `json:"text"`
}

// CalloutBlock is a styled info box with 1-6 bullet points
type CalloutBlock struct {
	Style string        `json:"style"`
	Title string        `json:"title"`
	Items []CalloutItem `json:"items"`
}

func (b *CalloutBlock) BlockType() string { return BlockTypeCallout }

func (b *CalloutBlock) validate() error {
	switch b.Style {
	case CalloutKeyClues, CalloutExamTrap, CalloutClinicalPearl, CalloutWarning:
	default:
		return fmt.Errorf("unknown callout style %q", b.Style)
	}
	if len(b.Items) < 1 || len(b.Items) > 6 {
		return fmt.Errorf("callout needs 1-6 items, got %d", len(b.Items))
	}
	return nil
}

// NumberedStepsBlock is an ordered mechanism chain of 2-10 steps
type NumberedStepsBlock struct {
	Title string   `json:"title"`
	Steps []string `json:"steps"`
}

func (b *NumberedStepsBlock) BlockType() string { return BlockTypeNumberedSteps }

func (b *NumberedStepsBlock) validate() error {
	if len(b.Steps) < 2 || len(b.Steps) > 10 {
		return fmt.Errorf("numbered_steps needs 2-10 steps, got %d", len(b.Steps))
	}
	return nil
}

// DDXItem explains one distractor option
type DDXItem struct {
	OptionID string `json:"option_id"`
	Label    string `json:"label"`
	WhyWrong string `json:"why_wrong,omitempty"`
}

// MiniDDXBlock walks through the distractors
type MiniDDXBlock struct {
	Title string    `json:"title"`
	Items []DDXItem `json:"items"`
}

func (b *MiniDDXBlock) BlockType() string { return BlockTypeMiniDDX }

func (b *MiniDDXBlock) validate() error {
	if len(b.Items) == 0 {
		return fmt.Errorf("mini_ddx needs at least one item")
	}
	for _, item := range b.Items {
		if item.OptionID == "" {
			return fmt.Errorf("mini_ddx item missing option_id")
		}
	}
	return nil
}

// TableRow is one data row: an entity label plus one cell per value column
type TableRow struct {
	Entity string   `json:"entity"`
	Cells  []string `json:"cells"`
}

// TableBlock is a comparison table. Headers covers every column including
// the entity column, so each row carries len(Headers)-1 cells.
type TableBlock struct {
	Title   string     `json:"title"`
	Headers []string   `json:"headers"`
	Rows    []TableRow `json:"rows"`
}

func (b *TableBlock) BlockType() string { return BlockTypeTable }

func (b *TableBlock) validate() error {
	if len(b.Headers) < 2 {
		return fmt.Errorf("table needs at least 2 headers, got %d", len(b.Headers))
	}
	if len(b.Rows) < 1 || len(b.Rows) > 10 {
		return fmt.Errorf("table needs 1-10 rows, got %d", len(b.Rows))
	}
	expected := len(b.Headers) - 1
	for _, row := range b.Rows {
		if len(row.Cells) != expected {
			return fmt.Errorf("row %q has %d cells, headers imply %d", row.Entity, len(row.Cells), expected)
		}
	}
	return nil
}

// BlockList is a heterogeneous block slice with tagged-union JSON encoding
type BlockList []Block

type blockEnvelope struct {
	Type string `json:"type"`
}

// UnmarshalJSON decodes blocks by their type discriminator
func (l *BlockList) UnmarshalJSON(data []byte) error {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return err
	}

	blocks := make(BlockList, 0, len(raws))
	for i, raw := range raws {
		var env blockEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			return fmt.Errorf("block %d: %w", i, err)
		}

		var block Block
		switch env.Type {
		case BlockTypeHeading:
			block = &HeadingBlock{}
		case BlockTypeCallout:
			block = &CalloutBlock{}
		case BlockTypeNumberedSteps:
			block = &NumberedStepsBlock{}
		case BlockTypeMiniDDX:
			block = &MiniDDXBlock{}
		case BlockTypeTable:
			block = &TableBlock{}
		default:
			return fmt.Errorf("block %d: unknown type %q", i, env.Type)
		}

		if err := json.Unmarshal(raw, block); err != nil {
			return fmt.Errorf("block %d (%s): %w", i, env.Type, err)
		}
		blocks = append(blocks, block)
	}

	*l = blocks
	return nil
}

// MarshalJSON encodes each block with its type discriminator
func (l BlockList) MarshalJSON() ([]byte, error) {
	out := make([]json.RawMessage, 0, len(l))
	for _, block := range l {
		body, err := json.Marshal(block)
		if err != nil {
			return nil, err
		}

		var m map[string]any
		if err := json.Unmarshal(body, &m); err != nil {
			return nil, err
		}
		m["type"] = block.BlockType()

		tagged, err := json.Marshal(m)
		if err != nil {
			return nil, err
		}
		out = append(out, tagged)
	}
	return json.Marshal(out)
}

// Find returns the first block of the given type, or nil
func (l BlockList) Find(blockType string) Block {
	for _, b := range l {
		if b.BlockType() == blockType {
			return b
		}
	}
	return nil
}
