// Package novelai parses the generation payload NovelAI embeds in the
// Comment text chunk of exported PNGs.
package novelai

import (
	"encoding/json/v2"

	"github.com/pixvaultapp/pixvault-server/internal/metadata"

	"github.com/pixvaultapp/pixvault-server/internal/domain"
)

// rawComment mirrors the JSON document NovelAI writes. Every field is
// optional; older exports carry only prompt/uc/seed while v4 models
// add structured captions. Unknown keys are ignored.
type rawComment struct {
	Prompt           *string    `json:"prompt"`
	UC               *string    `json:"uc"`
	Seed             *int64     `json:"seed"`
	Steps            *int       `json:"steps"`
	Scale            *float64   `json:"scale"`
	Sampler          *string    `json:"sampler"`
	Width            *int       `json:"width"`
	Height           *int       `json:"height"`
	V4Prompt         *rawV4Data `json:"v4_prompt"`
	V4NegativePrompt *rawV4Data `json:"v4_negative_prompt"`
}

type rawV4Data struct {
	Caption rawV4Caption `json:"caption"`
}

type rawV4Caption struct {
	BaseCaption  string         `json:"base_caption"`
	CharCaptions []rawV4CharCap `json:"char_captions"`
}

type rawV4CharCap struct {
	CharCaption string `json:"char_caption"`
}

// Parse decodes a NovelAI comment. It never fails: malformed JSON
// yields a record whose scalar fields are all unset, whose tag list is
// empty, and whose RawComment still carries the original text so
// nothing is lost.
func Parse(raw string) *domain.GenerationMetadata {
	meta := &domain.GenerationMetadata{RawComment: raw}

	var c rawComment
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return meta
	}

	meta.Prompt = c.Prompt
	meta.Seed = c.Seed
	meta.Steps = c.Steps
	meta.Scale = c.Scale
	meta.Sampler = c.Sampler
	meta.Width = c.Width
	meta.Height = c.Height

	if c.V4Prompt != nil {
		if c.V4Prompt.Caption.BaseCaption != "" {
			base := c.V4Prompt.Caption.BaseCaption
			meta.V4BaseCaption = &base
		}
		for _, cc := range c.V4Prompt.Caption.CharCaptions {
			meta.V4CharCaptions = append(meta.V4CharCaptions, cc.CharCaption)
		}
	}

	// The negative prompt lives in uc; v4 exports that omit it still
	// carry the same text as the v4 negative base caption.
	meta.NegativePrompt = c.UC
	if meta.NegativePrompt == nil && c.V4NegativePrompt != nil && c.V4NegativePrompt.Caption.BaseCaption != "" {
		neg := c.V4NegativePrompt.Caption.BaseCaption
		meta.NegativePrompt = &neg
	}

	meta.Tags = collectTags(meta)
	return meta
}

// collectTags extracts weighted tags from every prompt field. Fields
// are visited in a fixed order and the first occurrence of a name wins,
// so a tag appearing in both the prompt and a character caption keeps
// the prompt's weight and source.
func collectTags(meta *domain.GenerationMetadata) []domain.WeightedTag {
	type promptField struct {
		text     string
		source   domain.TagSource
		negative bool
	}

	var fields []promptField
	if meta.Prompt != nil {
		fields = append(fields, promptField{*meta.Prompt, domain.TagSourcePrompt, false})
	}
	if meta.V4BaseCaption != nil {
		fields = append(fields, promptField{*meta.V4BaseCaption, domain.TagSourceV4Base, false})
	}
	for _, caption := range meta.V4CharCaptions {
		fields = append(fields, promptField{caption, domain.TagSourceV4Char, false})
	}
	if meta.NegativePrompt != nil {
		fields = append(fields, promptField{*meta.NegativePrompt, domain.TagSourceNegative, true})
	}

	seen := make(map[string]struct{})
	tags := make([]domain.WeightedTag, 0, 32)
	for _, f := range fields {
		for _, segment := range SplitSegments(ExpandControlSyntax(f.text)) {
			tag, ok := ParseTagWeight(segment)
			if !ok {
				continue
			}
			if _, dup := seen[tag.Name]; dup {
				continue
			}
			seen[tag.Name] = struct{}{}
			tag.Source = f.source
			if f.negative {
				tag.IsNegative = true
			}
			tags = append(tags, tag)
		}
	}
	return tags
}

// Reader adapts the package to the metadata registry.
type Reader struct{}

func NewReader() *Reader { return &Reader{} }

func (Reader) Format() metadata.Format { return metadata.FormatNovelAI }

// CanHandle claims comments that decode as JSON and carry at least one
// NovelAI generation field. ComfyUI workflows and other JSON payloads
// fall through to the unknown format.
func (Reader) CanHandle(raw string) bool {
	var c rawComment
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return false
	}
	return c.Prompt != nil || c.UC != nil || c.Seed != nil || c.Sampler != nil ||
		c.Steps != nil || c.V4Prompt != nil || c.V4NegativePrompt != nil
}

func (Reader) Read(rawComment string) *domain.GenerationMetadata {
	return Parse(rawComment)
}
