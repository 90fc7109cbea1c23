package novelai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pixvaultapp/pixvault-server/internal/domain"
)

func TestParse_V3Comment(t *testing.T) {
	raw := `{
		"prompt": "masterpiece, {{best quality}}, 1girl, blue eyes",
		"uc": "lowres, [[blurry]], bad anatomy",
		"seed": 3440500231,
		"steps": 28,
		"scale": 5,
		"sampler": "k_euler_ancestral",
		"width": 832,
		"height": 1216
	}`

	meta := Parse(raw)

	require.NotNil(t, meta.Prompt)
	assert.Equal(t, "masterpiece, {{best quality}}, 1girl, blue eyes", *meta.Prompt)
	require.NotNil(t, meta.NegativePrompt)
	assert.Equal(t, "lowres, [[blurry]], bad anatomy", *meta.NegativePrompt)
	require.NotNil(t, meta.Seed)
	assert.Equal(t, int64(3440500231), *meta.Seed)
	require.NotNil(t, meta.Steps)
	assert.Equal(t, 28, *meta.Steps)
	require.NotNil(t, meta.Scale)
	assert.Equal(t, 5.0, *meta.Scale)
	require.NotNil(t, meta.Sampler)
	assert.Equal(t, "k_euler_ancestral", *meta.Sampler)
	assert.Equal(t, raw, meta.RawComment)

	byName := make(map[string]domain.WeightedTag)
	for _, tag := range meta.Tags {
		byName[tag.Name] = tag
	}

	best := byName["best_quality"]
	assert.InDelta(t, 1.05*1.05, best.Weight, weightTolerance)
	assert.False(t, best.IsNegative)
	assert.Equal(t, domain.TagSourcePrompt, best.Source)

	blurry := byName["blurry"]
	assert.InDelta(t, 0.95*0.95, blurry.Weight, weightTolerance)
	assert.True(t, blurry.IsNegative)
	assert.Equal(t, domain.TagSourceNegative, blurry.Source)

	assert.True(t, byName["lowres"].IsNegative)
	assert.False(t, byName["1girl"].IsNegative)
}

func TestParse_V4Captions(t *testing.T) {
	raw := `{
		"prompt": "2girls, garden",
		"uc": "lowres",
		"seed": 123456789,
		"v4_prompt": {
			"caption": {
				"base_caption": "2girls, garden, {flowers}",
				"char_captions": [
					{"char_caption": "girl, red hair, smile"},
					{"char_caption": "girl, blue hair"}
				]
			}
		},
		"v4_negative_prompt": {
			"caption": {
				"base_caption": "lowres, bad hands",
				"char_captions": []
			}
		}
	}`

	meta := Parse(raw)

	require.NotNil(t, meta.V4BaseCaption)
	assert.Equal(t, "2girls, garden, {flowers}", *meta.V4BaseCaption)
	require.Len(t, meta.V4CharCaptions, 2)
	assert.Equal(t, "girl, red hair, smile", meta.V4CharCaptions[0])

	byName := make(map[string]domain.WeightedTag)
	for _, tag := range meta.Tags {
		byName[tag.Name] = tag
	}

	// 2girls appears in the prompt first, so the base caption's copy
	// is dropped and the source stays prompt.
	assert.Equal(t, domain.TagSourcePrompt, byName["2girls"].Source)
	assert.Equal(t, domain.TagSourceV4Base, byName["flowers"].Source)
	assert.InDelta(t, 1.05, byName["flowers"].Weight, weightTolerance)
	assert.Equal(t, domain.TagSourceV4Char, byName["red_hair"].Source)
	assert.Equal(t, domain.TagSourceV4Char, byName["blue_hair"].Source)

	// uc is present, so bad_hands from the v4 negative caption is not
	// collected. lowres keeps the negative source and flag.
	assert.True(t, byName["lowres"].IsNegative)
	assert.Equal(t, domain.TagSourceNegative, byName["lowres"].Source)
	_, hasBadHands := byName["bad_hands"]
	assert.False(t, hasBadHands)
}

func TestParse_NegativeFallsBackToV4Caption(t *testing.T) {
	raw := `{
		"prompt": "1girl",
		"v4_negative_prompt": {
			"caption": {"base_caption": "lowres, bad hands", "char_captions": []}
		}
	}`

	meta := Parse(raw)

	require.NotNil(t, meta.NegativePrompt)
	assert.Equal(t, "lowres, bad hands", *meta.NegativePrompt)

	byName := make(map[string]domain.WeightedTag)
	for _, tag := range meta.Tags {
		byName[tag.Name] = tag
	}
	assert.True(t, byName["bad_hands"].IsNegative)
	assert.Equal(t, domain.TagSourceNegative, byName["bad_hands"].Source)
}

func TestParse_MalformedJSON(t *testing.T) {
	for _, raw := range []string{
		"not json at all",
		`{"prompt": "unterminated`,
		"",
	} {
		meta := Parse(raw)
		assert.Nil(t, meta.Prompt)
		assert.Nil(t, meta.NegativePrompt)
		assert.Nil(t, meta.Seed)
		assert.Nil(t, meta.Steps)
		assert.Empty(t, meta.Tags)
		assert.Equal(t, raw, meta.RawComment)
		assert.False(t, meta.HasGenerationData())
	}
}

func TestParse_DuplicateTagFirstWins(t *testing.T) {
	raw := `{"prompt": "{{detailed}}, 1girl, detailed"}`

	meta := Parse(raw)

	var hits []domain.WeightedTag
	for _, tag := range meta.Tags {
		if tag.Name == "detailed" {
			hits = append(hits, tag)
		}
	}
	require.Len(t, hits, 1)
	assert.InDelta(t, 1.05*1.05, hits[0].Weight, weightTolerance)
}

func TestParse_NegativeFieldForcesFlag(t *testing.T) {
	// An explicit positive weight inside uc still yields a negative tag.
	raw := `{"uc": "2::extra digits::"}`

	meta := Parse(raw)

	require.Len(t, meta.Tags, 1)
	assert.Equal(t, "extra_digits", meta.Tags[0].Name)
	assert.InDelta(t, 2.0, meta.Tags[0].Weight, weightTolerance)
	assert.True(t, meta.Tags[0].IsNegative)
}

func TestParse_GroupExpansionInsidePrompt(t *testing.T) {
	raw := `{"prompt": "{best quality, amazing quality}, 1girl"}`

	meta := Parse(raw)

	byName := make(map[string]domain.WeightedTag)
	for _, tag := range meta.Tags {
		byName[tag.Name] = tag
	}
	assert.InDelta(t, 1.05, byName["best_quality"].Weight, weightTolerance)
	assert.InDelta(t, 1.05, byName["amazing_quality"].Weight, weightTolerance)
	assert.InDelta(t, 1.0, byName["1girl"].Weight, weightTolerance)
}

func TestReader_CanHandle(t *testing.T) {
	reader := NewReader()

	assert.True(t, reader.CanHandle(`{"prompt": "1girl", "seed": 1}`))
	assert.True(t, reader.CanHandle(`{"uc": "lowres"}`))
	assert.False(t, reader.CanHandle("plain text comment"))
	assert.False(t, reader.CanHandle(`{"workflow": {"nodes": []}}`))
}
