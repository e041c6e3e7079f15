package voice

import (
	"fmt"
	"strings"
)

// ContentType is the narration style requested for a conversion.
type ContentType string

const (
	ContentPodcast       ContentType = "podcast"
	ContentAudioDrama    ContentType = "audio-drama"
	ContentSlowContent   ContentType = "slow-content"
	ContentSoloNarration ContentType = "solo-narration"
	ContentAudiobook     ContentType = "audiobook"
	ContentEducational   ContentType = "educational"
	ContentEntertainment ContentType = "entertainment"
)

// DefaultModelID is the synthesis model used by every profile.
const DefaultModelID = "eleven_turbo_v2_5"

// Settings are the provider voice_settings for one profile.
type Settings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	SpeakerBoost    bool    `json:"use_speaker_boost"`
}

// Profile binds a content type to a voice and its settings.
type Profile struct {
	VoiceID  string
	ModelID  string
	Settings Settings
}

var profiles = map[ContentType]Profile{
	ContentPodcast: {
		VoiceID:  "pNInz6obpgDQGcFmaJgB",
		ModelID:  DefaultModelID,
		Settings: Settings{Stability: 0.5, SimilarityBoost: 0.8, Style: 0.2, SpeakerBoost: true},
	},
	ContentAudioDrama: {
		VoiceID:  "EXAVITQu4vr4xnSDxMaL",
		ModelID:  DefaultModelID,
		Settings: Settings{Stability: 0.3, SimilarityBoost: 0.9, Style: 0.8, SpeakerBoost: true},
	},
	ContentSlowContent: {
		VoiceID:  "CYw3kZ02Hs0563khs1Fj",
		ModelID:  DefaultModelID,
		Settings: Settings{Stability: 0.8, SimilarityBoost: 0.7, Style: 0.1, SpeakerBoost: false},
	},
	ContentSoloNarration: {
		VoiceID:  "onwK4e9ZLuTAKqWW03F9",
		ModelID:  DefaultModelID,
		Settings: Settings{Stability: 0.7, SimilarityBoost: 0.8, Style: 0.3, SpeakerBoost: true},
	},
}

// ParseContentType normalizes a raw tag. Unknown tags are returned as-is and
// rejected later by ProfileFor.
func ParseContentType(raw string) ContentType {
	return ContentType(strings.ToLower(strings.TrimSpace(raw)))
}

// ProfileFor returns the voice profile for ct. Audiobook, educational and
// entertainment are recognized content types without a voice yet.
func ProfileFor(ct ContentType) (Profile, error) {
	p, ok := profiles[ct]
	if !ok {
		return Profile{}, fmt.Errorf("%w: %q", ErrUnsupportedContentType, string(ct))
	}
	return p, nil
}

// Supported lists content types that have a profile.
func Supported() []ContentType {
	return []ContentType{ContentPodcast, ContentAudioDrama, ContentSlowContent, ContentSoloNarration}
}
