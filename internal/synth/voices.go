package synth

import (
	"sort"

	"github.com/sahilm/fuzzy"
)

// DefaultVoice is used when no voice is configured.
const DefaultVoice = "taozi"

var voices = map[string]string{
	"taozi":      "zh_female_taozi_conversation_v4_wvae_bigtts",
	"shuangkuai": "zh_female_shuangkuai_emo_v3_wvae_bigtts",
	"tianmei":    "zh_female_tianmei_conversation_v4_wvae_bigtts",
	"qingche":    "zh_female_qingche_moon_bigtts",
	"yangguang":  "zh_male_yangguang_conversation_v4_wvae_bigtts",
	"chenwen":    "zh_male_chenwen_moon_bigtts",
	"rap":        "zh_male_rap_mars_bigtts",
	"en_female":  "en_female_sarah_conversation_bigtts",
	"en_male":    "en_male_adam_conversation_bigtts",
}

// ResolveVoice maps a short voice name to the backend speaker id.
// Unknown names are passed through unchanged so raw speaker ids work too.
func ResolveVoice(name string) string {
	if name == "" {
		name = DefaultVoice
	}
	if id, ok := voices[name]; ok {
		return id
	}
	return name
}

// VoiceNames returns the known short names, sorted.
func VoiceNames() []string {
	names := make([]string, 0, len(voices))
	for n := range voices {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// IsKnownVoice reports whether name is in the voice table.
func IsKnownVoice(name string) bool {
	_, ok := voices[name]
	return ok
}

// SuggestVoice returns the closest known name for an unknown one.
func SuggestVoice(name string) (string, bool) {
	if name == "" || IsKnownVoice(name) {
		return "", false
	}
	matches := fuzzy.Find(name, VoiceNames())
	if len(matches) == 0 {
		return "", false
	}
	return matches[0].Str, true
}
