package sttproc

import (
	"strings"

	"github.com/antzucaro/matchr"
)

// hallucinationFuzzyThreshold is the Jaro-Winkler similarity above which a
// transcript token is considered a fuzzy match against a blacklist entry,
// grounded on the phonetic matcher's fuzzy-fallback threshold in the pack
// (MrWong99-glyphoxa/internal/transcript/phonetic).
const hallucinationFuzzyThreshold = 0.92

// Blacklist filters known STT hallucination phrases ("thank you for watching",
// background-noise artifacts on silence, etc.) out of transcripts, per
// ConfigSnapshot.HallucinationBlacklist.
type Blacklist struct {
	phrases []string
}

// NewBlacklist lower-cases and trims the configured phrases once so Filter
// does not repeat that work per call.
func NewBlacklist(phrases []string) *Blacklist {
	cleaned := make([]string, 0, len(phrases))
	for _, p := range phrases {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			cleaned = append(cleaned, p)
		}
	}
	return &Blacklist{phrases: cleaned}
}

// Filter returns text unchanged unless it matches a blacklisted phrase
// either as an exact substring or via fuzzy Jaro-Winkler similarity above
// hallucinationFuzzyThreshold, in which case it returns "" so the caller
// treats the turn as an empty transcript.
func (b *Blacklist) Filter(text string) string {
	if len(b.phrases) == 0 {
		return text
	}
	lower := strings.ToLower(strings.TrimSpace(text))
	if lower == "" {
		return text
	}
	for _, phrase := range b.phrases {
		if strings.Contains(lower, phrase) {
			return ""
		}
		if matchr.JaroWinkler(lower, phrase, false) >= hallucinationFuzzyThreshold {
			return ""
		}
	}
	return text
}
