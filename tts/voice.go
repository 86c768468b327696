package tts

import (
	"fmt"
	"strings"

	"github.com/sahilm/fuzzy"
	"golang.org/x/text/language"
)

// SelectVoice picks a default voice for lang. A voice whose locale has the
// same base language wins; for Swahili a voice named after the language is
// accepted as well since some engines ship untagged voices.
func SelectVoice(voices []Voice, lang Language) (Voice, error) {
	if len(voices) == 0 {
		return Voice{}, ErrNoVoices
	}
	if lang == "" {
		lang = LanguageEnglish
	}

	want, err := language.Parse(string(lang))
	if err != nil {
		return Voice{}, fmt.Errorf("invalid language %q: %w", lang, err)
	}
	wantBase, _ := want.Base()

	for _, v := range voices {
		tag, err := language.Parse(v.Locale)
		if err != nil {
			continue
		}
		if base, _ := tag.Base(); base == wantBase {
			return v, nil
		}
	}

	if lang == LanguageSwahili {
		for _, v := range voices {
			if strings.Contains(strings.ToLower(v.Name), "swahili") {
				return v, nil
			}
		}
	}

	return Voice{}, fmt.Errorf("%w for language %q", ErrNoVoices, lang)
}

// FindVoice looks a voice up by ID, or fuzzily by name.
func FindVoice(voices []Voice, query string) (Voice, error) {
	names := make([]string, len(voices))
	for i, v := range voices {
		if strings.EqualFold(v.ID, query) {
			return v, nil
		}
		names[i] = v.Name
	}

	matches := fuzzy.Find(query, names)
	if len(matches) == 0 {
		return Voice{}, fmt.Errorf("%w: %q", ErrVoiceNotFound, query)
	}
	return voices[matches[0].Index], nil
}
