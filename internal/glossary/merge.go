package glossary

import (
	"sort"
	"strings"
)

// MergeTerms consolidates per-sample extraction results. Identical terms
// (case-insensitive) with identical translations deduplicate silently;
// identical terms with different translations become conflicts.
func MergeTerms(samples [][]Term) Merged {
	type bucket struct {
		term         string
		translations []string
		notes        []string
	}
	byKey := make(map[string]*bucket)
	order := make([]string, 0)

	for _, sample := range samples {
		for _, term := range sample {
			name := strings.TrimSpace(term.Term)
			if name == "" {
				continue
			}
			key := strings.ToLower(name)
			b, ok := byKey[key]
			if !ok {
				b = &bucket{term: name}
				byKey[key] = b
				order = append(order, key)
			}
			translation := strings.TrimSpace(term.Translation)
			if translation != "" && !containsFold(b.translations, translation) {
				b.translations = append(b.translations, translation)
			}
			if note := strings.TrimSpace(term.Note); note != "" && !containsFold(b.notes, note) {
				b.notes = append(b.notes, note)
			}
		}
	}

	var merged Merged
	for _, key := range order {
		b := byKey[key]
		switch len(b.translations) {
		case 0:
			merged.Terms = append(merged.Terms, Term{Term: b.term, Note: strings.Join(b.notes, "; ")})
		case 1:
			merged.Terms = append(merged.Terms, Term{
				Term:        b.term,
				Translation: b.translations[0],
				Note:        strings.Join(b.notes, "; "),
			})
		default:
			translations := append([]string{}, b.translations...)
			sort.Strings(translations)
			merged.Conflicts = append(merged.Conflicts, Conflict{Term: b.term, Translations: translations})
		}
	}
	return merged
}

// MergeSpeakers deduplicates speaker profiles by case-insensitive name,
// keeping the first-seen traits.
func MergeSpeakers(samples [][]Speaker) []Speaker {
	seen := make(map[string]struct{})
	out := make([]Speaker, 0)
	for _, sample := range samples {
		for _, speaker := range sample {
			name := strings.TrimSpace(speaker.Name)
			if name == "" {
				continue
			}
			key := strings.ToLower(name)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, Speaker{Name: name, Traits: strings.TrimSpace(speaker.Traits)})
		}
	}
	return out
}

func containsFold(values []string, candidate string) bool {
	for _, v := range values {
		if strings.EqualFold(v, candidate) {
			return true
		}
	}
	return false
}
