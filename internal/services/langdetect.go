package services

import "strings"

const langDetectMinChars = 20

var stopwordsByLanguage = map[string][]string{
	"en": {"the", "and", "for", "that", "with", "this", "from", "have", "are", "was", "not", "you", "but"},
	"fr": {"les", "des", "est", "une", "dans", "pour", "que", "qui", "pas", "sur", "avec", "sont", "nous"},
	"es": {"los", "las", "una", "por", "con", "para", "del", "como", "pero", "más", "este", "son", "sus"},
	"de": {"der", "die", "das", "und", "ist", "nicht", "ein", "eine", "mit", "für", "auf", "den", "sich"},
}

// DetectLanguage guesses the dominant language of a text by stopword
// frequency. Texts shorter than 20 characters are too ambiguous and return
// "unknown".
func DetectLanguage(text string) string {
	if len(strings.TrimSpace(text)) < langDetectMinChars {
		return "unknown"
	}
	words := strings.Fields(strings.ToLower(text))
	counts := map[string]int{}
	for _, w := range words {
		w = strings.Trim(w, ".,;:!?()[]{}\"'")
		for lang, stopwords := range stopwordsByLanguage {
			for _, sw := range stopwords {
				if w == sw {
					counts[lang]++
					break
				}
			}
		}
	}
	best, bestCount := "unknown", 0
	for lang, n := range counts {
		if n > bestCount || (n == bestCount && lang < best) {
			best, bestCount = lang, n
		}
	}
	if bestCount == 0 {
		return "unknown"
	}
	return best
}
