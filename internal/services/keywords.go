package services

import (
	"regexp"
	"sort"
	"strings"
)

const DefaultMaxKeywords = 10

var keywordTokenRe = regexp.MustCompile(`[A-Za-z0-9][A-Za-z0-9_-]{2,}`)

var keywordStopwords = map[string]bool{
	"the": true, "and": true, "for": true, "that": true, "with": true,
	"this": true, "from": true, "have": true, "are": true, "was": true,
	"not": true, "you": true, "but": true, "les": true, "des": true,
	"est": true, "une": true, "dans": true, "pour": true, "que": true,
	"qui": true, "pas": true, "sur": true, "avec": true, "sont": true,
}

// ExtractKeywords returns the most frequent content words of a text, lowered,
// stopwords removed, ties broken by first occurrence.
func ExtractKeywords(text string, maxKeywords int) []string {
	if strings.TrimSpace(text) == "" || maxKeywords <= 0 {
		return []string{}
	}
	words := keywordTokenRe.FindAllString(strings.ToLower(text), -1)
	counts := map[string]int{}
	firstSeen := map[string]int{}
	for i, w := range words {
		if keywordStopwords[w] {
			continue
		}
		if _, ok := counts[w]; !ok {
			firstSeen[w] = i
		}
		counts[w]++
	}
	unique := make([]string, 0, len(counts))
	for w := range counts {
		unique = append(unique, w)
	}
	sort.SliceStable(unique, func(i, j int) bool {
		if counts[unique[i]] != counts[unique[j]] {
			return counts[unique[i]] > counts[unique[j]]
		}
		return firstSeen[unique[i]] < firstSeen[unique[j]]
	})
	if len(unique) > maxKeywords {
		unique = unique[:maxKeywords]
	}
	return unique
}
