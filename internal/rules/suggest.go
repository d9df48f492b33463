package rules

import (
	"sort"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// MaxSuggestions caps SuggestFolders results.
const MaxSuggestions = 100

// Scores used by SuggestFolders. A substring match scores its byte offset,
// so earlier matches rank first.
const (
	scoreSubsequence = 5000
	scoreNoMatch     = 9999
)

// Suggestion is one folder proposed for a rule's folder field.
type Suggestion struct {
	Path  string `json:"path"`
	Score int    `json:"score"`
	// Match is the [start, end) byte range of the query inside Path, when
	// the query occurs as a substring.
	Match []int `json:"match,omitempty"`
}

// SuggestFolders ranks folders against query. Folders are first put in
// locale order; an empty query returns them unranked. Folders that do not
// contain the query's characters in order are dropped.
func SuggestFolders(folders []string, query string, limit int) []Suggestion {
	if limit <= 0 || limit > MaxSuggestions {
		limit = MaxSuggestions
	}
	query = strings.TrimSpace(query)

	sorted := append([]string(nil), folders...)
	collate.New(language.Und).SortStrings(sorted)

	out := make([]Suggestion, 0, len(sorted))
	for _, p := range sorted {
		if p == "" || p == "." {
			continue
		}
		score, match := fuzzyScore(p, query)
		if query != "" && score >= scoreNoMatch {
			continue
		}
		out = append(out, Suggestion{Path: p, Score: score, Match: match})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score < out[j].Score })
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func fuzzyScore(text, query string) (int, []int) {
	if query == "" {
		return 0, nil
	}
	t := strings.ToLower(text)
	q := strings.ToLower(query)
	if idx := strings.Index(t, q); idx >= 0 {
		return idx, []int{idx, idx + len(q)}
	}
	i := 0
	for _, ch := range q {
		j := strings.IndexRune(t[i:], ch)
		if j < 0 {
			return scoreNoMatch, nil
		}
		i += j + len(string(ch))
	}
	return scoreSubsequence, nil
}
