package retrieval

import (
	"sort"
	"strings"
	"unicode"

	"juris-rag/internal/model"
)

// KeywordSearch scores each chunk by how many distinct query tokens occur in
// its text, ignoring case. Chunks scoring zero are dropped; ties keep chunk order.
func KeywordSearch(query string, chunks []model.Chunk, topK int) []Result {
	tokens := queryTokens(query)
	if len(tokens) == 0 || topK <= 0 {
		return nil
	}

	results := make([]Result, 0)
	for _, c := range chunks {
		text := strings.ToLower(c.Content)
		score := 0
		for _, tok := range tokens {
			if strings.Contains(text, tok) {
				score++
			}
		}
		if score == 0 {
			continue
		}
		results = append(results, Result{Chunk: c, Score: float64(score), Source: SourceKeyword})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Chunk.Index < results[j].Chunk.Index
	})
	if len(results) > topK {
		results = results[:topK]
	}
	return results
}

func queryTokens(query string) []string {
	seen := make(map[string]struct{})
	var tokens []string
	for _, field := range strings.Fields(strings.ToLower(query)) {
		tok := strings.TrimFunc(field, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		if tok == "" {
			continue
		}
		if _, ok := seen[tok]; ok {
			continue
		}
		seen[tok] = struct{}{}
		tokens = append(tokens, tok)
	}
	return tokens
}
