package memory

import (
	"context"
	"sort"
	"strings"
)

// RetrievedRecord wraps a record with its retrieval score.
type RetrievedRecord struct {
	Record Record
	Score  float64
}

// Retriever performs keyword-based relevance search over a scope.
type Retriever struct {
	store    Store
	minScore float64
}

// NewRetriever creates a Retriever. Records scoring below minScore are
// dropped; an empty result is not an error.
func NewRetriever(store Store, minScore float64) *Retriever {
	return &Retriever{store: store, minScore: minScore}
}

// Search scores every record in the scope against the query and returns
// the top limit matches. Ties break toward newer records.
func (r *Retriever) Search(ctx context.Context, scope, query string, limit int) ([]RetrievedRecord, error) {
	records, err := r.store.All(ctx, scope)
	if err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = 5
	}

	queryWords := tokenize(query)
	if len(queryWords) == 0 {
		return []RetrievedRecord{}, nil
	}

	results := []RetrievedRecord{}
	for _, rec := range records {
		score := scoreRecord(rec, queryWords)
		if score < r.minScore {
			continue
		}
		results = append(results, RetrievedRecord{Record: rec, Score: score})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		// Newer wins on equal score.
		return results[i].Record.Ordinal > results[j].Record.Ordinal
	})

	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// scoreRecord counts query term occurrences in the record, normalized by
// query length so scores stay comparable across queries.
func scoreRecord(rec Record, queryWords []string) float64 {
	freq := make(map[string]int)
	for _, w := range tokenize(rec.Content) {
		freq[w]++
	}

	var hits int
	for _, qw := range queryWords {
		hits += freq[qw]
	}
	return float64(hits) / float64(len(queryWords))
}

// tokenize splits a string into lowercase words.
func tokenize(s string) []string {
	words := strings.Fields(strings.ToLower(s))
	result := make([]string, 0, len(words))
	for _, w := range words {
		// Strip common punctuation
		w = strings.Trim(w, ".,;:!?\"'()[]{}")
		if len(w) > 1 {
			result = append(result, w)
		}
	}
	return result
}
