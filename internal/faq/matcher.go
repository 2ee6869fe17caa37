package faq

import (
	"sort"
	"strings"

	"github.com/MDastan2005/whatsapp-ai-bot/internal/utils"
)

// questionBonus is added to an entry's score for every query token found
// inside the entry's question text (substring containment).
const questionBonus = 0.05

// Candidate is one scored entry in a match ranking.
type Candidate struct {
	Entry *Entry
	Score float64
}

// Result is the outcome of matching one query against the corpus.
// Entry is nil when no corpus entry shares a token with the query.
// Candidates holds the ranking (best first, at most the matcher's topK)
// and includes non-confident entries for LLM grounding.
type Result struct {
	Entry      *Entry
	Score      float64
	Confident  bool
	Candidates []Candidate
}

// Matcher scores queries against a Store. Pure and side-effect-free: the
// same query against the same corpus always yields the same result.
type Matcher struct {
	store     *Store
	threshold float64
	topK      int
}

// NewMatcher creates a matcher with the given confidence threshold and
// candidate list size.
func NewMatcher(store *Store, threshold float64, topK int) *Matcher {
	if topK <= 0 {
		topK = 3
	}
	return &Matcher{store: store, threshold: threshold, topK: topK}
}

// Match normalizes the query, scores every entry sharing at least one
// keyword token with it and returns the ranked result. Entries with zero
// shared tokens are never scored, so cost scales with matching entries
// rather than corpus size.
func (m *Matcher) Match(query string) Result {
	tokens := utils.Tokenize(query)
	if len(tokens) == 0 {
		return Result{}
	}

	unique := make([]string, 0, len(tokens))
	seen := make(map[string]bool, len(tokens))
	for _, tok := range tokens {
		if !seen[tok] {
			seen[tok] = true
			unique = append(unique, tok)
		}
	}

	candidateIDs := make(map[int]bool)
	for _, tok := range unique {
		for _, id := range m.store.Lookup(tok) {
			candidateIDs[id] = true
		}
	}
	if len(candidateIDs) == 0 {
		return Result{}
	}

	candidates := make([]Candidate, 0, len(candidateIDs))
	for id := range candidateIDs {
		entry, ok := m.store.Entry(id)
		if !ok {
			continue
		}
		candidates = append(candidates, Candidate{
			Entry: entry,
			Score: scoreEntry(unique, seen, entry),
		})
	}

	// Highest score first; ties resolve to the lowest id so results are
	// reproducible across calls.
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].Entry.ID < candidates[j].Entry.ID
	})

	if len(candidates) > m.topK {
		candidates = candidates[:m.topK]
	}

	best := candidates[0]
	return Result{
		Entry:      best.Entry,
		Score:      best.Score,
		Confident:  best.Score >= m.threshold,
		Candidates: candidates,
	}
}

// scoreEntry computes the ratio of the entry's keywords present in the
// query, plus a small bonus per query token contained in the question
// text. Clamped to [0,1].
func scoreEntry(queryTokens []string, querySet map[string]bool, entry *Entry) float64 {
	matched := 0
	for _, kw := range entry.Keywords {
		if querySet[kw] {
			matched++
		}
	}

	score := float64(matched) / float64(len(entry.Keywords))

	question := strings.ToLower(entry.Question)
	for _, tok := range queryTokens {
		if len([]rune(tok)) > 2 && strings.Contains(question, tok) {
			score += questionBonus
		}
	}

	if score > 1 {
		score = 1
	}
	return score
}
