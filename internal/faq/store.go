package faq

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/MDastan2005/whatsapp-ai-bot/internal/utils"
)

// Entry is one FAQ item. Immutable after load; owned by the Store.
type Entry struct {
	ID       int      `json:"id"`
	Question string   `json:"question"`
	Answer   string   `json:"answer"`
	Keywords []string `json:"keywords"`
}

type corpusFile struct {
	FAQ []Entry `json:"faq"`
}

// LoadError reports a malformed FAQ corpus. Startup-fatal: a corpus that
// cannot be indexed is not recoverable per-request.
type LoadError struct {
	Path   string
	Reason string
	Err    error
}

func (e *LoadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("faq: load %s: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("faq: load %s: %s", e.Path, e.Reason)
}

func (e *LoadError) Unwrap() error { return e.Err }

// index is the immutable lookup structure built once per load.
type index struct {
	entries map[int]*Entry
	ordered []*Entry       // file order, for deterministic iteration
	tokens  map[string][]int
}

// Store holds the FAQ corpus and its token index. Reads are lock-free on a
// swapped pointer; Reload builds a fresh index and swaps it in.
type Store struct {
	path string

	mu  sync.RWMutex
	idx *index
}

// NewStore loads the corpus at path and builds the token index.
func NewStore(path string) (*Store, error) {
	idx, err := loadIndex(path)
	if err != nil {
		return nil, err
	}

	utils.Zlog.Info("FAQ corpus loaded",
		zap.String("path", path),
		zap.Int("entries", len(idx.ordered)))

	return &Store{path: path, idx: idx}, nil
}

func loadIndex(path string) (*index, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Path: path, Reason: "read file", Err: err}
	}

	var corpus corpusFile
	if err := json.Unmarshal(raw, &corpus); err != nil {
		return nil, &LoadError{Path: path, Reason: "parse JSON", Err: err}
	}
	if len(corpus.FAQ) == 0 {
		return nil, &LoadError{Path: path, Reason: "corpus has no faq entries"}
	}

	idx := &index{
		entries: make(map[int]*Entry, len(corpus.FAQ)),
		tokens:  make(map[string][]int),
	}

	for i := range corpus.FAQ {
		entry := &corpus.FAQ[i]
		if entry.ID <= 0 {
			return nil, &LoadError{Path: path, Reason: fmt.Sprintf("entry %d: id must be a positive integer", i)}
		}
		if entry.Question == "" || entry.Answer == "" {
			return nil, &LoadError{Path: path, Reason: fmt.Sprintf("entry id=%d: question and answer are required", entry.ID)}
		}
		if len(entry.Keywords) == 0 {
			return nil, &LoadError{Path: path, Reason: fmt.Sprintf("entry id=%d: keywords are required", entry.ID)}
		}
		if _, dup := idx.entries[entry.ID]; dup {
			return nil, &LoadError{Path: path, Reason: fmt.Sprintf("duplicate entry id %d", entry.ID)}
		}

		normalized := make([]string, 0, len(entry.Keywords))
		seen := make(map[string]bool, len(entry.Keywords))
		for _, kw := range entry.Keywords {
			tok := utils.NormalizeToken(kw)
			if tok == "" || seen[tok] {
				continue
			}
			seen[tok] = true
			normalized = append(normalized, tok)
			idx.tokens[tok] = append(idx.tokens[tok], entry.ID)
		}
		if len(normalized) == 0 {
			return nil, &LoadError{Path: path, Reason: fmt.Sprintf("entry id=%d: keywords normalize to nothing", entry.ID)}
		}
		entry.Keywords = normalized

		idx.entries[entry.ID] = entry
		idx.ordered = append(idx.ordered, entry)
	}

	return idx, nil
}

// Reload re-reads the corpus file and swaps the index atomically. On
// failure the previous corpus stays in service.
func (s *Store) Reload() error {
	idx, err := loadIndex(s.path)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.idx = idx
	s.mu.Unlock()

	utils.Zlog.Info("FAQ corpus reloaded",
		zap.String("path", s.path),
		zap.Int("entries", len(idx.ordered)))
	return nil
}

func (s *Store) snapshot() *index {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.idx
}

// Lookup returns ids of entries whose keyword set contains token.
func (s *Store) Lookup(token string) []int {
	return s.snapshot().tokens[utils.NormalizeToken(token)]
}

// Entry returns the entry with the given id.
func (s *Store) Entry(id int) (*Entry, bool) {
	e, ok := s.snapshot().entries[id]
	return e, ok
}

// Len returns the number of entries in the corpus.
func (s *Store) Len() int {
	return len(s.snapshot().ordered)
}

// Stats summarizes the loaded corpus for the health endpoints.
func (s *Store) Stats() map[string]interface{} {
	idx := s.snapshot()
	totalKeywords := 0
	for _, e := range idx.ordered {
		totalKeywords += len(e.Keywords)
	}
	return map[string]interface{}{
		"total_items":    len(idx.ordered),
		"total_keywords": totalKeywords,
		"file_path":      s.path,
	}
}
