// Package bannedterms holds the mutable banned-term list used for content checks.
package bannedterms

import (
	"sort"
	"strings"
	"sync"

	"guardbot/internal/utils"
)

// DefaultTerms is the list the set starts with on every process start.
var DefaultTerms = []string{
	"discord.gg/",
	"free nitro",
	"死ね",
}

// Set is a case-insensitive substring matcher over a unique set of terms.
type Set struct {
	mu    sync.RWMutex
	terms map[string]struct{}
}

func New(initial ...string) *Set {
	s := &Set{terms: make(map[string]struct{}, len(initial))}
	for _, t := range initial {
		s.Add(t)
	}
	return s
}

// Match returns the first registered term contained in text.
func (s *Set) Match(text string) (string, bool) {
	lower := strings.ToLower(text)

	s.mu.RLock()
	defer s.mu.RUnlock()
	for term := range s.terms {
		if strings.Contains(lower, term) {
			return term, true
		}
	}
	return "", false
}

// Add reports whether the normalized term was newly inserted.
func (s *Set) Add(term string) bool {
	norm := utils.NormalizeTerm(term)
	if norm == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.terms[norm]; exists {
		return false
	}
	s.terms[norm] = struct{}{}
	return true
}

// Remove reports whether the normalized term existed.
func (s *Set) Remove(term string) bool {
	norm := utils.NormalizeTerm(term)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.terms[norm]; !exists {
		return false
	}
	delete(s.terms, norm)
	return true
}

func (s *Set) List() []string {
	s.mu.RLock()
	out := make([]string, 0, len(s.terms))
	for term := range s.terms {
		out = append(out, term)
	}
	s.mu.RUnlock()
	sort.Strings(out)
	return out
}

func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.terms)
}
