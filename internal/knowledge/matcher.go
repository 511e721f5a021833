package knowledge

import (
	"strings"

	"github.com/sahilm/fuzzy"

	"psti_chatbot/internal/nlp"
)

// Message is the rule-profile normalized text of one utterance.
type Message struct {
	Text   string
	Tokens []string
	set    map[string]struct{}
}

// NewMessage splits an already normalized text.
func NewMessage(normalized string) Message {
	tokens := strings.Fields(normalized)
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return Message{Text: strings.Join(tokens, " "), Tokens: tokens, set: set}
}

// Has reports whether any of words is a token of the message.
func (m Message) Has(words ...string) bool {
	for _, w := range words {
		if _, ok := m.set[w]; ok {
			return true
		}
	}
	return false
}

// Phrase reports whether the space-separated phrase occurs on token boundaries.
func (m Message) Phrase(phrase string) bool {
	if phrase == "" {
		return false
	}
	return strings.Contains(" "+m.Text+" ", " "+phrase+" ")
}

// AnyPhrase is Phrase over several candidates.
func (m Message) AnyPhrase(phrases ...string) bool {
	for _, p := range phrases {
		if m.Phrase(p) {
			return true
		}
	}
	return false
}

const (
	minNamePart  = 3
	minFuzzyWord = 4
)

type studentEntry struct {
	full      string
	parts     []string
	nicknames []string
}

type projectEntry struct {
	name    string
	compact string
}

// Matcher finds students and projects mentioned in a message. Names are normalized with
// the same profile as messages, so "Lab" in a project name compares equal to "laboratorium".
type Matcher struct {
	facts    *Facts
	norm     *nlp.Normalizer
	students []studentEntry
	projects []projectEntry

	// fuzzy candidates and the student each one belongs to
	candidates []string
	owner      []int
	known      map[string]bool
}

func NewMatcher(facts *Facts, norm *nlp.Normalizer) *Matcher {
	m := &Matcher{facts: facts, norm: norm, known: map[string]bool{}}

	for i, s := range facts.Students() {
		e := studentEntry{full: norm.Normalize(s.Nama)}
		for _, p := range strings.Fields(e.full) {
			if len([]rune(p)) >= minNamePart {
				e.parts = append(e.parts, p)
				m.candidates = append(m.candidates, p)
				m.owner = append(m.owner, i)
			}
			m.known[p] = true
		}
		for _, nick := range s.Panggilan {
			n := norm.Normalize(nick)
			if n == "" {
				continue
			}
			e.nicknames = append(e.nicknames, n)
			m.candidates = append(m.candidates, n)
			m.owner = append(m.owner, i)
			m.known[n] = true
		}
		m.students = append(m.students, e)
	}

	for _, p := range facts.Pembina {
		for _, part := range strings.Fields(norm.Normalize(p.Nama)) {
			m.known[part] = true
		}
	}

	for _, p := range facts.Projects {
		name := norm.Normalize(p.Nama)
		m.projects = append(m.projects, projectEntry{name: name, compact: strings.ReplaceAll(name, " ", "")})
	}
	return m
}

// Normalize applies the rule profile used for facts.
func (m *Matcher) Normalize(s string) string { return m.norm.Normalize(s) }

func (m *Matcher) Facts() *Facts { return m.facts }

// IsKnownName reports whether word is part of a student or supervisor name, or a nickname.
func (m *Matcher) IsKnownName(word string) bool { return m.known[word] }

// Student returns the best explicitly named student. A full name beats nicknames, which beat
// name parts; ties go to the first student in fact order. Fuzzy matching is tried only when
// nothing matched exactly.
func (m *Matcher) Student(msg Message) (Student, bool) {
	best, bestScore := -1, 0
	for i, e := range m.students {
		score := 0
		if len(e.parts) > 1 && msg.Phrase(e.full) {
			score += 1000
		}
		for _, n := range e.nicknames {
			if msg.Has(n) {
				score += 10
			}
		}
		for _, p := range e.parts {
			if msg.Has(p) {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	if best < 0 {
		best = m.fuzzyStudent(msg)
	}
	if best < 0 {
		return Student{}, false
	}
	return m.facts.Students()[best], true
}

// fuzzyStudent tolerates one dropped letter: the token must be a subsequence of a name part or
// nickname that is at most one letter longer and starts with the same letter.
func (m *Matcher) fuzzyStudent(msg Message) int {
	best := -1
	for _, tok := range msg.Tokens {
		r := []rune(tok)
		if len(r) < minFuzzyWord || !isLetters(r) {
			continue
		}
		for _, match := range fuzzy.Find(tok, m.candidates) {
			c := []rune(match.Str)
			if len(c) > len(r)+1 || c[0] != r[0] {
				continue
			}
			if owner := m.owner[match.Index]; best < 0 || owner < best {
				best = owner
			}
		}
	}
	return best
}

// Project returns the mentioned project with the longest name, matched either as a phrase or
// written without spaces ("siapik", "aquasecure").
func (m *Matcher) Project(msg Message) (Project, bool) {
	best := -1
	for i, e := range m.projects {
		if !msg.Phrase(e.name) && !msg.Has(e.compact) {
			continue
		}
		if best < 0 || len(e.name) > len(m.projects[best].name) {
			best = i
		}
	}
	if best < 0 {
		return Project{}, false
	}
	return m.facts.Projects[best], true
}

func isLetters(r []rune) bool {
	for _, c := range r {
		if c < 'a' || c > 'z' {
			return false
		}
	}
	return true
}
