package discovery

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/orsinium-labs/stopwords"

	"github.com/kittclouds/skillscan/pkg/textnorm"
)

// noiseTerms are job-posting words that look like nouns but are never
// competences.
var noiseTerms = []string{
	// German
	"Erfahrung", "Erfahrungen", "Berufserfahrung", "Kenntnisse", "Kenntnis", "Grundkenntnisse",
	"Fähigkeit", "Fähigkeiten", "Aufgaben", "Aufgabe", "Profil", "Anforderungen", "Qualifikation",
	"Qualifikationen", "Bewerbung", "Bewerbungen", "Unternehmen", "Team", "Teams", "Stelle",
	"Position", "Mitarbeiter", "Mitarbeiterin", "Mitarbeitende", "Kollegen", "Kolleginnen",
	"Vollzeit", "Teilzeit", "Homeoffice", "Standort", "Gehalt", "Vergütung", "Benefits",
	"Arbeitszeiten", "Arbeitsplatz", "Möglichkeit", "Möglichkeiten", "Umfeld", "Bereich",
	"Bereiche", "Jahre", "Jahren", "Studium", "Ausbildung", "Abschluss", "Hochschulabschluss",
	"Weiterbildung", "Entwicklung", "Kunden", "Projekte", "Projekten", "Unterstützung",
	"Verantwortung", "Einsatz", "Start", "Zukunft", "Chance", "Angebot", "Ansprechpartner",
	"Ansprechpartnerin", "Startdatum", "Eintrittstermin", "Unterlagen", "Sprachkenntnisse",
	"Wort", "Schrift", "Freude", "Spaß", "Interesse", "Motivation", "Herausforderung",
	"Herausforderungen", "Vorteil", "Plus", "Du", "Sie", "Ihr", "Wir",
	// English
	"Experience", "Knowledge", "Skills", "Skill", "Requirements", "Responsibilities",
	"Qualifications", "Role", "Job", "Team", "Company", "Candidate", "Candidates", "Years",
	"Degree", "Benefits", "Salary", "Location", "Opportunity", "Opportunities", "Position",
	"Ability", "Understanding", "Work", "Environment", "Culture", "Apply", "Application",
	"Bonus", "Remote", "Hybrid", "Office", "Tasks", "Profile", "Offer", "Customers", "Clients",
}

// Blacklist holds terms that discovery must never surface. Matching is
// exact and case-insensitive; English and German stopwords are always
// included.
type Blacklist struct {
	mu    sync.RWMutex
	terms map[string]struct{}
	stops []*stopwords.Stopwords
}

// NewBlacklist creates a blacklist with the built-in noise terms plus extra.
func NewBlacklist(extra ...string) *Blacklist {
	b := &Blacklist{
		terms: make(map[string]struct{}, len(noiseTerms)+len(extra)),
		stops: []*stopwords.Stopwords{stopwords.MustGet("en"), stopwords.MustGet("de")},
	}
	b.Add(noiseTerms...)
	b.Add(extra...)
	return b
}

// LoadBlacklist reads one term per line from path, '#' starting a comment,
// on top of the built-in terms. A missing file yields the built-in list.
func LoadBlacklist(path string) (*Blacklist, error) {
	b := NewBlacklist()
	if path == "" {
		return b, nil
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return b, nil
		}
		return b, fmt.Errorf("open blacklist: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		b.Add(line)
	}
	if err := sc.Err(); err != nil {
		return b, fmt.Errorf("read blacklist: %w", err)
	}
	return b, nil
}

// Add inserts terms.
func (b *Blacklist) Add(terms ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, t := range terms {
		if k := textnorm.Key(t); k != "" {
			b.terms[k] = struct{}{}
		}
	}
}

// Contains reports whether term is blacklisted or a stopword.
func (b *Blacklist) Contains(term string) bool {
	key := textnorm.Key(term)
	b.mu.RLock()
	_, ok := b.terms[key]
	b.mu.RUnlock()
	if ok {
		return true
	}
	for _, s := range b.stops {
		if s.Contains(key) {
			return true
		}
	}
	return false
}

// Len returns the number of explicit terms, stopwords excluded.
func (b *Blacklist) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.terms)
}
