// Package taxonomy holds the merged competence vocabulary: entries, the alias
// index built over them, and the tiered repository that assembles a snapshot
// from remote, cached, generated and hardcoded sources.
package taxonomy

import (
	"strings"

	"github.com/google/uuid"

	"github.com/kittclouds/skillscan/pkg/textnorm"
)

// Specificity levels. Higher wins when sources disagree.
const (
	LevelDiscovery  = 1 // surfaced by the discovery pass, not in any source
	LevelStandard   = 2 // standard taxonomy entry
	LevelDigital    = 3 // taxonomy entry flagged digital
	LevelLiterature = 4 // practitioner-literature domain term
	LevelAcademia   = 5 // academia / curriculum domain term
)

// Well-known collection tags.
const (
	CollectionDigital     = "digital"
	CollectionResearch    = "research"
	CollectionLanguage    = "language"
	CollectionTransversal = "transversal"
)

// Entry is one canonical competence.
type Entry struct {
	PreferredLabel string   `json:"preferredLabel"`
	AltLabels      []string `json:"altLabels,omitempty"`
	URI            string   `json:"uri"`
	Level          int      `json:"level"`
	IsDigital      bool     `json:"isDigital"`
	SourceDomain   string   `json:"sourceDomain,omitempty"`
	Collections    []string `json:"collections,omitempty"`
}

// HasCollection reports whether the entry is tagged with the collection.
func (e Entry) HasCollection(name string) bool {
	for _, c := range e.Collections {
		if strings.EqualFold(c, name) {
			return true
		}
	}
	return false
}

// Surfaces returns the preferred label followed by every alternate label.
func (e Entry) Surfaces() []string {
	out := make([]string, 0, 1+len(e.AltLabels))
	out = append(out, e.PreferredLabel)
	return append(out, e.AltLabels...)
}

// normalizeEntry trims labels, drops empty aliases and fills the level. The
// digital flag is a level claim of its own: a digital entry never sits below
// LevelDigital, whatever level the source carried.
func normalizeEntry(e Entry) Entry {
	e.PreferredLabel = strings.TrimSpace(e.PreferredLabel)
	e.URI = strings.TrimSpace(e.URI)

	if len(e.AltLabels) > 0 {
		alts := make([]string, 0, len(e.AltLabels))
		seen := map[string]bool{textnorm.Key(e.PreferredLabel): true}
		for _, a := range e.AltLabels {
			a = strings.TrimSpace(a)
			k := textnorm.Key(a)
			if k == "" || seen[k] {
				continue
			}
			seen[k] = true
			alts = append(alts, a)
		}
		e.AltLabels = alts
	}

	if e.HasCollection(CollectionDigital) {
		e.IsDigital = true
	}
	if e.Level < LevelDiscovery || e.Level > LevelAcademia {
		e.Level = LevelStandard
	}
	if e.IsDigital && e.Level < LevelDigital {
		e.Level = LevelDigital
	}
	return e
}

var uriNamespace = uuid.MustParse("6f1c2a9e-0d7b-4c1e-9a55-3c1f0b8e2d41")

// SyntheticURI derives a stable identifier for terms from sources that carry
// none (domain files, approved discoveries).
func SyntheticURI(domain, label string) string {
	id := uuid.NewSHA1(uriNamespace, []byte(strings.ToLower(domain)+"/"+textnorm.Key(label)))
	return "urn:skillscan:" + id.String()
}
