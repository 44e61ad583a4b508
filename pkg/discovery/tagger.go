package discovery

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// POS is a coarse part-of-speech tag.
type POS int

const (
	Other POS = iota
	Noun
	ProperNoun
	Verb
	Adjective
	Adverb
	Determiner
	Preposition
	Pronoun
	Conjunction
	Auxiliary
	Modal
	Number
	Punctuation
)

// IsNominal reports noun-like tags.
func (p POS) IsNominal() bool { return p == Noun || p == ProperNoun }

// IsVerbal reports verb-like tags.
func (p POS) IsVerbal() bool { return p == Verb || p == Auxiliary || p == Modal }

// IsModifier reports adjective-like tags.
func (p POS) IsModifier() bool { return p == Adjective || p == Adverb }

// Word is one token handed to the tagger.
type Word struct {
	Text          string
	SentenceStart bool
}

// Tagger performs lexicon and heuristic part-of-speech tagging for German
// and English job text, with a context pass that corrects ambiguous words.
type Tagger struct {
	lexicon map[string]POS
}

// NewTagger creates a new Tagger with default lexicon
func NewTagger() *Tagger {
	t := &Tagger{
		lexicon: make(map[string]POS),
	}
	t.loadDefaultLexicon()
	return t
}

// Tag processes a slice of words and returns their POS tags
// Uses a 2-pass approach:
// 1. Baseline: Dictionary lookup + capitalisation + suffix heuristics
// 2. Reinforcement: Contextual correction rules
func (t *Tagger) Tag(words []Word) []POS {
	tags := make([]POS, len(words))

	for i, w := range words {
		tags[i] = t.lookupBaseline(w)
	}

	for i := 1; i < len(tags); i++ {
		prev, cur := tags[i-1], tags[i]
		prevWord := strings.ToLower(words[i-1].Text)

		switch {
		// "the [run]", "ein schnelles [Laufen]"
		case (prev == Determiner || prev.IsModifier()) && cur.IsVerbal():
			tags[i] = Noun
		// "can [test]"
		case prev == Modal && cur == Noun:
			tags[i] = Verb
		// "want to [deliver]", "um zu [liefern]"
		case (prevWord == "to" || prevWord == "zu") && cur == Noun:
			tags[i] = Verb
		// "knowledge of [testing]"
		case prevWord == "of" && cur.IsVerbal():
			tags[i] = Noun
		}
	}
	return tags
}

func (t *Tagger) lookupBaseline(w Word) POS {
	lower := fastLower(w.Text)
	if pos, ok := t.lexicon[lower]; ok {
		// Capitalised lexicon words mid-sentence are German nouns or names
		// ("Go", "Rust"), except for closed-class words.
		if !w.SentenceStart && isUpperStart(w.Text) && (pos == Verb || pos == Adjective) {
			return ProperNoun
		}
		return pos
	}
	return t.inferPOS(w)
}

func (t *Tagger) inferPOS(w Word) POS {
	word := w.Text
	lower := fastLower(word)

	if word == "" {
		return Other
	}
	if utf8.RuneCountInString(word) == 1 {
		r, _ := utf8.DecodeRuneInString(word)
		if unicode.IsPunct(r) || unicode.IsSymbol(r) {
			return Punctuation
		}
	}
	if isNumeric(word) {
		return Number
	}

	// Inner capitals or digits mark product and tool names: "PostgreSQL",
	// "DevOps", "S3", "SAP".
	if hasInnerUpperOrDigit(word) {
		return ProperNoun
	}
	if isUpperStart(word) {
		if w.SentenceStart {
			return Noun
		}
		return ProperNoun
	}

	// Suffix heuristics, English then German.
	switch {
	case strings.HasSuffix(lower, "ly"):
		return Adverb
	case strings.HasSuffix(lower, "ing"), strings.HasSuffix(lower, "ed"):
		return Verb
	case strings.HasSuffix(lower, "ness"), strings.HasSuffix(lower, "tion"),
		strings.HasSuffix(lower, "ment"), strings.HasSuffix(lower, "ity"):
		return Noun
	case strings.HasSuffix(lower, "ful"), strings.HasSuffix(lower, "less"),
		strings.HasSuffix(lower, "ous"), strings.HasSuffix(lower, "ive"),
		strings.HasSuffix(lower, "able"), strings.HasSuffix(lower, "ible"):
		return Adjective
	case strings.HasSuffix(lower, "lich"), strings.HasSuffix(lower, "ig"),
		strings.HasSuffix(lower, "isch"), strings.HasSuffix(lower, "bar"),
		strings.HasSuffix(lower, "los"), strings.HasSuffix(lower, "haft"):
		return Adjective
	case strings.HasSuffix(lower, "en"), strings.HasSuffix(lower, "ern"),
		strings.HasSuffix(lower, "eln"):
		// lower-case German words ending in -en are infinitives
		return Verb
	}

	// Default: noun
	return Noun
}

// fastLower returns the string if it contains no uppercase characters,
// otherwise returns strings.ToLower(s). Avoids allocation for common case.
func fastLower(s string) string {
	for _, r := range s {
		if unicode.IsUpper(r) {
			return strings.ToLower(s)
		}
	}
	return s
}

func isUpperStart(s string) bool {
	r, _ := utf8.DecodeRuneInString(s)
	return unicode.IsUpper(r)
}

func hasInnerUpperOrDigit(s string) bool {
	letters := false
	for i, r := range s {
		if unicode.IsLetter(r) {
			letters = true
		}
		if i > 0 && (unicode.IsUpper(r) || unicode.IsDigit(r)) {
			return letters
		}
	}
	return false
}

func isNumeric(s string) bool {
	digits := false
	for _, r := range s {
		switch {
		case unicode.IsDigit(r):
			digits = true
		case r == '.' || r == ',' || r == '%' || r == '-' || r == '+':
		default:
			return false
		}
	}
	return digits
}

func (t *Tagger) loadDefaultLexicon() {
	// Determiners
	for _, w := range []string{"the", "a", "an", "this", "that", "these", "those", "my", "your",
		"his", "her", "its", "our", "their", "some", "any", "no", "every", "each", "all", "both",
		"few", "many", "much", "most", "other",
		"der", "die", "das", "den", "dem", "des", "ein", "eine", "einen", "einem", "einer", "eines",
		"kein", "keine", "unser", "unsere", "unseren", "unserem", "ihr", "ihre", "ihren", "ihrem",
		"dein", "deine", "jede", "jeder", "jedes", "alle", "viele", "einige", "mehrere"} {
		t.lexicon[w] = Determiner
	}

	// Prepositions
	for _, w := range []string{"in", "on", "at", "to", "for", "with", "by", "from", "of", "about",
		"into", "through", "during", "before", "after", "above", "below", "between", "under", "over",
		"within", "without", "across", "along",
		"mit", "für", "von", "bei", "im", "am", "zum", "zur", "auf", "aus", "nach", "über", "unter",
		"vor", "durch", "ohne", "gegen", "um", "zu", "ab", "seit", "innerhalb", "sowie", "bis"} {
		t.lexicon[w] = Preposition
	}

	// Auxiliaries
	for _, w := range []string{"is", "are", "was", "were", "be", "been", "being", "am",
		"have", "has", "had", "having", "do", "does", "did", "doing",
		"ist", "sind", "war", "waren", "sein", "bist", "seid", "hat", "haben", "hast", "habt",
		"hatte", "wird", "werden", "wirst", "wurde", "wurden"} {
		t.lexicon[w] = Auxiliary
	}

	// Modals
	for _, w := range []string{"can", "could", "will", "would", "shall", "should", "may", "might", "must",
		"kann", "kannst", "können", "muss", "müssen", "soll", "sollte", "sollten", "darf", "dürfen",
		"möchten", "möchtest", "will", "wollen"} {
		t.lexicon[w] = Modal
	}

	// Conjunctions
	for _, w := range []string{"and", "or", "but", "nor", "yet", "so", "because", "although",
		"while", "if", "unless", "until", "since", "when", "where", "whether",
		"und", "oder", "aber", "sondern", "denn", "weil", "dass", "wenn", "als", "ob", "sowohl",
		"bzw", "sowie", "sofern", "damit", "idealerweise", "wie"} {
		t.lexicon[w] = Conjunction
	}

	// Pronouns
	for _, w := range []string{"i", "you", "he", "she", "it", "we", "they", "me", "him", "us", "them",
		"ich", "du", "er", "sie", "es", "wir", "ihnen", "dich", "dir", "uns", "euch", "man", "sich"} {
		t.lexicon[w] = Pronoun
	}

	// Common adjectives found in postings
	for _, w := range []string{"new", "good", "great", "strong", "excellent", "solid", "first",
		"gut", "gute", "guten", "gutes", "sehr", "neu", "neue", "neuen", "erste", "ersten",
		"fundierte", "fundierten", "sicher", "sichere", "sicheren", "fließend", "fließende",
		"mehrjährige", "mehrjähriger", "relevante", "relevanten", "abgeschlossenes",
		"abgeschlossene", "vergleichbare", "vergleichbaren", "selbstständige", "eigenverantwortliche"} {
		t.lexicon[w] = Adjective
	}

	// Common adverbs
	for _, w := range []string{"very", "quite", "really", "too", "just", "only", "also",
		"now", "then", "here", "there", "always", "never", "often", "already", "still", "even",
		"auch", "nur", "noch", "schon", "bereits", "immer", "gerne", "gern", "ebenso", "zudem",
		"außerdem", "insbesondere", "vorzugsweise", "wünschenswert"} {
		t.lexicon[w] = Adverb
	}

	// Common verbs
	for _, w := range []string{"work", "working", "develop", "build", "design", "manage", "lead",
		"support", "offer", "bring", "join", "apply",
		"bieten", "bietest", "bringst", "bringen", "suchen", "arbeiten", "arbeitest", "entwickeln",
		"entwickelst", "unterstützen", "unterstützt", "gestalten", "betreuen", "verantworten",
		"freuen", "bewerben", "verfügst", "verfügen", "hast", "besitzt", "kennst"} {
		t.lexicon[w] = Verb
	}
}
