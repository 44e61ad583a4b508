// Package textnorm provides the shared canonicaliser used for BOTH alias index
// compilation AND document scanning, plus the looser normalisations used for
// variant matching.
package textnorm

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ============================================================================
// UNIFIED CANONICALIZER - Used for BOTH pattern compilation AND document scanning
// ============================================================================

// isJoiner returns true for punctuation that commonly appears INSIDE competence terms.
// These are preserved during canonicalization to keep multiword terms coherent.
// Examples: "Node.js", "C#", "C++", "CI/CD", "R&D", "Front-End"
func isJoiner(r rune) bool {
	switch r {
	case '\'', '’', '‘', // apostrophe, curly apostrophe variants
		'-', '–', '—', // hyphen, en-dash, em-dash
		'·', '.', '_', '/', '#', '&', '+':
		return true
	default:
		return false
	}
}

// isSeparator returns true for characters that split tokens.
// Everything that's not a letter, digit, or joiner is a separator.
func isSeparator(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsDigit(r) || isJoiner(r) {
		return false
	}
	return true
}

// isEdgeJoiner reports joiners that are sentence punctuation when they sit at
// the end of a token ("Scrum." / "Java-" / "SQL/"). '#' and '+' are kept so
// "C#" and "C++" survive.
func isEdgeJoiner(r rune) bool {
	switch r {
	case '.', '-', '\'', '/', '_', '&', '·':
		return true
	default:
		return false
	}
}

// foldRune lower-cases r and maps typographic variants onto their ASCII form.
func foldRune(ch rune) rune {
	c := unicode.ToLower(ch)
	// Normalize curly apostrophe to straight
	if c == '’' || c == '‘' {
		c = '\''
	}
	// Normalize en-dash/em-dash to hyphen
	if c == '–' || c == '—' {
		c = '-'
	}
	return c
}

// CanonicalizeForMatch transforms text into a normalized form for alias matching.
// This is THE function used by both index compilation and document scanning.
// Rules:
// - Fold to lowercase
// - Preserve letters, digits, and joiners (apostrophe, hyphen, period, plus, etc.)
// - Replace all other characters with a single space
// - Collapse multiple spaces into one
// - Trim leading/trailing spaces
func CanonicalizeForMatch(s string) string {
	var out strings.Builder
	out.Grow(len(s))

	lastWasSpace := true // Start true to trim leading spaces

	for _, ch := range s {
		c := foldRune(ch)

		if unicode.IsLetter(c) || unicode.IsDigit(c) || isJoiner(c) {
			out.WriteRune(c)
			lastWasSpace = false
		} else if !lastWasSpace {
			// Replace any separator with a single space (collapse runs)
			out.WriteRune(' ')
			lastWasSpace = true
		}
	}

	result := out.String()
	if len(result) > 0 && result[len(result)-1] == ' ' {
		result = result[:len(result)-1]
	}
	return result
}

// Key canonicalizes a term and strips edge punctuation from every word, so that
// "Scrum." and "Scrum" share one alias key.
func Key(s string) string {
	words := strings.Fields(CanonicalizeForMatch(s))
	out := words[:0]
	for _, w := range words {
		w = trimEdges(w)
		if w != "" {
			out = append(out, w)
		}
	}
	return strings.Join(out, " ")
}

// Compact removes all whitespace from the canonical key ("Power BI" -> "powerbi").
func Compact(s string) string {
	return strings.ReplaceAll(Key(s), " ", "")
}

var (
	reNonWord = regexp.MustCompile(`[^\p{L}\p{N}]+`)
	reSpaces  = regexp.MustCompile(`\s+`)
)

// Loose reduces text to letters and digits separated by single spaces:
// "CI/CD" -> "ci cd", "Machine-Learning" -> "machine learning".
func Loose(s string) string {
	s = strings.ToLower(s)
	s = reNonWord.ReplaceAllString(s, " ")
	s = reSpaces.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// ============================================================================
// TOKEN WITH OFFSETS - For span anchoring of original terms
// ============================================================================

// Tok represents a token with its position in the original text.
type Tok struct {
	Text  string // The token text (canonicalized, edge punctuation trimmed)
	Raw   string // The token as written in the original text
	Start int    // Byte offset in original string
	End   int    // Byte offset (exclusive)
}

// TokenizeWithOffsets splits text into tokens while preserving byte offsets.
// Trailing sentence punctuation is excluded from the token span.
func TokenizeWithOffsets(s string) []Tok {
	return AppendTokens(make([]Tok, 0, 64), s)
}

// AppendTokens is TokenizeWithOffsets writing into a caller-provided buffer.
func AppendTokens(out []Tok, s string) []Tok {
	i := 0
	for i < len(s) {
		// Skip separators
		for i < len(s) {
			r, w := utf8.DecodeRuneInString(s[i:])
			if !isSeparator(r) {
				break
			}
			i += w
		}
		start := i

		// Consume token characters
		for i < len(s) {
			r, w := utf8.DecodeRuneInString(s[i:])
			if isSeparator(r) {
				break
			}
			i += w
		}
		end := i

		// Trim edge punctuation off the span
		for end > start {
			r, w := utf8.DecodeLastRuneInString(s[start:end])
			if !isEdgeJoiner(r) && r != '–' && r != '—' && r != '’' {
				break
			}
			end -= w
		}
		for start < end {
			r, w := utf8.DecodeRuneInString(s[start:end])
			if r == '.' || !isEdgeJoiner(r) {
				break
			}
			start += w
		}

		if start < end {
			raw := s[start:end]
			out = append(out, Tok{Text: CanonicalizeForMatch(raw), Raw: raw, Start: start, End: end})
		}
	}

	return out
}

func trimEdges(w string) string {
	w = strings.TrimRightFunc(w, isEdgeJoiner)
	return strings.TrimLeftFunc(w, func(r rune) bool { return r != '.' && isEdgeJoiner(r) })
}

// ============================================================================
// OFFSET MAPPING - canonical byte positions back to the original text
// ============================================================================

// BuildOffsetMap creates a mapping from canonicalized byte positions to original positions.
// This allows matches found in canonicalized text to be mapped back to the original.
func BuildOffsetMap(original string) []int {
	mapping := make([]int, 0, len(original)+1)

	lastWasSpace := true
	origPos := 0

	for _, ch := range original {
		runeLen := utf8.RuneLen(ch)
		c := foldRune(ch)

		if unicode.IsLetter(c) || unicode.IsDigit(c) || isJoiner(c) {
			// This character appears in canonicalized output
			canonLen := utf8.RuneLen(c)
			for i := 0; i < canonLen; i++ {
				mapping = append(mapping, origPos)
			}
			lastWasSpace = false
		} else if !lastWasSpace {
			// Separator - becomes a single space
			mapping = append(mapping, origPos)
			lastWasSpace = true
		}

		origPos += runeLen
	}

	// Add final position for end-of-string
	mapping = append(mapping, origPos)

	return mapping
}

// MapOffset converts a canonicalized byte offset to an original byte offset.
func MapOffset(canonOffset int, mapping []int, originalLen int) int {
	if canonOffset >= len(mapping) {
		return originalLen
	}
	if canonOffset < 0 {
		return 0
	}
	return mapping[canonOffset]
}

// MapEnd converts an exclusive canonical end offset to an exclusive original
// end offset: the original position right after the last matched byte.
func MapEnd(canonEnd int, mapping []int, original string) int {
	if canonEnd <= 0 {
		return 0
	}
	last := MapOffset(canonEnd-1, mapping, len(original))
	if last >= len(original) {
		return len(original)
	}
	_, w := utf8.DecodeRuneInString(original[last:])
	return last + w
}

// ============================================================================
// WORD BOUNDARIES inside canonical text
// ============================================================================

// BoundaryBefore reports whether a match starting at start in canonical text
// begins on a word boundary.
func BoundaryBefore(canon string, start int) bool {
	i := start
	for i > 0 {
		r, w := utf8.DecodeLastRuneInString(canon[:i])
		if r == ' ' {
			return true
		}
		if r == '.' || !isEdgeJoiner(r) {
			return false
		}
		i -= w
	}
	return true
}

// BoundaryAfter reports whether a match ending at end in canonical text ends on
// a word boundary. Trailing edge punctuation ("scrum." / "sql,") still counts.
func BoundaryAfter(canon string, end int) bool {
	i := end
	for i < len(canon) {
		r, w := utf8.DecodeRuneInString(canon[i:])
		if r == ' ' {
			return true
		}
		if !isEdgeJoiner(r) {
			return false
		}
		i += w
	}
	return true
}
