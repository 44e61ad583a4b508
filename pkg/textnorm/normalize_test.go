package textnorm

import "testing"

func TestCanonicalizeForMatch(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Hello World", "hello world"},
		{"Node.js", "node.js"},
		{"C++ und C#", "c++ und c#"},
		{"Erfahrung  mit   SQL", "erfahrung mit sql"},
		{"Front-End Entwicklung", "front-end entwicklung"},
		// En-dash normalized to hyphen
		{"2020–2021", "2020-2021"},
		{"  (SQL)  ", "sql"},
	}

	for _, tc := range tests {
		result := CanonicalizeForMatch(tc.input)
		if result != tc.expected {
			t.Errorf("CanonicalizeForMatch(%q) = %q, want %q", tc.input, result, tc.expected)
		}
	}
}

func TestKeyTrimsSentencePunctuation(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Scrum.", "scrum"},
		{"SQL, Python.", "sql python"},
		{".NET", ".net"},
		{"C++", "c++"},
		{"Power BI", "power bi"},
	}
	for _, tc := range tests {
		if got := Key(tc.input); got != tc.expected {
			t.Errorf("Key(%q) = %q, want %q", tc.input, got, tc.expected)
		}
	}
}

func TestLooseAndCompact(t *testing.T) {
	if got := Loose("CI/CD-Pipelines"); got != "ci cd pipelines" {
		t.Errorf("Loose = %q", got)
	}
	if got := Compact("Power BI"); got != "powerbi" {
		t.Errorf("Compact = %q", got)
	}
}

func TestTokenizeWithOffsets(t *testing.T) {
	text := "Erfahrung mit SQL, Node.js und C++."
	toks := TokenizeWithOffsets(text)

	want := []string{"erfahrung", "mit", "sql", "node.js", "und", "c++"}
	if len(toks) != len(want) {
		t.Fatalf("got %d tokens, want %d: %+v", len(toks), len(want), toks)
	}
	for i, tok := range toks {
		if tok.Text != want[i] {
			t.Errorf("token %d = %q, want %q", i, tok.Text, want[i])
		}
		if text[tok.Start:tok.End] != tok.Raw {
			t.Errorf("token %d raw %q does not match span %q", i, tok.Raw, text[tok.Start:tok.End])
		}
	}
	if toks[2].Raw != "SQL" {
		t.Errorf("expected raw SQL without comma, got %q", toks[2].Raw)
	}
}

func TestOffsetMapRoundTrip(t *testing.T) {
	text := "Wir suchen: Scrum-Master (m/w/d) mit Jira"
	canon := CanonicalizeForMatch(text)
	mapping := BuildOffsetMap(text)

	idx := len("wir suchen scrum-master m/w/d mit ")
	if canon[idx:idx+4] != "jira" {
		t.Fatalf("unexpected canonical text %q", canon)
	}
	start := MapOffset(idx, mapping, len(text))
	end := MapEnd(idx+4, mapping, text)
	if text[start:end] != "Jira" {
		t.Errorf("mapped span = %q, want Jira", text[start:end])
	}
}

func TestBoundaries(t *testing.T) {
	canon := "javascript und scrum. node.js"
	if BoundaryAfter(canon, 4) {
		t.Error("java inside javascript must not end on a boundary")
	}
	if !BoundaryAfter(canon, len("javascript und scrum")) {
		t.Error("scrum followed by a period ends on a boundary")
	}
	if BoundaryAfter(canon, len("javascript und scrum. node")) {
		t.Error("node inside node.js must not end on a boundary")
	}
	if !BoundaryBefore(canon, len("javascript ")) {
		t.Error("und starts on a boundary")
	}
	if BoundaryBefore(canon, len("javascript und scrum. node.")) {
		t.Error("js inside node.js must not start on a boundary")
	}
}
