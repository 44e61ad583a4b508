package taxonomy

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// inferLevel maps a domain file's path, relative to the domain directory, to
// a level when the file carries none.
func inferLevel(rel string) int {
	p := strings.ToLower(filepath.ToSlash(rel))
	switch {
	case strings.Contains(p, "academia"), strings.Contains(p, "curriculum"):
		return LevelAcademia
	case strings.Contains(p, "literature"), strings.Contains(p, "practitioner"):
		return LevelLiterature
	}
	return 0
}

type domainFile struct {
	Domain string          `json:"domain"`
	Level  int             `json:"level"`
	Terms  json.RawMessage `json:"terms"`
}

// LoadDomainTerms walks dir for supplementary *.json and *.csv domain files.
// A JSON file is {"domain", "level", "terms": [string | {term, level}]} or a
// bare array of terms; a CSV file has rows of term[,level]. Files whose level
// can neither be read nor inferred from their path are skipped with a warning.
func LoadDomainTerms(dir string, logger *slog.Logger) ([]DomainTerm, error) {
	if dir == "" {
		return nil, nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	if _, err := os.Stat(dir); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var out []DomainTerm
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		rel, _ := filepath.Rel(dir, path)
		domain := strings.TrimSuffix(filepath.ToSlash(rel), filepath.Ext(rel))

		var terms []DomainTerm
		switch strings.ToLower(filepath.Ext(path)) {
		case ".json":
			terms, err = readDomainJSON(path, domain)
		case ".csv":
			terms, err = readDomainCSV(path, domain)
		default:
			return nil
		}
		if err != nil {
			logger.Warn("skipping domain file", "path", path, "err", err)
			return nil
		}
		out = append(out, terms...)
		return nil
	})
	return out, err
}

func readDomainJSON(path, domain string) ([]DomainTerm, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var f domainFile
	if err := json.Unmarshal(data, &f); err != nil || f.Terms == nil {
		// Bare array of terms.
		f = domainFile{Terms: data}
	}
	level := f.Level
	if level == 0 {
		level = inferLevel(domain)
	}
	if f.Domain != "" {
		domain = f.Domain
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(f.Terms, &raw); err != nil {
		return nil, fmt.Errorf("%w: terms: %v", ErrMalformedRecord, err)
	}

	out := make([]DomainTerm, 0, len(raw))
	for _, r := range raw {
		t := DomainTerm{Domain: domain, Level: level}
		var s string
		if err := json.Unmarshal(r, &s); err == nil {
			t.Term = s
		} else {
			var obj map[string]any
			if err := json.Unmarshal(r, &obj); err != nil {
				continue
			}
			t.Term = firstString(obj, append([]string{"term"}, labelKeys...))
			if l := firstInt(obj, levelKeys); l != 0 {
				t.Level = l
			}
		}
		if t, ok := validTerm(t); ok {
			out = append(out, t)
		}
	}
	if len(out) == 0 && len(raw) > 0 {
		return nil, fmt.Errorf("%w: no level for %s", ErrMalformedRecord, path)
	}
	return out, nil
}

func readDomainCSV(path, domain string) ([]DomainTerm, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	rows, err := r.ReadAll()
	if err != nil {
		return nil, err
	}

	level := inferLevel(domain)
	out := make([]DomainTerm, 0, len(rows))
	for i, row := range rows {
		term := cell(row, 0)
		if i == 0 && (strings.EqualFold(term, "term") || strings.EqualFold(term, "label")) {
			continue
		}
		t := DomainTerm{Term: term, Domain: domain, Level: level}
		if l, err := strconv.Atoi(cell(row, 1)); err == nil {
			t.Level = l
		}
		if t, ok := validTerm(t); ok {
			out = append(out, t)
		}
	}
	if len(out) == 0 && len(rows) > 1 {
		return nil, fmt.Errorf("%w: no level for %s", ErrMalformedRecord, path)
	}
	return out, nil
}

func validTerm(t DomainTerm) (DomainTerm, bool) {
	t.Term = strings.TrimSpace(t.Term)
	if t.Term == "" || t.Level < LevelDiscovery || t.Level > LevelAcademia {
		return t, false
	}
	return t, true
}
