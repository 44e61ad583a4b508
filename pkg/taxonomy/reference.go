package taxonomy

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Reference file layout under the reference directory.
const (
	ReferenceSkillsCSV  = "skills.csv"
	ReferenceSkillsJSON = "skills.json"
	ReferenceGenerated  = "generated_snapshot.json"
	collectionsDir      = "collections"
)

// CSV header aliases, ESCO export names first.
var (
	csvLabelCols   = []string{"preferredlabel", "preferred_label", "label", "name"}
	csvIDCols      = []string{"concepturi", "uri", "id", "identifier"}
	csvAliasCols   = []string{"altlabels", "alternate_labels", "aliases", "synonyms"}
	csvDigitalCols = []string{"isdigital", "is_digital", "digital"}
	csvLevelCols   = []string{"level"}
)

// LoadReference builds entries from the offline reference files in dir:
// skills.csv (or skills.json) plus one URI list per collection in
// collections/<name>.csv. It returns the entries and the number of skipped
// records.
func LoadReference(dir string) ([]Entry, int, error) {
	if dir == "" {
		return nil, 0, fmt.Errorf("%w: no reference directory", ErrSourceUnavailable)
	}

	var (
		entries []Entry
		skipped int
		err     error
	)
	switch {
	case fileExists(filepath.Join(dir, ReferenceSkillsCSV)):
		entries, skipped, err = readSkillsCSV(filepath.Join(dir, ReferenceSkillsCSV))
	case fileExists(filepath.Join(dir, ReferenceSkillsJSON)):
		var data []byte
		data, err = os.ReadFile(filepath.Join(dir, ReferenceSkillsJSON))
		if err == nil {
			entries, skipped, err = ParseRecords(data)
		}
	default:
		return nil, 0, fmt.Errorf("%w: no skills file in %s", ErrSourceUnavailable, dir)
	}
	if err != nil {
		return nil, skipped, err
	}

	collections, err := readCollections(filepath.Join(dir, collectionsDir))
	if err != nil {
		return nil, skipped, err
	}
	for i := range entries {
		for _, name := range collections[entries[i].URI] {
			if !entries[i].HasCollection(name) {
				entries[i].Collections = append(entries[i].Collections, name)
			}
		}
	}
	return entries, skipped, nil
}

func readSkillsCSV(path string) ([]Entry, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if err != nil {
		return nil, 0, fmt.Errorf("%w: read header %s: %v", ErrSourceUnavailable, path, err)
	}
	cols := headerIndex(header)
	labelCol, idCol := pickCol(cols, csvLabelCols), pickCol(cols, csvIDCols)
	if labelCol < 0 || idCol < 0 {
		return nil, 0, fmt.Errorf("%w: %s lacks label or uri column", ErrSourceUnavailable, path)
	}
	aliasCol, digitalCol, levelCol := pickCol(cols, csvAliasCols), pickCol(cols, csvDigitalCols), pickCol(cols, csvLevelCols)

	var entries []Entry
	skipped := 0
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			skipped++
			continue
		}
		e := Entry{
			PreferredLabel: cell(row, labelCol),
			URI:            cell(row, idCol),
			AltLabels:      SplitList(cell(row, aliasCol)),
			IsDigital:      ParseBool(cell(row, digitalCol)),
		}
		if lvl := cell(row, levelCol); lvl != "" {
			fmt.Sscanf(lvl, "%d", &e.Level)
		}
		if e.PreferredLabel == "" || e.URI == "" {
			skipped++
			continue
		}
		entries = append(entries, e)
	}
	return entries, skipped, nil
}

// readCollections maps concept URI -> collection names from
// collections/<name>.csv. Each file lists URIs in a uri/conceptUri column or,
// without a recognisable header, in its first column.
func readCollections(dir string) (map[string][]string, error) {
	out := make(map[string][]string)
	files, err := filepath.Glob(filepath.Join(dir, "*.csv"))
	if err != nil {
		return nil, err
	}
	for _, path := range files {
		name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		name = strings.TrimSuffix(strings.ToLower(name), "skillscollection")
		name = strings.Trim(name, "_- ")

		uris, err := readURIColumn(path)
		if err != nil {
			return nil, err
		}
		for _, u := range uris {
			out[u] = append(out[u], name)
		}
	}
	return out, nil
}

func readURIColumn(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrSourceUnavailable, path, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	col := pickCol(headerIndex(rows[0]), csvIDCols)
	start := 1
	if col < 0 {
		col, start = 0, 0
	}
	uris := make([]string, 0, len(rows))
	for _, row := range rows[start:] {
		if u := cell(row, col); u != "" {
			uris = append(uris, u)
		}
	}
	return uris, nil
}

func headerIndex(header []string) map[string]int {
	cols := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if _, dup := cols[h]; !dup {
			cols[h] = i
		}
	}
	return cols
}

func pickCol(cols map[string]int, names []string) int {
	for _, n := range names {
		if i, ok := cols[n]; ok {
			return i
		}
	}
	return -1
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func fileExists(path string) bool {
	st, err := os.Stat(path)
	return err == nil && !st.IsDir()
}
