package ledger

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

var _ Backend = (*JSONFile)(nil)

// JSONFile keeps the ledger in one hand-editable JSON document plus a plain
// text ignore list with one term per line. Every operation re-reads the files,
// so edits made by an operator between runs take effect.
type JSONFile struct {
	path       string
	ignorePath string
	logger     *slog.Logger
	mu         sync.Mutex
}

type ledgerDoc struct {
	Pending  map[string]Candidate `json:"pending"`
	Approved []Approval           `json:"approved"`
}

// NewJSONFile creates a backend over path and ignorePath. Neither file needs
// to exist yet.
func NewJSONFile(path, ignorePath string, logger *slog.Logger) *JSONFile {
	if logger == nil {
		logger = slog.Default()
	}
	return &JSONFile{path: path, ignorePath: ignorePath, logger: logger}
}

// load reads the ledger document. A missing file is empty state; a corrupt
// one is logged, moved aside and treated as empty.
func (j *JSONFile) load() ledgerDoc {
	doc := ledgerDoc{Pending: make(map[string]Candidate)}
	data, err := os.ReadFile(j.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			j.logger.Warn("ledger unreadable, starting empty", "path", j.path, "err", err)
		}
		return doc
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return doc
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		aside := fmt.Sprintf("%s.corrupt-%d", j.path, time.Now().UnixNano())
		_ = os.Rename(j.path, aside)
		j.logger.Warn("ledger state discarded",
			"path", j.path, "moved_to", aside, "err", fmt.Errorf("%w: %v", ErrCorruptState, err))
		return ledgerDoc{Pending: make(map[string]Candidate)}
	}
	if doc.Pending == nil {
		doc.Pending = make(map[string]Candidate)
	}
	return doc
}

func (j *JSONFile) save(doc ledgerDoc) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	return writeAtomic(j.path, data)
}

func (j *JSONFile) Merge(ctx context.Context, candidates []Candidate) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	doc := j.load()
	for _, c := range candidates {
		k := c.Key()
		if old, ok := doc.Pending[k]; ok {
			c = MergeCandidate(old, c)
		}
		doc.Pending[k] = c
	}
	return j.save(doc)
}

func (j *JSONFile) Pending(ctx context.Context) ([]Candidate, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	doc := j.load()
	out := make([]Candidate, 0, len(doc.Pending))
	for _, c := range doc.Pending {
		out = append(out, c)
	}
	return out, nil
}

func (j *JSONFile) Approve(ctx context.Context, a Approval) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	doc := j.load()
	dropTerm(doc.Pending, a.Term)
	key := TermKey(a.Term)
	replaced := false
	for i, prev := range doc.Approved {
		if TermKey(prev.Term) == key {
			doc.Approved[i] = a
			replaced = true
		}
	}
	if !replaced {
		doc.Approved = append(doc.Approved, a)
	}
	return j.save(doc)
}

func (j *JSONFile) Approved(ctx context.Context) ([]Approval, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.load().Approved, nil
}

func (j *JSONFile) Ignored(ctx context.Context) (map[string]bool, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.readIgnored()
}

func (j *JSONFile) readIgnored() (map[string]bool, error) {
	out := make(map[string]bool)
	if j.ignorePath == "" {
		return out, nil
	}
	f, err := os.Open(j.ignorePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return out, nil
		}
		return nil, fmt.Errorf("open ignore list: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out[TermKey(line)] = true
	}
	return out, sc.Err()
}

func (j *JSONFile) AddIgnored(ctx context.Context, term string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.ignorePath == "" {
		return fmt.Errorf("%w: no ignore list configured", ErrInvalidTerm)
	}
	ignored, err := j.readIgnored()
	if err != nil {
		return err
	}
	if !ignored[TermKey(term)] {
		if err := os.MkdirAll(filepath.Dir(j.ignorePath), 0o755); err != nil {
			return err
		}
		f, err := os.OpenFile(j.ignorePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("open ignore list: %w", err)
		}
		if _, err := fmt.Fprintln(f, strings.TrimSpace(term)); err != nil {
			f.Close()
			return fmt.Errorf("append ignore list: %w", err)
		}
		if err := f.Close(); err != nil {
			return err
		}
	}

	doc := j.load()
	if dropTerm(doc.Pending, term) > 0 {
		return j.save(doc)
	}
	return nil
}

func (j *JSONFile) Close() error { return nil }

// dropTerm removes every role's pending row for term.
func dropTerm(pending map[string]Candidate, term string) int {
	key := TermKey(term)
	var drop []string
	for k, c := range pending {
		if TermKey(c.Term) == key {
			drop = append(drop, k)
		}
	}
	sort.Strings(drop)
	for _, k := range drop {
		delete(pending, k)
	}
	return len(drop)
}

// writeAtomic replaces path with data via a temp file and rename.
func writeAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
