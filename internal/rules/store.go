// Package rules persists the ordered domain→folder rule table.
package rules

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gopkg.in/yaml.v3"

	"github.com/starford/imagesorter/internal/apperr"
	"github.com/starford/imagesorter/internal/filename"
	"github.com/starford/imagesorter/internal/models"
)

// domainRe accepts a bare host name: no scheme, port, path or whitespace.
var domainRe = regexp.MustCompile(`^[^\s/\\:?#@]+$`)

// document is the on-disk layout, shared by all formats. The "mappings"
// key keeps JSON files written by the Obsidian plugin readable.
type document struct {
	Mappings models.RuleSet `json:"mappings" yaml:"mappings" toml:"mappings"`
}

type format int

const (
	formatYAML format = iota
	formatTOML
	formatJSON
)

func formatFor(path string) (format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return formatYAML, nil
	case ".toml":
		return formatTOML, nil
	case ".json":
		return formatJSON, nil
	default:
		return 0, fmt.Errorf("rules: unsupported file extension %q (want .yaml, .toml or .json)", filepath.Ext(path))
	}
}

// Store holds the rule table in memory and persists it to a file.
// Readers always get a copy, so a sorting run sees one consistent table.
type Store struct {
	mu     sync.RWMutex
	edit   sync.Mutex // serializes read-modify-write edits
	path   string
	format format
	rules  models.RuleSet
}

// NewMemory creates a Store that is never written to disk.
func NewMemory(rs models.RuleSet) (*Store, error) {
	s := &Store{}
	if err := s.Replace(rs); err != nil {
		return nil, err
	}
	return s, nil
}

// Open loads the rule file at path. A missing file yields an empty table;
// it is created on the first Save.
func Open(path string) (*Store, error) {
	f, err := formatFor(path)
	if err != nil {
		return nil, err
	}
	s := &Store{path: path, format: f}
	if err := s.Load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the backing file, or "" for an in-memory store.
func (s *Store) Path() string { return s.path }

// Load re-reads the backing file, replacing the in-memory table.
func (s *Store) Load() error {
	if s.path == "" {
		return nil
	}
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.mu.Lock()
		s.rules = models.RuleSet{}
		s.mu.Unlock()
		return nil
	}
	if err != nil {
		return fmt.Errorf("rules: read %s: %w", s.path, err)
	}

	var doc document
	switch s.format {
	case formatYAML:
		err = yaml.Unmarshal(data, &doc)
	case formatTOML:
		err = toml.Unmarshal(data, &doc)
	case formatJSON:
		if len(strings.TrimSpace(string(data))) > 0 {
			err = json.Unmarshal(data, &doc)
		}
	}
	if err != nil {
		return fmt.Errorf("rules: parse %s: %w", s.path, err)
	}
	return s.Replace(doc.Mappings)
}

// Get returns a copy of the current rule table.
func (s *Store) Get() models.RuleSet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rules.Clone()
}

// Replace normalizes and validates rs, then swaps it in. It does not save.
func (s *Store) Replace(rs models.RuleSet) error {
	next := make(models.RuleSet, len(rs))
	for i, r := range rs {
		n := Normalize(r)
		if err := Validate(n); err != nil {
			return fmt.Errorf("%w: rule %d: %v", apperr.ErrInvalidRule, i, err)
		}
		next[i] = n
	}
	s.mu.Lock()
	s.rules = next
	s.mu.Unlock()
	return nil
}

// Save writes the current table to the backing file atomically.
func (s *Store) Save() error {
	if s.path == "" {
		return nil
	}
	doc := document{Mappings: s.Get()}

	var (
		data []byte
		err  error
	)
	switch s.format {
	case formatYAML:
		data, err = yaml.Marshal(doc)
	case formatTOML:
		var b strings.Builder
		err = toml.NewEncoder(&b).Encode(doc)
		data = []byte(b.String())
	case formatJSON:
		data, err = json.MarshalIndent(doc, "", "\t")
	}
	if err != nil {
		return fmt.Errorf("rules: encode: %w", err)
	}
	return writeAtomic(s.path, data)
}

// Add appends r and saves. It returns the index and the rule as stored,
// after normalization. An empty rule is allowed: it never matches.
func (s *Store) Add(r models.Rule) (int, models.Rule, error) {
	s.edit.Lock()
	defer s.edit.Unlock()

	rs := append(s.Get(), r)
	if err := s.commit(rs); err != nil {
		return 0, models.Rule{}, err
	}
	return len(rs) - 1, Normalize(r), nil
}

// Update overwrites the rule at index i and saves. It returns the rule as
// stored.
func (s *Store) Update(i int, r models.Rule) (models.Rule, error) {
	s.edit.Lock()
	defer s.edit.Unlock()

	rs := s.Get()
	if i < 0 || i >= len(rs) {
		return models.Rule{}, fmt.Errorf("rules: index %d: %w", i, apperr.ErrNotFound)
	}
	rs[i] = r
	if err := s.commit(rs); err != nil {
		return models.Rule{}, err
	}
	return Normalize(r), nil
}

// Remove deletes the rule at index i and saves.
func (s *Store) Remove(i int) error {
	s.edit.Lock()
	defer s.edit.Unlock()

	rs := s.Get()
	if i < 0 || i >= len(rs) {
		return fmt.Errorf("rules: index %d: %w", i, apperr.ErrNotFound)
	}
	rs = append(rs[:i], rs[i+1:]...)
	return s.commit(rs)
}

// ReplaceAndSave swaps in rs and persists it.
func (s *Store) ReplaceAndSave(rs models.RuleSet) error {
	s.edit.Lock()
	defer s.edit.Unlock()
	return s.commit(rs)
}

func (s *Store) commit(rs models.RuleSet) error {
	if err := s.Replace(rs); err != nil {
		return err
	}
	return s.Save()
}

// Normalize trims both fields, lower-cases the domain, strips one leading
// "www." and cleans the folder path.
func Normalize(r models.Rule) models.Rule {
	d := strings.ToLower(strings.TrimSpace(r.Domain))
	d = strings.TrimPrefix(d, "www.")
	return models.Rule{
		Domain: d,
		Folder: filename.NormalizePath(strings.TrimSpace(r.Folder)),
	}
}

// Validate checks a normalized rule.
func Validate(r models.Rule) error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Domain, validation.Match(domainRe).Error("must be a bare host name without scheme, port or path")),
		validation.Field(&r.Folder, validation.By(relativeFolder)),
	)
}

func relativeFolder(value interface{}) error {
	folder, _ := value.(string)
	if folder == "" {
		return nil
	}
	if filepath.IsAbs(folder) || strings.Contains(folder, ":") {
		return errors.New("must be relative to the vault")
	}
	for _, seg := range strings.Split(folder, "/") {
		if seg == "." || seg == ".." {
			return errors.New("must not contain . or .. segments")
		}
	}
	return nil
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("rules: mkdir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".rules-tmp-*")
	if err != nil {
		return fmt.Errorf("rules: create temp: %w", err)
	}
	tmpName := tmp.Name()
	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("rules: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("rules: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("rules: close temp: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rules: rename: %w", err)
	}
	success = true
	return nil
}
