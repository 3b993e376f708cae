package predicting

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Built-in category names
const (
	Biodegradable    = "Biodegradable"
	NonBiodegradable = "Non-Biodegradable"
)

// VocabularyEntry maps one raw predictor label to a category
type VocabularyEntry struct {
	Label         string `yaml:"label"`
	Category      string `yaml:"category"`
	Biodegradable bool   `yaml:"biodegradable"`
}

// Vocabulary is the closed set of labels a predictor may return
type Vocabulary struct {
	categories map[string]Category
	labels     []string
}

// NewVocabulary builds a vocabulary from entries. Labels are matched
// case-insensitively after trimming whitespace.
func NewVocabulary(entries []VocabularyEntry) (*Vocabulary, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("vocabulary must contain at least one label")
	}
	v := &Vocabulary{categories: make(map[string]Category, len(entries))}
	for _, e := range entries {
		key := labelKey(e.Label)
		if key == "" {
			return nil, fmt.Errorf("vocabulary entry with empty label")
		}
		if strings.TrimSpace(e.Category) == "" {
			return nil, fmt.Errorf("vocabulary label %q has no category", e.Label)
		}
		if _, dup := v.categories[key]; dup {
			return nil, fmt.Errorf("duplicate vocabulary label %q", e.Label)
		}
		v.categories[key] = Category{Name: strings.TrimSpace(e.Category), Biodegradable: e.Biodegradable}
		v.labels = append(v.labels, strings.TrimSpace(e.Label))
	}
	return v, nil
}

func labelKey(label string) string {
	return strings.ToLower(strings.TrimSpace(label))
}

// Lookup resolves a raw predictor label
func (v *Vocabulary) Lookup(label string) (Category, bool) {
	c, ok := v.categories[labelKey(label)]
	return c, ok
}

// Labels returns the accepted labels in declaration order
func (v *Vocabulary) Labels() []string {
	return append([]string(nil), v.labels...)
}

// Fingerprint is a short stable hash of the label to category mapping.
// Declaration order and label case do not affect it.
func (v *Vocabulary) Fingerprint() string {
	keys := make([]string, 0, len(v.categories))
	for key := range v.categories {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	h := sha1.New()
	for _, key := range keys {
		c := v.categories[key]
		fmt.Fprintf(h, "%s\t%s\t%t\n", key, c.Name, c.Biodegradable)
	}
	return hex.EncodeToString(h.Sum(nil))[:12]
}

// BinaryVocabulary matches the biodegradable / non-biodegradable model
func BinaryVocabulary() *Vocabulary {
	v, _ := NewVocabulary([]VocabularyEntry{
		{Label: "bio-degradable", Category: Biodegradable, Biodegradable: true},
		{Label: "biodegradable", Category: Biodegradable, Biodegradable: true},
		{Label: "non-biodegradable", Category: NonBiodegradable},
		{Label: "non-bio-degradable", Category: NonBiodegradable},
	})
	return v
}

// WasteTypeVocabulary matches the four-way material model
func WasteTypeVocabulary() *Vocabulary {
	v, _ := NewVocabulary([]VocabularyEntry{
		{Label: "Plastic", Category: "Plastic"},
		{Label: "Paper", Category: "Paper", Biodegradable: true},
		{Label: "Metal", Category: "Metal"},
		{Label: "Others", Category: "Others"},
	})
	return v
}

// VocabularyByName returns a built-in vocabulary
func VocabularyByName(name string) (*Vocabulary, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "binary":
		return BinaryVocabulary(), nil
	case "waste-type":
		return WasteTypeVocabulary(), nil
	default:
		return nil, fmt.Errorf("unknown vocabulary %q (valid: binary, waste-type)", name)
	}
}

type vocabularyFile struct {
	Labels []VocabularyEntry `yaml:"labels"`
}

// LoadVocabulary reads a YAML vocabulary file:
//
//	labels:
//	  - label: bio-degradable
//	    category: Biodegradable
//	    biodegradable: true
func LoadVocabulary(path string) (*Vocabulary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading vocabulary file: %w", err)
	}
	var file vocabularyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing vocabulary file: %w", err)
	}
	v, err := NewVocabulary(file.Labels)
	if err != nil {
		return nil, fmt.Errorf("building vocabulary from %s: %w", path, err)
	}
	return v, nil
}
