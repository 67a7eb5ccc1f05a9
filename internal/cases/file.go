package cases

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Harshitk-cp/dilemma/internal/domain"
	"gopkg.in/yaml.v3"
)

var ErrInvalidCase = errors.New("invalid case file")

// caseFile is the on-disk YAML layout of one case.
type caseFile struct {
	ID               string         `yaml:"id"`
	Title            string         `yaml:"title"`
	OpeningNarrative string         `yaml:"opening_narrative"`
	TransitionRules  string         `yaml:"transition_rules"`
	InitialFluents   []string       `yaml:"initial_fluents"`
	DecisionPoints   []decisionFile `yaml:"decision_points"`
}

type decisionFile struct {
	ID       string       `yaml:"id"`
	Question string       `yaml:"question"`
	Context  string       `yaml:"context"`
	Options  []optionFile `yaml:"options"`
}

type optionFile struct {
	ID          string `yaml:"id"`
	Label       string `yaml:"label"`
	Description string `yaml:"description"`
	Reference   bool   `yaml:"reference"`
}

// FileError reports a case file that could not be loaded.
type FileError struct {
	Path string
	Err  error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e *FileError) Unwrap() error {
	return e.Err
}

func isCaseFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}

// LoadDir parses every case file in dir. Files that fail to parse or validate
// are returned as errors and left out of the result; so are files whose id
// duplicates one already loaded.
func LoadDir(dir string) (map[string]*domain.CaseData, []error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, []error{fmt.Errorf("read cases dir: %w", err)}
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && isCaseFile(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	loaded := make(map[string]*domain.CaseData, len(names))
	var errs []error
	for _, name := range names {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			errs = append(errs, &FileError{Path: path, Err: err})
			continue
		}
		c, err := ParseCase(data, strings.TrimSuffix(name, filepath.Ext(name)))
		if err != nil {
			errs = append(errs, &FileError{Path: path, Err: err})
			continue
		}
		if _, dup := loaded[c.CaseID]; dup {
			errs = append(errs, &FileError{Path: path, Err: fmt.Errorf("%w: duplicate case id %q", ErrInvalidCase, c.CaseID)})
			continue
		}
		loaded[c.CaseID] = c
	}
	return loaded, errs
}

// ParseCase decodes one YAML case. defaultID is used when the file has no id.
// A case with no decision points parses; starting a session on it does not.
func ParseCase(data []byte, defaultID string) (*domain.CaseData, error) {
	var f caseFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCase, err)
	}

	id := strings.TrimSpace(f.ID)
	if id == "" {
		id = defaultID
	}
	if id == "" {
		return nil, fmt.Errorf("%w: missing id", ErrInvalidCase)
	}

	c := &domain.CaseData{
		CaseID:           id,
		Title:            strings.TrimSpace(f.Title),
		OpeningNarrative: strings.TrimSpace(f.OpeningNarrative),
		TransitionRules:  strings.TrimSpace(f.TransitionRules),
		InitialFluents:   domain.NewFluentSet(f.InitialFluents...),
		DecisionPoints:   make([]domain.DecisionPoint, 0, len(f.DecisionPoints)),
	}
	if c.Title == "" {
		c.Title = id
	}

	seen := make(map[string]bool, len(f.DecisionPoints))
	for i, d := range f.DecisionPoints {
		dp, err := d.toDomain(i)
		if err != nil {
			return nil, err
		}
		if seen[dp.ID] {
			return nil, fmt.Errorf("%w: duplicate decision point id %q", ErrInvalidCase, dp.ID)
		}
		seen[dp.ID] = true
		c.DecisionPoints = append(c.DecisionPoints, dp)
	}
	return c, nil
}

func (d decisionFile) toDomain(i int) (domain.DecisionPoint, error) {
	dp := domain.DecisionPoint{
		ID:       strings.TrimSpace(d.ID),
		Question: strings.TrimSpace(d.Question),
		Context:  strings.TrimSpace(d.Context),
	}
	if dp.ID == "" {
		dp.ID = fmt.Sprintf("dp-%d", i+1)
	}
	if dp.Question == "" {
		return dp, fmt.Errorf("%w: decision point %s has no question", ErrInvalidCase, dp.ID)
	}
	if len(d.Options) == 0 {
		return dp, fmt.Errorf("%w: decision point %s has no options", ErrInvalidCase, dp.ID)
	}

	refs := 0
	for j, o := range d.Options {
		opt := domain.Option{
			ID:          strings.TrimSpace(o.ID),
			Label:       strings.TrimSpace(o.Label),
			Description: strings.TrimSpace(o.Description),
			IsReference: o.Reference,
		}
		if opt.ID == "" {
			opt.ID = fmt.Sprintf("%s-opt-%d", dp.ID, j+1)
		}
		if opt.Label == "" {
			return dp, fmt.Errorf("%w: option %d of %s has no label", ErrInvalidCase, j, dp.ID)
		}
		if opt.IsReference {
			refs++
		}
		dp.Options = append(dp.Options, opt)
	}
	if refs > 1 {
		return dp, fmt.Errorf("%w: decision point %s flags %d reference options", ErrInvalidCase, dp.ID, refs)
	}
	return dp, nil
}

func cloneCase(c *domain.CaseData) *domain.CaseData {
	out := *c
	out.DecisionPoints = make([]domain.DecisionPoint, len(c.DecisionPoints))
	for i, dp := range c.DecisionPoints {
		dp.Options = append([]domain.Option(nil), dp.Options...)
		out.DecisionPoints[i] = dp
	}
	return &out
}
