package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Scenario defines a live-query scenario: tables, the queries watched over
// them, the mutations applied and the assertions checked afterwards.
type Scenario struct {
	// Name uniquely identifies this scenario.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Schemas lists CUE manifest paths declaring tables.
	// Paths are relative to the scenario file location.
	Schemas []string `yaml:"schemas,omitempty"`

	// Tables declares tables inline as column name to type name.
	Tables map[string]map[string]string `yaml:"tables,omitempty"`

	// Queries are constructed in order before any step runs.
	Queries []QueryDef `yaml:"queries"`

	// Steps are the mutations, applied in order.
	Steps []Step `yaml:"steps"`

	// Assertions are checked after the last step.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// QueryDef describes one query. Top-level queries need a name; nested ones
// are named by their position.
type QueryDef struct {
	Name       string               `yaml:"name,omitempty"`
	Table      string               `yaml:"table"`
	Count      bool                 `yaml:"count,omitempty"`
	Select     []string             `yaml:"select,omitempty"`
	Filter     map[string]any       `yaml:"filter,omitempty"`
	Sort       []string             `yaml:"sort,omitempty"`
	GroupBy    string               `yaml:"group_by,omitempty"`
	Subqueries map[string]*QueryDef `yaml:"subqueries,omitempty"`
	PerGroup   *QueryDef            `yaml:"per_group,omitempty"`

	// Error is the config error code construction must fail with.
	Error string `yaml:"error,omitempty"`
}

// Step is one mutation. Exactly one of its actions is set.
type Step struct {
	Insert      *RowStep `yaml:"insert,omitempty"`
	Update      *RowStep `yaml:"update,omitempty"`
	Delete      *RowStep `yaml:"delete,omitempty"`
	Transaction []Step   `yaml:"transaction,omitempty"`

	// Error is a substring the step's error must contain. Empty means the
	// step must succeed.
	Error string `yaml:"error,omitempty"`
}

// RowStep addresses one row of one table.
type RowStep struct {
	Table  string         `yaml:"table"`
	ID     string         `yaml:"id,omitempty"`
	Values map[string]any `yaml:"values,omitempty"`
}

// Assertion validates the state after the last step.
type Assertion struct {
	// Type is one of AssertResult, AssertChangeCount or AssertOracle.
	Type string `yaml:"type"`

	// Query names the top-level query the assertion is about.
	Query string `yaml:"query"`

	// Expect is the exported result (used by result).
	Expect any `yaml:"expect,omitempty"`

	// Count is the expected number of notifications (used by change_count).
	Count int `yaml:"count,omitempty"`

	// Kind restricts change_count to one change kind.
	Kind string `yaml:"kind,omitempty"`
}

// Assertion type constants.
const (
	AssertResult      = "result"
	AssertChangeCount = "change_count"
	AssertOracle      = "oracle"
)

// LoadScenario reads and parses a scenario YAML file, resolving schema paths
// relative to the file's directory.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file, resolving
// schema paths relative to basePath.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data, basePath)
}

// ParseScenario parses scenario YAML. Unknown fields are rejected.
func ParseScenario(data []byte, basePath string) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	for i, p := range scenario.Schemas {
		if !filepath.IsAbs(p) && basePath != "" {
			scenario.Schemas[i] = filepath.Join(basePath, p)
		}
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks the structure of s. Table and column names are
// checked later, when the tables exist.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Schemas) == 0 && len(s.Tables) == 0 {
		return fmt.Errorf("at least one of schemas or tables is required")
	}
	if len(s.Queries) == 0 {
		return fmt.Errorf("queries list is required and must be non-empty")
	}

	names := make(map[string]bool, len(s.Queries))
	for i := range s.Queries {
		q := &s.Queries[i]
		if q.Name == "" {
			return fmt.Errorf("query %d: name is required", i)
		}
		if names[q.Name] {
			return fmt.Errorf("query %d: duplicate name %q", i, q.Name)
		}
		names[q.Name] = true
		if err := validateQuery(q, q.Name); err != nil {
			return err
		}
	}

	for i := range s.Steps {
		if err := validateStep(&s.Steps[i], fmt.Sprintf("step %d", i)); err != nil {
			return err
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(a, names); err != nil {
			return fmt.Errorf("assertion %d: %w", i, err)
		}
	}
	return nil
}

func validateQuery(q *QueryDef, path string) error {
	if q.Table == "" {
		return fmt.Errorf("query %s: table is required", path)
	}
	if q.Count && (len(q.Select) > 0 || len(q.Sort) > 0 || len(q.Subqueries) > 0 || q.PerGroup != nil) {
		return fmt.Errorf("query %s: count queries take only filter and group_by", path)
	}
	for key, sub := range q.Subqueries {
		if sub == nil {
			return fmt.Errorf("query %s: subquery %q is empty", path, key)
		}
		if err := validateQuery(sub, path+"."+key); err != nil {
			return err
		}
	}
	if q.PerGroup != nil {
		if err := validateQuery(q.PerGroup, path+".per_group"); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(s *Step, path string) error {
	set := 0
	for _, ok := range []bool{s.Insert != nil, s.Update != nil, s.Delete != nil, s.Transaction != nil} {
		if ok {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("%s: exactly one of insert, update, delete or transaction is required", path)
	}

	switch {
	case s.Insert != nil:
		if s.Insert.Table == "" {
			return fmt.Errorf("%s: insert requires table", path)
		}
	case s.Update != nil:
		if s.Update.Table == "" || s.Update.ID == "" {
			return fmt.Errorf("%s: update requires table and id", path)
		}
		if len(s.Update.Values) == 0 {
			return fmt.Errorf("%s: update requires values", path)
		}
	case s.Delete != nil:
		if s.Delete.Table == "" || s.Delete.ID == "" {
			return fmt.Errorf("%s: delete requires table and id", path)
		}
	default:
		for i := range s.Transaction {
			if err := validateStep(&s.Transaction[i], fmt.Sprintf("%s.%d", path, i)); err != nil {
				return err
			}
		}
	}
	return nil
}

func validateAssertion(a Assertion, queries map[string]bool) error {
	switch a.Type {
	case AssertResult, AssertOracle:
	case AssertChangeCount:
		if a.Count < 0 {
			return fmt.Errorf("count must be non-negative")
		}
	case "":
		return fmt.Errorf("type is required")
	default:
		return fmt.Errorf("unknown type %q (want %s)", a.Type,
			strings.Join([]string{AssertResult, AssertChangeCount, AssertOracle}, ", "))
	}
	if !queries[a.Query] {
		return fmt.Errorf("unknown query %q", a.Query)
	}
	return nil
}
