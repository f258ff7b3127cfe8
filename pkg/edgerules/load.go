package edgerules

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/OFFIS-RIT/aai-resources/pkg/logger"

	"github.com/invopop/jsonschema"
	"gopkg.in/yaml.v3"
)

// File is the on-disk rule document, in JSON or YAML.
type File struct {
	Rules []RuleSpec `json:"rules" yaml:"rules" jsonschema:"required"`
}

// RuleSpec is one rule as written in a rule file.
type RuleSpec struct {
	From           string   `json:"from" yaml:"from" jsonschema:"required"`
	To             string   `json:"to" yaml:"to" jsonschema:"required"`
	Label          string   `json:"label" yaml:"label" jsonschema:"required"`
	Direction      string   `json:"direction" yaml:"direction" jsonschema:"required,enum=OUT,enum=IN"`
	Multiplicity   string   `json:"multiplicity,omitempty" yaml:"multiplicity,omitempty" jsonschema:"enum=ONE2ONE,enum=ONE2MANY,enum=MANY2ONE,enum=MANY2MANY"`
	ContainsOtherV string   `json:"contains-other-v,omitempty" yaml:"contains-other-v,omitempty"`
	DeleteOtherV   string   `json:"delete-other-v,omitempty" yaml:"delete-other-v,omitempty"`
	SvcInfra       string   `json:"SVC-INFRA,omitempty" yaml:"SVC-INFRA,omitempty"`
	PreventDelete  string   `json:"prevent-delete,omitempty" yaml:"prevent-delete,omitempty"`
	Default        FlexBool `json:"default,omitempty" yaml:"default,omitempty"`
	Description    string   `json:"description,omitempty" yaml:"description,omitempty"`
}

// FlexBool accepts true/false as a boolean or as a string.
type FlexBool bool

func (b *FlexBool) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*b = false
		return nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return fmt.Errorf("invalid boolean %s", data)
	}
	*b = FlexBool(v)
	return nil
}

func (b *FlexBool) UnmarshalYAML(node *yaml.Node) error {
	if node.Value == "" {
		*b = false
		return nil
	}
	v, err := strconv.ParseBool(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: invalid boolean %q", node.Line, node.Value)
	}
	*b = FlexBool(v)
	return nil
}

func (FlexBool) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		OneOf: []*jsonschema.Schema{
			{Type: "boolean"},
			{Type: "string", Enum: []any{"true", "false"}},
		},
	}
}

// Rule converts the file entry into a Rule. Property values may reference the
// rule direction as ${direction} or its opposite as !${direction}.
func (s RuleSpec) Rule() Rule {
	dir := strings.ToUpper(s.Direction)
	expand := func(v string) string {
		switch v {
		case "${direction}":
			return dir
		case "!${direction}":
			return flipDirection(dir)
		}
		return strings.ToUpper(v)
	}
	return Rule{
		From:           s.From,
		To:             s.To,
		Label:          s.Label,
		Direction:      dir,
		Multiplicity:   Multiplicity(strings.ToUpper(s.Multiplicity)),
		ContainsOtherV: expand(s.ContainsOtherV),
		DeleteOtherV:   expand(s.DeleteOtherV),
		SvcInfra:       expand(s.SvcInfra),
		PreventDelete:  expand(s.PreventDelete),
		Default:        bool(s.Default),
		Description:    s.Description,
	}
}

// Format of a rule document.
type Format int

const (
	JSON Format = iota
	YAML
)

// FormatFor picks the format from a file extension.
func FormatFor(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return YAML
	}
	return JSON
}

// Parse decodes a rule document and builds a table from it.
func Parse(data []byte, format Format) (*Table, error) {
	var f File
	var err error
	switch format {
	case YAML:
		err = yaml.Unmarshal(data, &f)
	default:
		err = json.Unmarshal(data, &f)
	}
	if err != nil {
		return nil, fmt.Errorf("decode edge rules: %w", err)
	}

	rules := make([]Rule, 0, len(f.Rules))
	for _, spec := range f.Rules {
		rules = append(rules, spec.Rule())
	}
	return NewTable(rules)
}

// LoadFile reads a rule file, JSON or YAML by extension.
func LoadFile(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read edge rules: %w", err)
	}
	t, err := Parse(data, FormatFor(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	logger.Debug("[EdgeRules][Load] Loaded edge rules", "file", path, "rules", t.Len())
	return t, nil
}

// FileSchema returns the JSON Schema of a rule document.
func FileSchema() *jsonschema.Schema {
	r := &jsonschema.Reflector{
		DoNotReference: true,
	}
	s := r.Reflect(&File{})
	s.Title = "A&AI edge rules"
	return s
}
