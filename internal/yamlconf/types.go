package yamlconf

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// campaignFile is one YAML document. A campaign may be split over several
// files; the loader merges them in file order.
type campaignFile struct {
	Campaign    string          `yaml:"campaign"`
	Description string          `yaml:"description"`
	Locals      map[string]any  `yaml:"locals"`
	Artifacts   []artifactEntry `yaml:"artifacts"`
	Sweep       []axisEntry     `yaml:"sweep"`
	Job         *jobEntry       `yaml:"job"`
}

type artifactEntry struct {
	Name          string   `yaml:"name"`
	Kind          string   `yaml:"kind"`
	Path          string   `yaml:"path"`
	Cwd           string   `yaml:"cwd"`
	Command       string   `yaml:"command"`
	Documentation string   `yaml:"documentation"`
	Inputs        []string `yaml:"inputs"`
	File          string   `yaml:"-"`
	Line          int      `yaml:"-"`
}

// UnmarshalYAML keeps the line of the entry for template diagnostics.
func (a *artifactEntry) UnmarshalYAML(node *yaml.Node) error {
	type alias artifactEntry
	if err := node.Decode((*alias)(a)); err != nil {
		return err
	}
	a.Line = node.Line
	return nil
}

type axisEntry struct {
	Axis      string     `yaml:"axis"`
	Values    []string   `yaml:"values"`
	AllowedBy *allowedBy `yaml:"allowed_by"`
}

// allowedBy restricts an axis by the value chosen for one earlier axis.
// Values of that axis that are not listed allow Default.
type allowedBy struct {
	Axis    string              `yaml:"axis"`
	Values  map[string][]string `yaml:"values"`
	Default []string            `yaml:"default"`
}

type jobEntry struct {
	Timeout   string       `yaml:"timeout"`
	Artifacts []string     `yaml:"artifacts"`
	Command   stringOrList `yaml:"command"`
	Outdir    string       `yaml:"outdir"`
	Line      int          `yaml:"-"`
}

func (j *jobEntry) UnmarshalYAML(node *yaml.Node) error {
	type alias jobEntry
	if err := node.Decode((*alias)(j)); err != nil {
		return err
	}
	j.Line = node.Line
	return nil
}

// stringOrList accepts either a shell command string or an argv list.
type stringOrList struct {
	Shell string
	Argv  []string
	Set   bool
	Line  int
}

func (s *stringOrList) UnmarshalYAML(node *yaml.Node) error {
	s.Set = true
	s.Line = node.Line
	switch node.Kind {
	case yaml.ScalarNode:
		return node.Decode(&s.Shell)
	case yaml.SequenceNode:
		return node.Decode(&s.Argv)
	default:
		return fmt.Errorf("line %d: command must be a string or a list of strings", node.Line)
	}
}
