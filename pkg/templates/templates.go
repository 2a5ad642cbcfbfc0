// Package templates provides the built-in diagram starters and syntax
// guides.
//
// Template sources live in catalog/ and are embedded into the binary.
// Files keep a trailing newline on disk; it is trimmed on load so inserting
// a template never leaves a dangling empty line in the editor.
package templates

import (
	"embed"
	"strings"

	"github.com/matzehuels/diagramcraft/pkg/errors"
)

//go:embed catalog/*.mmd
var catalog embed.FS

// Template is a named starter diagram.
type Template struct {
	Key         string  `json:"key"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Source      string  `json:"source"`
	Shapes      []Shape `json:"shapes,omitempty"`
}

// Shape documents one node shape of the flowchart syntax.
type Shape struct {
	Name        string `json:"name"`
	Syntax      string `json:"syntax"`
	Description string `json:"description"`
}

// Arrow documents one link style of the flowchart syntax.
type Arrow struct {
	Syntax      string `json:"syntax"`
	Description string `json:"description"`
}

// FlowchartShapes lists the node shapes shown next to the flowchart template.
var FlowchartShapes = []Shape{
	{"Rectangle", "A[Text]", "Standard process"},
	{"Rounded", "A(Text)", "Start/End"},
	{"Stadium", "A([Text])", "Subprocess"},
	{"Diamond", "A{Text}", "Decision"},
	{"Circle", "A((Text))", "Connection point"},
	{"Hexagon", "A{{Text}}", "Preparation"},
	{"Parallelogram", "A[/Text/]", "Input/Output"},
	{"Trapezoid", `A[\Text/]`, "Manual operation"},
}

// Arrows lists the flowchart connection types.
var Arrows = []Arrow{
	{"A --> B", "Solid arrow"},
	{"A -.-> B", "Dotted arrow"},
	{"A ==> B", "Thick arrow"},
	{"A -->|text| B", "Arrow with label"},
	{"A ---|text| B", "Open link with label"},
}

var entries = []struct {
	key, name, description string
	shapes                 []Shape
}{
	{"flowchart", "Flowchart", "Create process flows and decision trees", FlowchartShapes},
	{"sequence", "Sequence Diagram", "Show interactions between objects over time", nil},
	{"classDiagram", "Class Diagram", "Model object-oriented systems", nil},
	{"stateDiagram", "State Diagram", "Show state transitions", nil},
	{"erDiagram", "ER Diagram", "Database entity relationships", nil},
	{"gantt", "Gantt Chart", "Project timeline and tasks", nil},
	{"pie", "Pie Chart", "Show proportional data", nil},
	{"gitGraph", "Git Graph", "Visualize Git branches", nil},
}

func load(key string) string {
	data, err := catalog.ReadFile("catalog/" + key + ".mmd")
	if err != nil {
		// Every entry has a file; a miss is a build mistake.
		panic("templates: missing catalog/" + key + ".mmd")
	}
	return strings.TrimRight(string(data), "\n")
}

// DefaultSource is the source of newly created projects.
func DefaultSource() string { return load("default") }

// All returns every template in display order.
func All() []Template {
	out := make([]Template, len(entries))
	for i, e := range entries {
		out[i] = Template{
			Key:         e.key,
			Name:        e.name,
			Description: e.description,
			Source:      load(e.key),
			Shapes:      e.shapes,
		}
	}
	return out
}

// Keys returns the template keys in display order.
func Keys() []string {
	keys := make([]string, len(entries))
	for i, e := range entries {
		keys[i] = e.key
	}
	return keys
}

// Get returns the template with key. Keys match case-insensitively.
func Get(key string) (Template, error) {
	for _, t := range All() {
		if strings.EqualFold(t.Key, key) {
			return t, nil
		}
	}
	return Template{}, errors.New(errors.ErrCodeTemplateNotFound,
		"unknown template %q (want one of %s)", key, strings.Join(Keys(), ", "))
}
