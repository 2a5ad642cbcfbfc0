package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	derrors "github.com/matzehuels/diagramcraft/pkg/errors"
)

func TestParseFormats(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"empty defaults to svg", "", []string{"svg"}},
		{"single format", "svg", []string{"svg"}},
		{"multiple formats", "svg,pdf,png", []string{"svg", "pdf", "png"}},
		{"spaces and blanks", " svg , ,png", []string{"svg", "png"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseFormats(tt.input)
			if len(got) != len(tt.want) {
				t.Fatalf("parseFormats(%q) = %v, want %v", tt.input, got, tt.want)
			}
			for i, v := range got {
				if v != tt.want[i] {
					t.Errorf("parseFormats(%q)[%d] = %q, want %q", tt.input, i, v, tt.want[i])
				}
			}
		})
	}
}

func TestValidateFormats(t *testing.T) {
	tests := []struct {
		name    string
		formats []string
		wantErr bool
	}{
		{"valid svg", []string{"svg"}, false},
		{"valid all", []string{"svg", "png", "pdf"}, false},
		{"upper case", []string{"PNG"}, false},
		{"json is not exportable", []string{"json"}, true},
		{"mixed valid invalid", []string{"svg", "gif"}, true},
		{"empty slice", []string{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateFormats(tt.formats)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateFormats(%v) error = %v, wantErr %v", tt.formats, err, tt.wantErr)
			}
			if err != nil && !derrors.Is(err, derrors.ErrCodeInvalidFormat) {
				t.Errorf("validateFormats(%v) code = %s, want INVALID_FORMAT", tt.formats, derrors.GetCode(err))
			}
		})
	}
}

func TestBasePath(t *testing.T) {
	tests := []struct {
		output, input, want string
	}{
		{"", "diagrams/flow.mmd", "diagrams/flow"},
		{"", "-", "diagram"},
		{"out/flow.svg", "flow.mmd", "out/flow"},
		{"out/flow.PNG", "flow.mmd", "out/flow"},
		{"out/flow", "flow.mmd", "out/flow"},
		{"out/flow.v2", "flow.mmd", "out/flow.v2"},
	}
	for _, tt := range tests {
		if got := basePath(tt.output, tt.input); got != tt.want {
			t.Errorf("basePath(%q, %q) = %q, want %q", tt.output, tt.input, got, tt.want)
		}
	}
}

func TestRenderCommandWritesSVG(t *testing.T) {
	e := newTestEnv(t, "")
	input := e.writeFile(t, "flow.mmd", "flowchart LR\n  A[Start] --> B{Ready?}\n  B -->|yes| C[Ship]")

	if err := e.run(t, "render", input); err != nil {
		t.Fatalf("render error: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(e.dir, "flow.svg"))
	if err != nil {
		t.Fatalf("output not written next to input: %v", err)
	}
	if !strings.Contains(string(data), "<svg") {
		t.Errorf("output is not SVG: %.60s", data)
	}

	out := filepath.Join(e.dir, "nested", "custom.svg")
	if err := e.run(t, "render", input, "-o", out, "--theme", "dark"); err != nil {
		t.Fatalf("render -o error: %v", err)
	}
	if _, err := os.Stat(out); err != nil {
		t.Errorf("explicit output missing: %v", err)
	}
}

func TestRenderCommandErrors(t *testing.T) {
	e := newTestEnv(t, "")
	good := e.writeFile(t, "good.mmd", "flowchart TD\n  A --> B")
	bad := e.writeFile(t, "bad.mmd", "flowchart TD\n  A -->")

	tests := []struct {
		name string
		args []string
		code derrors.Code
	}{
		{"compile error", []string{"render", bad}, derrors.ErrCodeCompilation},
		{"unknown format", []string{"render", good, "-f", "gif"}, derrors.ErrCodeInvalidFormat},
		{"unknown engine", []string{"render", good, "--engine", "plantuml"}, derrors.ErrCodeInvalidEngine},
		{"unknown theme", []string{"render", good, "--theme", "pink"}, derrors.ErrCodeInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := e.run(t, tt.args...)
			if !derrors.Is(err, tt.code) {
				t.Errorf("%v error = %v, want %s", tt.args, err, tt.code)
			}
		})
	}

	if err := e.run(t, "render", filepath.Join(e.dir, "missing.mmd")); err == nil {
		t.Error("render of a missing file should fail")
	}
	if _, err := os.Stat(filepath.Join(e.dir, "bad.svg")); !os.IsNotExist(err) {
		t.Error("failed compile must not write output")
	}
}
