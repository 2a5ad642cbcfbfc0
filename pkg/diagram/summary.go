package diagram

import (
	"bytes"
	"encoding/xml"
	"regexp"
	"strings"
)

// Summarize extracts a structure outline from SVG markup. It understands
// Graphviz output (node groups carrying a <title>) and mermaid output (node
// groups with ids such as "flowchart-A-0"). It never fails: markup it cannot
// read yields whatever was collected before the problem, possibly nothing.
func Summarize(svg []byte) Summary {
	dec := xml.NewDecoder(bytes.NewReader(svg))
	dec.Strict = false
	dec.AutoClose = xml.HTMLAutoClose
	dec.Entity = xml.HTMLEntity

	var (
		sum   Summary
		stack []*groupFrame
	)
	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		switch t := tok.(type) {
		case xml.StartElement:
			frame := &groupFrame{name: t.Name.Local}
			if t.Name.Local == "g" {
				class := attr(t, "class")
				switch {
				case hasClass(class, "node"):
					frame.kind = kindNode
					frame.id = attr(t, "id")
				case hasClass(class, "edge") || hasClass(class, "edgePath"):
					frame.kind = kindEdge
				}
			}
			stack = append(stack, frame)
		case xml.CharData:
			owner := innermostNode(stack)
			if owner == nil || len(stack) == 0 {
				continue
			}
			text := strings.TrimSpace(string(t))
			if text == "" {
				continue
			}
			switch stack[len(stack)-1].name {
			case "title":
				if owner.title == "" {
					owner.title = text
				}
			case "text", "tspan", "span", "p", "div":
				owner.label = append(owner.label, text)
			}
		case xml.EndElement:
			if len(stack) == 0 {
				continue
			}
			frame := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			switch frame.kind {
			case kindNode:
				sum.Nodes = append(sum.Nodes, frame.node())
			case kindEdge:
				sum.EdgeCount++
			}
		}
	}
	return sum
}

type groupKind int

const (
	kindOther groupKind = iota
	kindNode
	kindEdge
)

type groupFrame struct {
	name  string
	kind  groupKind
	id    string
	title string
	label []string
}

// mermaid node ids look like "flowchart-Sensor-12"; the middle part is the
// id the author wrote.
var mermaidNodeID = regexp.MustCompile(`^[a-zA-Z]+-(.+)-\d+$`)

func (f *groupFrame) node() Node {
	id := f.title
	if id == "" {
		id = f.id
		if m := mermaidNodeID.FindStringSubmatch(id); m != nil {
			id = m[1]
		}
	}
	label := strings.Join(f.label, " ")
	if label == "" {
		label = id
	}
	return Node{ID: id, Label: label}
}

func innermostNode(stack []*groupFrame) *groupFrame {
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i].kind == kindNode {
			return stack[i]
		}
	}
	return nil
}

func attr(el xml.StartElement, name string) string {
	for _, a := range el.Attr {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}

func hasClass(class, want string) bool {
	for _, c := range strings.Fields(class) {
		if c == want {
			return true
		}
	}
	return false
}
