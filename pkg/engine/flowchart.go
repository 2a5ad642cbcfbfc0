package engine

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Flowchart renders the flowchart subset of the mermaid language by
// translating it to DOT and handing it to a Graphviz engine.
//
// Supported syntax:
//
//	flowchart TB            (or "graph"; directions TB, TD, BT, LR, RL)
//	A[Rectangle]  B(Rounded)  C([Stadium])  D{Diamond}  E((Circle))
//	F{{Hexagon}}  G[/Parallelogram/]  H[\Trapezoid/]  I>Flag]
//	A --> B       A --- B     A -.-> B     A ==> B      A <--> B
//	A -->|label| B            A -- label --> B
//	A --> B --> C             A & B --> C
//	subgraph id [Title] ... end
//	%% comments, and statements separated by ';'
//
// classDef, class, style, linkStyle and click statements are accepted and
// ignored.
type Flowchart struct {
	dot  *Graphviz
	opts Options
}

// NewFlowchart returns a flowchart engine rendering through dot.
func NewFlowchart(dot *Graphviz, opts Options) *Flowchart {
	return &Flowchart{dot: dot, opts: opts.WithDefaults()}
}

// Name implements Engine.
func (f *Flowchart) Name() string { return NameFlowchart }

// Render implements Engine.
func (f *Flowchart) Render(ctx context.Context, id, source string) ([]byte, error) {
	chart, err := ParseFlowchart(source)
	if err != nil {
		return nil, err
	}
	return f.dot.Render(ctx, id, chart.DOT(f.opts))
}

// Close releases the underlying graphviz runtime.
func (f *Flowchart) Close() error { return f.dot.Close() }

// Chart is a parsed flowchart.
type Chart struct {
	Direction string
	Nodes     []*ChartNode
	Edges     []ChartEdge
	Clusters  []*Cluster

	index map[string]*ChartNode
}

// ChartNode is a declared or referenced node.
type ChartNode struct {
	ID      string
	Label   string
	Shape   string
	Cluster *Cluster
}

// ChartEdge connects two nodes.
type ChartEdge struct {
	From, To string
	Label    string
	Style    string // solid, dotted, thick
	Head     string // arrow, none, cross, circle
	Both     bool
}

// Cluster is a subgraph.
type Cluster struct {
	ID     string
	Title  string
	Parent *Cluster
	Nodes  []string
}

// Node shapes.
const (
	ShapeRect          = "rect"
	ShapeRound         = "round"
	ShapeStadium       = "stadium"
	ShapeDiamond       = "diamond"
	ShapeCircle        = "circle"
	ShapeHexagon       = "hexagon"
	ShapeParallelogram = "parallelogram"
	ShapeTrapezoid     = "trapezoid"
	ShapeInvTrapezoid  = "inv-trapezoid"
	ShapeFlag          = "flag"
)

var directions = map[string]string{"TB": "TB", "TD": "TB", "BT": "BT", "LR": "LR", "RL": "RL"}

var ignoredKeywords = []string{"classDef", "class", "style", "linkStyle", "click", "direction"}

// ParseFlowchart parses source. Errors name the 1-based source line.
func ParseFlowchart(source string) (*Chart, error) {
	chart := &Chart{Direction: "TB", index: map[string]*ChartNode{}}
	headerSeen := false
	var open []*Cluster

	for i, raw := range strings.Split(source, "\n") {
		lineNo := i + 1
		for _, stmt := range splitStatements(raw) {
			stmt = strings.TrimSpace(stmt)
			if stmt == "" || strings.HasPrefix(stmt, "%%") {
				continue
			}

			if !headerSeen {
				dir, err := parseHeader(stmt)
				if err != nil {
					return nil, fmt.Errorf("line %d: %w", lineNo, err)
				}
				chart.Direction = dir
				headerSeen = true
				continue
			}

			keyword := firstWord(stmt)
			switch {
			case keyword == "subgraph":
				c := parseSubgraph(strings.TrimSpace(stmt[len("subgraph"):]), len(chart.Clusters))
				if len(open) > 0 {
					c.Parent = open[len(open)-1]
				}
				chart.Clusters = append(chart.Clusters, c)
				open = append(open, c)
				continue
			case keyword == "end":
				if len(open) == 0 {
					return nil, fmt.Errorf("line %d: \"end\" without matching subgraph", lineNo)
				}
				open = open[:len(open)-1]
				continue
			case containsString(ignoredKeywords, keyword) && !startsLink(stmt[len(keyword):]):
				continue
			}

			var current *Cluster
			if len(open) > 0 {
				current = open[len(open)-1]
			}
			if err := chart.parseChain(stmt, current); err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo, err)
			}
		}
	}

	if !headerSeen {
		return nil, fmt.Errorf("diagram source is empty")
	}
	if len(open) > 0 {
		return nil, fmt.Errorf("subgraph %q is missing \"end\"", open[len(open)-1].ID)
	}
	return chart, nil
}

func parseHeader(stmt string) (string, error) {
	fields := strings.Fields(stmt)
	if fields[0] != "flowchart" && fields[0] != "graph" {
		return "", fmt.Errorf("expected \"flowchart\" or \"graph\" header, got %q", fields[0])
	}
	if len(fields) == 1 {
		return "TB", nil
	}
	dir, ok := directions[strings.ToUpper(fields[1])]
	if !ok {
		return "", fmt.Errorf("unknown direction %q (want TB, TD, BT, LR or RL)", fields[1])
	}
	if len(fields) > 2 {
		return "", fmt.Errorf("unexpected %q after direction", strings.Join(fields[2:], " "))
	}
	return dir, nil
}

func parseSubgraph(rest string, n int) *Cluster {
	c := &Cluster{ID: fmt.Sprintf("sg%d", n)}
	if rest == "" {
		return c
	}
	if open := strings.IndexByte(rest, '['); open > 0 && strings.HasSuffix(rest, "]") {
		c.ID = strings.TrimSpace(rest[:open])
		c.Title = unquote(strings.TrimSpace(rest[open+1 : len(rest)-1]))
		return c
	}
	c.ID = rest
	c.Title = unquote(rest)
	return c
}

// parseChain parses "group (link group)*" where a group is "node (& node)*".
func (c *Chart) parseChain(stmt string, cluster *Cluster) error {
	p := &lineParser{s: stmt}

	prev, err := c.parseGroup(p, cluster)
	if err != nil {
		return err
	}
	for {
		p.skipSpace()
		if p.done() {
			return nil
		}
		link, err := p.parseLink()
		if err != nil {
			return err
		}
		p.skipSpace()
		if p.done() {
			return fmt.Errorf("expected a node after %q", link.token)
		}
		next, err := c.parseGroup(p, cluster)
		if err != nil {
			return err
		}
		for _, from := range prev {
			for _, to := range next {
				c.Edges = append(c.Edges, ChartEdge{
					From: from, To: to,
					Label: link.label, Style: link.style, Head: link.head, Both: link.both,
				})
			}
		}
		prev = next
	}
}

func (c *Chart) parseGroup(p *lineParser, cluster *Cluster) ([]string, error) {
	var ids []string
	for {
		p.skipSpace()
		n, err := p.parseNode()
		if err != nil {
			return nil, err
		}
		c.declare(n, cluster)
		ids = append(ids, n.ID)

		p.skipSpace()
		if !p.consume("&") {
			return ids, nil
		}
	}
}

// declare records n. A later declaration with a label or shape replaces an
// earlier bare reference.
func (c *Chart) declare(n ChartNode, cluster *Cluster) {
	existing, ok := c.index[n.ID]
	if !ok {
		node := &ChartNode{ID: n.ID, Label: n.Label, Shape: n.Shape, Cluster: cluster}
		if node.Label == "" {
			node.Label = n.ID
		}
		if node.Shape == "" {
			node.Shape = ShapeRect
		}
		c.index[n.ID] = node
		c.Nodes = append(c.Nodes, node)
		if cluster != nil {
			cluster.Nodes = append(cluster.Nodes, n.ID)
		}
		return
	}
	if n.Shape != "" {
		existing.Shape = n.Shape
		existing.Label = n.Label
	}
}

type lineParser struct {
	s   string
	pos int
}

func (p *lineParser) done() bool { return p.pos >= len(p.s) }

func (p *lineParser) rest() string { return p.s[p.pos:] }

func (p *lineParser) skipSpace() {
	for p.pos < len(p.s) && (p.s[p.pos] == ' ' || p.s[p.pos] == '\t') {
		p.pos++
	}
}

func (p *lineParser) consume(tok string) bool {
	if strings.HasPrefix(p.rest(), tok) {
		p.pos += len(tok)
		return true
	}
	return false
}

type shapeDelim struct {
	open, close, shape string
}

// Longest openers first so "((" wins over "(".
var shapeDelims = []shapeDelim{
	{"([", "])", ShapeStadium},
	{"((", "))", ShapeCircle},
	{"{{", "}}", ShapeHexagon},
	{"[/", "/]", ShapeParallelogram},
	{"[/", "\\]", ShapeInvTrapezoid},
	{"[\\", "/]", ShapeTrapezoid},
	{"[\\", "\\]", ShapeParallelogram},
	{"[", "]", ShapeRect},
	{"(", ")", ShapeRound},
	{"{", "}", ShapeDiamond},
	{">", "]", ShapeFlag},
}

func (p *lineParser) parseNode() (ChartNode, error) {
	start := p.pos
	for p.pos < len(p.s) {
		r, size := utf8.DecodeRuneInString(p.s[p.pos:])
		if !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_') {
			break
		}
		p.pos += size
		// A '-' or '.' between id characters ("node-1") belongs to the id
		// unless it starts a link.
		for p.pos+1 < len(p.s) && (p.s[p.pos] == '-' || p.s[p.pos] == '.') &&
			isIDByte(p.s[p.pos+1]) && !startsLink(p.s[p.pos:]) {
			p.pos++
		}
	}
	if p.pos == start {
		if p.done() {
			return ChartNode{}, fmt.Errorf("expected a node")
		}
		return ChartNode{}, fmt.Errorf("unexpected %q, expected a node id", clip(p.rest()))
	}
	node := ChartNode{ID: p.s[start:p.pos]}

	for _, d := range shapeDelims {
		if !strings.HasPrefix(p.rest(), d.open) {
			continue
		}
		body := p.s[p.pos+len(d.open):]
		end := strings.Index(body, d.close)
		if end < 0 {
			continue
		}
		node.Label = cleanLabel(body[:end])
		node.Shape = d.shape
		p.pos += len(d.open) + end + len(d.close)
		return node, nil
	}
	if !p.done() && strings.ContainsRune("[({>", rune(p.s[p.pos])) {
		return ChartNode{}, fmt.Errorf("unterminated shape for node %q", node.ID)
	}
	return node, nil
}

func isIDByte(b byte) bool {
	return b == '_' || b >= 0x80 || ('0' <= b && b <= '9') || ('a' <= b && b <= 'z') || ('A' <= b && b <= 'Z')
}

type link struct {
	token string
	label string
	style string
	head  string
	both  bool
}

var (
	linkRe       = regexp.MustCompile(`^(<)?(-\.+-|-{2,}|={2,})(>|x|o)?`)
	inlineTextRe = regexp.MustCompile(`^(<)?(--|==|-\.)\s+([^|]+?)\s+(-{2,}>|-{3,}|={2,}>|={3,}|\.+->|\.+-)`)
)

func startsLink(s string) bool {
	s = strings.TrimLeft(s, " \t")
	return linkRe.MatchString(s)
}

func (p *lineParser) parseLink() (link, error) {
	rest := p.rest()

	if m := inlineTextRe.FindStringSubmatch(rest); m != nil {
		l := classifyLink(m[1] != "", m[2]+m[4])
		l.token = m[0]
		l.label = cleanLabel(m[3])
		p.pos += len(m[0])
		return l, nil
	}

	m := linkRe.FindStringSubmatch(rest)
	if m == nil {
		return link{}, fmt.Errorf("unexpected %q, expected a link such as -->", clip(rest))
	}
	l := classifyLink(m[1] != "", m[2]+m[3])
	l.token = m[0]
	p.pos += len(m[0])

	p.skipSpace()
	if p.consume("|") {
		end := strings.IndexByte(p.rest(), '|')
		if end < 0 {
			return link{}, fmt.Errorf("unterminated link label after %q", l.token)
		}
		l.label = cleanLabel(p.rest()[:end])
		p.pos += end + 1
	}
	return l, nil
}

func classifyLink(both bool, tok string) link {
	l := link{style: "solid", head: "none", both: both}
	switch {
	case strings.Contains(tok, "."):
		l.style = "dotted"
	case strings.HasPrefix(tok, "="):
		l.style = "thick"
	}
	switch tok[len(tok)-1] {
	case '>':
		l.head = "arrow"
	case 'x':
		l.head = "cross"
	case 'o':
		l.head = "circle"
	}
	return l
}

var brRe = regexp.MustCompile(`(?i)<br\s*/?>`)

func cleanLabel(s string) string {
	s = unquote(strings.TrimSpace(s))
	return brRe.ReplaceAllString(s, "\n")
}

func unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

// splitStatements splits on ';' outside quotes and shape brackets.
func splitStatements(line string) []string {
	var (
		out   []string
		depth int
		quote bool
		start int
	)
	for i, r := range line {
		switch {
		case r == '"':
			quote = !quote
		case quote:
		case r == '[' || r == '(' || r == '{':
			depth++
		case r == ']' || r == ')' || r == '}':
			if depth > 0 {
				depth--
			}
		case r == ';' && depth == 0:
			out = append(out, line[start:i])
			start = i + 1
		}
	}
	return append(out, line[start:])
}

func firstWord(s string) string {
	if i := strings.IndexAny(s, " \t"); i >= 0 {
		return s[:i]
	}
	return s
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func clip(s string) string {
	if len(s) > 20 {
		return s[:20] + "..."
	}
	return s
}

// =============================================================================
// DOT output
// =============================================================================

type palette struct {
	fill, stroke, font, edge, cluster string
}

var palettes = map[string]palette{
	ThemeDefault: {fill: "#ECECFF", stroke: "#9370DB", font: "#333333", edge: "#333333", cluster: "#ffffde"},
	ThemeDark:    {fill: "#1f2020", stroke: "#cccccc", font: "#e0dfdf", edge: "#d3d3d3", cluster: "#2b2b2b"},
	ThemeForest:  {fill: "#cde498", stroke: "#13540c", font: "#000000", edge: "#008000", cluster: "#cdffb2"},
	ThemeNeutral: {fill: "#eeeeee", stroke: "#999999", font: "#333333", edge: "#666666", cluster: "#f4f4f4"},
}

var dotShapes = map[string]string{
	ShapeRect:          `shape=box`,
	ShapeRound:         `shape=box, style="rounded,filled"`,
	ShapeStadium:       `shape=box, style="rounded,filled", peripheries=2`,
	ShapeDiamond:       `shape=diamond`,
	ShapeCircle:        `shape=circle`,
	ShapeHexagon:       `shape=hexagon`,
	ShapeParallelogram: `shape=parallelogram`,
	ShapeTrapezoid:     `shape=trapezium`,
	ShapeInvTrapezoid:  `shape=invtrapezium`,
	ShapeFlag:          `shape=cds`,
}

// DOT renders the chart as a Graphviz digraph styled for opts.
func (c *Chart) DOT(opts Options) string {
	opts = opts.WithDefaults()
	pal, ok := palettes[opts.Theme]
	if !ok {
		pal = palettes[ThemeDefault]
	}

	var buf bytes.Buffer
	buf.WriteString("digraph G {\n")
	fmt.Fprintf(&buf, "  rankdir=%s;\n", c.Direction)
	fmt.Fprintf(&buf, "  bgcolor=%s;\n", dotQuote(opts.Background))
	fmt.Fprintf(&buf, "  node [style=filled, fillcolor=%s, color=%s, fontcolor=%s, fontname=\"Helvetica\", fontsize=%d, margin=\"0.2,0.1\"];\n",
		dotQuote(pal.fill), dotQuote(pal.stroke), dotQuote(pal.font), opts.FontSize)
	fmt.Fprintf(&buf, "  edge [color=%s, fontcolor=%s, fontname=\"Helvetica\", fontsize=%d];\n",
		dotQuote(pal.edge), dotQuote(pal.font), max(opts.FontSize-2, 8))
	buf.WriteString("  ranksep=0.5;\n  nodesep=0.4;\n\n")

	for _, n := range c.Nodes {
		if n.Cluster == nil {
			writeNode(&buf, "  ", n)
		}
	}
	for _, cl := range c.Clusters {
		if cl.Parent == nil {
			c.writeCluster(&buf, "  ", cl, pal)
		}
	}

	buf.WriteString("\n")
	for _, e := range c.Edges {
		attrs := []string{}
		if e.Label != "" {
			attrs = append(attrs, "label="+dotQuote(e.Label))
		}
		switch e.Style {
		case "dotted":
			attrs = append(attrs, "style=dashed")
		case "thick":
			attrs = append(attrs, "penwidth=2.5")
		}
		switch e.Head {
		case "none":
			attrs = append(attrs, "arrowhead=none")
		case "cross":
			attrs = append(attrs, "arrowhead=tee")
		case "circle":
			attrs = append(attrs, "arrowhead=odot")
		}
		if e.Both {
			attrs = append(attrs, "dir=both")
		}
		fmt.Fprintf(&buf, "  %s -> %s", dotQuote(e.From), dotQuote(e.To))
		if len(attrs) > 0 {
			fmt.Fprintf(&buf, " [%s]", strings.Join(attrs, ", "))
		}
		buf.WriteString(";\n")
	}
	buf.WriteString("}\n")
	return buf.String()
}

func writeNode(buf *bytes.Buffer, indent string, n *ChartNode) {
	fmt.Fprintf(buf, "%s%s [label=%s, %s];\n", indent, dotQuote(n.ID), dotQuote(n.Label), dotShapes[n.Shape])
}

func (c *Chart) writeCluster(buf *bytes.Buffer, indent string, cl *Cluster, pal palette) {
	fmt.Fprintf(buf, "%ssubgraph %s {\n", indent, dotQuote("cluster_"+cl.ID))
	inner := indent + "  "
	fmt.Fprintf(buf, "%slabel=%s;\n%sstyle=filled;\n%sfillcolor=%s;\n%scolor=%s;\n",
		inner, dotQuote(cl.Title), inner, inner, dotQuote(pal.cluster), inner, dotQuote(pal.stroke))
	for _, id := range cl.Nodes {
		writeNode(buf, inner, c.index[id])
	}
	for _, child := range c.Clusters {
		if child.Parent == cl {
			c.writeCluster(buf, inner, child, pal)
		}
	}
	fmt.Fprintf(buf, "%s}\n", indent)
}

func dotQuote(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)
	return `"` + r.Replace(s) + `"`
}
