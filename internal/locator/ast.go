package locator

import (
	"context"
	"strings"

	"github.com/morozRed/unitsmith/internal/parser"
	sitter "github.com/smacker/go-tree-sitter"
)

var commentNodeTypes = map[string]bool{
	"comment":       true,
	"line_comment":  true,
	"block_comment": true,
}

// listAST parses src with the profile's grammar and returns every
// top-level unit. hasErrors reports whether the tree contains error nodes.
// A parser is created per call; tree-sitter parsers are not safe to share.
func listAST(ctx context.Context, src []byte, p *parser.Profile) (units []parser.SourceUnit, hasErrors bool, err error) {
	ps := sitter.NewParser()
	defer ps.Close()
	ps.SetLanguage(p.Grammar)

	tree, err := ps.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, false, err
	}
	defer tree.Close()

	root := tree.RootNode()
	for i := 0; i < int(root.NamedChildCount()); i++ {
		units = append(units, astUnits(root.NamedChild(i), src, p)...)
	}
	return units, root.HasError(), nil
}

func astUnits(node *sitter.Node, src []byte, p *parser.Profile) []parser.SourceUnit {
	def := node
	if field, ok := p.Wrappers[node.Type()]; ok {
		def = node.ChildByFieldName(field)
		if def == nil {
			return nil
		}
	}

	var (
		names      []string
		kind       parser.UnitKind
		registered bool
		alias      string
		receiver   string
	)
	if un, ok := unitNodeFor(p, def.Type()); ok {
		names = declaredNames(def, un, src)
		kind = un.Kind
		if un.ReceiverField != "" {
			receiver = receiverType(def.ChildByFieldName(un.ReceiverField), src)
		}
		if def != node {
			alias, registered = p.RegisteredName(string(src[node.StartByte():def.StartByte()]))
		}
	}
	if len(names) == 0 && containsString(p.RegistrationNodes, node.Type()) {
		if name, ok := p.RegisteredName(node.Content(src)); ok && name != "" {
			names = []string{name}
			kind = parser.UnitRegistration
			registered = true
		}
	}
	if len(names) == 0 {
		return nil
	}

	span, doc, decorators := astSpans(node, def, src)
	units := make([]parser.SourceUnit, 0, len(names))
	for _, name := range names {
		u := newUnit(src, p, name, kind, span)
		u.Receiver = receiver
		u.Doc = doc
		u.Decorators = decorators
		u.Registered = registered
		if alias != "" && alias != name {
			u.Aliases = []string{alias}
		}
		units = append(units, u)
	}
	return units
}

func unitNodeFor(p *parser.Profile, nodeType string) (parser.UnitNode, bool) {
	for _, un := range p.UnitNodes {
		if un.Type == nodeType {
			return un, true
		}
	}
	return parser.UnitNode{}, false
}

func declaredNames(def *sitter.Node, un parser.UnitNode, src []byte) []string {
	if un.Via == "" {
		if name := nodeName(def.ChildByFieldName(un.NameField), src); name != "" {
			return []string{name}
		}
		return nil
	}

	var names []string
	for i := 0; i < int(def.NamedChildCount()); i++ {
		child := def.NamedChild(i)
		if child.Type() != un.Via {
			continue
		}
		if name := nodeName(child.ChildByFieldName(un.NameField), src); name != "" {
			names = append(names, name)
		}
	}
	return names
}

// receiverType reduces a receiver like `(s *Server[T])` to `Server`.
func receiverType(n *sitter.Node, src []byte) string {
	if n == nil {
		return ""
	}
	text := strings.Trim(n.Content(src), "()")
	if i := strings.IndexByte(text, '['); i >= 0 {
		text = text[:i]
	}
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\n' || r == '*'
	})
	if len(fields) == 0 {
		return ""
	}
	return fields[len(fields)-1]
}

func nodeName(n *sitter.Node, src []byte) string {
	if n == nil || strings.HasSuffix(n.Type(), "_pattern") {
		return ""
	}
	return strings.TrimSpace(n.Content(src))
}

// astSpans widens the node to whole lines and pulls in the comment block
// directly above it. A blank line or code sharing the comment's line stops
// the walk.
func astSpans(node, def *sitter.Node, src []byte) (span, doc, decorators parser.Span) {
	start := int(node.StartByte())
	row := int(node.StartPoint().Row)

	docStart := start
	for prev := node.PrevNamedSibling(); prev != nil && commentNodeTypes[prev.Type()]; prev = prev.PrevNamedSibling() {
		endRow := int(prev.EndPoint().Row)
		if prev.EndPoint().Column == 0 && endRow > int(prev.StartPoint().Row) {
			endRow--
		}
		if endRow+1 != row || !isBlank(src[lineStart(src, int(prev.StartByte())):prev.StartByte()]) {
			break
		}
		docStart = int(prev.StartByte())
		row = int(prev.StartPoint().Row)
	}

	span = parser.Span{Start: alignStart(src, docStart), End: alignEnd(src, int(node.EndByte()))}
	if docStart < start {
		doc = parser.Span{Start: span.Start, End: alignStart(src, start)}
	}

	nodes := []*sitter.Node{node}
	if def != node {
		nodes = append(nodes, def)
	}
	first, last := -1, -1
	for _, n := range nodes {
		for i := 0; i < int(n.NamedChildCount()); i++ {
			child := n.NamedChild(i)
			if child.Type() != "decorator" {
				continue
			}
			if first < 0 {
				first = int(child.StartByte())
			}
			last = int(child.EndByte())
		}
	}
	if first >= 0 {
		decorators = parser.Span{Start: alignStart(src, first), End: alignEnd(src, last)}
	}
	return span, doc, decorators
}

func containsString(values []string, v string) bool {
	for _, value := range values {
		if value == v {
			return true
		}
	}
	return false
}
