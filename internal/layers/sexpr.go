package layers

import (
	"fmt"
	"io"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

var sexprLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "String", Pattern: `"(?:\\.|[^"\\])*"`},
	{Name: "Punct", Pattern: `[()]`},
	{Name: "Atom", Pattern: `[^\s()"]+`},
	{Name: "Whitespace", Pattern: `\s+`},
})

// node is either a parenthesised list or a bare/quoted atom.
type node struct {
	List *list   `parser:"  @@"`
	Atom *string `parser:"| @(Atom | String)"`
}

type list struct {
	Open  string  `parser:"@\"(\""`
	Items []*node `parser:"@@* \")\""`
}

var sexprParser = participle.MustBuild[node](
	participle.Lexer(sexprLexer),
	participle.Elide("Whitespace"),
	participle.Unquote("String"),
)

func parseSexpr(name string, r io.Reader) (*node, error) {
	root, err := sexprParser.Parse(name, r)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", name, err)
	}
	return root, nil
}

// head returns the leading atom of a list node.
func (n *node) head() string {
	if n == nil || n.List == nil || len(n.List.Items) == 0 {
		return ""
	}
	first := n.List.Items[0]
	if first.Atom == nil {
		return ""
	}
	return *first.Atom
}

// child returns the first sub-list whose head is name.
func (n *node) child(name string) *node {
	if n == nil || n.List == nil {
		return nil
	}
	for _, item := range n.List.Items {
		if item.head() == name {
			return item
		}
	}
	return nil
}

// atoms returns the atoms of a list, skipping nested lists.
func (n *node) atoms() []string {
	if n == nil || n.List == nil {
		return nil
	}
	out := make([]string, 0, len(n.List.Items))
	for _, item := range n.List.Items {
		if item.Atom != nil {
			out = append(out, *item.Atom)
		}
	}
	return out
}
