// Package xml provides the XML query capability used by the SIARD reader:
// parsing, first-match descendant lookup (depth-first and breadth-first),
// bounded-depth tag and tag-regexp searches, and attribute access.
//
// Matching is by local tag name, so SIARD documents work the same whether
// or not they carry a namespace prefix.
package xml

import (
	"bytes"
	"fmt"
	"io"
	"regexp"

	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"
)

// Document represents a parsed XML document.
type Document struct {
	root *xmlquery.Node
}

// Node represents an XML element node.
type Node struct {
	node *xmlquery.Node
}

// Parse parses XML data and returns a Document.
func Parse(data []byte) (*Document, error) {
	root, err := xmlquery.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parsing XML: %w", err)
	}
	return &Document{root: root}, nil
}

// ParseReader parses XML from a reader and returns a Document.
func ParseReader(r io.Reader) (*Document, error) {
	root, err := xmlquery.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parsing XML: %w", err)
	}
	return &Document{root: root}, nil
}

// Root returns the root element of the document, or nil if the document
// has no element children.
func (d *Document) Root() *Node {
	if d == nil || d.root == nil {
		return nil
	}
	for child := d.root.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == xmlquery.ElementNode {
			return &Node{node: child}
		}
	}
	return nil
}

// XPath executes an XPath query against the document and returns matching nodes.
func (d *Document) XPath(expr string) ([]*Node, error) {
	if _, err := xpath.Compile(expr); err != nil {
		return nil, fmt.Errorf("invalid xpath: %w", err)
	}
	nodes, err := xmlquery.QueryAll(d.root, expr)
	if err != nil {
		return nil, fmt.Errorf("xpath query failed: %w", err)
	}
	result := make([]*Node, len(nodes))
	for i, n := range nodes {
		result[i] = &Node{node: n}
	}
	return result, nil
}

// Name returns the element's local tag name.
func (n *Node) Name() string {
	if n == nil || n.node == nil {
		return ""
	}
	return n.node.Data
}

// Text returns the text content of the node and its descendants.
func (n *Node) Text() string {
	if n == nil || n.node == nil {
		return ""
	}
	return n.node.InnerText()
}

// Attr returns the value of the named attribute, or def if absent.
func (n *Node) Attr(name, def string) string {
	if n == nil || n.node == nil {
		return def
	}
	for _, attr := range n.node.Attr {
		if attr.Name.Local == name {
			return attr.Value
		}
	}
	return def
}

// HasAttr reports whether the named attribute is present.
func (n *Node) HasAttr(name string) bool {
	if n == nil || n.node == nil {
		return false
	}
	for _, attr := range n.node.Attr {
		if attr.Name.Local == name {
			return true
		}
	}
	return false
}

// Children returns the element's child element nodes in document order.
func (n *Node) Children() []*Node {
	if n == nil || n.node == nil {
		return nil
	}
	var children []*Node
	for child := n.node.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == xmlquery.ElementNode {
			children = append(children, &Node{node: child})
		}
	}
	return children
}

// FindFirst returns the first descendant (the node itself included) whose
// local tag name equals tagname, visiting children before siblings.
// Returns nil if no element matches.
func (n *Node) FindFirst(tagname string) *Node {
	if n == nil || n.node == nil {
		return nil
	}
	if found := findFirstDFS(n.node, tagname); found != nil {
		return &Node{node: found}
	}
	return nil
}

func findFirstDFS(node *xmlquery.Node, tagname string) *xmlquery.Node {
	if node.Type == xmlquery.ElementNode && node.Data == tagname {
		return node
	}
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		if child.Type != xmlquery.ElementNode {
			continue
		}
		if found := findFirstDFS(child, tagname); found != nil {
			return found
		}
	}
	return nil
}

// FindFirstBFS returns the shallowest descendant matching tagname, visiting
// level by level. Positional tags such as u1 or a1 can legitimately recur
// at deeper nesting levels; breadth-first search finds the intended
// shallow match.
func (n *Node) FindFirstBFS(tagname string) *Node {
	if n == nil || n.node == nil {
		return nil
	}
	queue := []*xmlquery.Node{n.node}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur.Type == xmlquery.ElementNode && cur.Data == tagname {
			return &Node{node: cur}
		}
		for child := cur.FirstChild; child != nil; child = child.NextSibling {
			if child.Type == xmlquery.ElementNode {
				queue = append(queue, child)
			}
		}
	}
	return nil
}

// FindAll returns all descendants (the node itself included) matching
// tagname, no deeper than maxDepth levels below n. Depth 0 is n itself.
func (n *Node) FindAll(tagname string, maxDepth int) []*Node {
	if n == nil || n.node == nil {
		return nil
	}
	var out []*Node
	collect(n.node, maxDepth, func(e *xmlquery.Node) bool { return e.Data == tagname }, &out)
	return out
}

// FindAllRegex returns all descendants whose tag name matches re, no deeper
// than maxDepth levels below n.
func (n *Node) FindAllRegex(re *regexp.Regexp, maxDepth int) []*Node {
	if n == nil || n.node == nil {
		return nil
	}
	var out []*Node
	collect(n.node, maxDepth, func(e *xmlquery.Node) bool { return re.MatchString(e.Data) }, &out)
	return out
}

func collect(node *xmlquery.Node, maxDepth int, match func(*xmlquery.Node) bool, out *[]*Node) {
	if maxDepth < 0 {
		return
	}
	if node.Type == xmlquery.ElementNode && match(node) {
		*out = append(*out, &Node{node: node})
	}
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == xmlquery.ElementNode {
			collect(child, maxDepth-1, match, out)
		}
	}
}

// ChildText returns the text of the first matching descendant, or ""
// if none exists.
func (n *Node) ChildText(tagname string) string {
	if found := n.FindFirst(tagname); found != nil {
		return found.Text()
	}
	return ""
}
