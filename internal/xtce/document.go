package xtce

import (
	"encoding/xml"
	"io"
	"strings"
)

// node is one element of an XML document tree. Tag names are local
// names; the xtce namespace prefix is dropped during parsing so that
// lookups work regardless of the document's prefix choice.
type node struct {
	Tag      string
	Attrs    map[string]string
	Text     string
	Children []*node
}

// parseDocument reads an XML document into a node tree.
func parseDocument(r io.Reader) (*node, error) {
	dec := xml.NewDecoder(r)
	var stack []*node
	var root *node
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, defErrorf("malformed XML: %v", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			n := &node{Tag: t.Name.Local, Attrs: make(map[string]string, len(t.Attr))}
			for _, a := range t.Attr {
				n.Attrs[a.Name.Local] = a.Value
			}
			if len(stack) == 0 {
				if root != nil {
					return nil, defErrorf("multiple root elements in XML document")
				}
				root = n
			} else {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, n)
			}
			stack = append(stack, n)
		case xml.EndElement:
			if len(stack) == 0 {
				return nil, defErrorf("unbalanced XML end element %q", t.Name.Local)
			}
			stack = stack[:len(stack)-1]
		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].Text += string(t)
			}
		}
	}
	if root == nil {
		return nil, defErrorf("empty XML document")
	}
	return root, nil
}

// attr returns the attribute value or "".
func (n *node) attr(name string) string { return n.Attrs[name] }

// attrBool interprets an attribute as a boolean with a default.
func (n *node) attrBool(name string, def bool) bool {
	v, ok := n.Attrs[name]
	if !ok {
		return def
	}
	return strings.EqualFold(v, "true")
}

// child returns the first direct child with the given tag, or nil.
func (n *node) child(tag string) *node {
	for _, c := range n.Children {
		if c.Tag == tag {
			return c
		}
	}
	return nil
}

// find walks a "/"-separated path of direct children.
func (n *node) find(path string) *node {
	cur := n
	for _, part := range strings.Split(path, "/") {
		cur = cur.child(part)
		if cur == nil {
			return nil
		}
	}
	return cur
}

// childrenNamed returns all direct children with the given tag.
func (n *node) childrenNamed(tag string) []*node {
	var out []*node
	for _, c := range n.Children {
		if c.Tag == tag {
			out = append(out, c)
		}
	}
	return out
}

// findDescendant returns the first descendant with the given tag,
// depth-first.
func (n *node) findDescendant(tag string) *node {
	for _, c := range n.Children {
		if c.Tag == tag {
			return c
		}
		if d := c.findDescendant(tag); d != nil {
			return d
		}
	}
	return nil
}

// text returns the trimmed text content.
func (n *node) text() string { return strings.TrimSpace(n.Text) }
