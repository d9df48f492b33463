// Package frontmatter decodes, encodes and rewrites the YAML front-matter
// block at the top of a Markdown document.
package frontmatter

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"

	"gopkg.in/yaml.v3"
)

// ErrNoFrontMatter is returned when a document does not start with a
// "---" delimited block.
var ErrNoFrontMatter = errors.New("frontmatter: no front matter block")

// ParseError reports a block that exists but cannot be decoded.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string { return "frontmatter: parse: " + e.Err.Error() }

func (e *ParseError) Unwrap() error { return e.Err }

var errNotMapping = errors.New("top level is not a mapping")

// blockRe matches the leading block. Group 1 is the YAML text, group 2 the
// line ending after the closing delimiter, which belongs to the body.
var blockRe = regexp.MustCompile(`^---\r?\n((?s:.*?))\r?\n---(\r?\n|$)`)

// Document is a decoded document: its front matter plus the location of the
// block in the original text.
type Document struct {
	Data *Mapping

	text     string
	blockEnd int
}

// Body returns everything after the closing delimiter, byte for byte.
func (d *Document) Body() string {
	return d.text[d.blockEnd:]
}

// Rewrite replaces the front-matter block of the decoded text with m.
func (d *Document) Rewrite(m *Mapping) (string, error) {
	block, err := encodeBlock(m)
	if err != nil {
		return "", err
	}
	return block + d.Body(), nil
}

// Decode extracts and decodes the front matter at the start of text.
func Decode(text string) (*Document, error) {
	loc := blockRe.FindStringSubmatchIndex(text)
	if loc == nil {
		return nil, ErrNoFrontMatter
	}
	m, err := decodeYAML(text[loc[2]:loc[3]])
	if err != nil {
		return nil, err
	}
	return &Document{Data: m, text: text, blockEnd: loc[4]}, nil
}

// Encode serializes m as YAML with two-space indentation, keeping key order.
func Encode(m *Mapping) (string, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(Map(m).node()); err != nil {
		return "", fmt.Errorf("frontmatter: encode: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("frontmatter: encode: %w", err)
	}
	return buf.String(), nil
}

// Rewrite replaces the first front-matter block of text with m. Text after
// the closing delimiter is preserved exactly.
func Rewrite(text string, m *Mapping) (string, error) {
	loc := blockRe.FindStringSubmatchIndex(text)
	if loc == nil {
		return "", ErrNoFrontMatter
	}
	block, err := encodeBlock(m)
	if err != nil {
		return "", err
	}
	return block + text[loc[4]:], nil
}

func encodeBlock(m *Mapping) (string, error) {
	body, err := Encode(m)
	if err != nil {
		return "", err
	}
	return "---\n" + body + "---", nil
}

func decodeYAML(src string) (*Mapping, error) {
	var root yaml.Node
	if err := yaml.Unmarshal([]byte(src), &root); err != nil {
		return nil, &ParseError{Err: err}
	}
	v, err := fromNode(&root)
	if err != nil {
		return nil, &ParseError{Err: err}
	}
	switch v.kind {
	case KindNull:
		return NewMapping(), nil
	case KindMapping:
		return v.fields, nil
	}
	return nil, &ParseError{Err: errNotMapping}
}

func fromNode(n *yaml.Node) (Value, error) {
	switch n.Kind {
	case 0:
		return Null(), nil
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return Null(), nil
		}
		return fromNode(n.Content[0])
	case yaml.AliasNode:
		if n.Alias == nil {
			return Value{}, fmt.Errorf("line %d: dangling alias", n.Line)
		}
		return fromNode(n.Alias)
	case yaml.ScalarNode:
		tag := n.ShortTag()
		if tag == "!!null" {
			return Null(), nil
		}
		return Value{kind: KindScalar, tag: tag, text: n.Value}, nil
	case yaml.SequenceNode:
		items := make([]Value, 0, len(n.Content))
		for _, c := range n.Content {
			v, err := fromNode(c)
			if err != nil {
				return Value{}, err
			}
			items = append(items, v)
		}
		return Value{kind: KindSequence, items: items}, nil
	case yaml.MappingNode:
		m := NewMapping()
		for i := 0; i+1 < len(n.Content); i += 2 {
			k := n.Content[i]
			if k.Kind == yaml.AliasNode && k.Alias != nil {
				k = k.Alias
			}
			if k.Kind != yaml.ScalarNode {
				return Value{}, fmt.Errorf("line %d: unsupported mapping key", k.Line)
			}
			v, err := fromNode(n.Content[i+1])
			if err != nil {
				return Value{}, err
			}
			m.Set(k.Value, v)
		}
		return Value{kind: KindMapping, fields: m}, nil
	}
	return Value{}, fmt.Errorf("line %d: unsupported node kind %d", n.Line, n.Kind)
}

func (v Value) node() *yaml.Node {
	switch v.kind {
	case KindScalar:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: v.tag, Value: v.text}
	case KindSequence:
		n := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for _, it := range v.items {
			n.Content = append(n.Content, it.node())
		}
		return n
	case KindMapping:
		n := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		for _, k := range v.fields.keys {
			n.Content = append(n.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Tag: TagStr, Value: k},
				v.fields.values[k].node())
		}
		return n
	}
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}
}
