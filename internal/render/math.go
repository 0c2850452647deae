package render

import (
	"context"
	"errors"
	"log/slog"
	"strings"
)

var (
	ErrUnbalancedMath = errors.New("unbalanced $ delimiter")
	ErrBlockMath      = errors.New("block math ($$) is not supported")
)

// SegmentKind tells plain text from inline math.
type SegmentKind int

const (
	SegmentText SegmentKind = iota
	SegmentMath
)

// Segment is a run of plain text or the TeX source of one inline formula.
type Segment struct {
	Kind SegmentKind
	Text string
}

// SplitMath tokenises text containing $...$ inline math. \$ is a literal
// dollar outside math and is kept as \$ inside it.
func SplitMath(text string) ([]Segment, error) {
	var (
		segs   []Segment
		buf    strings.Builder
		inMath bool
	)
	flush := func() {
		if buf.Len() == 0 {
			return
		}
		kind := SegmentText
		if inMath {
			kind = SegmentMath
		}
		segs = append(segs, Segment{Kind: kind, Text: buf.String()})
		buf.Reset()
	}

	for i := 0; i < len(text); i++ {
		c := text[i]
		switch {
		case c == '\\' && i+1 < len(text) && text[i+1] == '$':
			if inMath {
				buf.WriteString(`\$`)
			} else {
				buf.WriteByte('$')
			}
			i++
		case c == '$':
			if i+1 < len(text) && text[i+1] == '$' {
				return nil, ErrBlockMath
			}
			flush()
			inMath = !inMath
		default:
			buf.WriteByte(c)
		}
	}
	if inMath {
		return nil, ErrUnbalancedMath
	}
	flush()
	return segs, nil
}

// TextNode is a piece of marked-up text. Raw never changes; a Typesetter
// fills Segments and sets Typeset. An untypeset node is shown as Raw.
type TextNode struct {
	Raw      string
	Segments []Segment
	Typeset  bool
}

// NewTextNode returns an untypeset node for raw.
func NewTextNode(raw string) *TextNode {
	return &TextNode{Raw: raw}
}

// HasMath reports whether the typeset node contains a formula.
func (n *TextNode) HasMath() bool {
	for _, s := range n.Segments {
		if s.Kind == SegmentMath {
			return true
		}
	}
	return false
}

// Revert drops any typesetting so the node shows its raw text.
func (n *TextNode) Revert() {
	n.Segments = nil
	n.Typeset = false
}

// Typesetter converts the math in a node in place. On error the node may be
// left in any state; TypesetDocument reverts it.
type Typesetter interface {
	Typeset(ctx context.Context, node *TextNode) error
}

// InlineMath prepares nodes for client-side MathJax with $ delimiters.
type InlineMath struct{}

func (InlineMath) Typeset(_ context.Context, node *TextNode) error {
	segs, err := SplitMath(node.Raw)
	if err != nil {
		return err
	}
	node.Segments = segs
	node.Typeset = true
	return nil
}

// TypesetDocument runs ts over every node of doc. Nodes that fail are
// reverted to raw text; a nil ts leaves every node raw. It returns the
// number of nodes that fell back.
func TypesetDocument(ctx context.Context, doc *Document, ts Typesetter) int {
	nodes := doc.Nodes()
	if ts == nil {
		for _, n := range nodes {
			n.Revert()
		}
		return len(nodes)
	}
	failed := 0
	for _, n := range nodes {
		if err := ctx.Err(); err != nil {
			n.Revert()
			failed++
			continue
		}
		if err := ts.Typeset(ctx, n); err != nil {
			slog.Debug("typesetting failed, showing raw text", "text", n.Raw, "error", err)
			n.Revert()
			failed++
		}
	}
	return failed
}
