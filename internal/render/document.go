// Package render lays out an exam as a printable document: a question
// region and an optional answer region, with inline math marked for
// typesetting and page breaks decided from measured layout.
package render

import (
	"fmt"
	"strconv"

	"github.com/pavelanni/examforge/internal/model"
)

// RegionKind names the two regions of a printable document.
type RegionKind string

const (
	RegionQuestions RegionKind = "questions"
	RegionAnswers   RegionKind = "answers"
)

// BlockKind names the blocks a region is built from.
type BlockKind string

const (
	BlockSection  BlockKind = "section"
	BlockQuestion BlockKind = "question"
	BlockAnswer   BlockKind = "answer"
	BlockEndMark  BlockKind = "end"
)

// Document is the structural layout of an exam. It says what goes where,
// not how it is drawn.
type Document struct {
	Title    string
	FileName string
	Regions  []Region
}

// Region is one part of the document. BreakBefore forces a new page.
type Region struct {
	Kind        RegionKind
	BreakBefore bool
	Header      Header
	Blocks      []Block
}

// Header is the top of a region.
type Header struct {
	Title    string
	Subtitle string
	Meta     []MetaItem
	Identity []string // labels of blank fields the candidate fills in
}

// MetaItem is one "label: value" entry of the metadata line.
type MetaItem struct {
	Label string
	Value string
}

// Option is a lettered multiple-choice option.
type Option struct {
	Letter string
	Text   *TextNode
}

// Block is one vertical unit of a region. Which fields are set depends on Kind.
type Block struct {
	Kind BlockKind

	// BlockSection
	Title       string
	Description string

	// BlockQuestion and BlockAnswer
	Ordinal int

	// BlockQuestion
	Content     *TextNode
	Diagram     string // trusted SVG markup, emitted verbatim
	ScoreLabel  string
	Options     []Option
	WritingArea bool

	// BlockAnswer
	Answer           *TextNode
	Explanation      *TextNode
	ExplanationLabel string

	// BlockEndMark
	Text string
}

// Atomic reports whether the block must not be split across pages.
func (b Block) Atomic() bool {
	return b.Kind == BlockQuestion || b.Kind == BlockAnswer
}

// Labels are the fixed strings printed around exam content.
type Labels struct {
	Subject     string
	TotalScore  string
	Duration    string
	Minutes     string // format with one %s verb for the number
	Points      string // format with one %s verb for the score
	Identity    []string
	EndMark     string
	AnswerTitle string
	Explanation string
}

// DefaultLabels returns the Chinese labels.
func DefaultLabels() Labels {
	return Labels{
		Subject:     "科目",
		TotalScore:  "总分",
		Duration:    "时长",
		Minutes:     "%s 分钟",
		Points:      "(%s 分)",
		Identity:    []string{"姓名", "班级", "考号"},
		EndMark:     "—— 试卷结束 ——",
		AnswerTitle: "参考答案与解析",
		Explanation: "[解析]",
	}
}

// Render lays out exam. The answer region is present only when
// includeAnswers is set. exam is not modified and equal inputs produce
// deeply equal documents.
func Render(exam model.Exam, includeAnswers bool, labels Labels) *Document {
	doc := &Document{
		Title:    exam.Title,
		FileName: model.SafeFileName(exam.Title, "exam", ".pdf"),
	}
	doc.Regions = append(doc.Regions, questionRegion(exam, labels))
	if includeAnswers {
		doc.Regions = append(doc.Regions, answerRegion(exam, labels))
	}
	return doc
}

func questionRegion(exam model.Exam, labels Labels) Region {
	r := Region{
		Kind: RegionQuestions,
		Header: Header{
			Title: exam.Title,
			Meta: []MetaItem{
				{Label: labels.Subject, Value: exam.Subject},
				{Label: labels.TotalScore, Value: formatNumber(exam.TotalScore)},
				{Label: labels.Duration, Value: fmt.Sprintf(labels.Minutes, formatNumber(exam.DurationMinutes))},
			},
			Identity: append([]string(nil), labels.Identity...),
		},
	}
	for _, s := range exam.Sections {
		r.Blocks = append(r.Blocks, Block{Kind: BlockSection, Title: s.Title, Description: s.Description})
		for i, q := range s.Questions {
			r.Blocks = append(r.Blocks, questionBlock(i+1, q, labels))
		}
	}
	r.Blocks = append(r.Blocks, Block{Kind: BlockEndMark, Text: labels.EndMark})
	return r
}

func questionBlock(ordinal int, q model.Question, labels Labels) Block {
	b := Block{
		Kind:       BlockQuestion,
		Ordinal:    ordinal,
		Content:    NewTextNode(q.Content),
		Diagram:    q.Diagram,
		ScoreLabel: fmt.Sprintf(labels.Points, formatNumber(q.Score)),
	}
	switch q.Type {
	case model.MultipleChoice:
		for i, opt := range q.Options {
			b.Options = append(b.Options, Option{Letter: string(rune('A' + i)), Text: NewTextNode(opt)})
		}
	case model.ShortAnswer, model.Essay:
		b.WritingArea = true
	}
	return b
}

func answerRegion(exam model.Exam, labels Labels) Region {
	r := Region{
		Kind:        RegionAnswers,
		BreakBefore: true,
		Header:      Header{Title: labels.AnswerTitle, Subtitle: exam.Title},
	}
	for _, s := range exam.Sections {
		r.Blocks = append(r.Blocks, Block{Kind: BlockSection, Title: s.Title})
		for i, q := range s.Questions {
			r.Blocks = append(r.Blocks, Block{
				Kind:             BlockAnswer,
				Ordinal:          i + 1,
				Answer:           NewTextNode(q.Answer),
				Explanation:      NewTextNode(q.Explanation),
				ExplanationLabel: labels.Explanation,
			})
		}
	}
	return r
}

// Nodes returns every text node of doc in reading order.
func (d *Document) Nodes() []*TextNode {
	var out []*TextNode
	for _, r := range d.Regions {
		for _, b := range r.Blocks {
			for _, n := range []*TextNode{b.Content, b.Answer, b.Explanation} {
				if n != nil {
					out = append(out, n)
				}
			}
			for _, o := range b.Options {
				out = append(out, o.Text)
			}
		}
	}
	return out
}

// Count returns how many blocks of kind the region holds.
func (r Region) Count(kind BlockKind) int {
	n := 0
	for _, b := range r.Blocks {
		if b.Kind == kind {
			n++
		}
	}
	return n
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
