package render

import (
	"slices"
)

// Span is a vertical interval [Top, Bottom) of a rendered region, in the
// same unit as the page height.
type Span struct {
	Top    float64
	Bottom float64
}

// Height returns the extent of s.
func (s Span) Height() float64 { return s.Bottom - s.Top }

// Layout is what a renderer measured for a region.
type Layout struct {
	Height float64
	Breaks []float64 // offsets where a forced page break starts a new page
	Atomic []Span    // blocks that must stay on one page
}

const epsilon = 1e-6

// Paginate cuts a region of layout.Height into pages of at most pageHeight.
// Forced breaks are hard boundaries. A cut never falls inside an atomic
// span unless that span starts at the top of the page, i.e. is taller than
// a page on its own.
func Paginate(layout Layout, pageHeight float64) []Span {
	if layout.Height <= epsilon || pageHeight <= epsilon {
		return nil
	}

	bounds := []float64{0}
	for _, b := range layout.Breaks {
		if b > epsilon && b < layout.Height-epsilon {
			bounds = append(bounds, b)
		}
	}
	bounds = append(bounds, layout.Height)
	slices.Sort(bounds)
	bounds = slices.Compact(bounds)

	var pages []Span
	for i := 0; i+1 < len(bounds); i++ {
		pages = append(pages, paginateSegment(bounds[i], bounds[i+1], layout.Atomic, pageHeight)...)
	}
	return pages
}

func paginateSegment(start, end float64, atomic []Span, pageHeight float64) []Span {
	var pages []Span
	top := start
	for end-top > pageHeight+epsilon {
		cut := top + pageHeight
		// Pull the cut up to the start of any block it would split. Moving
		// the cut can expose another straddled block, so repeat.
		for moved := true; moved; {
			moved = false
			for _, s := range atomic {
				if s.Top > top+epsilon && s.Top < cut-epsilon && s.Bottom > cut+epsilon {
					cut = s.Top
					moved = true
				}
			}
		}
		pages = append(pages, Span{Top: top, Bottom: cut})
		top = cut
	}
	if end-top > epsilon {
		pages = append(pages, Span{Top: top, Bottom: end})
	}
	return pages
}
