package diff

import (
	"github.com/sergi/go-diff/diffmatchpatch"
)

// segmentsFromDiffs converts diff-match-patch output to API segments.
func segmentsFromDiffs(diffs []diffmatchpatch.Diff) []Segment {
	segments := make([]Segment, 0, len(diffs))
	for _, d := range diffs {
		var op int
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			op = -1
		case diffmatchpatch.DiffInsert:
			op = 1
		}
		segments = append(segments, Segment{Op: op, Text: d.Text})
	}
	return segments
}

// textDiff runs a character diff with semantic cleanup, the same shape the
// original text differs produce.
func textDiff(a, b string) []Segment {
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(a, b, true)
	diffs = dmp.DiffCleanupSemantic(diffs)
	return segmentsFromDiffs(diffs)
}

// htmlTextDMP diffs the visible text of two HTML documents.
type htmlTextDMP struct{}

func (htmlTextDMP) Name() string    { return "html_text_dmp" }
func (htmlTextDMP) NeedsText() bool { return true }

func (htmlTextDMP) Diff(req *Request) (*Result, error) {
	aText, err := ExtractText(req.AText)
	if err != nil {
		return nil, err
	}
	bText, err := ExtractText(req.BText)
	if err != nil {
		return nil, err
	}
	segments := textDiff(aText, bText)
	return &Result{ChangeCount: changeCount(segments), Diff: segments}, nil
}

// htmlSourceDMP diffs the raw HTML source of two documents.
type htmlSourceDMP struct{}

func (htmlSourceDMP) Name() string    { return "html_source_dmp" }
func (htmlSourceDMP) NeedsText() bool { return true }

func (htmlSourceDMP) Diff(req *Request) (*Result, error) {
	segments := textDiff(req.AText, req.BText)
	return &Result{ChangeCount: changeCount(segments), Diff: segments}, nil
}
