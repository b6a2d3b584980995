package diff

import (
	"html"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// htmlToken diffs the visible text of two HTML documents token by token, so
// whole words move between the deleted and inserted sides instead of
// character fragments. With format=html the result is a rendered document
// with ins/del markup.
type htmlToken struct{}

func (htmlToken) Name() string    { return "html_token" }
func (htmlToken) NeedsText() bool { return true }

func (htmlToken) Diff(req *Request) (*Result, error) {
	aText, err := ExtractText(req.AText)
	if err != nil {
		return nil, err
	}
	bText, err := ExtractText(req.BText)
	if err != nil {
		return nil, err
	}

	segments := tokenDiff(aText, bText)

	if req.Format == FormatHTML {
		return &Result{
			ChangeCount: changeCount(segments),
			Diff:        renderTokenHTML(segments),
		}, nil
	}
	return &Result{ChangeCount: changeCount(segments), Diff: segments}, nil
}

// tokenDiff diffs two strings at word-token granularity using the
// diff-match-patch lines-to-chars encoding with tokens as "lines".
func tokenDiff(a, b string) []Segment {
	aTokens := strings.Join(strings.Fields(a), "\n")
	bTokens := strings.Join(strings.Fields(b), "\n")

	dmp := diffmatchpatch.New()
	chars1, chars2, tokenArray := dmp.DiffLinesToChars(aTokens, bTokens)
	diffs := dmp.DiffMain(chars1, chars2, false)
	diffs = dmp.DiffCharsToLines(diffs, tokenArray)

	segments := segmentsFromDiffs(diffs)
	for i := range segments {
		segments[i].Text = strings.ReplaceAll(segments[i].Text, "\n", " ")
	}
	return segments
}

// diffStyles is the ins/del styling shared by the HTML-rendering differs.
const diffStyles = `ins {text-decoration: none; background-color: #d4fcbc;}
del {text-decoration: none; background-color: #fbb6c2;}`

// renderTokenHTML renders diff segments as a standalone HTML document.
func renderTokenHTML(segments []Segment) string {
	var b strings.Builder
	b.WriteString("<!doctype html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n")
	b.WriteString("<style type=\"text/css\" id=\"wm-diff-style\">\n")
	b.WriteString(diffStyles)
	b.WriteString("\n</style>\n</head>\n<body>\n")
	for _, s := range segments {
		text := html.EscapeString(s.Text)
		switch s.Op {
		case -1:
			b.WriteString("<del>")
			b.WriteString(text)
			b.WriteString("</del>")
		case 1:
			b.WriteString("<ins>")
			b.WriteString(text)
			b.WriteString("</ins>")
		default:
			b.WriteString(text)
		}
	}
	b.WriteString("\n</body>\n</html>\n")
	return b.String()
}
