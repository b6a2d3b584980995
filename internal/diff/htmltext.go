package diff

import (
	"strings"

	"golang.org/x/net/html"

	ferrors "github.com/pagediff/pagediff/internal/foundation/errors"
)

// ExtractTextLines returns the visible text of an HTML document as a list of
// trimmed, non-empty text runs in document order. Script and style content is
// skipped.
func ExtractTextLines(htmlText string) ([]string, error) {
	doc, err := html.Parse(strings.NewReader(htmlText))
	if err != nil {
		return nil, ferrors.ValidationError("failed to parse HTML").WithCause(err).Build()
	}

	var lines []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		if n.Type == html.TextNode {
			if text := strings.TrimSpace(n.Data); text != "" {
				lines = append(lines, normalizeSpace(text))
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return lines, nil
}

// ExtractText returns the visible text of an HTML document as a single
// space-joined string.
func ExtractText(htmlText string) (string, error) {
	lines, err := ExtractTextLines(htmlText)
	if err != nil {
		return "", err
	}
	return strings.Join(lines, " "), nil
}

// normalizeSpace collapses runs of whitespace into single spaces.
func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// sideBySideText returns the visible text of both documents without diffing
// them, for consumers that render their own comparison.
type sideBySideText struct{}

func (sideBySideText) Name() string    { return "side_by_side_text" }
func (sideBySideText) NeedsText() bool { return true }

func (sideBySideText) Diff(req *Request) (*Result, error) {
	aLines, err := ExtractTextLines(req.AText)
	if err != nil {
		return nil, err
	}
	bLines, err := ExtractTextLines(req.BText)
	if err != nil {
		return nil, err
	}
	if aLines == nil {
		aLines = []string{}
	}
	if bLines == nil {
		bLines = []string{}
	}

	count := 0
	if strings.Join(aLines, "\n") != strings.Join(bLines, "\n") {
		count = 1
	}
	return &Result{
		ChangeCount: count,
		Diff: map[string][]string{
			"a_text": aLines,
			"b_text": bLines,
		},
	}, nil
}
