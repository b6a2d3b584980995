package diff

import (
	"bytes"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	ferrors "github.com/pagediff/pagediff/internal/foundation/errors"
)

var markdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
)

// markdownText diffs two markdown documents by the text they render to, so
// formatting-only edits (emphasis, list markers) do not drown out content
// changes. Useful for monitored READMEs and docs pages served as markdown.
type markdownText struct{}

func (markdownText) Name() string    { return "markdown_text" }
func (markdownText) NeedsText() bool { return true }

func (markdownText) Diff(req *Request) (*Result, error) {
	aText, err := renderMarkdownText(req.AText)
	if err != nil {
		return nil, err
	}
	bText, err := renderMarkdownText(req.BText)
	if err != nil {
		return nil, err
	}

	segments := textDiff(aText, bText)
	return &Result{ChangeCount: changeCount(segments), Diff: segments}, nil
}

// renderMarkdownText converts markdown to HTML and extracts its visible text.
func renderMarkdownText(source string) (string, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(source), &buf); err != nil {
		return "", ferrors.ValidationError("failed to render markdown").WithCause(err).Build()
	}
	return ExtractText(buf.String())
}
