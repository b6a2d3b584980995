package fetch

import (
	"bytes"
	"mime"
	"net/http"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"

	ferrors "github.com/pagediff/pagediff/internal/foundation/errors"
)

// maxBadRuneRatio is the share of replacement/control runes above which a
// decoded body is considered binary rather than badly encoded text.
const maxBadRuneRatio = 0.10

// ExtractEncoding determines the character encoding for a response body.
// Precedence: Content-Type charset parameter, then meta tags / content
// sniffing, then utf-8. Unknown charset labels fall through to sniffing.
func ExtractEncoding(headers http.Header, body []byte) string {
	if contentType := headers.Get("Content-Type"); contentType != "" {
		if _, params, err := mime.ParseMediaType(strings.ToLower(strings.TrimSpace(contentType))); err == nil {
			if label := strings.TrimSpace(params["charset"]); label != "" {
				if enc, name := charset.Lookup(label); enc != nil && name != "" {
					return name
				}
			}
		}
	}

	if len(body) > 0 {
		if _, name, _ := charset.DetermineEncoding(body, ""); name != "" {
			return name
		}
	}

	return "utf-8"
}

// DecodeBody decodes a fetched resource to text. Binary content (too many
// undecodable or control characters) is a decode error; null bytes are
// stripped from otherwise-clean text.
func DecodeBody(res *Resource) (string, error) {
	if len(res.Body) == 0 {
		return "", nil
	}

	enc := lookupEncoding(ExtractEncoding(res.Headers, res.Body))
	decoded, err := enc.NewDecoder().Bytes(res.Body)
	if err != nil {
		// x/text decoders replace rather than fail, so a hard error means the
		// transform itself broke.
		return "", ferrors.DecodeError("content could not be decoded as text").
			WithCause(err).
			WithContext("url", res.URL).
			Build()
	}

	text := strings.ReplaceAll(string(decoded), "\x00", "")

	if ratio := badRuneRatio(text); ratio > maxBadRuneRatio {
		return "", ferrors.DecodeError("content does not appear to be text").
			WithContext("url", res.URL).
			WithContext("content_type", res.ContentType).
			Build()
	}

	return text, nil
}

// lookupEncoding resolves an encoding label; unrecognized labels are treated
// as ascii-compatible and decoded as utf-8.
func lookupEncoding(label string) encoding.Encoding {
	if enc, _ := charset.Lookup(label); enc != nil {
		return enc
	}
	return unicode.UTF8
}

// badRuneRatio reports the share of runes that indicate non-text content:
// replacement characters and control characters other than common whitespace.
func badRuneRatio(text string) float64 {
	if text == "" {
		return 0
	}
	var bad, total int
	for _, r := range text {
		total++
		if r == utf8.RuneError {
			bad++
			continue
		}
		if r < 0x20 && r != '\t' && r != '\n' && r != '\r' && r != '\f' {
			bad++
		}
	}
	return float64(bad) / float64(total)
}

// ExtractTitle returns the contents of the document's <title> element, or ""
// when the document has none or does not parse as HTML.
func ExtractTitle(htmlText string) string {
	doc, err := html.Parse(strings.NewReader(htmlText))
	if err != nil {
		return ""
	}

	var title string
	var walk func(*html.Node) bool
	walk = func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.Data == "title" {
			var buf bytes.Buffer
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				if c.Type == html.TextNode {
					buf.WriteString(c.Data)
				}
			}
			title = strings.TrimSpace(buf.String())
			return true
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if walk(c) {
				return true
			}
		}
		return false
	}
	walk(doc)
	return title
}
