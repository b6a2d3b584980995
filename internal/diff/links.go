package diff

import (
	"html"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/sergi/go-diff/diffmatchpatch"

	ferrors "github.com/pagediff/pagediff/internal/foundation/errors"
)

// Link is one outgoing link listed by the links differ.
type Link struct {
	Text string `json:"text"`
	Href string `json:"href"`
}

// LinkChange pairs a link with its diff op. It marshals as [op, link].
type LinkChange struct {
	Op   int
	Link Link
}

// MarshalJSON renders the change as a two-element array.
func (c LinkChange) MarshalJSON() ([]byte, error) {
	return marshalPair(c.Op, c.Link)
}

// linksDiffer extracts the outgoing links of both pages and diffs the two
// link lists. Links that merely navigate within the page (fragment-only
// hrefs) are ignored.
//
// A link on page A is only matched with the same link on page B, so a target
// change and a text change both show as a remove/add pair.
type linksDiffer struct {
	json bool
}

func (d linksDiffer) Name() string {
	if d.json {
		return "links_json"
	}
	return "links"
}

func (linksDiffer) NeedsText() bool { return true }

func (d linksDiffer) Diff(req *Request) (*Result, error) {
	aLinks, err := extractOutgoingLinks(req.AText)
	if err != nil {
		return nil, err
	}
	bLinks, err := extractOutgoingLinks(req.BText)
	if err != nil {
		return nil, err
	}

	changes := diffLinkLists(aLinks, bLinks)

	if d.json || req.Format == FormatJSON {
		return &Result{ChangeCount: linkChangeCount(changes), Diff: changes}, nil
	}
	return &Result{
		ChangeCount: linkChangeCount(changes),
		Diff:        renderLinkHTML(req.BText, changes),
	}, nil
}

// extractOutgoingLinks lists the page's outgoing links, deduplicated and
// sorted case-insensitively by link text.
func extractOutgoingLinks(htmlText string) ([]Link, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlText))
	if err != nil {
		return nil, ferrors.ValidationError("failed to parse HTML").WithCause(err).Build()
	}

	seen := map[Link]bool{}
	var links []Link
	doc.Find("a").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok || href == "" || strings.HasPrefix(href, "#") {
			return
		}
		link := Link{Text: normalizeSpace(sel.Text()), Href: href}
		if !seen[link] {
			seen[link] = true
			links = append(links, link)
		}
	})

	sort.Slice(links, func(i, j int) bool {
		a, b := strings.ToLower(links[i].Text), strings.ToLower(links[j].Text)
		if a != b {
			return a < b
		}
		return links[i].Href < links[j].Href
	})
	return links, nil
}

// diffLinkLists diffs two sorted link lists at whole-link granularity.
func diffLinkLists(a, b []Link) []LinkChange {
	aKeys := make([]string, len(a))
	for i, l := range a {
		aKeys[i] = l.Text + "\x1f" + l.Href
	}
	bKeys := make([]string, len(b))
	for i, l := range b {
		bKeys[i] = l.Text + "\x1f" + l.Href
	}

	dmp := diffmatchpatch.New()
	chars1, chars2, lineArray := dmp.DiffLinesToChars(
		strings.Join(aKeys, "\n"), strings.Join(bKeys, "\n"))
	diffs := dmp.DiffMain(chars1, chars2, false)
	diffs = dmp.DiffCharsToLines(diffs, lineArray)

	var changes []LinkChange
	for _, d := range diffs {
		op := 0
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			op = -1
		case diffmatchpatch.DiffInsert:
			op = 1
		}
		for _, key := range strings.Split(strings.Trim(d.Text, "\n"), "\n") {
			if key == "" {
				continue
			}
			text, href, _ := strings.Cut(key, "\x1f")
			changes = append(changes, LinkChange{Op: op, Link: Link{Text: text, Href: href}})
		}
	}
	return changes
}

func linkChangeCount(changes []LinkChange) int {
	var n int
	for _, c := range changes {
		if c.Op != 0 {
			n++
		}
	}
	return n
}

// renderLinkHTML renders the link changes as a standalone HTML list, titled
// after the newer document.
func renderLinkHTML(bText string, changes []LinkChange) string {
	title := ""
	if doc, err := goquery.NewDocumentFromReader(strings.NewReader(bText)); err == nil {
		title = normalizeSpace(doc.Find("title").First().Text())
	}

	var b strings.Builder
	b.WriteString("<!doctype html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n<title>")
	b.WriteString(html.EscapeString(title))
	b.WriteString("</title>\n<style type=\"text/css\" id=\"wm-diff-style\">\n")
	b.WriteString(diffStyles)
	b.WriteString("\n</style>\n</head>\n<body>\n<ul>\n")
	for _, c := range changes {
		entry := html.EscapeString(c.Link.Text) + ` <a href="` +
			html.EscapeString(c.Link.Href) + `">(` + html.EscapeString(c.Link.Href) + `)</a>`
		switch c.Op {
		case -1:
			b.WriteString("<li><del>" + entry + "</del></li>\n")
		case 1:
			b.WriteString("<li><ins>" + entry + "</ins></li>\n")
		default:
			b.WriteString("<li>" + entry + "</li>\n")
		}
	}
	b.WriteString("</ul>\n</body>\n</html>\n")
	return b.String()
}
