package diff

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pageA = `<html><head><title>Old Page</title></head><body>
<a href="#section">skip me</a>
<a href="https://example.org/one">One</a>
<a href="https://example.org/two">Two</a>
<a href="https://example.org/two">Two</a>
</body></html>`

const pageB = `<html><head><title>New Page</title></head><body>
<a href="https://example.org/one">One</a>
<a href="https://example.org/three">Three</a>
</body></html>`

func TestExtractOutgoingLinks(t *testing.T) {
	links, err := extractOutgoingLinks(pageA)
	require.NoError(t, err)

	// Fragment links skipped, duplicates removed, sorted by text.
	assert.Equal(t, []Link{
		{Text: "One", Href: "https://example.org/one"},
		{Text: "Two", Href: "https://example.org/two"},
	}, links)
}

func TestLinksJSONDiff(t *testing.T) {
	d := mustLookup(t, "links_json")

	res, err := d.Diff(request(pageA, pageB))
	require.NoError(t, err)

	changes, ok := res.Diff.([]LinkChange)
	require.True(t, ok)

	byOp := map[int][]Link{}
	for _, c := range changes {
		byOp[c.Op] = append(byOp[c.Op], c.Link)
	}
	assert.Contains(t, byOp[0], Link{Text: "One", Href: "https://example.org/one"})
	assert.Contains(t, byOp[-1], Link{Text: "Two", Href: "https://example.org/two"})
	assert.Contains(t, byOp[1], Link{Text: "Three", Href: "https://example.org/three"})
	assert.Equal(t, 2, res.ChangeCount)
}

func TestLinksJSONMarshalsAsPairs(t *testing.T) {
	change := LinkChange{Op: -1, Link: Link{Text: "Two", Href: "https://example.org/two"}}
	data, err := json.Marshal(change)
	require.NoError(t, err)
	assert.JSONEq(t, `[-1,{"text":"Two","href":"https://example.org/two"}]`, string(data))
}

func TestLinksHTMLDiff(t *testing.T) {
	d := mustLookup(t, "links")

	res, err := d.Diff(request(pageA, pageB))
	require.NoError(t, err)

	rendered, ok := res.Diff.(string)
	require.True(t, ok)
	assert.Contains(t, rendered, "<title>New Page</title>")
	assert.Contains(t, rendered, "<del>")
	assert.Contains(t, rendered, "<ins>")
	assert.Contains(t, rendered, "https://example.org/three")
	assert.Contains(t, rendered, "wm-diff-style")
}

func TestLinksIdenticalPages(t *testing.T) {
	d := mustLookup(t, "links_json")

	res, err := d.Diff(request(pageA, pageA))
	require.NoError(t, err)
	assert.Equal(t, 0, res.ChangeCount)
}
