// Package diff implements the differ catalog: each differ compares two
// fetched documents and produces a structured result. Differs are registered
// by name; the HTTP layer resolves the request path to a differ.
package diff

import (
	"encoding/json"
	"sort"

	"github.com/pagediff/pagediff/internal/fetch"
)

// Format selects the result rendering for differs that support both.
const (
	FormatJSON = "json"
	FormatHTML = "html"
)

// Request carries the two documents being compared. AText/BText are the
// decoded bodies, populated only for differs that report NeedsText.
type Request struct {
	A      *fetch.Resource
	B      *fetch.Resource
	AText  string
	BText  string
	Format string
}

// Result is a computed diff. ChangeCount is the number of changed segments
// (zero for identical inputs); Diff holds the differ-specific payload.
type Result struct {
	ChangeCount int `json:"change_count"`
	Diff        any `json:"diff"`
}

// Differ computes a structured comparison of two documents.
type Differ interface {
	// Name is the diff type used in request paths.
	Name() string
	// NeedsText reports whether the bodies must decode as text before diffing.
	NeedsText() bool
	Diff(req *Request) (*Result, error)
}

// Segment is one run of a diff-match-patch result. It marshals as the
// [op, text] pair used by the JSON API, with op -1 (deleted), 0 (unchanged),
// or 1 (inserted).
type Segment struct {
	Op   int
	Text string
}

// MarshalJSON renders the segment as a two-element array.
func (s Segment) MarshalJSON() ([]byte, error) {
	return marshalPair(s.Op, s.Text)
}

// marshalPair renders an [op, payload] JSON pair.
func marshalPair(op int, payload any) ([]byte, error) {
	return json.Marshal([2]any{op, payload})
}

// UnmarshalJSON parses the [op, text] pair form.
func (s *Segment) UnmarshalJSON(data []byte) error {
	var pair [2]json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if err := json.Unmarshal(pair[0], &s.Op); err != nil {
		return err
	}
	return json.Unmarshal(pair[1], &s.Text)
}

// changeCount counts the non-equal segments.
func changeCount(segments []Segment) int {
	var n int
	for _, s := range segments {
		if s.Op != 0 {
			n++
		}
	}
	return n
}

var registry = map[string]Differ{}

func register(d Differ) {
	registry[d.Name()] = d
}

// Lookup resolves a diff type name.
func Lookup(name string) (Differ, bool) {
	d, ok := registry[name]
	return d, ok
}

// Names returns the registered diff type names, sorted.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func init() {
	register(identicalBytes{})
	register(compareLength{})
	register(sideBySideText{})
	register(htmlTextDMP{})
	register(htmlSourceDMP{})
	register(htmlToken{})
	register(linksDiffer{json: false})
	register(linksDiffer{json: true})
	register(markdownText{})
}
