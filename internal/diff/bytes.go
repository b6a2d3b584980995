package diff

import "bytes"

// identicalBytes reports whether the two bodies are byte-for-byte equal.
type identicalBytes struct{}

func (identicalBytes) Name() string    { return "identical_bytes" }
func (identicalBytes) NeedsText() bool { return false }

func (identicalBytes) Diff(req *Request) (*Result, error) {
	equal := bytes.Equal(req.A.Body, req.B.Body)
	count := 1
	if equal {
		count = 0
	}
	return &Result{ChangeCount: count, Diff: equal}, nil
}

// compareLength compares body lengths: -1 when b is shorter than a, 0 when
// equal, 1 when longer.
type compareLength struct{}

func (compareLength) Name() string    { return "compare_length" }
func (compareLength) NeedsText() bool { return false }

func (compareLength) Diff(req *Request) (*Result, error) {
	var sign int
	switch {
	case len(req.B.Body) < len(req.A.Body):
		sign = -1
	case len(req.B.Body) > len(req.A.Body):
		sign = 1
	}
	count := 0
	if sign != 0 {
		count = 1
	}
	return &Result{ChangeCount: count, Diff: sign}, nil
}
