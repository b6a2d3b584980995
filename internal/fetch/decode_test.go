package fetch

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ferrors "github.com/pagediff/pagediff/internal/foundation/errors"
)

func resource(contentType string, body []byte) *Resource {
	h := http.Header{}
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}
	return &Resource{URL: "file:///fixture", StatusCode: 200, Headers: h, Body: body, ContentType: contentType}
}

func TestExtractEncodingFromHeaders(t *testing.T) {
	h := http.Header{}
	h.Set("Content-Type", "  text/html; charset=iso-8859-7")
	assert.Equal(t, "iso-8859-7", ExtractEncoding(h, nil))

	h.Set("Content-Type", "text/xhtml;CHARSET=iso-8859-5 ")
	assert.Equal(t, "iso-8859-5", ExtractEncoding(h, nil))
}

func TestExtractEncodingBadHeaderFallsBack(t *testing.T) {
	h := http.Header{}
	h.Set("Content-Type", "\x94Invalid\x0b")
	assert.Equal(t, "utf-8", ExtractEncoding(h, nil))
}

func TestExtractEncodingFromMetaTag(t *testing.T) {
	body := []byte(`<html><head><meta charset="iso-8859-2"><title>T</title></head><body></body></html>`)
	assert.Equal(t, "iso-8859-2", ExtractEncoding(http.Header{}, body))
}

func TestDecodeEmptyBody(t *testing.T) {
	text, err := DecodeBody(resource("text/plain", nil))
	require.NoError(t, err)
	assert.Equal(t, "", text)
}

func TestDecodePoorlyEncodedUTF8(t *testing.T) {
	// Mostly-valid utf-8 with a stray continuation byte must not fail.
	body := append([]byte("mostly fine text with a bad byte: "), 0x85)
	body = append(body, []byte(" and plenty of ordinary text following it")...)
	_, err := DecodeBody(resource("text/plain; charset=utf-8", body))
	require.NoError(t, err)
}

func TestDecodeBinaryContentFails(t *testing.T) {
	// A PDF-ish body: header magic then dense binary.
	body := []byte("%PDF-1.4")
	for i := 0; i < 512; i++ {
		body = append(body, byte(i%7), 0x01, 0x02, 0x1f, byte(i))
	}
	_, err := DecodeBody(resource("application/pdf", body))
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryDecode))
}

func TestDecodeStripsNullBytes(t *testing.T) {
	body := []byte("before\x00after")
	text, err := DecodeBody(resource("text/plain; charset=utf-8", body))
	require.NoError(t, err)
	assert.Equal(t, "beforeafter", text)
}

func TestDecodeUnknownEncodingTreatedAsUTF8(t *testing.T) {
	body := []byte("plain ascii content")
	text, err := DecodeBody(resource("text/html; charset=not-a-real-encoding", body))
	require.NoError(t, err)
	assert.Equal(t, "plain ascii content", text)
}

func TestExtractTitle(t *testing.T) {
	assert.Equal(t, "Page Title",
		ExtractTitle(`<html><head><title> Page Title </title></head><body>x</body></html>`))
	assert.Equal(t, "", ExtractTitle(`<html><body>no title</body></html>`))
}
