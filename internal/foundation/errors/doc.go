// Package errors provides classified errors for the diff server: every failure
// carries a category (validation, upstream, timeout, decode, hash, ...), a
// severity, and optional structured context. The HTTPErrorAdapter maps
// categories onto the status codes of the public diff API and renders the
// canonical {"code", "error"} JSON body.
package errors
