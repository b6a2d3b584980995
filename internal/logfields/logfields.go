package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyDiffType   = "diff_type"
	KeyURLA       = "url_a"
	KeyURLB       = "url_b"
	KeyPage       = "page"
	KeyJobID      = "job_id"
	KeyVersionID  = "version_id"
	KeyDurationMS = "duration_ms"
	KeyStatus     = "status"
	KeyMethod     = "method"
	KeyPath       = "path"
	KeyUserAgent  = "user_agent"
	KeyRemoteAddr = "remote_addr"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func DiffType(t string) slog.Attr       { return slog.String(KeyDiffType, t) }
func URLA(u string) slog.Attr           { return slog.String(KeyURLA, u) }
func URLB(u string) slog.Attr           { return slog.String(KeyURLB, u) }
func Page(u string) slog.Attr           { return slog.String(KeyPage, u) }
func JobID(id string) slog.Attr         { return slog.String(KeyJobID, id) }
func VersionID(id string) slog.Attr     { return slog.String(KeyVersionID, id) }
func DurationMS(ms float64) slog.Attr   { return slog.Float64(KeyDurationMS, ms) }
func Status(code int) slog.Attr         { return slog.Int(KeyStatus, code) }
func Method(m string) slog.Attr         { return slog.String(KeyMethod, m) }
func Path(p string) slog.Attr           { return slog.String(KeyPath, p) }
func UserAgent(ua string) slog.Attr     { return slog.String(KeyUserAgent, ua) }
func RemoteAddr(addr string) slog.Attr  { return slog.String(KeyRemoteAddr, addr) }

func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
