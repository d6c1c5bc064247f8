package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeySessionID  = "session_id"
	KeyStatus     = "session_status"
	KeyPhase      = "phase"
	KeyTargets    = "targets"
	KeyHistoryKey = "history_key"
	KeyPID        = "pid"
	KeyExitCode   = "exit_code"
	KeyDurationMS = "duration_ms"
	KeyComponent  = "component"
	KeyPath       = "path"
	KeyError      = "error"
	KeyMethod     = "method"
	KeyHTTPStatus = "http_status"
	KeyRemoteAddr = "remote_addr"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func SessionID(id string) slog.Attr   { return slog.String(KeySessionID, id) }
func Status(s string) slog.Attr       { return slog.String(KeyStatus, s) }
func Phase(p string) slog.Attr        { return slog.String(KeyPhase, p) }
func Targets(t []string) slog.Attr    { return slog.Any(KeyTargets, t) }
func HistoryKey(k string) slog.Attr   { return slog.String(KeyHistoryKey, k) }
func PID(pid int) slog.Attr           { return slog.Int(KeyPID, pid) }
func ExitCode(code int) slog.Attr     { return slog.Int(KeyExitCode, code) }
func DurationMS(ms float64) slog.Attr { return slog.Float64(KeyDurationMS, ms) }
func Component(c string) slog.Attr    { return slog.String(KeyComponent, c) }
func Path(p string) slog.Attr         { return slog.String(KeyPath, p) }
func Method(m string) slog.Attr       { return slog.String(KeyMethod, m) }
func HTTPStatus(code int) slog.Attr   { return slog.Int(KeyHTTPStatus, code) }
func RemoteAddr(a string) slog.Attr   { return slog.String(KeyRemoteAddr, a) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
