package cmn

// Runtime-toggled assertions, mirroring the teacher's cmn/debug package.
// Assert only checks its condition after EnableDebug has been called;
// until then it does nothing.
var debugEnabled = false

// EnableDebug turns on panicking assertions; call once at process start
// (e.g. from cmd/maestro-sim when -debug is passed). Tests that want to
// catch invariant violations early call this in TestMain.
func EnableDebug() { debugEnabled = true }

// Assert panics with msg if cond is false and debug assertions are
// enabled. Never use this to validate external input — only to catch a
// violation of a kernel-internal invariant that indicates a bug in this
// repo, e.g. "msg_requests has at most one entry per peer".
func Assert(cond bool, msg string) {
	if debugEnabled && !cond {
		panic("assertion failed: " + msg)
	}
}
