// Package engine implements the sandbox backends.
//
// Four backends exist and the set is closed: no isolation, bubblewrap
// namespace isolation, a WASM side-process runtime, and a seccomp syscall
// filter. All of them honor the same contract: commands are validated
// against the tool whitelist before any process is spawned, executions are
// bounded by the configured timeout, and every blocked command, timeout and
// completion is reported to the audit recorder.
package engine
