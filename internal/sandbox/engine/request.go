package engine

// InitRequest is the JSON message the seccomp backend writes to the
// sandbox-init helper's stdin. The helper applies resource limits and the
// syscall filter, then execs Argv in Dir with exactly Env.
type InitRequest struct {
	Argv           []string `json:"argv"`
	Dir            string   `json:"dir"`
	Env            []string `json:"env"`
	MaxMemoryMB    int64    `json:"max_memory_mb"`
	CPUTimeSeconds int64    `json:"cpu_time_seconds"`
	DeniedSyscalls []string `json:"denied_syscalls"`
}

// DefaultDeniedSyscalls blocks the syscalls that let a process inspect or
// reshape the host: tracing, module loading, mount manipulation, kexec and
// raw BPF. The filter is default-allow with this deny-list; full syscall
// whitelisting is out of scope.
var DefaultDeniedSyscalls = []string{
	"ptrace",
	"process_vm_readv",
	"process_vm_writev",
	"mount",
	"umount2",
	"pivot_root",
	"chroot",
	"setns",
	"reboot",
	"kexec_load",
	"kexec_file_load",
	"init_module",
	"finit_module",
	"delete_module",
	"swapon",
	"swapoff",
	"keyctl",
	"add_key",
	"request_key",
	"bpf",
	"perf_event_open",
}
