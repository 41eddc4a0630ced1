package engine

import (
	"os/exec"
	"path/filepath"
	"strings"
)

// trustedBinDirs are the system directories an executable must resolve
// into before the isolating backends will run it. Checking the resolved
// path defeats whitelisted names shadowed by a malicious binary earlier
// in the search path.
var trustedBinDirs = []string{
	"/usr/bin",
	"/usr/local/bin",
	"/usr/sbin",
	"/bin",
	"/sbin",
}

// resolveTrustedPath resolves tool through PATH and symlinks and returns
// the real path if it lives under a trusted directory.
func resolveTrustedPath(lookPath func(string) (string, error), tool string) (string, bool) {
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	found, err := lookPath(tool)
	if err != nil {
		return "", false
	}
	resolved, err := filepath.EvalSymlinks(found)
	if err != nil {
		return "", false
	}
	for _, dir := range trustedBinDirs {
		if strings.HasPrefix(resolved, dir+string(filepath.Separator)) {
			return resolved, true
		}
	}
	return resolved, false
}
