package daemon

import (
	"path/filepath"
)

func runDir(agentDir string) string {
	return filepath.Join(agentDir, "run")
}

func pidPath(agentDir string) string {
	return filepath.Join(runDir(agentDir), "plandash.pid")
}

func lockPath(agentDir string) string {
	return filepath.Join(runDir(agentDir), "plandash.lock")
}

func addrPath(agentDir string) string {
	return filepath.Join(runDir(agentDir), "plandash.addr")
}
