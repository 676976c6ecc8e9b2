package plan

import "path/filepath"

// Well-known file names inside a plan directory (the project-local
// .plandash/ directory maintained next to the code being worked on).
const (
	QueueFile        = "queue.md"
	LogFile          = "execution.log"
	ConfigFile       = "config.json"
	CompactStateFile = "compact-state.json"
	InstructionsFile = "AGENTS.md"
	ContextDirName   = "context"
)

// QueuePath returns <planDir>/queue.md.
func QueuePath(planDir string) string { return filepath.Join(planDir, QueueFile) }

// LogPath returns <planDir>/execution.log.
func LogPath(planDir string) string { return filepath.Join(planDir, LogFile) }

// ConfigPath returns <planDir>/config.json.
func ConfigPath(planDir string) string { return filepath.Join(planDir, ConfigFile) }

// CompactStatePath returns <planDir>/compact-state.json.
func CompactStatePath(planDir string) string { return filepath.Join(planDir, CompactStateFile) }

// InstructionsPath returns <planDir>/AGENTS.md, the instructions file the
// external agent re-reads after a context compaction.
func InstructionsPath(planDir string) string { return filepath.Join(planDir, InstructionsFile) }

// ContextDir returns <planDir>/context/, where context snapshots are written.
func ContextDir(planDir string) string { return filepath.Join(planDir, ContextDirName) }
