package resume

import "os"

// Stage is one remaining pipeline step a track still needs.
type Stage string

const (
	StageRip       Stage = "rip"
	StageTranscode Stage = "transcode"
	StageInsert    Stage = "insert"
)

// FileExists abstracts the filesystem existence check so tests can stub it
// without touching disk. Defaults to os.Stat.
var FileExists = func(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// PathState is the subset of a track's recorded path fields the
// reconciler needs.
type PathState struct {
	RippedPath     string
	TranscodedPath string
	InsertedPath   string
}

// Remaining returns the pipeline stages still required for a track,
// checking the three path slots in reverse pipeline order. A stage is
// considered complete only when both its path field is set *and* the file
// exists on disk, so a record pointing at a deleted file re-enters the
// pipeline at that stage.
func Remaining(paths PathState) []Stage {
	if paths.InsertedPath != "" && FileExists(paths.InsertedPath) {
		return nil
	}
	if paths.TranscodedPath != "" && FileExists(paths.TranscodedPath) {
		return []Stage{StageInsert}
	}
	if paths.RippedPath != "" && FileExists(paths.RippedPath) {
		return []Stage{StageTranscode, StageInsert}
	}
	return []Stage{StageRip, StageTranscode, StageInsert}
}
