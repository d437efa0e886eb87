package resume

import (
	"os"
	"path/filepath"
	"testing"
)

// With the path slots filled in pipeline order and the last one's file
// present or missing, Remaining returns the expected stage list.
func TestRemaining_AllCombinations(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "exists.mkv")
	if err := writeFile(existing); err != nil {
		t.Fatalf("seed file: %v", err)
	}
	missing := filepath.Join(dir, "missing.mkv")

	cases := []struct {
		name  string
		paths PathState
		want  []Stage
	}{
		{"nothing set", PathState{}, []Stage{StageRip, StageTranscode, StageInsert}},
		{"ripped path set but missing", PathState{RippedPath: missing}, []Stage{StageRip, StageTranscode, StageInsert}},
		{"ripped path exists", PathState{RippedPath: existing}, []Stage{StageTranscode, StageInsert}},
		{"transcoded missing falls back to rip", PathState{RippedPath: existing, TranscodedPath: missing}, []Stage{StageTranscode, StageInsert}},
		{"transcoded exists", PathState{RippedPath: existing, TranscodedPath: existing}, []Stage{StageInsert}},
		{"inserted missing falls back to transcode", PathState{RippedPath: existing, TranscodedPath: existing, InsertedPath: missing}, []Stage{StageInsert}},
		{"inserted exists", PathState{RippedPath: existing, TranscodedPath: existing, InsertedPath: existing}, nil},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := Remaining(c.paths)
			if !stagesEqual(got, c.want) {
				t.Fatalf("Remaining(%+v) = %v, want %v", c.paths, got, c.want)
			}
		})
	}
}

func stagesEqual(a, b []Stage) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func writeFile(path string) error {
	return os.WriteFile(path, []byte("x"), 0o644)
}
