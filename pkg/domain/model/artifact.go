package model

// Artifact is a content handle passed between actions of one run
type Artifact struct {
	Name  string
	Dir   string   // root directory of the content
	Files []string // relative paths, informational
	Size  int64    // total size in bytes
	// Cleanup is the directory removed when the run finishes. It may be a parent of Dir.
	Cleanup string
}
