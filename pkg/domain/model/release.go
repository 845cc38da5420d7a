package model

// ReleaseInfo is release metadata extracted from a GitHub release event. It is informational and
// plays no part in gate decisions.
type ReleaseInfo struct {
	Action      string
	Owner       string
	Repo        string
	TagName     string
	ReleaseName string
	CommitSHA   string // target_commitish of the release
	Sender      string
}
