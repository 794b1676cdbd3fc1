package hermes

const (
	SubjectSnapshotReloaded = "territoires.snapshot.reloaded"
	// SubjectReloadRequest lets operators trigger a reload over the bus.
	SubjectReloadRequest = "territoires.snapshot.reload"

	StreamName   = "TERRITOIRES_EVENTS"
	StreamMaxAge = "168h" // 7 days
)

// StreamSubjects are the subjects retained in StreamName.
var StreamSubjects = []string{"territoires.scores.>", SubjectSnapshotReloaded}

func SubjectScoresComputed(granularity string) string {
	return "territoires.scores." + granularity + ".computed"
}
