package subscriber

// ControlMessage represents any message received in the cache-control
// pub/sub channel.
type ControlMessage struct {
	Action  Action `json:"action"`
	Version string `json:"version,omitempty"`
}

type Action string

const (
	// VersionBump switches partitions to a new generation and drops the
	// previous one.
	VersionBump Action = "version-bump"
	// Purge re-activates the current generation, dropping any stale
	// buckets left behind.
	Purge Action = "purge"
)

func (a *Action) IsValid() bool {
	switch *a {
	case VersionBump, Purge:
		return true
	}
	return false
}
