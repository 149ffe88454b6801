package types

// Compute Engine lifecycle states. The API passes status through verbatim, so
// an unlisted value is still a valid answer.
const (
	StatusProvisioning = "PROVISIONING"
	StatusStaging      = "STAGING"
	StatusRunning      = "RUNNING"
	StatusStopping     = "STOPPING"
	StatusSuspending   = "SUSPENDING"
	StatusSuspended    = "SUSPENDED"
	StatusRepairing    = "REPAIRING"
	StatusTerminated   = "TERMINATED"
)

var knownStatuses = map[string]bool{
	StatusProvisioning: true,
	StatusStaging:      true,
	StatusRunning:      true,
	StatusStopping:     true,
	StatusSuspending:   true,
	StatusSuspended:    true,
	StatusRepairing:    true,
	StatusTerminated:   true,
}

// IsKnownStatus reports whether status is a documented lifecycle state
func IsKnownStatus(status string) bool {
	return knownStatuses[status]
}

// IsStopped reports whether the instance is not consuming compute
func IsStopped(status string) bool {
	return status == StatusTerminated || status == StatusSuspended
}
