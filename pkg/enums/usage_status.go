package enums

import "fmt"

// UsageStatus tracks the lifecycle of a billed service invocation.
type UsageStatus string

const (
	UsageStatusCompleted UsageStatus = "completed"
	UsageStatusFailed    UsageStatus = "failed"
	UsageStatusRefunded  UsageStatus = "refunded"
)

var validUsageStatuses = []UsageStatus{
	UsageStatusCompleted,
	UsageStatusFailed,
	UsageStatusRefunded,
}

// String implements fmt.Stringer.
func (u UsageStatus) String() string {
	return string(u)
}

// IsValid reports whether the value is known.
func (u UsageStatus) IsValid() bool {
	for _, candidate := range validUsageStatuses {
		if candidate == u {
			return true
		}
	}
	return false
}

// ParseUsageStatus converts raw input into a UsageStatus.
func ParseUsageStatus(value string) (UsageStatus, error) {
	for _, candidate := range validUsageStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid usage status %q", value)
}
