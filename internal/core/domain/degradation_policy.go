package domain

import "strings"

// EntropyPolicyMode decides what happens when the operating system CSPRNG fails.
type EntropyPolicyMode string

const (
	// EntropyPolicyStrict aborts the operation with an entropy error.
	EntropyPolicyStrict EntropyPolicyMode = "strict"
	// EntropyPolicyDegraded falls back to a seeded userspace generator and reports it as a security event.
	EntropyPolicyDegraded EntropyPolicyMode = "degraded"
)

// EntropyPolicy centralises whether weak randomness is ever acceptable.
type EntropyPolicy struct {
	mode EntropyPolicyMode
}

// NewEntropyPolicy constructs a policy, defaulting to strict for anything but an explicit degraded mode.
func NewEntropyPolicy(mode EntropyPolicyMode) EntropyPolicy {
	if mode != EntropyPolicyDegraded {
		mode = EntropyPolicyStrict
	}
	return EntropyPolicy{mode: mode}
}

// ParseEntropyPolicyMode normalises textual input into a supported mode.
func ParseEntropyPolicyMode(value string) EntropyPolicyMode {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case string(EntropyPolicyDegraded):
		return EntropyPolicyDegraded
	default:
		return EntropyPolicyStrict
	}
}

// Mode returns the underlying policy mode.
func (p EntropyPolicy) Mode() EntropyPolicyMode {
	return p.mode
}

// AllowsFallback reports whether a non-CSPRNG source may be used after a read failure.
func (p EntropyPolicy) AllowsFallback() bool {
	return p.mode == EntropyPolicyDegraded
}
