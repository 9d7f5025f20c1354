package enums

import "fmt"

// OnboardingStatus tracks a payee's connected account verification.
type OnboardingStatus string

const (
	OnboardingStatusNotCreated          OnboardingStatus = "not_created"
	OnboardingStatusPendingVerification OnboardingStatus = "pending_verification"
	OnboardingStatusVerified            OnboardingStatus = "verified"
)

var validOnboardingStatuses = []OnboardingStatus{
	OnboardingStatusNotCreated,
	OnboardingStatusPendingVerification,
	OnboardingStatusVerified,
}

// IsValid reports whether the value matches a known onboarding status.
func (s OnboardingStatus) IsValid() bool {
	for _, candidate := range validOnboardingStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseOnboardingStatus converts raw input into OnboardingStatus.
func ParseOnboardingStatus(value string) (OnboardingStatus, error) {
	for _, candidate := range validOnboardingStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid onboarding status %q", value)
}
