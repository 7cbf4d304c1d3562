package domain

import "fmt"

// Record identifiers are derived deterministically by concatenation. The
// inputs pass through CleanIdentifier first, so derived ids contain only
// word characters, hyphens, '@' and '.' and are safe as store keys.

// TaskID derives the id for the n+1-th task of a team, where n is the team's
// current taskNumber. Uniqueness holds only when the allocation of n+1 happens
// inside the same transaction that persists the task and advances the counter.
func TaskID(teamID string, taskNumber int) string {
	return fmt.Sprintf("%s-task-%d", teamID, taskNumber+1)
}

// TeamID derives a team id from its organization and name.
func TeamID(organizationID, name string) string {
	return fmt.Sprintf("%s-team-%s", CleanIdentifier(organizationID), CleanIdentifier(name))
}

// OrganizationID derives an organization id from its creator and name.
func OrganizationID(userID, name string) string {
	return fmt.Sprintf("%s-organization-%s", CleanIdentifier(userID), CleanIdentifier(name))
}
