package domain

// Team is the unit under which tasks are created and numbered. It exclusively
// owns the taskNumber counter; only the creation transaction advances it.
type Team struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	TasksIDs []string `json:"tasksIds"`
	// TaskNumber increases by exactly one per successful task creation.
	TaskNumber int `json:"taskNumber"`
}

// User mirrors the identity provider's record plus the denormalized task
// back-references maintained by the creation transaction. The task record
// remains the source of truth for assignment.
type User struct {
	ID        string   `json:"id"`
	Email     string   `json:"email"`
	FirstName string   `json:"firstName"`
	LastName  string   `json:"lastName"`
	Tasks     []string `json:"tasks"`
	// Organizations maps organization id to the member's team ids within it.
	Organizations map[string][]string `json:"organizations"`
}

// MemberOf reports whether the user belongs to the given team in any
// organization.
func (u *User) MemberOf(teamID string) bool {
	for _, teams := range u.Organizations {
		for _, id := range teams {
			if id == teamID {
				return true
			}
		}
	}
	return false
}

// Organization is a collection of teams with a member/role map.
type Organization struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	MembersRoles map[string]string `json:"membersRoles"`
	TeamsIDs     []string          `json:"teamsIds"`
}

// RoleOwner is recorded for the creating user of an organization.
const RoleOwner = "owner"
