package domain

import "fmt"

// Status is the closed set of board columns a task can occupy. Values outside
// the four constants never survive ParseStatus, so code past the validation
// boundary can treat a Status as well-formed.
type Status string

const (
	StatusToDo       Status = "To Do"
	StatusInProgress Status = "In Progress"
	StatusReview     Status = "Review"
	StatusDone       Status = "Done"
)

// Statuses lists every column in board order.
var Statuses = [4]Status{StatusToDo, StatusInProgress, StatusReview, StatusDone}

// ParseStatus validates a raw status string against the closed set.
func ParseStatus(raw string) (Status, error) {
	s := Status(CleanText(raw, 100))
	for _, known := range Statuses {
		if s == known {
			return s, nil
		}
	}
	return "", fmt.Errorf("%w: unknown status %q", ErrInvalidField, raw)
}

// Task is a unit of work owned by exactly one team.
type Task struct {
	ID           string   `json:"id"`
	TeamID       string   `json:"teamId"`
	Name         string   `json:"name"`
	Description  string   `json:"description,omitempty"`
	AssigneesIDs []string `json:"assigneesIds"`
	// Deadline is an RFC 3339 UTC timestamp, or empty when the task has none.
	Deadline string `json:"deadline,omitempty"`
	Status   Status `json:"status"`
}
