package domain

import "fmt"

// TaskUpdate carries a validated partial edit. Nil fields are absent from the
// request and must be left untouched by the merge write.
type TaskUpdate struct {
	Name         *string   `json:"name,omitempty"`
	Description  *string   `json:"description,omitempty"`
	AssigneesIDs *[]string `json:"assigneesIds,omitempty"`
	Deadline     *string   `json:"deadline,omitempty"`
	Status       *Status   `json:"status,omitempty"`
}

// IsEmpty reports whether the update contains no fields at all.
func (u TaskUpdate) IsEmpty() bool {
	return u.Name == nil && u.Description == nil && u.AssigneesIDs == nil &&
		u.Deadline == nil && u.Status == nil
}

// RawTaskUpdate is the wire form of a partial edit before validation. Pointer
// fields distinguish "absent" from "present but empty".
type RawTaskUpdate struct {
	Name         *string   `json:"name"`
	Description  *string   `json:"description"`
	AssigneesIDs *[]string `json:"assigneesIds"`
	Deadline     *string   `json:"deadline"`
	Status       *string   `json:"status"`
}

// ValidateTaskUpdate checks every present field and returns the merge set.
// A single invalid field rejects the whole update; absent fields stay absent.
//
// Deadlines are parse-checked only. Unlike creation there is no past-date
// rejection here; the asymmetry is intentional and preserved as-is.
func ValidateTaskUpdate(raw RawTaskUpdate) (TaskUpdate, error) {
	var upd TaskUpdate

	if raw.Name != nil {
		name := CleanText(*raw.Name, maxNameLen)
		if name == "" {
			return TaskUpdate{}, fmt.Errorf("%w: name must be non-empty", ErrInvalidField)
		}
		upd.Name = &name
	}

	if raw.Description != nil {
		desc := CleanText(*raw.Description, maxDescriptionLen)
		upd.Description = &desc
	}

	if raw.Deadline != nil {
		// ParseDeadline's empty marker belongs to creation; a present
		// deadline here must actually parse.
		deadline, err := ParseDeadline(*raw.Deadline)
		if err != nil || deadline == "" {
			return TaskUpdate{}, fmt.Errorf("%w: deadline", ErrInvalidField)
		}
		upd.Deadline = &deadline
	}

	if raw.AssigneesIDs != nil {
		assignees := dedupeIdentifiers(*raw.AssigneesIDs)
		upd.AssigneesIDs = &assignees
	}

	if raw.Status != nil {
		status, err := ParseStatus(*raw.Status)
		if err != nil {
			return TaskUpdate{}, err
		}
		upd.Status = &status
	}

	return upd, nil
}

// ApplyTaskUpdate merges a validated update into a task record.
func ApplyTaskUpdate(t Task, upd TaskUpdate) Task {
	if upd.Name != nil {
		t.Name = *upd.Name
	}
	if upd.Description != nil {
		t.Description = *upd.Description
	}
	if upd.AssigneesIDs != nil {
		t.AssigneesIDs = *upd.AssigneesIDs
	}
	if upd.Deadline != nil {
		t.Deadline = *upd.Deadline
	}
	if upd.Status != nil {
		t.Status = *upd.Status
	}
	return t
}
