package domain

import "context"

type fakeTx struct {
	teams map[string]Team
	users map[string]User
	tasks map[string]Task

	putTask    *Task
	updateTeam *Team
	appended   map[string][]string
}

func newFakeTx() *fakeTx {
	return &fakeTx{
		teams:    map[string]Team{},
		users:    map[string]User{},
		tasks:    map[string]Task{},
		appended: map[string][]string{},
	}
}

func (f *fakeTx) GetTeam(ctx context.Context, id string) (*Team, error) {
	t, ok := f.teams[id]
	if !ok {
		return nil, &NotFoundError{Collection: "team", ID: id}
	}
	return &t, nil
}

func (f *fakeTx) GetUser(ctx context.Context, id string) (*User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, &NotFoundError{Collection: "user", ID: id}
	}
	return &u, nil
}

func (f *fakeTx) PutTask(ctx context.Context, t Task) error {
	f.tasks[t.ID] = t
	f.putTask = &t
	return nil
}

func (f *fakeTx) AppendUserTask(ctx context.Context, userID, taskID string) error {
	for _, existing := range f.appended[userID] {
		if existing == taskID {
			return nil
		}
	}
	f.appended[userID] = append(f.appended[userID], taskID)
	return nil
}

func (f *fakeTx) UpdateTeam(ctx context.Context, t Team) error {
	f.teams[t.ID] = t
	f.updateTeam = &t
	return nil
}
