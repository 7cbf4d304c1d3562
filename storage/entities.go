package storage

import (
	"encoding/json"

	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"

	"taskboard-api/domain"
)

// Table properties hold scalars only, so list- and map-valued attributes are
// stored as JSON strings inside a property.

type taskEntity struct {
	aztables.Entity
	TeamID      string `json:"TeamID"`
	Name        string `json:"Name"`
	Description string `json:"Description"`
	Assignees   string `json:"Assignees"`
	Deadline    string `json:"Deadline"`
	Status      string `json:"Status"`
}

type teamEntity struct {
	aztables.Entity
	Name       string `json:"Name"`
	TaskNumber int    `json:"TaskNumber"`
	TasksIDs   string `json:"TasksIDs"`
}

type userEntity struct {
	aztables.Entity
	Email         string `json:"Email"`
	FirstName     string `json:"FirstName"`
	LastName      string `json:"LastName"`
	Tasks         string `json:"Tasks"`
	Organizations string `json:"Organizations"`
}

type organizationEntity struct {
	aztables.Entity
	Name         string `json:"Name"`
	MembersRoles string `json:"MembersRoles"`
	TeamsIDs     string `json:"TeamsIDs"`
}

func encodeTaskEntity(t domain.Task) ([]byte, error) {
	assignees, err := json.Marshal(t.AssigneesIDs)
	if err != nil {
		return nil, err
	}
	return json.Marshal(taskEntity{
		Entity:      aztables.Entity{PartitionKey: collectionTasks, RowKey: t.ID},
		TeamID:      t.TeamID,
		Name:        t.Name,
		Description: t.Description,
		Assignees:   string(assignees),
		Deadline:    t.Deadline,
		Status:      string(t.Status),
	})
}

func decodeTaskEntity(data []byte) (domain.Task, error) {
	var ent taskEntity
	if err := json.Unmarshal(data, &ent); err != nil {
		return domain.Task{}, err
	}
	task := domain.Task{
		ID:          ent.RowKey,
		TeamID:      ent.TeamID,
		Name:        ent.Name,
		Description: ent.Description,
		Deadline:    ent.Deadline,
		Status:      domain.Status(ent.Status),
	}
	if err := decodeJSONList(ent.Assignees, &task.AssigneesIDs); err != nil {
		return domain.Task{}, err
	}
	return task, nil
}

func encodeTeamEntity(t domain.Team) ([]byte, error) {
	tasks, err := json.Marshal(t.TasksIDs)
	if err != nil {
		return nil, err
	}
	return json.Marshal(teamEntity{
		Entity:     aztables.Entity{PartitionKey: collectionTeams, RowKey: t.ID},
		Name:       t.Name,
		TaskNumber: t.TaskNumber,
		TasksIDs:   string(tasks),
	})
}

func decodeTeamEntity(data []byte) (domain.Team, error) {
	var ent teamEntity
	if err := json.Unmarshal(data, &ent); err != nil {
		return domain.Team{}, err
	}
	team := domain.Team{
		ID:         ent.RowKey,
		Name:       ent.Name,
		TaskNumber: ent.TaskNumber,
	}
	if err := decodeJSONList(ent.TasksIDs, &team.TasksIDs); err != nil {
		return domain.Team{}, err
	}
	return team, nil
}

func encodeUserEntity(u domain.User) ([]byte, error) {
	tasks, err := json.Marshal(u.Tasks)
	if err != nil {
		return nil, err
	}
	orgs, err := json.Marshal(u.Organizations)
	if err != nil {
		return nil, err
	}
	return json.Marshal(userEntity{
		Entity:        aztables.Entity{PartitionKey: collectionUsers, RowKey: u.ID},
		Email:         u.Email,
		FirstName:     u.FirstName,
		LastName:      u.LastName,
		Tasks:         string(tasks),
		Organizations: string(orgs),
	})
}

func decodeUserEntity(data []byte) (domain.User, error) {
	var ent userEntity
	if err := json.Unmarshal(data, &ent); err != nil {
		return domain.User{}, err
	}
	user := domain.User{
		ID:        ent.RowKey,
		Email:     ent.Email,
		FirstName: ent.FirstName,
		LastName:  ent.LastName,
	}
	if err := decodeJSONList(ent.Tasks, &user.Tasks); err != nil {
		return domain.User{}, err
	}
	if ent.Organizations != "" {
		if err := json.Unmarshal([]byte(ent.Organizations), &user.Organizations); err != nil {
			return domain.User{}, err
		}
	}
	return user, nil
}

func encodeOrganizationEntity(o domain.Organization) ([]byte, error) {
	roles, err := json.Marshal(o.MembersRoles)
	if err != nil {
		return nil, err
	}
	teams, err := json.Marshal(o.TeamsIDs)
	if err != nil {
		return nil, err
	}
	return json.Marshal(organizationEntity{
		Entity:       aztables.Entity{PartitionKey: collectionOrganizations, RowKey: o.ID},
		Name:         o.Name,
		MembersRoles: string(roles),
		TeamsIDs:     string(teams),
	})
}

func encodeEvent(ev domain.TaskEvent) ([]byte, error) {
	return json.Marshal(ev)
}

func decodeJSONList(raw string, dst *[]string) error {
	if raw == "" {
		return nil
	}
	return json.Unmarshal([]byte(raw), dst)
}
