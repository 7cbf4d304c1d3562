package api

import "taskboard-api/domain"

const requestBodyMaxSize = 64 * 1024 // 64 KiB

type createTaskResponse struct {
	Task     domain.Task       `json:"task"`
	Warnings []assigneeWarning `json:"warnings,omitempty"`
}

type assigneeWarning struct {
	UserID string `json:"userId"`
	Reason string `json:"reason"`
}

type tasksResponse struct {
	Tasks []domain.Task `json:"tasks"`
}

type messageResponse struct {
	Message string `json:"message"`
}
