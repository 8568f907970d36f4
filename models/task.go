package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type TaskStatus string

const (
	TaskTodo       TaskStatus = "todo"
	TaskInProgress TaskStatus = "in-progress"
	TaskInReview   TaskStatus = "in-review"
	TaskCompleted  TaskStatus = "completed"
	TaskApproved   TaskStatus = "approved"
	TaskRejected   TaskStatus = "rejected"
)

// Done reports whether the task counts towards project progress.
func (s TaskStatus) Done() bool {
	return s == TaskCompleted || s == TaskApproved
}

// ReviewOnly reports whether only administrators may move a task into this status.
func (s TaskStatus) ReviewOnly() bool {
	return s == TaskApproved || s == TaskRejected
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

type Attachment struct {
	Key  string `json:"key" bson:"key" validate:"required"`
	Name string `json:"name" bson:"name"`
	URL  string `json:"url" bson:"url" validate:"omitempty,url"`
}

type QAComment struct {
	Author    primitive.ObjectID `json:"author" bson:"author"`
	Message   string             `json:"message" bson:"message"`
	CreatedAt time.Time          `json:"createdAt" bson:"createdAt"`
}

type Task struct {
	Base        `bson:",inline"`
	Title       string               `json:"title" bson:"title"`
	Description string               `json:"description" bson:"description"`
	Project     primitive.ObjectID   `json:"project" bson:"project"`
	Milestone   *primitive.ObjectID  `json:"milestone,omitempty" bson:"milestone,omitempty"`
	Assignee    []primitive.ObjectID `json:"assignee" bson:"assignee"`
	Status      TaskStatus           `json:"status" bson:"status"`
	Priority    Priority             `json:"priority" bson:"priority"`
	DueDate     *time.Time           `json:"dueDate,omitempty" bson:"dueDate,omitempty"`
	Attachments []Attachment         `json:"attachments" bson:"attachments"`
	QAComments  []QAComment          `json:"qaComments" bson:"qaComments"`
	CreatedBy   primitive.ObjectID   `json:"createdBy" bson:"createdBy"`
}

// HasAssignee reports whether id is one of the task's assignees.
func (t *Task) HasAssignee(id primitive.ObjectID) bool {
	for _, a := range t.Assignee {
		if a == id {
			return true
		}
	}
	return false
}

// TaskView is a task with assignees and project resolved.
type TaskView struct {
	Task
	Assignee []UserRef  `json:"assignee"`
	Project  *ProjectRef `json:"project"`
}

type TaskInput struct {
	Title       string       `json:"title" validate:"required,max=300"`
	Description string       `json:"description" validate:"max=10000"`
	Project     string       `json:"project" validate:"required"`
	Milestone   string       `json:"milestone"`
	Assignee    []string     `json:"assignee" validate:"dive,required"`
	Status      string       `json:"status" validate:"omitempty,oneof=todo in-progress in-review completed"`
	Priority    string       `json:"priority" validate:"omitempty,oneof=low medium high"`
	DueDate     *time.Time   `json:"dueDate"`
	Attachments []Attachment `json:"attachments" validate:"dive"`
}

type TaskPatch struct {
	Title       *string       `json:"title,omitempty" validate:"omitempty,min=1,max=300"`
	Description *string       `json:"description,omitempty" validate:"omitempty,max=10000"`
	Milestone   *string       `json:"milestone,omitempty"`
	Assignee    *[]string     `json:"assignee,omitempty" validate:"omitempty,dive,required"`
	Priority    *string       `json:"priority,omitempty" validate:"omitempty,oneof=low medium high"`
	DueDate     *time.Time    `json:"dueDate,omitempty"`
	Attachments *[]Attachment `json:"attachments,omitempty" validate:"omitempty,dive"`
}

type TaskStatusChange struct {
	Status string `json:"status" validate:"required,oneof=todo in-progress in-review completed approved rejected"`
}

type TaskReview struct {
	Approved *bool  `json:"approved" validate:"required"`
	Comment  string `json:"comment" validate:"max=2000"`
}

type TaskFilter struct {
	Project   string
	Milestone string
	Status    string
	Assignee  string
	Page      int
	Limit     int
}
