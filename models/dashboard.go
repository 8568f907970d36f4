package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type DashboardStats struct {
	Projects        ProjectTotals     `json:"projects"`
	Tasks           StatusCounts      `json:"tasks"`
	Milestones      MilestoneCounts   `json:"milestones"`
	ProjectProgress []ProjectProgress `json:"projectProgress"`
	RecentActivity  []Activity        `json:"recentActivity"`
	RedZone         []RedZoneEntry    `json:"redZone"`
	Users           UserTotals        `json:"users"`
}

type ProjectTotals struct {
	Total  int64 `json:"total"`
	Active int64 `json:"active"`
}

type StatusCounts struct {
	Total    int            `json:"total"`
	ByStatus map[string]int `json:"byStatus"`
}

type MilestoneCounts struct {
	Total    int            `json:"total"`
	ByStatus map[string]int `json:"byStatus"`
	Overdue  int            `json:"overdue"`
}

type ProjectProgress struct {
	ProjectID primitive.ObjectID `json:"projectId"`
	Name      string             `json:"name"`
	Total     int                `json:"total"`
	Done      int                `json:"done"`
	Progress  int                `json:"progress"`
}

type Activity struct {
	TaskID    primitive.ObjectID `json:"taskId"`
	Message   string             `json:"message"`
	Timestamp time.Time          `json:"timestamp"`
}

type RedZoneEntry struct {
	User      UserRef  `json:"user"`
	OpenTasks int      `json:"openTasks"`
	Severity  Severity `json:"severity"`
}

type UserTotals struct {
	Total int64 `json:"total"`
}

// Delivery is one client milestone as seen on the delivery board.
type Delivery struct {
	MilestoneID primitive.ObjectID `json:"milestoneId"`
	Name        string             `json:"name"`
	Project     *ProjectRef        `json:"project"`
	DueDate     *time.Time         `json:"dueDate,omitempty"`
	Status      MilestoneStatus    `json:"status"`
	Overdue     bool               `json:"overdue"`
	DaysLeft    *int               `json:"daysLeft,omitempty"`
}
