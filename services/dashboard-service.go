package services

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/nls08/NLS-Portal-sub001/models"
	"github.com/nls08/NLS-Portal-sub001/storage"
)

const (
	recentActivityLimit = 5
	redZoneThreshold    = 3
	redZoneHigh         = 5
)

// DashboardService computes the dashboard from scratch on every call.
type DashboardService struct {
	projects   storage.Collection
	tasks      storage.Collection
	milestones storage.Collection
	users      storage.Collection
	pop        populator
	now        func() time.Time
}

func NewDashboardService(db storage.Database) *DashboardService {
	return &DashboardService{
		projects:   db.Collection(storage.Projects),
		tasks:      db.Collection(storage.Tasks),
		milestones: db.Collection(storage.Milestones),
		users:      db.Collection(storage.Users),
		pop:        newPopulator(db),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *DashboardService) Stats(ctx context.Context) (*models.DashboardStats, error) {
	stats := &models.DashboardStats{}
	var err error

	if stats.Projects.Total, err = s.projects.CountDocuments(ctx, bson.M{}); err != nil {
		return nil, fmt.Errorf("counting projects: %w", err)
	}
	if stats.Projects.Active, err = s.projects.CountDocuments(ctx, bson.M{"status": models.ProjectInProgress}); err != nil {
		return nil, fmt.Errorf("counting active projects: %w", err)
	}
	if stats.Users.Total, err = s.users.CountDocuments(ctx, bson.M{}); err != nil {
		return nil, fmt.Errorf("counting users: %w", err)
	}

	var tasks []models.Task
	if err := s.tasks.Find(ctx, bson.M{}, storage.FindOptions{}, &tasks); err != nil {
		return nil, fmt.Errorf("loading tasks: %w", err)
	}
	var milestones []models.Milestone
	if err := s.milestones.Find(ctx, bson.M{}, storage.FindOptions{Projection: bson.M{"status": 1, "dueDate": 1}}, &milestones); err != nil {
		return nil, fmt.Errorf("loading milestones: %w", err)
	}
	var projects []models.ProjectRef
	if err := s.projects.Find(ctx, bson.M{}, storage.FindOptions{Sort: bson.D{{Key: "createdAt", Value: -1}}, Projection: projectRefProjection}, &projects); err != nil {
		return nil, fmt.Errorf("loading projects: %w", err)
	}

	stats.Tasks = countTasks(tasks)
	stats.Milestones = countMilestones(milestones, s.now())
	stats.ProjectProgress = projectProgress(projects, tasks)

	if stats.RecentActivity, err = s.recentActivity(ctx); err != nil {
		return nil, err
	}
	if stats.RedZone, err = s.redZone(ctx, tasks); err != nil {
		return nil, err
	}
	return stats, nil
}

func countTasks(tasks []models.Task) models.StatusCounts {
	c := models.StatusCounts{Total: len(tasks), ByStatus: map[string]int{}}
	for _, t := range tasks {
		c.ByStatus[string(t.Status)]++
	}
	return c
}

func countMilestones(ms []models.Milestone, now time.Time) models.MilestoneCounts {
	c := models.MilestoneCounts{Total: len(ms), ByStatus: map[string]int{}}
	for _, m := range ms {
		c.ByStatus[string(m.Status)]++
		if m.DueDate != nil && m.DueDate.Before(now) && !m.Status.Done() {
			c.Overdue++
		}
	}
	return c
}

// projectProgress is round(100 * done / total) per project, 0 for a project without tasks.
func projectProgress(projects []models.ProjectRef, tasks []models.Task) []models.ProjectProgress {
	type tally struct{ total, done int }
	byProject := make(map[primitive.ObjectID]*tally, len(projects))
	for _, t := range tasks {
		tl, ok := byProject[t.Project]
		if !ok {
			tl = &tally{}
			byProject[t.Project] = tl
		}
		tl.total++
		if t.Status.Done() {
			tl.done++
		}
	}

	out := make([]models.ProjectProgress, 0, len(projects))
	for _, p := range projects {
		pp := models.ProjectProgress{ProjectID: p.ID, Name: p.Name}
		if tl, ok := byProject[p.ID]; ok && tl.total > 0 {
			pp.Total = tl.total
			pp.Done = tl.done
			pp.Progress = int(math.Round(100 * float64(tl.done) / float64(tl.total)))
		}
		out = append(out, pp)
	}
	return out
}

func (s *DashboardService) recentActivity(ctx context.Context) ([]models.Activity, error) {
	var recent []models.Task
	opts := storage.FindOptions{Sort: bson.D{{Key: "updatedAt", Value: -1}}, Limit: recentActivityLimit}
	if err := s.tasks.Find(ctx, bson.M{}, opts, &recent); err != nil {
		return nil, fmt.Errorf("loading recent tasks: %w", err)
	}

	var first []primitive.ObjectID
	for _, t := range recent {
		if len(t.Assignee) > 0 {
			first = append(first, t.Assignee[0])
		}
	}
	users, err := s.pop.userRefs(ctx, first)
	if err != nil {
		return nil, err
	}

	out := make([]models.Activity, 0, len(recent))
	for _, t := range recent {
		out = append(out, models.Activity{
			TaskID:    t.ID,
			Message:   activityLine(t, users),
			Timestamp: t.UpdatedAt,
		})
	}
	return out, nil
}

func activityLine(t models.Task, users map[primitive.ObjectID]models.UserRef) string {
	who := "Someone"
	if len(t.Assignee) > 0 {
		if u, ok := users[t.Assignee[0]]; ok && u.Name != "" {
			who = u.Name
		}
	}
	return fmt.Sprintf("%s updated \"%s\" to %s", who, t.Title, t.Status)
}

// redZone lists assignees holding more than three open tasks, busiest first.
func (s *DashboardService) redZone(ctx context.Context, tasks []models.Task) ([]models.RedZoneEntry, error) {
	open := map[primitive.ObjectID]int{}
	for _, t := range tasks {
		if t.Status.Done() {
			continue
		}
		for _, a := range t.Assignee {
			open[a]++
		}
	}

	var flagged []primitive.ObjectID
	for id, n := range open {
		if n > redZoneThreshold {
			flagged = append(flagged, id)
		}
	}
	users, err := s.pop.userRefs(ctx, flagged)
	if err != nil {
		return nil, err
	}

	out := make([]models.RedZoneEntry, 0, len(flagged))
	for _, id := range flagged {
		ref, ok := users[id]
		if !ok {
			ref = models.UserRef{ID: id}
		}
		severity := models.SeverityMedium
		if open[id] > redZoneHigh {
			severity = models.SeverityHigh
		}
		out = append(out, models.RedZoneEntry{User: ref, OpenTasks: open[id], Severity: severity})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].OpenTasks != out[j].OpenTasks {
			return out[i].OpenTasks > out[j].OpenTasks
		}
		return out[i].User.ID.Hex() < out[j].User.ID.Hex()
	})
	return out, nil
}
