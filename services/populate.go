package services

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/nls08/NLS-Portal-sub001/models"
	"github.com/nls08/NLS-Portal-sub001/storage"
)

var (
	userRefProjection    = bson.M{"name": 1, "email": 1, "imageUrl": 1}
	projectRefProjection = bson.M{"name": 1, "status": 1}
)

// populator resolves user and project references with one $in query per collection.
type populator struct {
	users    storage.Collection
	projects storage.Collection
}

func newPopulator(db storage.Database) populator {
	return populator{users: db.Collection(storage.Users), projects: db.Collection(storage.Projects)}
}

func (p populator) userRefs(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]models.UserRef, error) {
	out := make(map[primitive.ObjectID]models.UserRef, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var refs []models.UserRef
	if err := p.users.Find(ctx, bson.M{"_id": bson.M{"$in": ids}}, storage.FindOptions{Projection: userRefProjection}, &refs); err != nil {
		return nil, fmt.Errorf("resolving users: %w", err)
	}
	for _, r := range refs {
		out[r.ID] = r
	}
	return out, nil
}

func (p populator) projectRefs(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]models.ProjectRef, error) {
	out := make(map[primitive.ObjectID]models.ProjectRef, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var refs []models.ProjectRef
	if err := p.projects.Find(ctx, bson.M{"_id": bson.M{"$in": ids}}, storage.FindOptions{Projection: projectRefProjection}, &refs); err != nil {
		return nil, fmt.Errorf("resolving projects: %w", err)
	}
	for _, r := range refs {
		out[r.ID] = r
	}
	return out, nil
}

// pickUsers keeps the order of ids and drops references that no longer resolve.
func pickUsers(ids []primitive.ObjectID, refs map[primitive.ObjectID]models.UserRef) []models.UserRef {
	out := make([]models.UserRef, 0, len(ids))
	for _, id := range ids {
		if r, ok := refs[id]; ok {
			out = append(out, r)
		}
	}
	return out
}

func pickProject(id primitive.ObjectID, refs map[primitive.ObjectID]models.ProjectRef) *models.ProjectRef {
	if r, ok := refs[id]; ok {
		return &r
	}
	return nil
}

func (p populator) milestones(ctx context.Context, ms []models.Milestone) ([]models.MilestoneView, error) {
	var userIDs, projectIDs []primitive.ObjectID
	for _, m := range ms {
		userIDs = append(userIDs, m.Assignee...)
		projectIDs = append(projectIDs, m.Project)
	}
	users, err := p.userRefs(ctx, userIDs)
	if err != nil {
		return nil, err
	}
	projects, err := p.projectRefs(ctx, projectIDs)
	if err != nil {
		return nil, err
	}

	views := make([]models.MilestoneView, 0, len(ms))
	for _, m := range ms {
		views = append(views, models.MilestoneView{
			ID:          m.ID,
			Name:        m.Name,
			Description: m.Description,
			Project:     pickProject(m.Project, projects),
			Type:        m.Type,
			Status:      m.Status,
			Assignee:    pickUsers(m.Assignee, users),
			DueDate:     m.DueDate,
			Progress:    m.Progress,
			CreatedAt:   m.CreatedAt,
			UpdatedAt:   m.UpdatedAt,
		})
	}
	return views, nil
}

func (p populator) tasks(ctx context.Context, ts []models.Task) ([]models.TaskView, error) {
	var userIDs, projectIDs []primitive.ObjectID
	for _, t := range ts {
		userIDs = append(userIDs, t.Assignee...)
		projectIDs = append(projectIDs, t.Project)
	}
	users, err := p.userRefs(ctx, userIDs)
	if err != nil {
		return nil, err
	}
	projects, err := p.projectRefs(ctx, projectIDs)
	if err != nil {
		return nil, err
	}

	views := make([]models.TaskView, 0, len(ts))
	for _, t := range ts {
		views = append(views, models.TaskView{
			Task:     t,
			Assignee: pickUsers(t.Assignee, users),
			Project:  pickProject(t.Project, projects),
		})
	}
	return views, nil
}

func (p populator) projectsView(ctx context.Context, ps []models.Project) ([]models.ProjectView, error) {
	var userIDs []primitive.ObjectID
	for _, pr := range ps {
		userIDs = append(userIDs, pr.Members...)
	}
	users, err := p.userRefs(ctx, userIDs)
	if err != nil {
		return nil, err
	}
	views := make([]models.ProjectView, 0, len(ps))
	for _, pr := range ps {
		views = append(views, models.ProjectView{Project: pr, Members: pickUsers(pr.Members, users)})
	}
	return views, nil
}
