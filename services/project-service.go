package services

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/nls08/NLS-Portal-sub001/logging"
	"github.com/nls08/NLS-Portal-sub001/models"
	"github.com/nls08/NLS-Portal-sub001/storage"
)

type ProjectService struct {
	tx         *TxRunner
	projects   storage.Collection
	milestones storage.Collection
	pop        populator
	hub        Broadcaster
	now        func() time.Time
}

func NewProjectService(db storage.Database, tx *TxRunner, hub Broadcaster) *ProjectService {
	return &ProjectService{
		tx:         tx,
		projects:   db.Collection(storage.Projects),
		milestones: db.Collection(storage.Milestones),
		pop:        newPopulator(db),
		hub:        orNoop(hub),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *ProjectService) Create(ctx context.Context, actor *models.User, in models.ProjectInput) (*models.ProjectView, error) {
	if err := validate(in); err != nil {
		return nil, err
	}
	members, err := parseFieldList("members", in.Members)
	if err != nil {
		return nil, err
	}

	p := models.Project{
		Name:             in.Name,
		Description:      in.Description,
		Client:           in.Client,
		Status:           models.ProjectStatus(in.Status),
		Milestones:       []primitive.ObjectID{},
		ClientMilestones: []primitive.ObjectID{},
		Members:          members,
		Progress:         in.Progress,
		ClientProgress:   in.ClientProgress,
		StartDate:        in.StartDate,
		DueDate:          in.DueDate,
		CreatedBy:        actor.ID,
	}
	if p.Status == "" {
		p.Status = models.ProjectNotStarted
	}
	p.Stamp(s.now())

	id, err := s.projects.InsertOne(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("creating project: %w", err)
	}
	view, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	logging.Logger.Infof("Event ID: PROJECT_CREATED, Description: Project %s created by %s", id.Hex(), actor.ID.Hex())
	s.hub.Broadcast(models.NewEvent(models.EventProjectCreated, "project", view))
	return view, nil
}

func (s *ProjectService) Get(ctx context.Context, id primitive.ObjectID) (*models.ProjectView, error) {
	var p models.Project
	if err := s.projects.FindOne(ctx, bson.M{"_id": id}, &p); err != nil {
		return nil, lookupErr(err, "project")
	}
	views, err := s.pop.projectsView(ctx, []models.Project{p})
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

// List returns projects newest first, optionally narrowed to one status or member.
func (s *ProjectService) List(ctx context.Context, status, member string, page Page) ([]models.ProjectView, error) {
	filter := bson.M{}
	if status != "" {
		filter["status"] = status
	}
	if member != "" {
		id, err := ParseID(member)
		if err != nil {
			return nil, err
		}
		filter["members"] = id
	}

	var ps []models.Project
	opts := page.apply(storage.FindOptions{Sort: bson.D{{Key: "createdAt", Value: -1}}})
	if err := s.projects.Find(ctx, filter, opts, &ps); err != nil {
		return nil, fmt.Errorf("listing projects: %w", err)
	}
	return s.pop.projectsView(ctx, ps)
}

func (s *ProjectService) Update(ctx context.Context, id primitive.ObjectID, patch models.ProjectPatch) (*models.ProjectView, error) {
	if err := validate(patch); err != nil {
		return nil, err
	}
	set := bson.M{"updatedAt": s.now()}
	if patch.Name != nil {
		set["name"] = *patch.Name
	}
	if patch.Description != nil {
		set["description"] = *patch.Description
	}
	if patch.Client != nil {
		set["client"] = *patch.Client
	}
	if patch.Status != nil {
		set["status"] = models.ProjectStatus(*patch.Status)
	}
	if patch.Members != nil {
		members, err := parseFieldList("members", *patch.Members)
		if err != nil {
			return nil, err
		}
		set["members"] = members
	}
	if patch.Progress != nil {
		set["progress"] = *patch.Progress
	}
	if patch.ClientProgress != nil {
		set["clientProgress"] = *patch.ClientProgress
	}
	if patch.StartDate != nil {
		set["startDate"] = *patch.StartDate
	}
	if patch.DueDate != nil {
		set["dueDate"] = *patch.DueDate
	}

	matched, err := s.projects.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return nil, fmt.Errorf("updating project: %w", err)
	}
	if matched == 0 {
		return nil, fmt.Errorf("project: %w", ErrNotFound)
	}
	view, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	logging.Logger.Infof("Event ID: PROJECT_UPDATED, Description: Project %s updated", id.Hex())
	s.hub.Broadcast(models.NewEvent(models.EventProjectUpdated, "project", view))
	return view, nil
}

// Delete refuses to remove a project that still owns milestones. The count and the
// delete share one transaction, and the delete only matches a project whose milestone
// arrays are empty, so a milestone linked concurrently makes it fail instead of dangling.
func (s *ProjectService) Delete(ctx context.Context, id primitive.ObjectID) error {
	err := s.tx.Run(ctx, "project.delete", func(txCtx context.Context) error {
		n, err := s.milestones.CountDocuments(txCtx, bson.M{"project": id})
		if err != nil {
			return fmt.Errorf("counting milestones: %w", err)
		}
		if n > 0 {
			return fmt.Errorf("project %s still has %d milestone(s): %w", id.Hex(), n, ErrConflict)
		}

		deleted, err := s.projects.DeleteOne(txCtx, bson.M{
			"_id":  id,
			"$and": []bson.M{emptyArray("milestones"), emptyArray("clientMilestones")},
		})
		if err != nil {
			return fmt.Errorf("deleting project: %w", err)
		}
		if deleted > 0 {
			return nil
		}
		exists, err := s.projects.CountDocuments(txCtx, bson.M{"_id": id})
		if err != nil {
			return fmt.Errorf("checking project: %w", err)
		}
		if exists == 0 {
			return fmt.Errorf("project: %w", ErrNotFound)
		}
		return fmt.Errorf("project %s still lists milestones: %w", id.Hex(), ErrConflict)
	})
	if err != nil {
		return err
	}
	logging.Logger.Infof("Event ID: PROJECT_DELETED, Description: Project %s deleted", id.Hex())
	s.hub.Broadcast(models.NewEvent(models.EventProjectDeleted, "id", id.Hex()))
	return nil
}

// emptyArray matches documents whose field is an empty array, null or missing.
func emptyArray(field string) bson.M {
	return bson.M{"$or": []bson.M{
		{field: bson.M{"$size": 0}},
		{field: nil},
	}}
}
