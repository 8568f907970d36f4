package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/nls08/NLS-Portal-sub001/logging"
	"github.com/nls08/NLS-Portal-sub001/models"
	"github.com/nls08/NLS-Portal-sub001/storage"
)

// MilestoneService keeps every milestone and its project's milestone array in step:
// a milestone id is listed exactly once, in the array matching its type, on the
// project it points to.
type MilestoneService struct {
	tx         *TxRunner
	milestones storage.Collection
	projects   storage.Collection
	tasks      storage.Collection
	pop        populator
	hub        Broadcaster
	now        func() time.Time
}

func NewMilestoneService(db storage.Database, tx *TxRunner, hub Broadcaster) *MilestoneService {
	return &MilestoneService{
		tx:         tx,
		milestones: db.Collection(storage.Milestones),
		projects:   db.Collection(storage.Projects),
		tasks:      db.Collection(storage.Tasks),
		pop:        newPopulator(db),
		hub:        orNoop(hub),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Create inserts the milestone and registers it on its project in one transaction.
// A non-empty idempotencyKey that was already used returns the stored milestone.
func (s *MilestoneService) Create(ctx context.Context, in models.MilestoneInput, idempotencyKey string) (*models.MilestoneView, error) {
	if err := validate(in); err != nil {
		return nil, err
	}
	projectID, err := parseField("project", in.Project)
	if err != nil {
		return nil, err
	}
	assignees, err := parseFieldList("assignee", in.Assignee)
	if err != nil {
		return nil, err
	}

	if idempotencyKey != "" {
		if view, err := s.byIdempotencyKey(ctx, idempotencyKey); err == nil {
			logging.Logger.Infof("Event ID: MILESTONE_IDEMPOTENT_REPLAY, Description: Returning milestone %s for replayed key", view.ID.Hex())
			return view, nil
		} else if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}

	m := models.Milestone{
		Name:        in.Name,
		Description: in.Description,
		Project:     projectID,
		Type:        models.MilestoneType(in.Type),
		Status:      models.MilestoneStatus(in.Status),
		Assignee:    assignees,
		DueDate:     in.DueDate,
		Progress:    in.Progress,
	}
	if m.Type == "" {
		m.Type = models.MilestoneDev
	}
	if m.Status == "" {
		m.Status = models.MilestoneNotStarted
	}
	if idempotencyKey != "" {
		m.IdempotencyKey = &idempotencyKey
	}
	now := s.now()
	m.Stamp(now)

	var id primitive.ObjectID
	err = s.tx.Run(ctx, "milestone.create", func(txCtx context.Context) error {
		var err error
		id, err = s.milestones.InsertOne(txCtx, m)
		if err != nil {
			return fmt.Errorf("inserting milestone: %w", err)
		}
		matched, err := s.projects.UpdateOne(txCtx,
			bson.M{"_id": projectID},
			bson.M{
				"$addToSet": bson.M{m.Type.ProjectField(): id},
				"$set":      bson.M{"updatedAt": now},
			})
		if err != nil {
			return fmt.Errorf("linking milestone to project: %w", err)
		}
		if matched == 0 {
			return &ProjectNotFoundError{ID: projectID}
		}
		return nil
	})
	if err != nil {
		// A concurrent request with the same key won the race.
		if idempotencyKey != "" && storage.IsDuplicateKey(err) {
			return s.byIdempotencyKey(ctx, idempotencyKey)
		}
		logging.Logger.Warnf("Event ID: MILESTONE_CREATE_FAILED, Description: Failed to create milestone on project %s: %v", projectID.Hex(), err)
		return nil, err
	}

	view, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	logging.Logger.Infof("Event ID: MILESTONE_CREATED, Description: Milestone %s (%s) created on project %s", id.Hex(), m.Type, projectID.Hex())
	s.hub.Broadcast(models.NewEvent(models.EventMilestoneCreated, "milestone", view))
	return view, nil
}

func (s *MilestoneService) byIdempotencyKey(ctx context.Context, key string) (*models.MilestoneView, error) {
	var m models.Milestone
	if err := s.milestones.FindOne(ctx, bson.M{"idempotencyKey": key}, &m); err != nil {
		return nil, lookupErr(err, "milestone")
	}
	return s.populateOne(ctx, m)
}

// Update applies patch and, when the project or type changes, moves the milestone id
// from the old project's array to the new one. Everything happens in one transaction.
func (s *MilestoneService) Update(ctx context.Context, id primitive.ObjectID, patch models.MilestonePatch) (*models.MilestoneView, error) {
	if err := validate(patch); err != nil {
		return nil, err
	}

	now := s.now()
	set := bson.M{"updatedAt": now}
	var newProject *primitive.ObjectID
	if patch.Project != nil {
		pid, err := parseField("project", *patch.Project)
		if err != nil {
			return nil, err
		}
		newProject = &pid
		set["project"] = pid
	}
	if patch.Assignee != nil {
		assignees, err := parseFieldList("assignee", *patch.Assignee)
		if err != nil {
			return nil, err
		}
		set["assignee"] = assignees
	}
	if patch.Name != nil {
		set["name"] = *patch.Name
	}
	if patch.Description != nil {
		set["description"] = *patch.Description
	}
	if patch.Type != nil {
		set["type"] = models.MilestoneType(*patch.Type)
	}
	if patch.Status != nil {
		set["status"] = models.MilestoneStatus(*patch.Status)
	}
	if patch.DueDate != nil {
		set["dueDate"] = *patch.DueDate
	}
	if patch.Progress != nil {
		set["progress"] = *patch.Progress
	}

	err := s.tx.Run(ctx, "milestone.update", func(txCtx context.Context) error {
		var existing models.Milestone
		if err := s.milestones.FindOne(txCtx, bson.M{"_id": id}, &existing); err != nil {
			return lookupErr(err, "milestone")
		}

		targetProject := existing.Project
		if newProject != nil {
			targetProject = *newProject
		}
		targetType := existing.Type
		if patch.Type != nil {
			targetType = models.MilestoneType(*patch.Type)
		}

		matched, err := s.milestones.UpdateOne(txCtx, bson.M{"_id": id}, bson.M{"$set": set})
		if err != nil {
			return fmt.Errorf("updating milestone: %w", err)
		}
		if matched == 0 {
			return fmt.Errorf("milestone: %w", ErrNotFound)
		}

		// ObjectIDs compare by value, so an unchanged project never triggers a move.
		if targetProject == existing.Project && targetType == existing.Type {
			return nil
		}
		return s.relink(txCtx, id, existing.Project, existing.Type, targetProject, targetType, now)
	})
	if err != nil {
		logging.Logger.Warnf("Event ID: MILESTONE_UPDATE_FAILED, Description: Failed to update milestone %s: %v", id.Hex(), err)
		return nil, err
	}

	view, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	logging.Logger.Infof("Event ID: MILESTONE_UPDATED, Description: Milestone %s updated", id.Hex())
	s.hub.Broadcast(models.NewEvent(models.EventMilestoneUpdated, "milestone", view))
	return view, nil
}

// relink removes id from the old project's array and adds it to the new one.
// The old project may already be gone; the new one must exist.
func (s *MilestoneService) relink(ctx context.Context, id, oldProject primitive.ObjectID, oldType models.MilestoneType,
	newProject primitive.ObjectID, newType models.MilestoneType, now time.Time) error {
	if _, err := s.projects.UpdateOne(ctx,
		bson.M{"_id": oldProject},
		bson.M{"$pull": bson.M{oldType.ProjectField(): id}, "$set": bson.M{"updatedAt": now}},
	); err != nil {
		return fmt.Errorf("unlinking milestone from project %s: %w", oldProject.Hex(), err)
	}

	matched, err := s.projects.UpdateOne(ctx,
		bson.M{"_id": newProject},
		bson.M{"$addToSet": bson.M{newType.ProjectField(): id}, "$set": bson.M{"updatedAt": now}},
	)
	if err != nil {
		return fmt.Errorf("linking milestone to project %s: %w", newProject.Hex(), err)
	}
	if matched == 0 {
		return &ProjectNotFoundError{ID: newProject}
	}
	return nil
}

// Delete removes the milestone, its id from the parent project and its reference
// from every task.
func (s *MilestoneService) Delete(ctx context.Context, id primitive.ObjectID) error {
	err := s.tx.Run(ctx, "milestone.delete", func(txCtx context.Context) error {
		var existing models.Milestone
		if err := s.milestones.FindOne(txCtx, bson.M{"_id": id}, &existing); err != nil {
			return lookupErr(err, "milestone")
		}
		deleted, err := s.milestones.DeleteOne(txCtx, bson.M{"_id": id})
		if err != nil {
			return fmt.Errorf("deleting milestone: %w", err)
		}
		if deleted == 0 {
			return fmt.Errorf("milestone: %w", ErrNotFound)
		}
		if _, err := s.projects.UpdateOne(txCtx,
			bson.M{"_id": existing.Project},
			bson.M{"$pull": bson.M{existing.Type.ProjectField(): id}, "$set": bson.M{"updatedAt": s.now()}},
		); err != nil {
			return fmt.Errorf("unlinking milestone from project: %w", err)
		}
		if _, err := s.tasks.UpdateMany(txCtx,
			bson.M{"milestone": id},
			bson.M{"$unset": bson.M{"milestone": ""}, "$set": bson.M{"updatedAt": s.now()}},
		); err != nil {
			return fmt.Errorf("detaching tasks from milestone: %w", err)
		}
		return nil
	})
	if err != nil {
		logging.Logger.Warnf("Event ID: MILESTONE_DELETE_FAILED, Description: Failed to delete milestone %s: %v", id.Hex(), err)
		return err
	}

	logging.Logger.Infof("Event ID: MILESTONE_DELETED, Description: Milestone %s deleted", id.Hex())
	s.hub.Broadcast(models.NewEvent(models.EventMilestoneDeleted, "id", id.Hex()))
	return nil
}

func (s *MilestoneService) Get(ctx context.Context, id primitive.ObjectID) (*models.MilestoneView, error) {
	var m models.Milestone
	if err := s.milestones.FindOne(ctx, bson.M{"_id": id}, &m); err != nil {
		return nil, lookupErr(err, "milestone")
	}
	return s.populateOne(ctx, m)
}

func (s *MilestoneService) populateOne(ctx context.Context, m models.Milestone) (*models.MilestoneView, error) {
	views, err := s.pop.milestones(ctx, []models.Milestone{m})
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

// List returns populated milestones ordered by due date.
func (s *MilestoneService) List(ctx context.Context, f models.MilestoneFilter) ([]models.MilestoneView, error) {
	filter := bson.M{}
	if f.Project != "" {
		pid, err := ParseID(f.Project)
		if err != nil {
			return nil, err
		}
		filter["project"] = pid
	}
	if f.Type != "" {
		filter["type"] = f.Type
	}
	if f.Status != "" {
		filter["status"] = f.Status
	}

	var ms []models.Milestone
	opts := storage.FindOptions{Sort: bson.D{{Key: "dueDate", Value: 1}, {Key: "createdAt", Value: 1}}}
	if err := s.milestones.Find(ctx, filter, opts, &ms); err != nil {
		return nil, fmt.Errorf("listing milestones: %w", err)
	}
	return s.pop.milestones(ctx, ms)
}
