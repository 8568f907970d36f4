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

type TaskService struct {
	tasks      storage.Collection
	projects   storage.Collection
	milestones storage.Collection
	pop        populator
	hub        Broadcaster
	mailer     Mailer
	objects    ObjectStore
	now        func() time.Time
}

func NewTaskService(db storage.Database, hub Broadcaster, mailer Mailer, objects ObjectStore) *TaskService {
	return &TaskService{
		tasks:      db.Collection(storage.Tasks),
		projects:   db.Collection(storage.Projects),
		milestones: db.Collection(storage.Milestones),
		pop:        newPopulator(db),
		hub:        orNoop(hub),
		mailer:     mailer,
		objects:    objects,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *TaskService) ensureProject(ctx context.Context, id primitive.ObjectID) error {
	n, err := s.projects.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("checking project: %w", err)
	}
	if n == 0 {
		return &ProjectNotFoundError{ID: id}
	}
	return nil
}

// milestoneRef parses an optional milestone id and checks it belongs to project.
func (s *TaskService) milestoneRef(ctx context.Context, raw string, project primitive.ObjectID) (*primitive.ObjectID, error) {
	if raw == "" {
		return nil, nil
	}
	id, err := parseField("milestone", raw)
	if err != nil {
		return nil, err
	}
	n, err := s.milestones.CountDocuments(ctx, bson.M{"_id": id, "project": project})
	if err != nil {
		return nil, fmt.Errorf("checking milestone: %w", err)
	}
	if n == 0 {
		return nil, invalid("milestone %s does not belong to project %s", id.Hex(), project.Hex())
	}
	return &id, nil
}

func (s *TaskService) Create(ctx context.Context, actor *models.User, in models.TaskInput) (*models.TaskView, error) {
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
	if err := s.ensureProject(ctx, projectID); err != nil {
		return nil, err
	}
	milestone, err := s.milestoneRef(ctx, in.Milestone, projectID)
	if err != nil {
		return nil, err
	}

	t := models.Task{
		Title:       in.Title,
		Description: in.Description,
		Project:     projectID,
		Milestone:   milestone,
		Assignee:    assignees,
		Status:      models.TaskStatus(in.Status),
		Priority:    models.Priority(in.Priority),
		DueDate:     in.DueDate,
		Attachments: in.Attachments,
		QAComments:  []models.QAComment{},
		CreatedBy:   actor.ID,
	}
	if t.Status == "" {
		t.Status = models.TaskTodo
	}
	if t.Priority == "" {
		t.Priority = models.PriorityMedium
	}
	if t.Attachments == nil {
		t.Attachments = []models.Attachment{}
	}
	t.Stamp(s.now())

	id, err := s.tasks.InsertOne(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("creating task: %w", err)
	}
	view, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	logging.Logger.Infof("Event ID: TASK_CREATED, Description: Task %s created on project %s", id.Hex(), projectID.Hex())
	s.hub.Broadcast(models.NewEvent(models.EventTaskCreated, "task", view))
	return view, nil
}

func (s *TaskService) load(ctx context.Context, id primitive.ObjectID) (*models.Task, error) {
	var t models.Task
	if err := s.tasks.FindOne(ctx, bson.M{"_id": id}, &t); err != nil {
		return nil, lookupErr(err, "task")
	}
	return &t, nil
}

func (s *TaskService) Get(ctx context.Context, id primitive.ObjectID) (*models.TaskView, error) {
	t, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	views, err := s.pop.tasks(ctx, []models.Task{*t})
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

// List returns tasks most recently updated first.
func (s *TaskService) List(ctx context.Context, f models.TaskFilter) ([]models.TaskView, error) {
	filter := bson.M{}
	for field, raw := range map[string]string{"project": f.Project, "milestone": f.Milestone, "assignee": f.Assignee} {
		if raw == "" {
			continue
		}
		id, err := ParseID(raw)
		if err != nil {
			return nil, err
		}
		filter[field] = id
	}
	if f.Status != "" {
		filter["status"] = f.Status
	}

	var ts []models.Task
	opts := Page{Page: f.Page, Limit: f.Limit}.apply(storage.FindOptions{Sort: bson.D{{Key: "updatedAt", Value: -1}}})
	if err := s.tasks.Find(ctx, filter, opts, &ts); err != nil {
		return nil, fmt.Errorf("listing tasks: %w", err)
	}
	return s.pop.tasks(ctx, ts)
}

func (s *TaskService) Update(ctx context.Context, id primitive.ObjectID, patch models.TaskPatch) (*models.TaskView, error) {
	if err := validate(patch); err != nil {
		return nil, err
	}
	existing, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	update := bson.M{}
	set := bson.M{"updatedAt": s.now()}
	if patch.Title != nil {
		set["title"] = *patch.Title
	}
	if patch.Description != nil {
		set["description"] = *patch.Description
	}
	if patch.Priority != nil {
		set["priority"] = models.Priority(*patch.Priority)
	}
	if patch.DueDate != nil {
		set["dueDate"] = *patch.DueDate
	}
	if patch.Assignee != nil {
		assignees, err := parseFieldList("assignee", *patch.Assignee)
		if err != nil {
			return nil, err
		}
		set["assignee"] = assignees
	}
	if patch.Attachments != nil {
		set["attachments"] = *patch.Attachments
	}
	if patch.Milestone != nil {
		if *patch.Milestone == "" {
			update["$unset"] = bson.M{"milestone": ""}
		} else {
			ms, err := s.milestoneRef(ctx, *patch.Milestone, existing.Project)
			if err != nil {
				return nil, err
			}
			set["milestone"] = *ms
		}
	}
	update["$set"] = set

	if err := s.apply(ctx, id, update); err != nil {
		return nil, err
	}
	return s.publish(ctx, id, "TASK_UPDATED")
}

func (s *TaskService) apply(ctx context.Context, id primitive.ObjectID, update bson.M) error {
	matched, err := s.tasks.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return fmt.Errorf("updating task: %w", err)
	}
	if matched == 0 {
		return fmt.Errorf("task: %w", ErrNotFound)
	}
	return nil
}

func (s *TaskService) publish(ctx context.Context, id primitive.ObjectID, code string) (*models.TaskView, error) {
	view, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	logging.Logger.Infof("Event ID: %s, Description: Task %s is now %s", code, id.Hex(), view.Status)
	s.hub.Broadcast(models.NewEvent(models.EventTaskUpdated, "task", view))
	return view, nil
}

// UpdateStatus lets assignees move their own tasks. Approval and rejection are
// reserved for administrators.
func (s *TaskService) UpdateStatus(ctx context.Context, actor *models.User, id primitive.ObjectID, change models.TaskStatusChange) (*models.TaskView, error) {
	if err := validate(change); err != nil {
		return nil, err
	}
	t, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	status := models.TaskStatus(change.Status)
	admin := models.CanAdminister(actor.Role)
	if !admin && !t.HasAssignee(actor.ID) {
		return nil, fmt.Errorf("task %s is not assigned to you: %w", id.Hex(), ErrForbidden)
	}
	if status.ReviewOnly() && !admin {
		return nil, fmt.Errorf("only administrators can set status %s: %w", status, ErrForbidden)
	}

	if err := s.apply(ctx, id, bson.M{"$set": bson.M{"status": status, "updatedAt": s.now()}}); err != nil {
		return nil, err
	}
	return s.publish(ctx, id, "TASK_STATUS_CHANGED")
}

// Submit hands a task to QA.
func (s *TaskService) Submit(ctx context.Context, actor *models.User, id primitive.ObjectID) (*models.TaskView, error) {
	t, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !t.HasAssignee(actor.ID) && !models.CanAdminister(actor.Role) {
		return nil, fmt.Errorf("task %s is not assigned to you: %w", id.Hex(), ErrForbidden)
	}
	switch t.Status {
	case models.TaskTodo, models.TaskInProgress, models.TaskRejected, models.TaskCompleted:
	default:
		return nil, fmt.Errorf("task in status %s cannot be submitted: %w", t.Status, ErrConflict)
	}

	// The status guard makes a concurrent submit or review lose cleanly.
	matched, err := s.tasks.UpdateOne(ctx,
		bson.M{"_id": id, "status": t.Status},
		bson.M{"$set": bson.M{"status": models.TaskInReview, "updatedAt": s.now()}})
	if err != nil {
		return nil, fmt.Errorf("submitting task: %w", err)
	}
	if matched == 0 {
		return nil, fmt.Errorf("task %s changed concurrently: %w", id.Hex(), ErrConflict)
	}
	return s.publish(ctx, id, "TASK_SUBMITTED")
}

// Review approves or rejects a task that is in review. Approval emails the
// assignees; a comment is recorded as a QA comment either way.
func (s *TaskService) Review(ctx context.Context, actor *models.User, id primitive.ObjectID, review models.TaskReview) (*models.TaskView, error) {
	if err := validate(review); err != nil {
		return nil, err
	}
	if !models.CanAdminister(actor.Role) {
		return nil, ErrForbidden
	}
	approved := *review.Approved
	if !approved && review.Comment == "" {
		return nil, &ValidationError{Message: "a comment is required when rejecting", Fields: map[string]string{"comment": "comment is required when rejecting"}}
	}
	t, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.Status != models.TaskInReview {
		return nil, fmt.Errorf("task in status %s is not awaiting review: %w", t.Status, ErrConflict)
	}

	now := s.now()
	status := models.TaskRejected
	if approved {
		status = models.TaskApproved
	}
	update := bson.M{"$set": bson.M{"status": status, "updatedAt": now}}
	if review.Comment != "" {
		update["$push"] = bson.M{"qaComments": models.QAComment{Author: actor.ID, Message: review.Comment, CreatedAt: now}}
	}
	matched, err := s.tasks.UpdateOne(ctx, bson.M{"_id": id, "status": models.TaskInReview}, update)
	if err != nil {
		return nil, fmt.Errorf("reviewing task: %w", err)
	}
	if matched == 0 {
		return nil, fmt.Errorf("task %s changed concurrently: %w", id.Hex(), ErrConflict)
	}

	view, err := s.publish(ctx, id, "TASK_REVIEWED")
	if err != nil {
		return nil, err
	}
	if approved && s.mailer != nil && len(view.Assignee) > 0 {
		recipients := view.Assignee
		title := view.Title
		detach("task approval email", func(ctx context.Context) error {
			return s.mailer.Send(ctx, recipients,
				fmt.Sprintf("Task approved: %s", title),
				fmt.Sprintf("Your task %q was approved by %s.", title, actor.Name))
		})
	}
	return view, nil
}

// RemoveAttachment drops the attachment from the task and deletes the stored object.
func (s *TaskService) RemoveAttachment(ctx context.Context, id primitive.ObjectID, key string) (*models.TaskView, error) {
	matched, err := s.tasks.UpdateOne(ctx,
		bson.M{"_id": id, "attachments.key": key},
		bson.M{"$pull": bson.M{"attachments": bson.M{"key": key}}, "$set": bson.M{"updatedAt": s.now()}})
	if err != nil {
		return nil, fmt.Errorf("removing attachment: %w", err)
	}
	if matched == 0 {
		if _, err := s.load(ctx, id); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("attachment %q: %w", key, ErrNotFound)
	}

	if s.objects != nil {
		detach("object delete", func(ctx context.Context) error {
			return s.objects.Delete(ctx, key)
		})
	}
	return s.publish(ctx, id, "TASK_ATTACHMENT_REMOVED")
}

func (s *TaskService) Delete(ctx context.Context, id primitive.ObjectID) error {
	t, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	deleted, err := s.tasks.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("deleting task: %w", err)
	}
	if deleted == 0 {
		return fmt.Errorf("task: %w", ErrNotFound)
	}
	if s.objects != nil {
		for _, a := range t.Attachments {
			key := a.Key
			detach("object delete", func(ctx context.Context) error {
				return s.objects.Delete(ctx, key)
			})
		}
	}
	logging.Logger.Infof("Event ID: TASK_DELETED, Description: Task %s deleted", id.Hex())
	s.hub.Broadcast(models.NewEvent(models.EventTaskDeleted, "id", id.Hex()))
	return nil
}
