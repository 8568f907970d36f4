package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/nls08/NLS-Portal-sub001/models"
)

type sentMail struct {
	to      []models.UserRef
	subject string
}

type chanMailer chan sentMail

func (m chanMailer) Send(_ context.Context, to []models.UserRef, subject, _ string) error {
	m <- sentMail{to: to, subject: subject}
	return nil
}

type chanObjects chan string

func (o chanObjects) Delete(_ context.Context, key string) error {
	o <- key
	return nil
}

type taskFixture struct {
	svc     *TaskService
	hub     *recordingHub
	mail    chanMailer
	objects chanObjects
	admin   *models.User
	dev     *models.User
	other   *models.User
	project primitive.ObjectID
}

func newTaskFixture(t *testing.T) *taskFixture {
	db := newMemDB()
	f := &taskFixture{
		hub:     &recordingHub{},
		mail:    make(chanMailer, 4),
		objects: make(chanObjects, 4),
	}
	f.svc = NewTaskService(db, f.hub, f.mail, f.objects)
	f.admin = seedUser(t, db, "admin", models.RoleAdmin)
	f.dev = seedUser(t, db, "dev", models.RoleUser)
	f.other = seedUser(t, db, "other", models.RoleUser)
	f.project = seedProject(t, db, "P")
	return f
}

func (f *taskFixture) create(t *testing.T, in models.TaskInput) *models.TaskView {
	t.Helper()
	if in.Project == "" {
		in.Project = f.project.Hex()
	}
	if in.Title == "" {
		in.Title = "Build login"
	}
	view, err := f.svc.Create(context.Background(), f.admin, in)
	require.NoError(t, err)
	return view
}

func boolPtr(b bool) *bool { return &b }

func TestTaskCreateDefaults(t *testing.T) {
	f := newTaskFixture(t)
	view := f.create(t, models.TaskInput{Assignee: []string{f.dev.ID.Hex()}})

	assert.Equal(t, models.TaskTodo, view.Status)
	assert.Equal(t, models.PriorityMedium, view.Priority)
	assert.Equal(t, f.admin.ID, view.CreatedBy)
	assert.Empty(t, view.Attachments)
	require.Len(t, view.Assignee, 1)
	assert.Equal(t, "dev", view.Assignee[0].Name)
	assert.Equal(t, "P", view.Project.Name)
	assert.Equal(t, []string{models.EventTaskCreated}, f.hub.types())
}

func TestTaskCreateRejectsUnknownProjectAndForeignMilestone(t *testing.T) {
	f := newTaskFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, f.admin, models.TaskInput{Title: "x", Project: primitive.NewObjectID().Hex()})
	var pnf *ProjectNotFoundError
	assert.ErrorAs(t, err, &pnf)

	_, err = f.svc.Create(ctx, f.admin, models.TaskInput{Title: "x", Project: f.project.Hex(), Milestone: primitive.NewObjectID().Hex()})
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestTaskQAWorkflow(t *testing.T) {
	ctx := context.Background()
	f := newTaskFixture(t)
	task := f.create(t, models.TaskInput{Assignee: []string{f.dev.ID.Hex()}})

	_, err := f.svc.Submit(ctx, f.other, task.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	view, err := f.svc.Submit(ctx, f.dev, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskInReview, view.Status)

	_, err = f.svc.Submit(ctx, f.dev, task.ID)
	assert.ErrorIs(t, err, ErrConflict)

	_, err = f.svc.Review(ctx, f.dev, task.ID, models.TaskReview{Approved: boolPtr(true)})
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.Review(ctx, f.admin, task.ID, models.TaskReview{Approved: boolPtr(false)})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "comment")

	view, err = f.svc.Review(ctx, f.admin, task.ID, models.TaskReview{Approved: boolPtr(false), Comment: "missing tests"})
	require.NoError(t, err)
	assert.Equal(t, models.TaskRejected, view.Status)
	require.Len(t, view.QAComments, 1)
	assert.Equal(t, "missing tests", view.QAComments[0].Message)
	assert.Equal(t, f.admin.ID, view.QAComments[0].Author)

	_, err = f.svc.Review(ctx, f.admin, task.ID, models.TaskReview{Approved: boolPtr(true)})
	assert.ErrorIs(t, err, ErrConflict, "a rejected task must be resubmitted first")

	_, err = f.svc.Submit(ctx, f.dev, task.ID)
	require.NoError(t, err)
	view, err = f.svc.Review(ctx, f.admin, task.ID, models.TaskReview{Approved: boolPtr(true)})
	require.NoError(t, err)
	assert.Equal(t, models.TaskApproved, view.Status)
	assert.Len(t, view.QAComments, 1)

	select {
	case m := <-f.mail:
		assert.Equal(t, "Task approved: Build login", m.subject)
		require.Len(t, m.to, 1)
		assert.Equal(t, "dev@example.com", m.to[0].Email)
	case <-time.After(2 * time.Second):
		t.Fatal("approval email was not sent")
	}
}

func TestTaskUpdateStatusPermissions(t *testing.T) {
	ctx := context.Background()
	f := newTaskFixture(t)
	task := f.create(t, models.TaskInput{Assignee: []string{f.dev.ID.Hex()}})

	tests := []struct {
		name    string
		actor   *models.User
		status  string
		wantErr error
	}{
		{"assignee moves own task", f.dev, "in-progress", nil},
		{"stranger", f.other, "in-progress", ErrForbidden},
		{"assignee cannot approve", f.dev, "approved", ErrForbidden},
		{"admin approves", f.admin, "approved", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			view, err := f.svc.UpdateStatus(ctx, tt.actor, task.ID, models.TaskStatusChange{Status: tt.status})
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, models.TaskStatus(tt.status), view.Status)
		})
	}
}

func TestTaskUpdateAndMilestoneUnset(t *testing.T) {
	ctx := context.Background()
	db := newMemDB()
	svc := NewTaskService(db, nil, nil, nil)
	ms := NewMilestoneService(db, newTx(db), nil)
	admin := seedUser(t, db, "admin", models.RoleAdmin)
	pid := seedProject(t, db, "P")

	m, err := ms.Create(ctx, models.MilestoneInput{Name: "M", Project: pid.Hex()}, "")
	require.NoError(t, err)
	task, err := svc.Create(ctx, admin, models.TaskInput{Title: "t", Project: pid.Hex(), Milestone: m.ID.Hex()})
	require.NoError(t, err)
	require.NotNil(t, task.Milestone)
	assert.Equal(t, m.ID, *task.Milestone)

	view, err := svc.Update(ctx, task.ID, models.TaskPatch{Milestone: strPtr(""), Title: strPtr("renamed")})
	require.NoError(t, err)
	assert.Nil(t, view.Milestone)
	assert.Equal(t, "renamed", view.Title)

	_, err = svc.Update(ctx, primitive.NewObjectID(), models.TaskPatch{Title: strPtr("x")})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTaskRemoveAttachment(t *testing.T) {
	ctx := context.Background()
	f := newTaskFixture(t)
	task := f.create(t, models.TaskInput{Attachments: []models.Attachment{
		{Key: "a.png", Name: "a"},
		{Key: "b.pdf", Name: "b"},
	}})

	view, err := f.svc.RemoveAttachment(ctx, task.ID, "a.png")
	require.NoError(t, err)
	assert.Equal(t, []models.Attachment{{Key: "b.pdf", Name: "b"}}, view.Attachments)

	select {
	case key := <-f.objects:
		assert.Equal(t, "a.png", key)
	case <-time.After(2 * time.Second):
		t.Fatal("stored object was not deleted")
	}

	_, err = f.svc.RemoveAttachment(ctx, task.ID, "a.png")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.svc.RemoveAttachment(ctx, primitive.NewObjectID(), "b.pdf")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTaskListFilters(t *testing.T) {
	ctx := context.Background()
	f := newTaskFixture(t)
	f.create(t, models.TaskInput{Title: "mine", Assignee: []string{f.dev.ID.Hex()}})
	f.create(t, models.TaskInput{Title: "theirs", Assignee: []string{f.other.ID.Hex()}})

	list, err := f.svc.List(ctx, models.TaskFilter{Assignee: f.dev.ID.Hex()})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "mine", list[0].Title)

	list, err = f.svc.List(ctx, models.TaskFilter{Project: f.project.Hex(), Limit: 1})
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = f.svc.List(ctx, models.TaskFilter{Milestone: "zzz"})
	assert.ErrorIs(t, err, ErrInvalidID)
}

func TestTaskDelete(t *testing.T) {
	ctx := context.Background()
	f := newTaskFixture(t)
	task := f.create(t, models.TaskInput{Attachments: []models.Attachment{{Key: "doc.txt"}}})

	require.NoError(t, f.svc.Delete(ctx, task.ID))
	_, err := f.svc.Get(ctx, task.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, f.svc.Delete(ctx, task.ID), ErrNotFound)

	select {
	case key := <-f.objects:
		assert.Equal(t, "doc.txt", key)
	case <-time.After(2 * time.Second):
		t.Fatal("attachment object was not deleted")
	}
}
