package services

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/nls08/NLS-Portal-sub001/models"
	"github.com/nls08/NLS-Portal-sub001/storage"
)

// DeliveryService derives the delivery board from client milestones.
type DeliveryService struct {
	milestones storage.Collection
	pop        populator
	now        func() time.Time
}

func NewDeliveryService(db storage.Database) *DeliveryService {
	return &DeliveryService{
		milestones: db.Collection(storage.Milestones),
		pop:        newPopulator(db),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// List returns client milestones by due date. With upcoming set, only open
// milestones due from now on are returned.
func (s *DeliveryService) List(ctx context.Context, upcoming bool) ([]models.Delivery, error) {
	now := s.now()
	filter := bson.M{"type": models.MilestoneClient}
	if upcoming {
		filter["dueDate"] = bson.M{"$gte": now}
		filter["status"] = bson.M{"$nin": []models.MilestoneStatus{models.MilestoneCompleted, models.MilestoneApproved}}
	}

	var ms []models.Milestone
	if err := s.milestones.Find(ctx, filter, storage.FindOptions{Sort: bson.D{{Key: "dueDate", Value: 1}}}, &ms); err != nil {
		return nil, fmt.Errorf("listing deliveries: %w", err)
	}

	ids := make([]primitive.ObjectID, 0, len(ms))
	for _, m := range ms {
		ids = append(ids, m.Project)
	}
	projects, err := s.pop.projectRefs(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]models.Delivery, 0, len(ms))
	for _, m := range ms {
		d := models.Delivery{
			MilestoneID: m.ID,
			Name:        m.Name,
			Project:     pickProject(m.Project, projects),
			DueDate:     m.DueDate,
			Status:      m.Status,
		}
		if m.DueDate != nil && !m.Status.Done() {
			days := int(math.Ceil(m.DueDate.Sub(now).Hours() / 24))
			d.DaysLeft = &days
			d.Overdue = m.DueDate.Before(now)
		}
		out = append(out, d)
	}
	return out, nil
}
