package services

import (
	"go.mongodb.org/mongo-driver/bson"

	"github.com/nls08/NLS-Portal-sub001/models"
	"github.com/nls08/NLS-Portal-sub001/storage"
)

// Records groups the CRUD services of the supporting collections.
type Records struct {
	Attendance    *CrudService[models.Attendance, *models.Attendance]
	RedZones      *CrudService[models.RedZone, *models.RedZone]
	Performance   *CrudService[models.Performance, *models.Performance]
	Kpis          *CrudService[models.Kpi, *models.Kpi]
	Feedback      *CrudService[models.Feedback, *models.Feedback]
	PersonalTasks *CrudService[models.PersonalTask, *models.PersonalTask]
	Reminders     *CrudService[models.Reminder, *models.Reminder]
	Donations     *CrudService[models.Donation, *models.Donation]
	Expenses      *CrudService[models.Expense, *models.Expense]
	Earnings      *CrudService[models.Earning, *models.Earning]
	Advances      *CrudService[models.Advance, *models.Advance]
}

func NewRecords(db storage.Database, notifier Notifier) *Records {
	byDate := bson.D{{Key: "date", Value: -1}}
	return &Records{
		Attendance: NewCrudService[models.Attendance](db, notifier, CrudConfig{
			Name: "attendance", Collection: storage.Attendance, Sort: byDate,
			Scope: Scope{Field: "user", AdminBypass: true},
		}),
		RedZones:    NewCrudService[models.RedZone](db, notifier, CrudConfig{Name: "red zone", Collection: storage.RedZones}),
		Performance: NewCrudService[models.Performance](db, notifier, CrudConfig{Name: "performance", Collection: storage.Performance}),
		Kpis:        NewCrudService[models.Kpi](db, notifier, CrudConfig{Name: "kpi", Collection: storage.Kpis}),
		Feedback: NewCrudService[models.Feedback](db, notifier, CrudConfig{
			Name: "feedback", Collection: storage.Feedback,
			Scope: Scope{Field: "user", AdminBypass: true},
		}),
		PersonalTasks: NewCrudService[models.PersonalTask](db, notifier, CrudConfig{
			Name: "personal task", Collection: storage.PersonalTasks,
			Scope: Scope{Field: "owner"},
		}),
		Reminders: NewCrudService[models.Reminder](db, notifier, CrudConfig{
			Name: "reminder", Collection: storage.Reminders,
			Sort:         bson.D{{Key: "remindAt", Value: 1}},
			Scope:        Scope{Field: "owner"},
			CreatedEvent: models.EventReminderCreated,
		}),
		Donations: NewCrudService[models.Donation](db, notifier, CrudConfig{Name: "donation", Collection: storage.Donations, Sort: byDate}),
		Expenses:  NewCrudService[models.Expense](db, notifier, CrudConfig{Name: "expense", Collection: storage.Expenses, Sort: byDate}),
		Earnings:  NewCrudService[models.Earning](db, notifier, CrudConfig{Name: "earning", Collection: storage.Earnings, Sort: byDate}),
		Advances:  NewCrudService[models.Advance](db, notifier, CrudConfig{Name: "advance", Collection: storage.Advances, Sort: byDate}),
	}
}
