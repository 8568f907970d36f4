package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type AttendanceStatus string

const (
	AttendancePresent AttendanceStatus = "present"
	AttendanceAbsent  AttendanceStatus = "absent"
	AttendanceLeave   AttendanceStatus = "leave"
	AttendanceHalfDay AttendanceStatus = "half-day"
)

type Attendance struct {
	Base     `bson:",inline"`
	User     primitive.ObjectID `json:"user" bson:"user"`
	Date     time.Time          `json:"date" bson:"date" validate:"required"`
	CheckIn  *time.Time         `json:"checkIn,omitempty" bson:"checkIn,omitempty"`
	CheckOut *time.Time         `json:"checkOut,omitempty" bson:"checkOut,omitempty"`
	Status   AttendanceStatus   `json:"status" bson:"status" validate:"required,oneof=present absent leave half-day"`
	Notes    string             `json:"notes" bson:"notes" validate:"max=1000"`
}

func (a *Attendance) OwnerID() primitive.ObjectID { return a.User }
func (a *Attendance) SetOwner(id primitive.ObjectID) { a.User = id }
