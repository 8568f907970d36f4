package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Donation struct {
	Base     `bson:",inline"`
	Donor    string    `json:"donor" bson:"donor" validate:"required,max=200"`
	Amount   float64   `json:"amount" bson:"amount" validate:"gt=0"`
	Currency string    `json:"currency" bson:"currency" validate:"omitempty,len=3"`
	Date     time.Time `json:"date" bson:"date" validate:"required"`
	Note     string    `json:"note" bson:"note" validate:"max=2000"`
}

type Expense struct {
	Base     `bson:",inline"`
	Title    string              `json:"title" bson:"title" validate:"required,max=200"`
	Amount   float64             `json:"amount" bson:"amount" validate:"gt=0"`
	Category string              `json:"category" bson:"category" validate:"max=100"`
	Date     time.Time           `json:"date" bson:"date" validate:"required"`
	Project  *primitive.ObjectID `json:"project,omitempty" bson:"project,omitempty"`
}

type Earning struct {
	Base    `bson:",inline"`
	Title   string              `json:"title" bson:"title" validate:"required,max=200"`
	Amount  float64             `json:"amount" bson:"amount" validate:"gt=0"`
	Source  string              `json:"source" bson:"source" validate:"max=200"`
	Date    time.Time           `json:"date" bson:"date" validate:"required"`
	Project *primitive.ObjectID `json:"project,omitempty" bson:"project,omitempty"`
}

type Advance struct {
	Base   `bson:",inline"`
	User   primitive.ObjectID `json:"user" bson:"user" validate:"required"`
	Amount float64            `json:"amount" bson:"amount" validate:"gt=0"`
	Reason string             `json:"reason" bson:"reason" validate:"max=2000"`
	Date   time.Time          `json:"date" bson:"date" validate:"required"`
	Repaid bool               `json:"repaid" bson:"repaid"`
}

// FinanceSummary totals every finance collection. Net is earnings plus donations
// minus expenses and advances that are not yet repaid.
type FinanceSummary struct {
	Earnings            float64 `json:"earnings"`
	Expenses            float64 `json:"expenses"`
	Donations           float64 `json:"donations"`
	AdvancesOutstanding float64 `json:"advancesOutstanding"`
	Net                 float64 `json:"net"`
}
