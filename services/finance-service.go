package services

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/nls08/NLS-Portal-sub001/models"
	"github.com/nls08/NLS-Portal-sub001/storage"
)

type FinanceService struct {
	expenses  storage.Collection
	earnings  storage.Collection
	donations storage.Collection
	advances  storage.Collection
}

func NewFinanceService(db storage.Database) *FinanceService {
	return &FinanceService{
		expenses:  db.Collection(storage.Expenses),
		earnings:  db.Collection(storage.Earnings),
		donations: db.Collection(storage.Donations),
		advances:  db.Collection(storage.Advances),
	}
}

type amount struct {
	Amount float64 `bson:"amount"`
}

func sumAmounts(ctx context.Context, c storage.Collection, filter bson.M) (float64, error) {
	var rows []amount
	if err := c.Find(ctx, filter, storage.FindOptions{Projection: bson.M{"amount": 1}}, &rows); err != nil {
		return 0, fmt.Errorf("summing %s: %w", c.Name(), err)
	}
	var total float64
	for _, r := range rows {
		total += r.Amount
	}
	return total, nil
}

func (s *FinanceService) Summary(ctx context.Context) (*models.FinanceSummary, error) {
	var sum models.FinanceSummary
	var err error
	if sum.Earnings, err = sumAmounts(ctx, s.earnings, bson.M{}); err != nil {
		return nil, err
	}
	if sum.Expenses, err = sumAmounts(ctx, s.expenses, bson.M{}); err != nil {
		return nil, err
	}
	if sum.Donations, err = sumAmounts(ctx, s.donations, bson.M{}); err != nil {
		return nil, err
	}
	if sum.AdvancesOutstanding, err = sumAmounts(ctx, s.advances, bson.M{"repaid": false}); err != nil {
		return nil, err
	}
	sum.Net = sum.Earnings + sum.Donations - sum.Expenses - sum.AdvancesOutstanding
	return &sum, nil
}
