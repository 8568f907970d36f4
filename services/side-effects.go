package services

import (
	"context"
	"time"

	"github.com/nls08/NLS-Portal-sub001/logging"
	"github.com/nls08/NLS-Portal-sub001/models"
)

// Mailer sends plain notification emails.
type Mailer interface {
	Send(ctx context.Context, to []models.UserRef, subject, body string) error
}

// ObjectStore removes uploaded files.
type ObjectStore interface {
	Delete(ctx context.Context, key string) error
}

const sideEffectTimeout = 30 * time.Second

// detach runs fn after the response has been decided. Failures are logged only.
func detach(name string, fn func(ctx context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), sideEffectTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			logging.Logger.Warnf("Event ID: SIDE_EFFECT_FAILED, Description: %s failed: %v", name, err)
		}
	}()
}
