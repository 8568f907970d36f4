package services

import (
	"errors"
	"fmt"

	"github.com/nls08/NLS-Portal-sub001/models"
	"github.com/nls08/NLS-Portal-sub001/storage"
)

// Broadcaster delivers events to realtime listeners. Implementations must not block.
type Broadcaster interface {
	Broadcast(event models.Event)
}

type noopBroadcaster struct{}

func (noopBroadcaster) Broadcast(models.Event) {}

func orNoop(b Broadcaster) Broadcaster {
	if b == nil {
		return noopBroadcaster{}
	}
	return b
}

// lookupErr turns a missing document into ErrNotFound and wraps everything else.
func lookupErr(err error, what string) error {
	if errors.Is(err, storage.ErrNoDocuments) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return fmt.Errorf("loading %s: %w", what, err)
}
