// Package presence counts the open UI sessions of every operator and releases
// the operator's stations when the last one closes.
package presence

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/zanzhit/station_recorder/internal/lib/sl"
)

// Releaser frees every station an operator occupies.
type Releaser interface {
	ReleaseOperator(ctx context.Context, userID int) error
}

type Tracker struct {
	log      *slog.Logger
	releaser Releaser

	mu     sync.Mutex
	counts map[int]int
}

func New(log *slog.Logger, releaser Releaser) *Tracker {
	return &Tracker{
		log:      log,
		releaser: releaser,
		counts:   make(map[int]int),
	}
}

// OnSessionOpened registers a UI session of the operator and returns the new
// session count.
func (t *Tracker) OnSessionOpened(operatorID int) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.counts[operatorID]++

	return t.counts[operatorID]
}

// OnSessionClosed unregisters a UI session. When it was the operator's last
// one, the operator's stations are released. Unknown operators are ignored.
func (t *Tracker) OnSessionClosed(ctx context.Context, operatorID int) error {
	const op = "service.presence.OnSessionClosed"

	log := t.log.With(
		slog.String("op", op),
		slog.Int("user_id", operatorID),
	)

	t.mu.Lock()
	n, ok := t.counts[operatorID]
	if !ok {
		t.mu.Unlock()

		return nil
	}

	n--
	if n > 0 {
		t.counts[operatorID] = n
		t.mu.Unlock()

		log.Debug("ui session closed", slog.Int("remaining", n))

		return nil
	}

	delete(t.counts, operatorID)
	t.mu.Unlock()

	log.Info("last ui session closed, releasing stations")

	if err := t.releaser.ReleaseOperator(ctx, operatorID); err != nil {
		log.Error("failed to release stations", sl.Err(err))

		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// Sessions is the number of open UI sessions of the operator.
func (t *Tracker) Sessions(operatorID int) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.counts[operatorID]
}
