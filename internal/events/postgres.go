package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/ahmetcoskunkizilkaya/vouch-backend/internal/models"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// Channel is the NOTIFY channel carrying committed event ids.
const Channel = "vouch_events"

// PGBroadcaster announces event ids over NOTIFY so every instance's
// PGListener can deliver them to its own hub.
type PGBroadcaster struct {
	db *gorm.DB
}

func NewPGBroadcaster(db *gorm.DB) *PGBroadcaster {
	return &PGBroadcaster{db: db}
}

func (b *PGBroadcaster) Broadcast(ctx context.Context, evs []models.Event) error {
	var errs []error
	for _, ev := range evs {
		id := strconv.FormatInt(ev.ID, 10)
		if err := b.db.WithContext(ctx).Exec("SELECT pg_notify(?, ?)", Channel, id).Error; err != nil {
			errs = append(errs, fmt.Errorf("notify event %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

// PGListener relays NOTIFY payloads into the local hub.
type PGListener struct {
	dsn string
	db  *gorm.DB
	hub *Hub
}

func NewPGListener(dsn string, db *gorm.DB, hub *Hub) *PGListener {
	return &PGListener{dsn: dsn, db: db, hub: hub}
}

// Run listens until ctx is cancelled. Reconnects are handled by pq.
func (l *PGListener) Run(ctx context.Context) error {
	listener := pq.NewListener(l.dsn, 10*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			slog.Warn("event listener connection problem", "error", err, "state", int(ev))
		}
	})
	defer listener.Close()

	if err := listener.Listen(Channel); err != nil {
		return fmt.Errorf("failed to listen on %s: %w", Channel, err)
	}
	slog.Info("event listener started", "channel", Channel)

	ping := time.NewTicker(90 * time.Second)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case n := <-listener.Notify:
			// nil after a reconnect; anything missed is still readable by cursor.
			if n == nil {
				continue
			}
			l.dispatch(ctx, n.Extra)
		case <-ping.C:
			go func() {
				if err := listener.Ping(); err != nil {
					slog.Warn("event listener ping failed", "error", err)
				}
			}()
		}
	}
}

func (l *PGListener) dispatch(ctx context.Context, payload string) {
	id, err := strconv.ParseInt(payload, 10, 64)
	if err != nil {
		slog.Warn("ignoring malformed event notification", "payload", payload)
		return
	}
	var ev models.Event
	if err := l.db.WithContext(ctx).First(&ev, id).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			slog.Error("failed to load notified event", "error", err, "event_id", id)
		}
		return
	}
	l.hub.Deliver(ev)
}
