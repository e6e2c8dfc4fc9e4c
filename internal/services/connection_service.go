package services

import (
	"context"
	"errors"
	"log/slog"

	"github.com/ahmetcoskunkizilkaya/vouch-backend/internal/clock"
	"github.com/ahmetcoskunkizilkaya/vouch-backend/internal/events"
	"github.com/ahmetcoskunkizilkaya/vouch-backend/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ConnectionView pairs a connection with the other party's profile.
type ConnectionView struct {
	Connection  models.Connection
	Counterpart models.User
}

// Relationship is how another user relates to the viewer.
type Relationship string

const (
	RelationSelf            Relationship = "self"
	RelationNone            Relationship = "none"
	RelationRequestSent     Relationship = "request_sent"
	RelationRequestReceived Relationship = "request_received"
	RelationConnected       Relationship = "connected"
	RelationBlocked         Relationship = "blocked"
)

// ConnectionService owns the connection graph and the block list.
type ConnectionService struct {
	db    *gorm.DB
	clock clock.Clock
	feed  *events.Feed
}

func NewConnectionService(db *gorm.DB, clk clock.Clock, feed *events.Feed) *ConnectionService {
	return &ConnectionService{db: db, clock: clk, feed: feed}
}

func (s *ConnectionService) RequestConnection(ctx context.Context, requester, target uuid.UUID) (*models.Connection, error) {
	if requester == target {
		return nil, ErrSelfAction
	}

	var conn models.Connection
	var emitted []models.Event
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := lockPair(tx, requester, target); err != nil {
			return err
		}

		blocked, err := blockExists(tx, requester, target)
		if err != nil {
			return err
		}
		if blocked {
			return ErrAlreadyBlocked
		}

		existing, err := connectionFor(tx, requester, target)
		if err != nil {
			return err
		}
		if existing != nil {
			if existing.Status == models.ConnectionBlocked {
				return ErrAlreadyBlocked
			}
			return ErrDuplicateConnection
		}

		now := s.clock.Now()
		conn = models.Connection{
			UserA:     requester,
			UserB:     target,
			Status:    models.ConnectionPending,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := tx.Create(&conn).Error; err != nil {
			if isDuplicateKey(err) {
				return ErrDuplicateConnection
			}
			return storeErr("create connection", err)
		}

		ev, err := s.feed.Record(tx, models.EventConnectionRequested, target, events.ConnectionPayload{
			ConnectionID: conn.ID,
			FromUserID:   requester,
		})
		if err != nil {
			return err
		}
		emitted = append(emitted, ev)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.feed.Publish(ctx, emitted...)
	slog.Info("connection requested", "action", "connection_request",
		"user_id", requester.String(), "connection_id", conn.ID.String())
	return &conn, nil
}

func (s *ConnectionService) AcceptConnection(ctx context.Context, connectionID, actor uuid.UUID) (*models.Connection, error) {
	var conn models.Connection
	var emitted []models.Event
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockConnection(tx, connectionID, &conn); err != nil {
			return err
		}
		if conn.UserB != actor {
			return ErrForbidden
		}
		if conn.Status != models.ConnectionPending {
			return ErrInvalidState
		}

		now := s.clock.Now()
		result := tx.Model(&models.Connection{}).
			Where("id = ? AND status = ?", conn.ID, models.ConnectionPending).
			Updates(map[string]interface{}{"status": models.ConnectionAccepted, "updated_at": now})
		if result.Error != nil {
			return storeErr("accept connection", result.Error)
		}
		if result.RowsAffected != 1 {
			return ErrInvalidState
		}
		conn.Status = models.ConnectionAccepted
		conn.UpdatedAt = now

		ev, err := s.feed.Record(tx, models.EventConnectionAccepted, conn.UserA, events.ConnectionPayload{
			ConnectionID: conn.ID,
			FromUserID:   actor,
		})
		if err != nil {
			return err
		}
		emitted = append(emitted, ev)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.feed.Publish(ctx, emitted...)
	slog.Info("connection accepted", "action", "connection_accept",
		"user_id", actor.String(), "connection_id", conn.ID.String())
	return &conn, nil
}

// DeclineConnection deletes a pending request. The requester may ask again later.
func (s *ConnectionService) DeclineConnection(ctx context.Context, connectionID, actor uuid.UUID) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var conn models.Connection
		if err := lockConnection(tx, connectionID, &conn); err != nil {
			return err
		}
		if conn.UserB != actor {
			return ErrForbidden
		}
		if conn.Status != models.ConnectionPending {
			return ErrInvalidState
		}
		result := tx.Where("id = ? AND status = ?", conn.ID, models.ConnectionPending).Delete(&models.Connection{})
		if result.Error != nil {
			return storeErr("decline connection", result.Error)
		}
		if result.RowsAffected != 1 {
			return ErrInvalidState
		}
		return nil
	})
	if err != nil {
		return err
	}
	slog.Info("connection declined", "action", "connection_decline",
		"user_id", actor.String(), "connection_id", connectionID.String())
	return nil
}

// BlockUser records a one-directional block and forces any connection
// between the pair to blocked. Repeating a block is a no-op.
func (s *ConnectionService) BlockUser(ctx context.Context, blocker, blocked uuid.UUID) error {
	if blocker == blocked {
		return ErrSelfAction
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := lockPair(tx, blocker, blocked); err != nil {
			return err
		}

		now := s.clock.Now()
		block := models.Block{BlockerID: blocker, BlockedID: blocked, CreatedAt: now}
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "blocker_id"}, {Name: "blocked_id"}},
			DoNothing: true,
		}).Create(&block).Error
		if err != nil {
			return storeErr("create block", err)
		}

		err = tx.Model(&models.Connection{}).
			Where("pair_key = ? AND status <> ?", models.PairKey(blocker, blocked), models.ConnectionBlocked).
			Updates(map[string]interface{}{"status": models.ConnectionBlocked, "updated_at": now}).Error
		if err != nil {
			return storeErr("block connection", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	slog.Info("user blocked", "action", "block", "user_id", blocker.String(), "blocked_id", blocked.String())
	return nil
}

// ListConnections returns the user's accepted connections in both directions.
func (s *ConnectionService) ListConnections(ctx context.Context, userID uuid.UUID) ([]ConnectionView, error) {
	var conns []models.Connection
	err := s.db.WithContext(ctx).
		Where("status = ? AND (user_a = ? OR user_b = ?)", models.ConnectionAccepted, userID, userID).
		Order("updated_at DESC").
		Find(&conns).Error
	if err != nil {
		return nil, storeErr("list connections", err)
	}
	return s.withCounterparts(ctx, userID, conns)
}

// ListPendingRequests returns requests awaiting the user's answer.
func (s *ConnectionService) ListPendingRequests(ctx context.Context, userID uuid.UUID) ([]ConnectionView, error) {
	var conns []models.Connection
	err := s.db.WithContext(ctx).
		Where("status = ? AND user_b = ?", models.ConnectionPending, userID).
		Order("created_at DESC").
		Find(&conns).Error
	if err != nil {
		return nil, storeErr("list requests", err)
	}
	return s.withCounterparts(ctx, userID, conns)
}

// ConnectionBetween returns the pair's connection, or nil when there is none.
func (s *ConnectionService) ConnectionBetween(ctx context.Context, a, b uuid.UUID) (*models.Connection, error) {
	return connectionFor(s.db.WithContext(ctx), a, b)
}

func (s *ConnectionService) withCounterparts(ctx context.Context, self uuid.UUID, conns []models.Connection) ([]ConnectionView, error) {
	if len(conns) == 0 {
		return []ConnectionView{}, nil
	}
	ids := make([]uuid.UUID, len(conns))
	for i := range conns {
		ids[i] = conns[i].Other(self)
	}
	var users []models.User
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, storeErr("load counterparts", err)
	}
	byID := make(map[uuid.UUID]models.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}

	views := make([]ConnectionView, 0, len(conns))
	for _, c := range conns {
		other, ok := byID[c.Other(self)]
		if !ok {
			// Counterpart deleted their account.
			continue
		}
		views = append(views, ConnectionView{Connection: c, Counterpart: other})
	}
	return views, nil
}

func lockConnection(tx *gorm.DB, id uuid.UUID, conn *models.Connection) error {
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(conn, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrConnectionNotFound
	}
	if err != nil {
		return storeErr("load connection", err)
	}
	return nil
}

// Relationship reports how other relates to viewer, with the pair's
// connection when one exists. A block in either direction wins.
func (s *ConnectionService) Relationship(ctx context.Context, viewer, other uuid.UUID) (Relationship, *models.Connection, error) {
	if viewer == other {
		return RelationSelf, nil, nil
	}
	db := s.db.WithContext(ctx)
	blocked, err := blockExists(db, viewer, other)
	if err != nil {
		return "", nil, err
	}
	if blocked {
		return RelationBlocked, nil, nil
	}
	conn, err := connectionFor(db, viewer, other)
	if err != nil || conn == nil {
		return RelationNone, nil, err
	}
	switch conn.Status {
	case models.ConnectionAccepted:
		return RelationConnected, conn, nil
	case models.ConnectionPending:
		if conn.UserA == viewer {
			return RelationRequestSent, conn, nil
		}
		return RelationRequestReceived, conn, nil
	}
	return RelationBlocked, conn, nil
}
