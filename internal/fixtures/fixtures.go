// Package fixtures seeds reviewable demo accounts through the same service
// calls the API uses. Fixture users sign in with ordinary passwords.
package fixtures

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/ahmetcoskunkizilkaya/vouch-backend/internal/dto"
	"github.com/ahmetcoskunkizilkaya/vouch-backend/internal/models"
	"github.com/ahmetcoskunkizilkaya/vouch-backend/internal/proximity"
	"github.com/ahmetcoskunkizilkaya/vouch-backend/internal/services"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

type File struct {
	Users       []User       `yaml:"users"`
	Connections []Connection `yaml:"connections"`
	Blocks      []Block      `yaml:"blocks"`
}

type User struct {
	Username    string   `yaml:"username"`
	DisplayName string   `yaml:"display_name"`
	Email       string   `yaml:"email"`
	Password    string   `yaml:"password"`
	Role        string   `yaml:"role"`
	Latitude    *float64 `yaml:"latitude"`
	Longitude   *float64 `yaml:"longitude"`
}

// Connection is a request from From to To. Status is pending or accepted.
type Connection struct {
	From   string `yaml:"from"`
	To     string `yaml:"to"`
	Status string `yaml:"status"`
}

type Block struct {
	Blocker string `yaml:"blocker"`
	Blocked string `yaml:"blocked"`
}

type Report struct {
	UsersCreated       int
	UsersSkipped       int
	ConnectionsCreated int
	ConnectionsSkipped int
	Blocks             int
}

// Parse decodes a fixtures document. Unknown keys are rejected so typos
// surface instead of being silently ignored.
func Parse(data []byte) (*File, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var f File
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to parse fixtures: %w", err)
	}
	for _, c := range f.Connections {
		switch c.Status {
		case "", string(models.ConnectionPending), string(models.ConnectionAccepted):
		default:
			return nil, fmt.Errorf("connection %s -> %s: unsupported status %q", c.From, c.To, c.Status)
		}
	}
	for _, u := range f.Users {
		if (u.Latitude == nil) != (u.Longitude == nil) {
			return nil, fmt.Errorf("user %s: latitude and longitude must be set together", u.Username)
		}
	}
	return &f, nil
}

func ParseFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixtures: %w", err)
	}
	return Parse(data)
}

type Loader struct {
	auth        *services.AuthService
	identity    *services.IdentityService
	connections *services.ConnectionService
}

func NewLoader(auth *services.AuthService, identity *services.IdentityService, connections *services.ConnectionService) *Loader {
	return &Loader{auth: auth, identity: identity, connections: connections}
}

// Load applies f. Running it again is harmless: existing usernames and
// existing pair connections are skipped, and blocks are idempotent.
func (l *Loader) Load(ctx context.Context, f *File) (Report, error) {
	var report Report
	ids := make(map[string]uuid.UUID, len(f.Users))

	for _, fu := range f.Users {
		existing, err := l.identity.FindByUsername(ctx, fu.Username)
		switch {
		case err == nil:
			ids[existing.Username] = existing.ID
			report.UsersSkipped++
			continue
		case !errors.Is(err, services.ErrUserNotFound):
			return report, fmt.Errorf("user %s: %w", fu.Username, err)
		}

		user, err := l.auth.NewUser(&dto.RegisterRequest{
			Email:       fu.Email,
			Password:    fu.Password,
			Username:    fu.Username,
			DisplayName: fu.DisplayName,
		})
		if err != nil {
			return report, fmt.Errorf("user %s: %w", fu.Username, err)
		}
		user.IsFixture = true
		if fu.Role != "" {
			user.Role = fu.Role
		}
		if err := l.auth.CreateUser(ctx, user); err != nil {
			return report, fmt.Errorf("user %s: %w", fu.Username, err)
		}
		if fu.Latitude != nil {
			point := proximity.Point{Latitude: *fu.Latitude, Longitude: *fu.Longitude}
			if err := l.identity.UpdateLocation(ctx, user.ID, point); err != nil {
				return report, fmt.Errorf("user %s location: %w", fu.Username, err)
			}
		}
		ids[user.Username] = user.ID
		report.UsersCreated++
	}

	resolve := func(name string) (uuid.UUID, error) {
		norm, err := services.NormalizeUsername(name)
		if err != nil {
			return uuid.Nil, err
		}
		if id, ok := ids[norm]; ok {
			return id, nil
		}
		u, err := l.identity.FindByUsername(ctx, norm)
		if err != nil {
			return uuid.Nil, fmt.Errorf("%s: %w", name, err)
		}
		ids[norm] = u.ID
		return u.ID, nil
	}

	for _, fc := range f.Connections {
		from, err := resolve(fc.From)
		if err != nil {
			return report, fmt.Errorf("connection: %w", err)
		}
		to, err := resolve(fc.To)
		if err != nil {
			return report, fmt.Errorf("connection: %w", err)
		}

		existing, err := l.connections.ConnectionBetween(ctx, from, to)
		if err != nil {
			return report, err
		}
		if existing != nil {
			report.ConnectionsSkipped++
			continue
		}

		conn, err := l.connections.RequestConnection(ctx, from, to)
		if err != nil {
			return report, fmt.Errorf("connection %s -> %s: %w", fc.From, fc.To, err)
		}
		if fc.Status == string(models.ConnectionAccepted) {
			if _, err := l.connections.AcceptConnection(ctx, conn.ID, to); err != nil {
				return report, fmt.Errorf("accept %s -> %s: %w", fc.From, fc.To, err)
			}
		}
		report.ConnectionsCreated++
	}

	for _, fb := range f.Blocks {
		blocker, err := resolve(fb.Blocker)
		if err != nil {
			return report, fmt.Errorf("block: %w", err)
		}
		blocked, err := resolve(fb.Blocked)
		if err != nil {
			return report, fmt.Errorf("block: %w", err)
		}
		if err := l.connections.BlockUser(ctx, blocker, blocked); err != nil {
			return report, fmt.Errorf("block %s -> %s: %w", fb.Blocker, fb.Blocked, err)
		}
		report.Blocks++
	}

	slog.Info("fixtures loaded",
		"users_created", report.UsersCreated,
		"users_skipped", report.UsersSkipped,
		"connections_created", report.ConnectionsCreated,
		"blocks", report.Blocks,
	)
	return report, nil
}
