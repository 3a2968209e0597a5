package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"slices"
	"time"

	"github.com/leighmacdonald/steamid/v4/steamid"
	"github.com/leighmacdonald/tf-lobby/internal/events"
)

var ErrMarking = errors.New("failed to query marking")

// Markings persists the user ruleset: per-account behavioral attribute sets.
type Markings struct {
	db *sql.DB
}

func NewMarkings(db *sql.DB) *Markings {
	return &Markings{db: db}
}

// Get returns the persisted marking for an account, or nil when none exists.
func (m *Markings) Get(ctx context.Context, sid steamid.SteamID) (*events.Marking, error) {
	var (
		source string
		raw    string
	)

	row := m.db.QueryRowContext(ctx,
		`SELECT source, attributes FROM marking WHERE steam_id = ?`, sid.Int64())
	if errScan := row.Scan(&source, &raw); errScan != nil {
		if errors.Is(errScan, sql.ErrNoRows) {
			return nil, nil //nolint:nilnil
		}

		return nil, errors.Join(errScan, ErrMarking)
	}

	var attrs []string
	if errDecode := json.Unmarshal([]byte(raw), &attrs); errDecode != nil {
		return nil, errors.Join(errDecode, ErrMarking)
	}

	return &events.Marking{SteamID: sid, Source: source, Attributes: attrs}, nil
}

// All returns every persisted marking, used to seed player state at startup.
func (m *Markings) All(ctx context.Context) ([]events.Marking, error) {
	rows, errQuery := m.db.QueryContext(ctx, `SELECT steam_id, source, attributes FROM marking`)
	if errQuery != nil {
		return nil, errors.Join(errQuery, ErrMarking)
	}
	defer rows.Close()

	var markings []events.Marking
	for rows.Next() {
		var (
			sid64  int64
			source string
			raw    string
		)
		if errScan := rows.Scan(&sid64, &source, &raw); errScan != nil {
			return nil, errors.Join(errScan, ErrMarking)
		}

		var attrs []string
		if errDecode := json.Unmarshal([]byte(raw), &attrs); errDecode != nil {
			return nil, errors.Join(errDecode, ErrMarking)
		}

		markings = append(markings, events.Marking{
			SteamID:    steamid.New(sid64),
			Source:     source,
			Attributes: attrs,
		})
	}

	if errRows := rows.Err(); errRows != nil {
		return nil, errors.Join(errRows, ErrMarking)
	}

	return markings, nil
}

// SetFlag adds an attribute to an account's marking, creating the row when
// needed, and returns the resulting marking.
func (m *Markings) SetFlag(ctx context.Context, sid steamid.SteamID, attr string) (events.Marking, error) {
	current, errGet := m.Get(ctx, sid)
	if errGet != nil {
		return events.Marking{}, errGet
	}

	var attrs []string
	if current != nil {
		attrs = current.Attributes
	}

	if !slices.Contains(attrs, attr) {
		attrs = append(attrs, attr)
	}

	if errSave := m.save(ctx, sid, attrs); errSave != nil {
		return events.Marking{}, errSave
	}

	return events.Marking{SteamID: sid, Source: events.SourceUser, Attributes: attrs}, nil
}

// ClearFlag removes an attribute. Removing the last attribute deletes the row
// and returns nil.
func (m *Markings) ClearFlag(ctx context.Context, sid steamid.SteamID, attr string) (*events.Marking, error) {
	current, errGet := m.Get(ctx, sid)
	if errGet != nil {
		return nil, errGet
	}

	if current == nil {
		return nil, nil //nolint:nilnil
	}

	attrs := slices.DeleteFunc(current.Attributes, func(a string) bool { return a == attr })
	if len(attrs) == 0 {
		if _, errDelete := m.db.ExecContext(ctx,
			`DELETE FROM marking WHERE steam_id = ?`, sid.Int64()); errDelete != nil {
			return nil, errors.Join(errDelete, ErrMarking)
		}

		return nil, nil //nolint:nilnil
	}

	if errSave := m.save(ctx, sid, attrs); errSave != nil {
		return nil, errSave
	}

	return &events.Marking{SteamID: sid, Source: events.SourceUser, Attributes: attrs}, nil
}

func (m *Markings) save(ctx context.Context, sid steamid.SteamID, attrs []string) error {
	raw, errEncode := json.Marshal(attrs)
	if errEncode != nil {
		return errors.Join(errEncode, ErrMarking)
	}

	now := time.Now()
	_, errExec := m.db.ExecContext(ctx, `
		INSERT INTO marking (steam_id, source, attributes, created_on, updated_on)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (steam_id) DO UPDATE SET attributes = excluded.attributes, updated_on = excluded.updated_on`,
		sid.Int64(), events.SourceUser, string(raw), now, now)
	if errExec != nil {
		return errors.Join(errExec, ErrMarking)
	}

	return nil
}
