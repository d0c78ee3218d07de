package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/jmoiron/sqlx"
)

type InfractionType string

const (
	InfractionNote    InfractionType = "note"
	InfractionWarning InfractionType = "warning"
	InfractionMute    InfractionType = "mute"
	InfractionKick    InfractionType = "kick"
	InfractionBan     InfractionType = "ban"
)

// InfractionTypes lists every type in display order.
var InfractionTypes = []InfractionType{
	InfractionNote,
	InfractionWarning,
	InfractionMute,
	InfractionKick,
	InfractionBan,
}

func ParseInfractionType(s string) (InfractionType, bool) {
	for _, t := range InfractionTypes {
		if string(t) == s {
			return t, true
		}
	}
	return "", false
}

// Infraction is the audit record of one moderation action. Only Reason
// changes after creation; changing it sets EditedOn.
type Infraction struct {
	ID          int64          `db:"id" json:"id"`
	GuildID     snowflake.ID   `db:"guild_id" json:"guild_id"`
	Type        InfractionType `db:"type" json:"type"`
	UserID      snowflake.ID   `db:"user_id" json:"user_id"`
	ModeratorID snowflake.ID   `db:"moderator_id" json:"moderator_id"`
	Reason      *string        `db:"reason" json:"reason,omitempty"`
	CreatedOn   time.Time      `db:"created_on" json:"created_on"`
	EditedOn    *time.Time     `db:"edited_on" json:"edited_on,omitempty"`
}

// ReasonText returns the reason, or "" if none was given.
func (i Infraction) ReasonText() string {
	if i.Reason == nil {
		return ""
	}
	return *i.Reason
}

type NewInfraction struct {
	GuildID     snowflake.ID
	Type        InfractionType
	UserID      snowflake.ID
	ModeratorID snowflake.ID
	Reason      string
}

const infractionColumns = "id, guild_id, type, user_id, moderator_id, reason, created_on, edited_on"

func nullableReason(reason string) *string {
	if reason == "" {
		return nil
	}
	return &reason
}

func insertInfraction(ctx context.Context, ext sqlx.ExtContext, in NewInfraction, createdOn time.Time) (int64, error) {
	res, err := ext.ExecContext(ctx,
		`INSERT INTO infractions (guild_id, type, user_id, moderator_id, reason, created_on)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		in.GuildID, in.Type, in.UserID, in.ModeratorID, nullableReason(in.Reason), createdOn.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("inserting infraction: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading infraction id: %w", err)
	}
	return id, nil
}

// CreateInfraction records a new infraction and returns it.
func (db *DB) CreateInfraction(ctx context.Context, in NewInfraction) (Infraction, error) {
	now := time.Now().UTC()
	id, err := insertInfraction(ctx, db.conn, in, now)
	if err != nil {
		return Infraction{}, err
	}
	return Infraction{
		ID:          id,
		GuildID:     in.GuildID,
		Type:        in.Type,
		UserID:      in.UserID,
		ModeratorID: in.ModeratorID,
		Reason:      nullableReason(in.Reason),
		CreatedOn:   now,
	}, nil
}

// GetInfraction looks up an infraction by id within a guild.
func (db *DB) GetInfraction(ctx context.Context, guildID snowflake.ID, id int64) (Infraction, bool, error) {
	var inf Infraction
	err := db.conn.GetContext(ctx, &inf,
		"SELECT "+infractionColumns+" FROM infractions WHERE id = ? AND guild_id = ?", id, guildID)
	if errors.Is(err, sql.ErrNoRows) {
		return Infraction{}, false, nil
	}
	if err != nil {
		return Infraction{}, false, fmt.Errorf("getting infraction %d: %w", id, err)
	}
	return inf, true, nil
}

// ListInfractions returns a guild's infractions, newest first. If types is
// non-empty only those types are returned.
func (db *DB) ListInfractions(ctx context.Context, guildID snowflake.ID, types ...InfractionType) ([]Infraction, error) {
	query := "SELECT " + infractionColumns + " FROM infractions WHERE guild_id = ?"
	args := []any{guildID}
	if len(types) > 0 {
		var err error
		query, args, err = sqlx.In(query+" AND type IN (?)", guildID, types)
		if err != nil {
			return nil, fmt.Errorf("building infraction query: %w", err)
		}
	}
	query += " ORDER BY created_on DESC, id DESC"

	var out []Infraction
	if err := db.conn.SelectContext(ctx, &out, db.conn.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("listing infractions: %w", err)
	}
	return out, nil
}

// UserInfractions returns every infraction of a user in a guild, grouped by
// type and newest first within each type.
func (db *DB) UserInfractions(ctx context.Context, guildID, userID snowflake.ID) ([]Infraction, error) {
	var out []Infraction
	err := db.conn.SelectContext(ctx, &out,
		"SELECT "+infractionColumns+` FROM infractions
		 WHERE guild_id = ? AND user_id = ?
		 ORDER BY type, created_on DESC, id DESC`, guildID, userID)
	if err != nil {
		return nil, fmt.Errorf("listing user infractions: %w", err)
	}
	return out, nil
}

// GuildsWithInfractions returns the ids of all guilds that have at least one
// infraction recorded.
func (db *DB) GuildsWithInfractions(ctx context.Context) ([]snowflake.ID, error) {
	var out []snowflake.ID
	if err := db.conn.SelectContext(ctx, &out, "SELECT DISTINCT guild_id FROM infractions ORDER BY guild_id"); err != nil {
		return nil, fmt.Errorf("listing guilds: %w", err)
	}
	return out, nil
}

// UpdateReason replaces the reason of an infraction and stamps edited_on.
// It reports false if the infraction does not exist in the guild.
func (db *DB) UpdateReason(ctx context.Context, guildID snowflake.ID, id int64, reason string) (bool, error) {
	res, err := db.conn.ExecContext(ctx,
		"UPDATE infractions SET reason = ?, edited_on = ? WHERE id = ? AND guild_id = ?",
		nullableReason(reason), time.Now().UTC(), id, guildID)
	if err != nil {
		return false, fmt.Errorf("updating reason of infraction %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reading rows affected: %w", err)
	}
	return n > 0, nil
}

// DeleteInfraction removes an infraction. Its mute, if any, goes with it.
// It reports false if the infraction does not exist in the guild.
func (db *DB) DeleteInfraction(ctx context.Context, guildID snowflake.ID, id int64) (bool, error) {
	res, err := db.conn.ExecContext(ctx, "DELETE FROM infractions WHERE id = ? AND guild_id = ?", id, guildID)
	if err != nil {
		return false, fmt.Errorf("deleting infraction %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reading rows affected: %w", err)
	}
	return n > 0, nil
}
