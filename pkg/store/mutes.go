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

// Mute is the time-bound part of a mute infraction. GuildID and UserID are
// read from the owning infraction.
type Mute struct {
	InfractionID int64        `db:"infraction_id" json:"infraction_id"`
	Expiry       time.Time    `db:"expiry" json:"expiry"`
	Active       bool         `db:"active" json:"active"`
	GuildID      snowflake.ID `db:"guild_id" json:"guild_id"`
	UserID       snowflake.ID `db:"user_id" json:"user_id"`
}

type NewMute struct {
	GuildID     snowflake.ID
	UserID      snowflake.ID
	ModeratorID snowflake.ID
	Reason      string
	Expiry      time.Time
}

const muteSelect = `SELECT m.infraction_id, m.expiry, m.active, i.guild_id, i.user_id
	FROM mutes m JOIN infractions i ON i.id = m.infraction_id`

// CreateInfractionAndMute inserts a mute infraction and its active mute in a
// single transaction and returns the infraction id.
func (db *DB) CreateInfractionAndMute(ctx context.Context, in NewMute) (int64, error) {
	var id int64
	err := db.WithTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		id, err = insertInfraction(ctx, tx, NewInfraction{
			GuildID:     in.GuildID,
			Type:        InfractionMute,
			UserID:      in.UserID,
			ModeratorID: in.ModeratorID,
			Reason:      in.Reason,
		}, time.Now())
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO mutes (infraction_id, expiry, active) VALUES (?, ?, 1)",
			id, in.Expiry.UTC()); err != nil {
			return fmt.Errorf("inserting mute: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// ActiveMutesOrderedByExpiry returns every active mute across all guilds,
// soonest expiry first.
func (db *DB) ActiveMutesOrderedByExpiry(ctx context.Context) ([]Mute, error) {
	var out []Mute
	err := db.conn.SelectContext(ctx, &out,
		muteSelect+" WHERE m.active = 1 ORDER BY m.expiry ASC, m.infraction_id ASC")
	if err != nil {
		return nil, fmt.Errorf("listing active mutes: %w", err)
	}
	return out, nil
}

// CountActiveMutes returns the number of active mutes across all guilds.
func (db *DB) CountActiveMutes(ctx context.Context) (int, error) {
	var n int
	if err := db.conn.GetContext(ctx, &n, "SELECT COUNT(*) FROM mutes WHERE active = 1"); err != nil {
		return 0, fmt.Errorf("counting active mutes: %w", err)
	}
	return n, nil
}

// ActiveMute returns the active mute of a user in a guild, if there is one.
func (db *DB) ActiveMute(ctx context.Context, guildID, userID snowflake.ID) (Mute, bool, error) {
	return db.getMute(ctx,
		muteSelect+" WHERE m.active = 1 AND i.guild_id = ? AND i.user_id = ? ORDER BY m.expiry ASC LIMIT 1",
		guildID, userID)
}

// GetMute returns the mute belonging to an infraction, active or not.
func (db *DB) GetMute(ctx context.Context, infractionID int64) (Mute, bool, error) {
	return db.getMute(ctx, muteSelect+" WHERE m.infraction_id = ?", infractionID)
}

func (db *DB) getMute(ctx context.Context, query string, args ...any) (Mute, bool, error) {
	var m Mute
	err := db.conn.GetContext(ctx, &m, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return Mute{}, false, nil
	}
	if err != nil {
		return Mute{}, false, fmt.Errorf("getting mute: %w", err)
	}
	return m, true, nil
}

// DeactivateMute marks a mute inactive. A mute that is already inactive or no
// longer exists is left alone and no error is returned.
func (db *DB) DeactivateMute(ctx context.Context, infractionID int64) error {
	res, err := db.conn.ExecContext(ctx,
		"UPDATE mutes SET active = 0 WHERE infraction_id = ? AND active = 1", infractionID)
	if err != nil {
		return fmt.Errorf("deactivating mute %d: %w", infractionID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		db.log.Debug("Mute already inactive or gone", "infraction_id", infractionID)
	}
	return nil
}

// GetMuteRole returns the role configured to mark members as muted in a guild.
func (db *DB) GetMuteRole(ctx context.Context, guildID snowflake.ID) (snowflake.ID, bool, error) {
	var roleID snowflake.ID
	err := db.conn.GetContext(ctx, &roleID, "SELECT role_id FROM mute_roles WHERE guild_id = ?", guildID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("getting mute role: %w", err)
	}
	return roleID, true, nil
}

// SetMuteRole configures the mute role of a guild, replacing any previous one.
func (db *DB) SetMuteRole(ctx context.Context, guildID, roleID snowflake.ID) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO mute_roles (guild_id, role_id) VALUES (?, ?)
		 ON CONFLICT (guild_id) DO UPDATE SET role_id = excluded.role_id`,
		guildID, roleID)
	if err != nil {
		return fmt.Errorf("setting mute role: %w", err)
	}
	return nil
}
