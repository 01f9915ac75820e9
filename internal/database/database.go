package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"go-nukeguard/internal/models"
	"go-nukeguard/internal/policy"
)

// Database is the sqlite-backed tenant policy store. The admin command
// surface owns writes; this core only reads, and the cached layer in
// internal/policy invalidates on its write notifications.
type Database struct {
	db *sql.DB
}

func Open(path string) (*Database, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(time.Hour)
	db.SetConnMaxIdleTime(10 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.Exec("PRAGMA synchronous=NORMAL"); err != nil {
		return nil, fmt.Errorf("set synchronous mode: %w", err)
	}

	d := &Database{db: db}
	if err := d.createTables(); err != nil {
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return d, nil
}

func (d *Database) Close() error {
	return d.db.Close()
}

func (d *Database) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS antinuke (
		guild_id INTEGER PRIMARY KEY,
		bot_add INTEGER DEFAULT 0,
		role_update INTEGER DEFAULT 0,
		channel_update INTEGER DEFAULT 0,
		guild_update INTEGER DEFAULT 0,
		kick INTEGER DEFAULT 0,
		ban INTEGER DEFAULT 0,
		member_prune INTEGER DEFAULT 0,
		webhooks INTEGER DEFAULT 0,
		punishment TEXT DEFAULT 'ban'
	);

	CREATE TABLE IF NOT EXISTS antinuke_threshold (
		guild_id INTEGER PRIMARY KEY,
		bot_add INTEGER DEFAULT 0,
		role_update INTEGER DEFAULT 0,
		channel_update INTEGER DEFAULT 0,
		guild_update INTEGER DEFAULT 0,
		kick INTEGER DEFAULT 0,
		ban INTEGER DEFAULT 0,
		member_prune INTEGER DEFAULT 0,
		webhooks INTEGER DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS antinuke_whitelist (
		guild_id INTEGER NOT NULL,
		user_id INTEGER NOT NULL,
		UNIQUE(guild_id, user_id)
	);

	CREATE TABLE IF NOT EXISTS antinuke_admin (
		guild_id INTEGER NOT NULL,
		user_id INTEGER NOT NULL,
		UNIQUE(guild_id, user_id)
	);

	CREATE TABLE IF NOT EXISTS punishment_log (
		id TEXT PRIMARY KEY,
		guild_id INTEGER NOT NULL,
		actor_id INTEGER NOT NULL,
		action TEXT NOT NULL,
		punishment TEXT NOT NULL,
		result TEXT NOT NULL,
		reason TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_whitelist_guild ON antinuke_whitelist(guild_id);
	CREATE INDEX IF NOT EXISTS idx_admin_guild ON antinuke_admin(guild_id);
	CREATE INDEX IF NOT EXISTS idx_punishment_log_guild ON punishment_log(guild_id);
	`
	_, err := d.db.Exec(schema)
	return err
}

// GetPolicy loads one tenant's protection policy. A tenant with no
// antinuke row has protection disabled and gets a nil policy.
func (d *Database) GetPolicy(ctx context.Context, tenantID uint64) (*policy.TenantPolicy, error) {
	enabled := make([]int, len(models.AllActionTypes))
	var punishment string
	err := d.db.QueryRowContext(ctx, `
		SELECT bot_add, role_update, channel_update, guild_update,
		       kick, ban, member_prune, webhooks, punishment
		FROM antinuke WHERE guild_id = ?`, int64(tenantID)).Scan(
		&enabled[0], &enabled[1], &enabled[2], &enabled[3],
		&enabled[4], &enabled[5], &enabled[6], &enabled[7], &punishment)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load policy for tenant %d: %w", tenantID, err)
	}

	p := &policy.TenantPolicy{
		TenantID:      tenantID,
		Enabled:       make(map[models.ActionType]bool, len(models.AllActionTypes)),
		Thresholds:    make(map[models.ActionType]int, len(models.AllActionTypes)),
		Punishment:    policy.ParsePunishmentKind(punishment),
		Whitelist:     make(map[uint64]bool),
		TrustedAdmins: make(map[uint64]bool),
	}
	for i, action := range models.AllActionTypes {
		p.Enabled[action] = enabled[i] != 0
	}

	thresholds := make([]int, len(models.AllActionTypes))
	err = d.db.QueryRowContext(ctx, `
		SELECT bot_add, role_update, channel_update, guild_update,
		       kick, ban, member_prune, webhooks
		FROM antinuke_threshold WHERE guild_id = ?`, int64(tenantID)).Scan(
		&thresholds[0], &thresholds[1], &thresholds[2], &thresholds[3],
		&thresholds[4], &thresholds[5], &thresholds[6], &thresholds[7])
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("load thresholds for tenant %d: %w", tenantID, err)
	}
	if err == nil {
		for i, action := range models.AllActionTypes {
			p.Thresholds[action] = thresholds[i]
		}
	}

	if err := d.loadMembers(ctx, "antinuke_whitelist", tenantID, p.Whitelist); err != nil {
		return nil, err
	}
	if err := d.loadMembers(ctx, "antinuke_admin", tenantID, p.TrustedAdmins); err != nil {
		return nil, err
	}
	return p, nil
}

func (d *Database) loadMembers(ctx context.Context, table string, tenantID uint64, out map[uint64]bool) error {
	rows, err := d.db.QueryContext(ctx,
		"SELECT user_id FROM "+table+" WHERE guild_id = ?", int64(tenantID))
	if err != nil {
		return fmt.Errorf("load %s for tenant %d: %w", table, tenantID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return err
		}
		out[uint64(id)] = true
	}
	return rows.Err()
}

// RecordOutcome persists one settled punishment for the audit trail.
func (d *Database) RecordOutcome(ctx context.Context, id string, tenantID, actorID uint64, action, punishment, result, reason string) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO punishment_log (id, guild_id, actor_id, action, punishment, result, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, int64(tenantID), int64(actorID), action, punishment, result, reason, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("record outcome: %w", err)
	}
	return nil
}
