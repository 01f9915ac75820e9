package gateway

import (
	"context"
	"time"

	"github.com/bwmarrin/discordgo"

	"go-nukeguard/internal/cleanup"
	"go-nukeguard/internal/ingest"
	"go-nukeguard/internal/models"
)

// RegisterHandlers wires gateway events into the pipeline. Audit
// entry events are the detection source; create and update events
// only feed the snapshot tracker so later reversals have prior state.
func (s *Session) RegisterHandlers(ctx context.Context, in *ingest.Ingestor, tracker *cleanup.Tracker) {
	if s.heartbeat != nil {
		// Fires for every dispatch; a dead connection stops the beats
		// and the watchdog flips the probe unhealthy.
		s.discord.AddHandler(func(_ *discordgo.Session, _ *discordgo.Event) {
			s.heartbeat()
		})
	}

	s.discord.AddHandler(func(_ *discordgo.Session, e *discordgo.GuildAuditLogEntryCreate) {
		if e.GuildID == "" || e.ActionType == nil {
			return
		}
		raw := models.RawEvent{
			TenantID:   parseID(e.GuildID),
			ActorID:    parseID(e.UserID),
			TargetID:   parseID(e.TargetID),
			Action:     models.RawAction(*e.ActionType),
			Reason:     e.Reason,
			OccurredAt: time.Now(),
		}
		if created, err := discordgo.SnowflakeTimestamp(e.ID); err == nil {
			raw.OccurredAt = created
		}
		if member, err := s.discord.State.Member(e.GuildID, e.UserID); err == nil && member.User != nil {
			raw.ActorIsBot = member.User.Bot
		}
		in.Submit(ctx, raw)
	})

	s.discord.AddHandler(func(_ *discordgo.Session, e *discordgo.ChannelCreate) {
		s.trackChannel(tracker, e.Channel)
	})
	s.discord.AddHandler(func(_ *discordgo.Session, e *discordgo.ChannelUpdate) {
		// Pre-edit state first: a restore triggered by this edit must
		// not rebuild from the edit itself.
		if e.BeforeUpdate != nil {
			s.trackChannel(tracker, e.BeforeUpdate)
		}
		s.trackChannel(tracker, e.Channel)
	})
	s.discord.AddHandler(func(_ *discordgo.Session, e *discordgo.GuildRoleCreate) {
		s.trackRole(tracker, e.GuildID, e.Role)
	})
	s.discord.AddHandler(func(_ *discordgo.Session, e *discordgo.GuildRoleUpdate) {
		s.trackRole(tracker, e.GuildID, e.Role)
	})
	s.discord.AddHandler(func(_ *discordgo.Session, e *discordgo.GuildUpdate) {
		if e.Guild == nil {
			return
		}
		tenantID := parseID(e.ID)
		tracker.Track(cleanup.Snapshot{
			TenantID: tenantID,
			ObjectID: tenantID,
			Kind:     cleanup.ObjectGuildProfile,
			Name:     e.Name,
			TakenAt:  time.Now(),
		})
	})

	s.logger.Debug("gateway handlers registered")
}

func (s *Session) trackChannel(tracker *cleanup.Tracker, ch *discordgo.Channel) {
	if ch == nil || ch.GuildID == "" {
		return
	}
	tracker.Track(cleanup.Snapshot{
		TenantID: parseID(ch.GuildID),
		ObjectID: parseID(ch.ID),
		Kind:     cleanup.ObjectChannel,
		Name:     ch.Name,
		Position: ch.Position,
		TakenAt:  time.Now(),
	})
}

func (s *Session) trackRole(tracker *cleanup.Tracker, guildID string, role *discordgo.Role) {
	if role == nil || guildID == "" {
		return
	}
	tracker.Track(cleanup.Snapshot{
		TenantID:   parseID(guildID),
		ObjectID:   parseID(role.ID),
		Kind:       cleanup.ObjectRole,
		Name:       role.Name,
		Position:   role.Position,
		Permission: role.Permissions,
		TakenAt:    time.Now(),
	})
}
