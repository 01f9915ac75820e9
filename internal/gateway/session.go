package gateway

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"go-nukeguard/internal/audit"
	"go-nukeguard/internal/models"
	"go-nukeguard/internal/trust"
)

// Session wraps the platform websocket session. It is the pipeline's
// directory (identity and hierarchy lookups) and its audit fetcher,
// both served from gateway state where possible so hot-path questions
// rarely touch the network.
type Session struct {
	discord     *discordgo.Session
	logger      *zap.Logger
	selfID      atomic.Uint64
	superAdmins map[uint64]struct{}
	heartbeat   func()
}

var _ trust.Directory = (*Session)(nil)
var _ audit.Fetcher = (*Session)(nil)

func NewSession(token string, superAdmins []uint64, logger *zap.Logger) (*Session, error) {
	dg, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	dg.Identify.Intents = discordgo.IntentsAll
	dg.StateEnabled = true

	admins := make(map[uint64]struct{}, len(superAdmins))
	for _, id := range superAdmins {
		admins[id] = struct{}{}
	}
	return &Session{discord: dg, logger: logger, superAdmins: admins}, nil
}

// SetHeartbeat installs a liveness callback invoked on every dispatch
// the gateway delivers. Call before Connect.
func (s *Session) SetHeartbeat(fn func()) {
	s.heartbeat = fn
}

// UseLeanIntents narrows the gateway subscription to guild metadata.
// Deployments running the raw reader keep the session for REST calls
// and audit fetches but do not need a second full event feed. Call
// before Connect.
func (s *Session) UseLeanIntents() {
	s.discord.Identify.Intents = discordgo.IntentsGuilds
}

func (s *Session) Connect() error {
	if err := s.discord.Open(); err != nil {
		return fmt.Errorf("open gateway: %w", err)
	}
	if s.discord.State.User != nil {
		id, _ := strconv.ParseUint(s.discord.State.User.ID, 10, 64)
		s.selfID.Store(id)
		s.logger.Info("gateway connected", zap.Uint64("self_id", id))
	}
	return nil
}

func (s *Session) Close() error {
	return s.discord.Close()
}

func (s *Session) SelfID() uint64 {
	return s.selfID.Load()
}

func (s *Session) IsSuperAdmin(actorID uint64) bool {
	_, ok := s.superAdmins[actorID]
	return ok
}

func (s *Session) OwnerOf(_ context.Context, tenantID uint64) uint64 {
	guild, err := s.discord.State.Guild(formatID(tenantID))
	if err != nil {
		return 0
	}
	owner, _ := strconv.ParseUint(guild.OwnerID, 10, 64)
	return owner
}

// RankOf is the actor's highest role position in the tenant. State is
// tried first; a state miss falls back to one member fetch.
func (s *Session) RankOf(ctx context.Context, tenantID, actorID uint64) (int, bool) {
	guildID := formatID(tenantID)
	userID := formatID(actorID)

	member, err := s.discord.State.Member(guildID, userID)
	if err != nil {
		member, err = s.discord.GuildMember(guildID, userID, discordgo.WithContext(ctx))
		if err != nil {
			return 0, false
		}
	}

	guild, err := s.discord.State.Guild(guildID)
	if err != nil {
		return 0, false
	}

	positions := make(map[string]int, len(guild.Roles))
	for _, role := range guild.Roles {
		positions[role.ID] = role.Position
	}

	rank := 0
	for _, roleID := range member.Roles {
		if p, ok := positions[roleID]; ok && p > rank {
			rank = p
		}
	}
	return rank, true
}

// RetainedRoles lists the member's integration-managed roles, which
// a role strip must carry over because the platform refuses to remove
// them.
func (s *Session) RetainedRoles(ctx context.Context, tenantID, userID uint64) []string {
	guildID := formatID(tenantID)

	member, err := s.discord.State.Member(guildID, formatID(userID))
	if err != nil {
		return nil
	}
	guild, err := s.discord.State.Guild(guildID)
	if err != nil {
		return nil
	}

	managed := make(map[string]bool, len(guild.Roles))
	for _, role := range guild.Roles {
		managed[role.ID] = role.Managed
	}

	var keep []string
	for _, roleID := range member.Roles {
		if managed[roleID] {
			keep = append(keep, roleID)
		}
	}
	return keep
}

// LatestEntry fetches the newest audit record for an action type.
func (s *Session) LatestEntry(ctx context.Context, tenantID uint64, action models.RawAction) (audit.Entry, error) {
	log, err := s.discord.GuildAuditLog(formatID(tenantID), "", "", int(action), 1, discordgo.WithContext(ctx))
	if err != nil {
		return audit.Entry{}, fmt.Errorf("audit log fetch: %w", err)
	}
	if len(log.AuditLogEntries) == 0 {
		return audit.Entry{}, fmt.Errorf("no audit entries for action %d", action)
	}

	raw := log.AuditLogEntries[0]
	entry := audit.Entry{Reason: raw.Reason}
	entry.ActorID, _ = strconv.ParseUint(raw.UserID, 10, 64)
	entry.TargetID, _ = strconv.ParseUint(raw.TargetID, 10, 64)
	if created, err := discordgo.SnowflakeTimestamp(raw.ID); err == nil {
		entry.CreatedAt = created
	}
	for _, user := range log.Users {
		if user.ID == raw.UserID {
			entry.ActorIsBot = user.Bot
			break
		}
	}
	return entry, nil
}

// SendEmbed posts one embed to a channel, for the outcome notifier.
func (s *Session) SendEmbed(channelID string, embed *discordgo.MessageEmbed) error {
	_, err := s.discord.ChannelMessageSendEmbed(channelID, embed)
	return err
}

func formatID(id uint64) string {
	return strconv.FormatUint(id, 10)
}

func parseID(id string) uint64 {
	n, _ := strconv.ParseUint(id, 10, 64)
	return n
}
