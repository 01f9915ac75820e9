package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"go-nukeguard/internal/ingest"
	"go-nukeguard/internal/models"
)

const (
	gatewayURL = "wss://gateway.discord.gg/?v=10&encoding=json"

	opDispatch  = 0
	opHeartbeat = 1
	opIdentify  = 2
	opHello     = 10

	// Detection only needs the audit entry stream.
	intentGuildModeration = 1 << 2
)

// RawReader is the lean alternative transport: a bare websocket that
// identifies with moderation intents only and feeds audit entry
// dispatches straight into the ingestor. It carries no member or
// channel state, so deployments using it rely on REST fallbacks for
// hierarchy lookups and get no restore snapshots.
type RawReader struct {
	token    string
	ingestor *ingest.Ingestor
	logger   *zap.Logger

	conn      *websocket.Conn
	sequence  atomic.Uint64
	cancel    context.CancelFunc
	heartbeat func()
}

// SetHeartbeat installs a liveness callback invoked on every frame
// read, heartbeat ACKs included, so the watchdog tracks the socket
// itself rather than event traffic.
func (r *RawReader) SetHeartbeat(fn func()) {
	r.heartbeat = fn
}

func NewRawReader(token string, ingestor *ingest.Ingestor, logger *zap.Logger) *RawReader {
	return &RawReader{token: token, ingestor: ingestor, logger: logger}
}

type frame struct {
	Op   int             `json:"op"`
	Seq  uint64          `json:"s"`
	Type string          `json:"t"`
	Data json.RawMessage `json:"d"`
}

func (r *RawReader) Connect(ctx context.Context) error {
	dialer := &websocket.Dialer{
		ReadBufferSize:   65536,
		WriteBufferSize:  16384,
		HandshakeTimeout: 10 * time.Second,
	}
	conn, _, err := dialer.DialContext(ctx, gatewayURL, nil)
	if err != nil {
		return fmt.Errorf("dial gateway: %w", err)
	}
	r.conn = conn

	_, msg, err := conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("read hello: %w", err)
	}
	var hello struct {
		Op   int `json:"op"`
		Data struct {
			HeartbeatInterval int `json:"heartbeat_interval"`
		} `json:"d"`
	}
	if err := json.Unmarshal(msg, &hello); err != nil {
		return fmt.Errorf("decode hello: %w", err)
	}
	if hello.Op != opHello {
		return fmt.Errorf("expected hello, got op %d", hello.Op)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	go r.heartbeatLoop(loopCtx, time.Duration(hello.Data.HeartbeatInterval)*time.Millisecond)

	identify := map[string]any{
		"op": opIdentify,
		"d": map[string]any{
			"token":   r.token,
			"intents": intentGuildModeration,
			"properties": map[string]string{
				"os":      "linux",
				"browser": "nukeguard",
				"device":  "nukeguard",
			},
		},
	}
	return conn.WriteJSON(identify)
}

func (r *RawReader) heartbeatLoop(ctx context.Context, interval time.Duration) {
	tick := time.NewTicker(interval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			beat := map[string]any{"op": opHeartbeat, "d": r.sequence.Load()}
			if err := r.conn.WriteJSON(beat); err != nil {
				r.logger.Warn("heartbeat write failed", zap.Error(err))
				return
			}
		}
	}
}

// ReadLoop blocks, decoding frames until the connection drops or ctx
// is cancelled.
func (r *RawReader) ReadLoop(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		msgType, data, err := r.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return fmt.Errorf("gateway read: %w", err)
		}
		if r.heartbeat != nil {
			r.heartbeat()
		}
		if msgType != websocket.TextMessage {
			continue
		}

		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			r.logger.Warn("undecodable gateway frame", zap.Error(err))
			continue
		}
		if f.Seq > 0 {
			r.sequence.Store(f.Seq)
		}
		if f.Op == opDispatch && f.Type == "GUILD_AUDIT_LOG_ENTRY_CREATE" {
			r.dispatchAuditEntry(ctx, f.Data)
		}
	}
}

func (r *RawReader) dispatchAuditEntry(ctx context.Context, data json.RawMessage) {
	var entry struct {
		GuildID    string `json:"guild_id"`
		UserID     string `json:"user_id"`
		TargetID   string `json:"target_id"`
		ActionType int    `json:"action_type"`
		Reason     string `json:"reason"`
		ID         string `json:"id"`
	}
	if err := json.Unmarshal(data, &entry); err != nil {
		r.logger.Warn("undecodable audit entry", zap.Error(err))
		return
	}
	if entry.GuildID == "" {
		return
	}
	r.ingestor.Submit(ctx, models.RawEvent{
		TenantID:   parseID(entry.GuildID),
		ActorID:    parseID(entry.UserID),
		TargetID:   parseID(entry.TargetID),
		Action:     models.RawAction(entry.ActionType),
		Reason:     entry.Reason,
		OccurredAt: time.Now(),
	})
}

func (r *RawReader) Close() error {
	if r.cancel != nil {
		r.cancel()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}
