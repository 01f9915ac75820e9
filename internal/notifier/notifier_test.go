package notifier

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"go-nukeguard/internal/models"
	"go-nukeguard/internal/outcome"
	"go-nukeguard/internal/policy"
)

type fakeSender struct {
	mu     sync.Mutex
	sent   []*discordgo.MessageEmbed
	chans  []string
	err    error
	notify chan struct{}
}

func (f *fakeSender) SendEmbed(channelID string, embed *discordgo.MessageEmbed) error {
	f.mu.Lock()
	f.sent = append(f.sent, embed)
	f.chans = append(f.chans, channelID)
	f.mu.Unlock()
	if f.notify != nil {
		f.notify <- struct{}{}
	}
	return f.err
}

func TestRunPostsEmbedPerOutcome(t *testing.T) {
	sender := &fakeSender{notify: make(chan struct{}, 2)}
	n := New(sender, 555, zap.NewNop())

	ch := make(chan outcome.Outcome, 2)
	ch <- outcome.New(1, 2, 3, models.ActionBan, policy.PunishBan, outcome.ResultExecuted, "caught", 1)
	ch <- outcome.New(1, 2, 3, models.ActionBan, policy.PunishBan, outcome.ResultCleanupDone, "reversed", 1)
	close(ch)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	n.Run(ctx, ch)

	sender.mu.Lock()
	defer sender.mu.Unlock()
	require.Len(t, sender.sent, 2)
	assert.Equal(t, "555", sender.chans[0])
	assert.Equal(t, "Punishment executed", sender.sent[0].Title)
	assert.Equal(t, colorEnforced, sender.sent[0].Color)
	assert.Equal(t, "Damage reversed", sender.sent[1].Title)
}

func TestRunSurvivesSendFailure(t *testing.T) {
	sender := &fakeSender{err: errors.New("channel gone")}
	n := New(sender, 555, zap.NewNop())

	ch := make(chan outcome.Outcome, 2)
	ch <- outcome.New(1, 2, 0, models.ActionKick, policy.PunishKick, outcome.ResultFailed, "r", 5)
	ch <- outcome.New(1, 2, 0, models.ActionKick, policy.PunishKick, outcome.ResultExecuted, "r", 1)
	close(ch)

	n.Run(context.Background(), ch)

	sender.mu.Lock()
	defer sender.mu.Unlock()
	assert.Len(t, sender.sent, 2, "a failed post must not stop consumption")
}

func TestEmbedSkipTitles(t *testing.T) {
	n := New(&fakeSender{}, 1, zap.NewNop())

	e := n.embed(outcome.New(1, 2, 0, models.ActionBan, policy.PunishBan, outcome.ResultSuppressed, "r", 0))

	assert.Equal(t, "Enforcement skipped", e.Title)
	assert.Equal(t, colorFailed, e.Color)
}
