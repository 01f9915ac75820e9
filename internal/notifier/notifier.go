package notifier

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"go-nukeguard/internal/outcome"
)

// Sender posts an embed to a channel. The gateway session implements
// it.
type Sender interface {
	SendEmbed(channelID string, embed *discordgo.MessageEmbed) error
}

const (
	colorEnforced = 0xE74C3C
	colorReversed = 0x2ECC71
	colorFailed   = 0x95A5A6
)

// Notifier mirrors the outcome stream into a single operations
// channel. Best effort: a failed post is logged and dropped, never
// retried, so notification can never back-pressure enforcement.
type Notifier struct {
	sender    Sender
	channelID string
	logger    *zap.Logger
}

func New(sender Sender, channelID uint64, logger *zap.Logger) *Notifier {
	return &Notifier{
		sender:    sender,
		channelID: strconv.FormatUint(channelID, 10),
		logger:    logger,
	}
}

// Run consumes outcomes until ctx ends or the channel closes.
func (n *Notifier) Run(ctx context.Context, outcomes <-chan outcome.Outcome) {
	for {
		select {
		case <-ctx.Done():
			return
		case o, ok := <-outcomes:
			if !ok {
				return
			}
			if err := n.sender.SendEmbed(n.channelID, n.embed(o)); err != nil {
				n.logger.Warn("outcome notification dropped",
					zap.Error(err), zap.String("id", o.ID))
			}
		}
	}
}

func (n *Notifier) embed(o outcome.Outcome) *discordgo.MessageEmbed {
	color := colorFailed
	title := "Enforcement failed"
	switch o.Result {
	case outcome.ResultExecuted:
		color = colorEnforced
		title = "Punishment executed"
	case outcome.ResultCleanupDone:
		color = colorReversed
		title = "Damage reversed"
	case outcome.ResultCannotAct, outcome.ResultDenied, outcome.ResultSuppressed:
		title = "Enforcement skipped"
	}

	fields := []*discordgo.MessageEmbedField{
		{Name: "Server", Value: strconv.FormatUint(o.TenantID, 10), Inline: true},
		{Name: "Actor", Value: fmt.Sprintf("<@%d>", o.ActorID), Inline: true},
		{Name: "Action", Value: o.ActionName, Inline: true},
		{Name: "Punishment", Value: o.Kind, Inline: true},
		{Name: "Result", Value: string(o.Result), Inline: true},
	}
	if o.Attempts > 1 {
		fields = append(fields, &discordgo.MessageEmbedField{
			Name: "Attempts", Value: strconv.Itoa(o.Attempts), Inline: true,
		})
	}

	return &discordgo.MessageEmbed{
		Title:       title,
		Description: o.Reason,
		Color:       color,
		Fields:      fields,
		Footer:      &discordgo.MessageEmbedFooter{Text: o.ID},
		Timestamp:   o.At.Format(time.RFC3339),
	}
}
