// Package notification delivers run and finding embeds to a Discord channel.
// The notifier is optional: a nil *NotificationClient is safe to call and
// reports ErrNotifierDisabled instead of sending.
package notification

import (
	"time"

	"github.com/bwmarrin/discordgo"

	"mcpsentry/internal/config"
	sentryerrors "mcpsentry/pkg/errors"
)

// Message is one embed-shaped notification. Severity selects the accent
// color using the same scale as check results and red-team verdicts.
type Message struct {
	Title       string
	Description string
	Severity    string
	Fields      map[string]string
	Timestamp   time.Time
}

type NotificationClient struct {
	sg        *discordgo.Session
	channelID string
}

func NewNotificationClient(cfg config.DiscordConfig) (*NotificationClient, error) {
	if !cfg.Enabled() {
		return nil, sentryerrors.ErrNotifierDisabled
	}

	sg, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, err
	}

	if err := sg.Open(); err != nil {
		return nil, err
	}

	return &NotificationClient{sg: sg, channelID: cfg.ChannelID}, nil
}

func severityColor(severity string) int {
	switch severity {
	case "critical":
		return 0x8B0000
	case "high":
		return 0xFF0000
	case "medium":
		return 0xFF8C00
	case "low":
		return 0xFFD700
	case "info":
		return 0x00BFFF
	default:
		return 0x808080
	}
}

func (c *NotificationClient) Send(msg Message) error {
	if c == nil || c.sg == nil {
		return sentryerrors.ErrNotifierDisabled
	}

	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	embed := &discordgo.MessageEmbed{
		Title:       msg.Title,
		Description: msg.Description,
		Color:       severityColor(msg.Severity),
		Timestamp:   msg.Timestamp.Format(time.RFC3339),
	}

	if len(msg.Fields) > 0 {
		fields := make([]*discordgo.MessageEmbedField, 0, len(msg.Fields))
		for key, value := range msg.Fields {
			fields = append(fields, &discordgo.MessageEmbedField{
				Name:   key,
				Value:  value,
				Inline: true,
			})
		}
		embed.Fields = fields
	}

	_, err := c.sg.ChannelMessageSendEmbed(c.channelID, embed)
	return err
}

func (c *NotificationClient) Close() error {
	if c == nil || c.sg == nil {
		return nil
	}
	return c.sg.Close()
}
