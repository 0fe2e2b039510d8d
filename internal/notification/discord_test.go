package notification

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcpsentry/internal/config"
	"mcpsentry/internal/models"
	sentryerrors "mcpsentry/pkg/errors"
)

func TestNewNotificationClientRequiresCredentials(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.DiscordConfig
	}{
		{"no credentials", config.DiscordConfig{}},
		{"token only", config.DiscordConfig{Token: "tok"}},
		{"channel only", config.DiscordConfig{ChannelID: "123"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewNotificationClient(tt.cfg)
			require.ErrorIs(t, err, sentryerrors.ErrNotifierDisabled)
			assert.Nil(t, client)
		})
	}
}

func TestSendOnNilClientReportsDisabled(t *testing.T) {
	var client *NotificationClient
	assert.ErrorIs(t, client.Send(Message{Title: "x"}), sentryerrors.ErrNotifierDisabled)
	assert.NoError(t, client.Close())
}

func TestSeverityColorScale(t *testing.T) {
	assert.Equal(t, 0x8B0000, severityColor("critical"))
	assert.Equal(t, 0xFF0000, severityColor("high"))
	assert.Equal(t, 0x808080, severityColor("unknown"))
}

func TestRunFinishedMessageSeverity(t *testing.T) {
	tests := []struct {
		name     string
		run      models.Run
		expected string
	}{
		{"clean run", models.Run{Status: models.StatusCompleted}, "info"},
		{"failed run", models.Run{Status: models.StatusFailed, Critical: 2}, "high"},
		{"critical finding", models.Run{Status: models.StatusCompleted, Critical: 1, Low: 3}, "critical"},
		{"low only", models.Run{Status: models.StatusCompleted, Low: 3}, "low"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := RunFinishedMessage(&tt.run)
			assert.Equal(t, tt.expected, msg.Severity)
		})
	}
}

func TestStoryVerdictMessageCarriesFinding(t *testing.T) {
	run := &models.Run{UUID: "run-1", Target: "stub://target"}
	story := &models.AgentStory{
		StoryIndex: 2,
		Title:      "Canary exfiltrated",
		Finding:    "tool echoed the canary back",
		Severity:   "high",
		ToolCalls:  3,
		WasPlanned: true,
	}

	msg := StoryVerdictMessage(run, story)
	assert.Contains(t, msg.Title, "Canary exfiltrated")
	assert.Equal(t, "tool echoed the canary back", msg.Description)
	assert.Equal(t, "high", msg.Severity)
	assert.Equal(t, "run-1", msg.Fields["Run"])
}
