package email

import (
	"net/smtp"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nikhil/taskhub/internal/config"
)

func TestSendEmailRequiresConfiguration(t *testing.T) {
	s := NewService(config.SMTPConfig{})
	require.False(t, s.IsConfigured())
	require.Error(t, s.SendEmail([]string{"a@example.com"}, "s", "b"))
}

func TestSendEmailFormatsMessage(t *testing.T) {
	s := NewService(config.SMTPConfig{Host: "mail.local", Port: "2525", From: "bot@example.com", FromName: "Taskhub"})

	var (
		gotAddr string
		gotTo   []string
		gotMsg  string
	)
	s.send = func(addr string, _ smtp.Auth, _ string, to []string, msg []byte) error {
		gotAddr, gotTo, gotMsg = addr, to, string(msg)
		return nil
	}

	require.NoError(t, s.SendEmail([]string{"u@example.com"}, "New Notification: team joined", "You joined the team: 4"))
	require.Equal(t, "mail.local:2525", gotAddr)
	require.Equal(t, []string{"u@example.com"}, gotTo)
	require.Contains(t, gotMsg, "From: Taskhub <bot@example.com>\r\n")
	require.Contains(t, gotMsg, "Subject: New Notification: team joined\r\n")
	require.Contains(t, gotMsg, "\r\n\r\nYou joined the team: 4")
}
