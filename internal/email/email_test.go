package email

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gomail "github.com/wneessen/go-mail"

	"processhub_backend/platform/config"
	"processhub_backend/platform/logger"
)

func TestMagicLinkContentEscapesURL(t *testing.T) {
	content, err := magicLinkContent(`https://app.example.com/auth/verify?token=abc"><script>`, 15)
	require.NoError(t, err)

	assert.Contains(t, content, "expires in 15 minutes")
	assert.NotContains(t, content, "<script>")
}

func TestBuildMessage(t *testing.T) {
	s := NewSMTPSender("smtp.example.com", 587, "", "", "noreply@example.com", "ProcessHub")

	msg, err := s.buildMessage("user@example.com", subjectMagicLink, "<p>hi</p>")
	require.NoError(t, err)
	assert.Equal(t, []string{subjectMagicLink}, msg.GetGenHeader(gomail.HeaderSubject))

	_, err = s.buildMessage("not an address", subjectMagicLink, "<p>hi</p>")
	assert.Error(t, err)
}

func TestNewSenderDisabled(t *testing.T) {
	sender := NewSender(&config.Config{EmailEnabled: false}, logger.Nop())
	_, ok := sender.(NoopSender)
	require.True(t, ok)
	assert.NoError(t, sender.SendMagicLinkEmail(context.Background(), "a@x.com", "https://x", 15))
}

func TestNewSenderEnabled(t *testing.T) {
	sender := NewSender(&config.Config{EmailEnabled: true, SMTPHost: "smtp.example.com", SMTPPort: 25}, logger.Nop())
	smtp, ok := sender.(*SMTPSender)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(smtp.host, "smtp."))
}
