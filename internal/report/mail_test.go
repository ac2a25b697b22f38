package report

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stay-lock-sync/backend/internal/config"
)

func TestEnabled(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.MailConfig
		want bool
	}{
		{"host and recipient", config.MailConfig{Host: "smtp.example.com", To: "owner@example.com"}, true},
		{"missing host", config.MailConfig{To: "owner@example.com"}, false},
		{"missing recipient", config.MailConfig{Host: "smtp.example.com"}, false},
		{"empty", config.MailConfig{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NewMailer(tt.cfg).Enabled())
		})
	}
}

func TestSendDisabledIsNoop(t *testing.T) {
	m := NewMailer(config.MailConfig{})
	assert.NoError(t, m.Send("subject", "body"))
}

func TestMessageFormat(t *testing.T) {
	m := NewMailer(config.MailConfig{
		Host: "smtp.example.com",
		From: "sync@example.com",
		To:   "a@example.com, b@example.com",
	})

	msg := string(m.message("OK - Report - 10.06.2025", "line one\n\nline two", []string{"a@example.com", "b@example.com"}))

	assert.Contains(t, msg, "From: sync@example.com\r\n")
	assert.Contains(t, msg, "To: a@example.com, b@example.com\r\n")
	assert.Contains(t, msg, "Subject: OK - Report - 10.06.2025\r\n")
	assert.Contains(t, msg, "Content-Type: text/plain; charset=utf-8\r\n")

	// Body follows the blank line, with CRLF line endings throughout.
	parts := strings.SplitN(msg, "\r\n\r\n", 2)
	require.Len(t, parts, 2)
	assert.Equal(t, "line one\r\n\r\nline two", parts[1])
	assert.NotContains(t, msg, "\n\n")
}

// plainSMTPServer is a bare relay advertising neither STARTTLS nor AUTH.
// It delivers received DATA payloads on the returned channel.
func plainSMTPServer(t *testing.T) (port int, received chan string) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	received = make(chan string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		br := bufio.NewReader(conn)
		fmt.Fprintf(conn, "220 test ready\r\n")

		var data strings.Builder
		inData := false
		for {
			line, err := br.ReadString('\n')
			if err != nil {
				return
			}
			if inData {
				if strings.TrimRight(line, "\r\n") == "." {
					inData = false
					received <- data.String()
					fmt.Fprintf(conn, "250 OK\r\n")
					continue
				}
				data.WriteString(line)
				continue
			}

			switch cmd := strings.ToUpper(strings.TrimSpace(line)); {
			case strings.HasPrefix(cmd, "EHLO"), strings.HasPrefix(cmd, "HELO"):
				fmt.Fprintf(conn, "250-test\r\n250 SIZE 10485760\r\n")
			case strings.HasPrefix(cmd, "DATA"):
				inData = true
				fmt.Fprintf(conn, "354 send it\r\n")
			case strings.HasPrefix(cmd, "QUIT"):
				fmt.Fprintf(conn, "221 bye\r\n")
				return
			default:
				fmt.Fprintf(conn, "250 OK\r\n")
			}
		}
	}()

	return ln.Addr().(*net.TCPAddr).Port, received
}

func TestSendSkipsAuthWhenNotOffered(t *testing.T) {
	port, received := plainSMTPServer(t)

	// Credentials are configured, but the relay offers no AUTH; delivery
	// must go through without attempting authentication.
	m := NewMailer(config.MailConfig{
		Host:     "127.0.0.1",
		Port:     port,
		User:     "sync@example.com",
		Password: "secret",
		From:     "sync@example.com",
		To:       "owner@example.com",
	})

	require.NoError(t, m.Send("OK - Report - 10.06.2025", "line one"))

	select {
	case msg := <-received:
		assert.Contains(t, msg, "Subject: OK - Report - 10.06.2025")
		assert.Contains(t, msg, "line one")
	case <-time.After(time.Second):
		t.Fatal("message was not delivered")
	}
}

func TestSplitAddresses(t *testing.T) {
	assert.Equal(t, []string{"a@example.com", "b@example.com"},
		splitAddresses("a@example.com, b@example.com"))
	assert.Equal(t, []string{"a@example.com"}, splitAddresses("a@example.com,"))
	assert.Empty(t, splitAddresses(""))
}
