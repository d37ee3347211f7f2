package smtp

import (
	"errors"
	"net"
	"net/textproto"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func listen(t *testing.T) (net.Listener, string, int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	host, portStr, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return ln, host, port
}

// serveSMTP answers one session with a minimal relay that replies rcptReply to RCPT.
func serveSMTP(ln net.Listener, rcptReply string) {
	conn, err := ln.Accept()
	if err != nil {
		return
	}
	defer conn.Close()

	tp := textproto.NewConn(conn)
	tp.PrintfLine("220 localhost ESMTP")
	for {
		line, err := tp.ReadLine()
		if err != nil {
			return
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			tp.PrintfLine("500 empty command")
			continue
		}
		switch strings.ToUpper(fields[0]) {
		case "EHLO", "HELO":
			tp.PrintfLine("250 localhost")
		case "MAIL":
			tp.PrintfLine("250 ok")
		case "RCPT":
			tp.PrintfLine("%s", rcptReply)
		case "DATA":
			tp.PrintfLine("354 go ahead")
			if _, err := tp.ReadDotLines(); err != nil {
				return
			}
			tp.PrintfLine("250 queued")
		case "QUIT":
			tp.PrintfLine("221 bye")
			return
		default:
			tp.PrintfLine("502 not implemented")
		}
	}
}

func TestDeadlineDialer_DeliversToRelay(t *testing.T) {
	ln, host, port := listen(t)
	go serveSMTP(ln, "250 ok")

	m := &mailer{dialer: newDeadlineDialer(host, port, "", "", time.Second), from: "noreply@example.com"}
	err := m.Send(Message{To: "a@x.com", Subject: "Scheduled Reminder", BodyText: "hi"})
	assert.NoError(t, err)
}

func TestDeadlineDialer_KeepsMailboxRejection(t *testing.T) {
	ln, host, port := listen(t)
	go serveSMTP(ln, "550 no such user")

	m := &mailer{dialer: newDeadlineDialer(host, port, "", "", time.Second), from: "noreply@example.com"}
	err := m.Send(Message{To: "nobody@x.com", Subject: "s", BodyText: "b"})

	var tpe *textproto.Error
	require.True(t, errors.As(err, &tpe))
	assert.Equal(t, 550, tpe.Code)
}

func TestDeadlineDialer_SilentServerTimesOut(t *testing.T) {
	ln, host, port := listen(t)
	held := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		held <- conn
	}()
	t.Cleanup(func() {
		select {
		case conn := <-held:
			conn.Close()
		default:
		}
	})

	m := &mailer{dialer: newDeadlineDialer(host, port, "", "", 200*time.Millisecond), from: "noreply@example.com"}

	start := time.Now()
	err := m.Send(Message{To: "a@x.com", Subject: "s", BodyText: "b"})
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)

	var netErr net.Error
	require.True(t, errors.As(err, &netErr))
	assert.True(t, netErr.Timeout())
}
