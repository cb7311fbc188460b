package dashboard

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const logWriteTimeout = 10 * time.Second

// handleLogs streams log lines to a websocket observer. The first frame is
// the bot status, followed by the retained backlog and then live lines.
func (s *Server) handleLogs(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("logs_upgrade_failed", "error", err.Error())
		return
	}
	defer conn.Close()

	status := "Bot status: Not started"
	if s.bot != nil && s.bot.Running() {
		status = "Bot status: Started"
	}
	if err := writeLine(conn, status); err != nil {
		return
	}
	if s.hub == nil {
		return
	}

	id, backlog, lines, cancel := s.hub.SubscribeWithBacklog()
	defer cancel()
	s.logger.Info("dashboard_connected", "subscriber_id", id)

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	for _, line := range backlog {
		if err := writeLine(conn, line); err != nil {
			return
		}
	}
	for {
		select {
		case <-closed:
			s.logger.Debug("dashboard_disconnected", "subscriber_id", id)
			return
		case <-c.Request.Context().Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if err := writeLine(conn, line); err != nil {
				return
			}
		}
	}
}

func writeLine(conn *websocket.Conn, line string) error {
	_ = conn.SetWriteDeadline(time.Now().Add(logWriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, []byte(line))
}
