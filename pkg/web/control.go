package web

import (
	"context"
	"time"

	contribws "github.com/gofiber/contrib/websocket"

	"github.com/teslashibe/animal-detect/pkg/protocol"
)

const controlReadLimit = 64 * 1024

// handleControl serves the command websocket. Each command message gets a
// result message carrying the same id. The current state is sent on connect.
func (s *Server) handleControl(c *contribws.Conn) {
	logger := s.logger.With("remote", c.RemoteAddr().String())
	logger.Info("control client connected")
	defer logger.Info("control client disconnected")

	c.SetReadLimit(controlReadLimit)

	if msg, err := protocol.NewStateMessage(StateFrom(s.ctrl.Status())); err == nil {
		if err := s.send(c, msg); err != nil {
			return
		}
	}

	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			return
		}

		reply := s.handleControlMessage(data)
		if reply == nil {
			continue
		}
		if err := s.send(c, reply); err != nil {
			logger.Warn("control write failed", "error", err)
			return
		}
	}
}

// handleControlMessage turns one inbound envelope into its reply.
func (s *Server) handleControlMessage(data []byte) *protocol.Message {
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		reply, _ := protocol.NewErrorMessage(protocol.CodeBadRequest, err.Error(), -1)
		return reply
	}

	if msg.Type == protocol.TypePing {
		id, ts := msg.ID, msg.Timestamp
		if ping, err := msg.GetPingData(); err == nil {
			if ping.ID != "" {
				id = ping.ID
			}
			if ping.Timestamp != 0 {
				ts = ping.Timestamp
			}
		}
		reply, _ := protocol.NewPongMessage(id, ts, time.Now().UnixMilli())
		return reply
	}

	cmd, ok := commandsByType[msg.Type]
	if !ok {
		reply, _ := protocol.NewResultMessage(msg.ID, protocol.ResultData{
			Code:  protocol.CodeBadRequest,
			Error: "unknown command " + string(msg.Type),
		})
		return reply
	}

	var path string
	if cmd == commandLoadModel || cmd == commandLoadImage || cmd == commandLoadVideo {
		p, err := msg.GetPathData()
		if err != nil {
			reply, _ := protocol.NewResultMessage(msg.ID, protocol.ResultData{
				Code:  protocol.CodeBadRequest,
				Error: err.Error(),
			})
			return reply
		}
		path = p.Path
	}

	res, _ := s.execute(context.Background(), cmd, path)
	reply, _ := protocol.NewResultMessage(msg.ID, res)
	return reply
}

func (s *Server) send(c *contribws.Conn, msg *protocol.Message) error {
	data, err := msg.Bytes()
	if err != nil {
		return err
	}
	return c.WriteMessage(contribws.TextMessage, data)
}
