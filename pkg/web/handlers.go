package web

import (
	"context"
	"errors"
	"io/fs"

	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/animal-detect/pkg/app"
	"github.com/teslashibe/animal-detect/pkg/playback"
	"github.com/teslashibe/animal-detect/pkg/protocol"
	"github.com/teslashibe/animal-detect/pkg/source"
)

type command int

const (
	commandLoadModel command = iota
	commandLoadImage
	commandLoadVideo
	commandDetect
	commandPlay
	commandPause
	commandStop
	commandStatus
)

var commandsByType = map[protocol.MessageType]command{
	protocol.TypeLoadModel: commandLoadModel,
	protocol.TypeLoadImage: commandLoadImage,
	protocol.TypeLoadVideo: commandLoadVideo,
	protocol.TypeDetect:    commandDetect,
	protocol.TypePlay:      commandPlay,
	protocol.TypePause:     commandPause,
	protocol.TypeStop:      commandStop,
	protocol.TypeStatus:    commandStatus,
}

// execute runs one command against the controller. REST and the control
// websocket share it so both report identical results.
func (s *Server) execute(ctx context.Context, cmd command, path string) (protocol.ResultData, int) {
	var (
		err     error
		changed *bool
		notice  *protocol.NoticeData
	)

	switch cmd {
	case commandLoadModel:
		err = s.ctrl.LoadModel(path)
	case commandLoadImage:
		err = s.ctrl.LoadImage(path)
	case commandLoadVideo:
		err = s.ctrl.LoadVideo(path)
	case commandDetect:
		var res *app.Result
		res, err = s.ctrl.DetectOnce(ctx)
		if err == nil {
			n := NoticeFrom(*res)
			notice = &n
		}
	case commandPlay:
		err = s.ctrl.Play()
	case commandPause:
		c := s.ctrl.Pause()
		changed = &c
	case commandStop:
		c := s.ctrl.Stop()
		changed = &c
	case commandStatus:
	}

	state := StateFrom(s.ctrl.Status())
	if err != nil {
		status, code := classify(err, cmd)
		s.logger.Warn("command failed", "command", cmd, "error", err)
		return protocol.ResultData{Code: code, Error: err.Error(), State: &state}, status
	}
	return protocol.ResultData{OK: true, Changed: changed, Notice: notice, State: &state}, fiber.StatusOK
}

// classify maps a command failure to an HTTP status and a protocol code.
func classify(err error, cmd command) (int, string) {
	switch {
	case errors.Is(err, playback.ErrNoModel):
		return fiber.StatusConflict, protocol.CodeNoModel
	case errors.Is(err, playback.ErrNoSource):
		return fiber.StatusConflict, protocol.CodeNoSource
	case errors.Is(err, app.ErrNoImage):
		return fiber.StatusConflict, protocol.CodeNoImage
	case errors.Is(err, playback.ErrAlreadyPlaying):
		return fiber.StatusConflict, protocol.CodeAlreadyPlaying
	case errors.Is(err, playback.ErrPlaying):
		return fiber.StatusConflict, protocol.CodeBusy
	case errors.Is(err, fs.ErrNotExist):
		return fiber.StatusNotFound, protocol.CodeNotFound
	case errors.Is(err, source.ErrUnsupported):
		return fiber.StatusUnsupportedMediaType, protocol.CodeUnsupported
	case errors.Is(err, app.ErrNoModelPath):
		return fiber.StatusBadRequest, protocol.CodeBadRequest
	case cmd == commandDetect:
		return fiber.StatusInternalServerError, protocol.CodeDetection
	}
	return fiber.StatusInternalServerError, protocol.CodeInternal
}

func (c command) String() string {
	for t, cmd := range commandsByType {
		if cmd == c {
			return string(t)
		}
	}
	return "unknown"
}

// handleStatus returns the application state
func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(StateFrom(s.ctrl.Status()))
}

func (s *Server) handleCatalog(c *fiber.Ctx) error {
	return c.JSON(CatalogFrom(s.ctrl.Catalog()))
}

// handlePath runs a command that takes a {"path": ...} body.
func (s *Server) handlePath(cmd command) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req protocol.PathData
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(protocol.ResultData{
				Code:  protocol.CodeBadRequest,
				Error: err.Error(),
			})
		}
		if req.Path == "" && cmd != commandLoadModel {
			return c.Status(fiber.StatusBadRequest).JSON(protocol.ResultData{
				Code:  protocol.CodeBadRequest,
				Error: "path required",
			})
		}
		res, status := s.execute(c.UserContext(), cmd, req.Path)
		return c.Status(status).JSON(res)
	}
}

// handleCommand runs a command without arguments.
func (s *Server) handleCommand(cmd command) fiber.Handler {
	return func(c *fiber.Ctx) error {
		res, status := s.execute(c.UserContext(), cmd, "")
		return c.Status(status).JSON(res)
	}
}
