// Package web is the browser shell for animal-detect: a REST API for the
// commands, websocket streams for both panes and the event feed, and a
// control websocket speaking the protocol envelope.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	contribws "github.com/gofiber/contrib/websocket"

	"github.com/teslashibe/animal-detect/internal/log"
	"github.com/teslashibe/animal-detect/pkg/app"
	"github.com/teslashibe/animal-detect/pkg/catalog"
	"github.com/teslashibe/animal-detect/pkg/display"
	"github.com/teslashibe/animal-detect/pkg/hub"
)

// Controller is the command surface the shell drives. *app.App implements it.
type Controller interface {
	LoadModel(path string) error
	LoadImage(path string) error
	LoadVideo(path string) error
	DetectOnce(ctx context.Context) (*app.Result, error)
	Play() error
	Pause() bool
	Stop() bool
	Status() app.Status
	Catalog() *catalog.Catalog
}

// Hubs are the broadcast channels behind the streaming endpoints.
type Hubs struct {
	Original  *hub.Hub // binary JPEG frames
	Annotated *hub.Hub // binary JPEG frames
	Events    *hub.Hub // JSON protocol messages
}

// NewHubs creates the three hubs. The frame hubs retain their last frame so
// a new viewer sees the current picture immediately.
func NewHubs() Hubs {
	return Hubs{
		Original:  hub.New(string(display.Original), hub.WithRetain()),
		Annotated: hub.New(string(display.Annotated), hub.WithRetain()),
		Events:    hub.New("events"),
	}
}

// Panes maps display panes to their hubs, for display.NewHubSink.
func (h Hubs) Panes() map[display.Pane]*hub.Hub {
	return map[display.Pane]*hub.Hub{
		display.Original:  h.Original,
		display.Annotated: h.Annotated,
	}
}

// Run runs all hubs until ctx is done.
func (h Hubs) Run(ctx context.Context) {
	go h.Original.Run(ctx)
	go h.Annotated.Run(ctx)
	h.Events.Run(ctx)
}

// Config configures the web server.
type Config struct {
	// StaticDir is served at / when set.
	StaticDir string

	// AllowOrigins is passed to the CORS middleware. Empty allows all.
	AllowOrigins string

	Logger *slog.Logger
}

// Server is the web shell.
type Server struct {
	app    *fiber.App
	ctrl   Controller
	hubs   Hubs
	logger *slog.Logger
}

// New creates the server and registers its routes. The hubs must be run by
// the caller.
func New(cfg Config, ctrl Controller, hubs Hubs) *Server {
	if cfg.Logger == nil {
		cfg.Logger = log.Component("web")
	}
	s := &Server{
		ctrl:   ctrl,
		hubs:   hubs,
		logger: cfg.Logger,
	}

	fapp := fiber.New(fiber.Config{
		AppName:               "Animal Detect",
		DisableStartupMessage: true,
	})

	fapp.Use(cors.New(cors.Config{AllowOrigins: allowOrigins(cfg.AllowOrigins)}))

	if cfg.StaticDir != "" {
		fapp.Static("/", cfg.StaticDir)
	}

	api := fapp.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/catalog", s.handleCatalog)
	api.Post("/model", s.handlePath(commandLoadModel))
	api.Post("/image", s.handlePath(commandLoadImage))
	api.Post("/video", s.handlePath(commandLoadVideo))
	api.Post("/detect", s.handleCommand(commandDetect))
	api.Post("/play", s.handleCommand(commandPlay))
	api.Post("/pause", s.handleCommand(commandPause))
	api.Post("/stop", s.handleCommand(commandStop))

	// WebSocket upgrade middleware
	fapp.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	fapp.Get("/ws/original", websocket.New(s.stream(hubs.Original)))
	fapp.Get("/ws/annotated", websocket.New(s.stream(hubs.Annotated)))
	fapp.Get("/ws/events", websocket.New(s.stream(hubs.Events)))
	fapp.Get("/ws/control", contribws.New(s.handleControl))

	s.app = fapp
	return s
}

func allowOrigins(v string) string {
	if v == "" {
		return "*"
	}
	return v
}

// App exposes the fiber app, mainly for app.Test in tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen serves on addr until Shutdown.
func (s *Server) Listen(addr string) error {
	s.logger.Info("web shell listening", "addr", addr)
	return s.app.Listen(addr)
}

// Serve serves on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("web shell listening", "addr", ln.Addr().String())
	return s.app.Listener(ln)
}

// Run serves on addr until ctx is done, then shuts down.
func (s *Server) Run(ctx context.Context, addr string) error {
	errc := make(chan error, 1)
	go func() { errc <- s.Listen(addr) }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	if err := s.Shutdown(); err != nil {
		return err
	}
	if err := <-errc; err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the web server
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// stream attaches a websocket to h until it disconnects.
func (s *Server) stream(h *hub.Hub) func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		if err := hub.Serve(h, c); err != nil {
			s.logger.Debug("viewer rejected", "hub", h.Name(), "error", err)
		}
	}
}
