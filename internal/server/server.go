// Package server exposes conversations, turns and side tools over HTTP.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/raphaelgruber/convo-go/internal/chat"
	"github.com/raphaelgruber/convo-go/internal/events"
	"github.com/raphaelgruber/convo-go/internal/metrics"
	"github.com/raphaelgruber/convo-go/internal/search"
	"github.com/raphaelgruber/convo-go/internal/speech"
	"github.com/raphaelgruber/convo-go/internal/upload"
)

// HTTP server timeouts.
const (
	ReadHeaderTimeout = 10 * time.Second
	ReadTimeout       = 60 * time.Second
	IdleTimeout       = 120 * time.Second

	writeMargin = 10 * time.Second
)

// WriteTimeout returns the http.Server write timeout for a turn deadline.
// The write clock starts once headers are read, so it also covers reading
// and storing an upload. A turn timeout of zero disables the write timeout.
func WriteTimeout(turnTimeout time.Duration) time.Duration {
	if turnTimeout <= 0 {
		return 0
	}
	return turnTimeout + ReadTimeout + writeMargin
}

// TurnProcessor runs one conversation turn.
type TurnProcessor interface {
	ProcessTurn(ctx context.Context, conversationID string, in chat.TurnInput) (*chat.TurnResult, error)
}

// Searcher answers web search queries.
type Searcher interface {
	Search(ctx context.Context, query string) ([]search.Result, error)
}

// Synthesizer turns text into audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, r speech.Request) ([]byte, error)
}

// Deps are the collaborators the HTTP layer calls into. Search, Speech
// and Events may be nil; their endpoints then report they are unavailable.
type Deps struct {
	Store     chat.Store
	Turns     TurnProcessor
	Processor *upload.Processor
	Uploads   *upload.Storage
	Search    Searcher
	Speech    Synthesizer
	Events    *events.Hub
	Metrics   *metrics.Collector
}

// Options tunes the HTTP layer.
type Options struct {
	CORSOrigins  []string
	DefaultTitle string
}

// Server holds the gin engine and its handlers.
type Server struct {
	deps   Deps
	opts   Options
	logger *slog.Logger
	engine *gin.Engine
}

// New wires routes and middleware.
func New(deps Deps, opts Options, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Processor == nil {
		deps.Processor = upload.NewProcessor()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewCollector()
	}

	engine := gin.New()
	engine.Use(Recovery(logger))
	engine.Use(RequestID())
	engine.Use(Logger(logger))
	engine.Use(CORS(opts.CORSOrigins))

	s := &Server{deps: deps, opts: opts, logger: logger, engine: engine}
	s.routes()
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) routes() {
	r := s.engine

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "convo API is running"})
	})
	r.GET("/health", s.health)

	if s.deps.Uploads != nil {
		r.Static(upload.URLPrefix, s.deps.Uploads.Dir)
	}

	api := r.Group("/api")
	{
		chats := api.Group("/chat")
		chats.POST("/new", s.createChat)
		chats.GET("", s.listChats)
		chats.GET("/:id", s.getChat)
		chats.PUT("/:id/rename", s.renameChat)
		chats.DELETE("/:id", s.deleteChat)
		chats.POST("/:id/message", s.sendMessage)
		chats.POST("/:id/upload", s.uploadFile)

		api.POST("/web-search", s.webSearch)
		api.POST("/tts", s.tts)
		api.GET("/stats", s.stats)
		if s.deps.Events != nil {
			api.GET("/events", gin.WrapH(s.deps.Events))
		}
	}
}

// pinger is implemented by stores that can check their connection.
type pinger interface {
	Ping(ctx context.Context) error
}

func (s *Server) health(c *gin.Context) {
	if p, ok := s.deps.Store.(pinger); ok {
		if err := p.Ping(c.Request.Context()); err != nil {
			s.logger.WarnContext(c.Request.Context(), "health check failed", "error", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) publish(ev events.Event) {
	if s.deps.Events != nil {
		s.deps.Events.Publish(ev)
	}
}
