package dashboard

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/CelesteBean/treehacks-anchor/internal/bus"
)

// Server exposes pipeline health, Prometheus metrics, and a live websocket
// feed of transcripts, stress, and risk assessments.
type Server struct {
	echo *echo.Echo
	bus  *bus.Bus

	upgrader websocket.Upgrader
}

func New(b *bus.Bus) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	s := &Server{
		echo: e,
		bus:  b,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}

	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.GET("/live", s.handleLive)
	return s
}

// feedItem is one event pushed to dashboard clients.
type feedItem struct {
	Topic     string `json:"topic"`
	Timestamp string `json:"timestamp"`
	Data      any    `json:"data"`
}

// handleLive streams transcript, stress, and tactics traffic to the client.
// A slow client loses events rather than stalling the feed.
func (s *Server) handleLive(c echo.Context) error {
	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	connID := uuid.NewString()[:8]
	log.Printf("dashboard: client %s connected", connID)

	sub, err := s.bus.CreateSubscriber(
		[]int{bus.TranscriptPort, bus.StressPort, bus.TacticPort},
		[]string{bus.TopicTranscript, bus.TopicStress, bus.TopicTactics},
	)
	if err != nil {
		log.Printf("dashboard: client %s subscribe failed: %v", connID, err)
		return err
	}
	defer sub.Close()

	// Drain client control frames so pings and close frames are handled.
	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-clientGone:
			log.Printf("dashboard: client %s disconnected", connID)
			return nil
		default:
		}
		topic, env, ok := sub.Receive(200 * time.Millisecond)
		if !ok {
			continue
		}
		item := feedItem{Topic: topic, Timestamp: env.Timestamp, Data: env.Data}
		conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
		if err := conn.WriteJSON(item); err != nil {
			log.Printf("dashboard: client %s write failed: %v", connID, err)
			return nil
		}
	}
}

// Start serves until the context is cancelled.
func (s *Server) Start(ctx context.Context, address string) error {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := s.echo.Shutdown(shutdownCtx); err != nil {
			log.Printf("dashboard: shutdown: %v", err)
		}
	}()
	err := s.echo.Start(address)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}
