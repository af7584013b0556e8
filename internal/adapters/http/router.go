package http

import (
	"context"
	"net/http"
	"path/filepath"

	"github.com/dkeye/Conclave/internal/adapters/signal"
	"github.com/dkeye/Conclave/internal/app/orch"
	"github.com/dkeye/Conclave/internal/config"
	"github.com/dkeye/Conclave/internal/domain"
	handlers "github.com/dkeye/Conclave/internal/transport/http"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const clientTokenKey = "client_token"

// ClientTokenMiddleware keeps a stable client token in the cookie session.
// It only labels logs; every websocket is still its own peer.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		s := sessions.Default(c)
		token, _ := s.Get(clientTokenKey).(string)
		if token == "" {
			token = uuid.NewString()
			s.Set(clientTokenKey, token)
			if err := s.Save(); err != nil {
				log.Warn().Err(err).Str("module", "adapters.http").Msg("session save")
			}
		}
		c.Set(clientTokenKey, token)
		c.Next()
	}
}

type memberView struct {
	ID          domain.PeerID `json:"id"`
	DisplayName string        `json:"displayName"`
}

type roomView struct {
	Name      domain.RoomName `json:"name"`
	Members   int             `json:"members"`
	Producers int             `json:"producers"`
}

type roomDetail struct {
	Name      domain.RoomName `json:"name"`
	Members   []memberView    `json:"members"`
	Producers int             `json:"producers"`
}

func SetupRouter(ctx context.Context, cfg *config.Config, o *orch.Orchestrator, ctrl *signal.SignalWSController) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	store.Options(sessions.Options{Path: "/", MaxAge: 3600 * 24 * 7, HttpOnly: true})
	r.Use(sessions.Sessions("ConclaveSessions", store))
	r.Use(ClientTokenMiddleware())

	r.Static("/static", cfg.StaticPath)
	r.GET("/", func(c *gin.Context) {
		c.File(filepath.Join(cfg.StaticPath, "index.html"))
	})
	r.GET("/healthz", handlers.Health)

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	api := r.Group("/api")

	api.GET("/ws/signal", func(c *gin.Context) {
		log.Info().Str("module", "adapters.http").Str("client", c.GetString(clientTokenKey)).Msg("ws signal endpoint hit")
		ctrl.HandleSignal(ctx, c)
	})

	api.GET("/rooms", func(c *gin.Context) {
		rooms := o.Rooms.List()
		out := make([]roomView, 0, len(rooms))
		for _, rm := range rooms {
			out = append(out, roomView{Name: rm.Name, Members: len(rm.Members), Producers: rm.Producers})
		}
		c.JSON(http.StatusOK, out)
	})

	api.GET("/rooms/:name", func(c *gin.Context) {
		name, err := domain.ParseRoomName(c.Param("name"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		rm, ok := o.Registry.Room(name)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
			return
		}
		members := make([]memberView, 0, len(rm.Members))
		for _, id := range rm.Members {
			p, err := o.Registry.Peer(id)
			if err != nil {
				continue
			}
			members = append(members, memberView{ID: p.ID, DisplayName: p.DisplayName})
		}
		c.JSON(http.StatusOK, roomDetail{Name: rm.Name, Members: members, Producers: rm.Producers})
	})

	api.GET("/chats", func(c *gin.Context) {
		c.JSON(http.StatusOK, o.Chats.List())
	})

	api.POST("/upload", handlers.Upload(cfg.UploadDir, cfg.MaxUploadBytes))

	return r
}
