package chat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Parley/internal/app"
	"github.com/dkeye/Parley/internal/config"
	"github.com/dkeye/Parley/internal/domain"
)

const (
	msgInvalidUsername = "Invalid username! Use 3-36 letters, numbers, dots, dashes or underscores."
	msgUsernameTaken   = "Username already taken!"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ChatWSController routes inbound envelopes: join requests mint
// sessions, pings refresh them, authenticated content fans out to the
// room. Every other inbound frame is dropped.
type ChatWSController struct {
	Registry *app.Registry
	Hub      *Hub

	cfg     *config.Config
	limiter *MessageRateLimiter
}

func NewChatWSController(reg *app.Registry, hub *Hub, cfg *config.Config) *ChatWSController {
	ctl := &ChatWSController{
		Registry: reg,
		Hub:      hub,
		cfg:      cfg,
		limiter:  NewMessageRateLimiter(cfg.MsgBurst, cfg.MsgWindow),
	}
	reg.OnExpire(ctl.notifyLeave)
	return ctl
}

// HandleChat upgrades the request and starts the connection pumps.
func (ctl *ChatWSController) HandleChat(ctx context.Context, c *gin.Context) {
	id := c.GetString("client_token")
	log.Info().Str("module", "chat").Str("conn", id).Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "chat").Msg("ws upgrade")
		return
	}
	if ctl.cfg.ReadLimit > 0 {
		ws.SetReadLimit(ctl.cfg.ReadLimit)
	}

	conn := newChatConn(id, ws)
	ctl.Hub.Add(conn)

	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, conn)
}

// notifyLeave runs when the registry expires an idle session.
func (ctl *ChatWSController) notifyLeave(username string) {
	ctl.limiter.Forget(username)
	ctl.Hub.Broadcast(Envelope{Username: username, Leave: true})
}

func (ctl *ChatWSController) handleEnvelope(conn *ChatConn, data []byte) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "chat").Str("conn", conn.id).Msg("bad json")
		return
	}

	if env.Join {
		ctl.handleJoin(conn, env)
		return
	}

	if !ctl.Registry.Authenticate(env.Username, env.Token) {
		// Silent drop: an error reply would confirm to a probe
		// whether the session exists.
		log.Debug().Str("module", "chat").Str("conn", conn.id).Str("username", env.Username).Msg("unauthenticated message dropped")
		return
	}

	if env.Ping {
		ctl.Registry.Refresh(env.Username)
		return
	}

	if env.Content != "" {
		ctl.handleContent(conn, env)
		return
	}

	log.Warn().Str("module", "chat").Str("conn", conn.id).Msg("envelope without intent")
}

func (ctl *ChatWSController) handleJoin(conn *ChatConn, env Envelope) {
	if err := domain.CheckUsername(env.Username); err != nil {
		ctl.Hub.SendPrivate(conn, Envelope{Error: msgInvalidUsername})
		return
	}

	token, err := ctl.Registry.TryCreate(env.Username)
	if err != nil {
		if !errors.Is(err, domain.ErrIdentityTaken) {
			log.Error().Err(err).Str("module", "chat").Str("username", env.Username).Msg("join failed")
		}
		ctl.Hub.SendPrivate(conn, Envelope{Error: msgUsernameTaken})
		return
	}

	ctl.Hub.SendPrivate(conn, Envelope{Username: env.Username, Token: token})
	ctl.Hub.Broadcast(Envelope{Username: env.Username, Join: true})
}

func (ctl *ChatWSController) handleContent(conn *ChatConn, env Envelope) {
	if !ctl.limiter.Allow(env.Username) {
		log.Warn().Str("module", "chat").Str("username", env.Username).Msg("rate limited, message dropped")
		return
	}
	// Rebuilt from scratch so the bearer token can never leak into a
	// broadcast payload.
	ctl.Hub.Broadcast(Envelope{Username: env.Username, Content: env.Content})
}
