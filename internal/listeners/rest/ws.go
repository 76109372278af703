package rest

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/carles-abarca/NEO6/internal/logger"
)

// pollInterval is how often the WS push loop re-checks the async
// store for completion.
const pollInterval = 250 * time.Millisecond

// handleWS answers the additive GET /ws/status/:id: upgrades to a
// WebSocket and pushes a single JSON message once the async
// invocation named by :id reaches done/failed, then closes. It
// supplements the polling /status/{id} the spec itself leaves
// ambiguous (§9 Open Questions) rather than replacing it.
func (l *Listener) handleWS(c *gin.Context) {
	id := c.Param("id")
	log := logger.Listener("rest")

	conn, err := l.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn().Err(err).Str("id", id).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Minute)
	defer cancel()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			result, ok, err := l.store.Get(ctx, id)
			if err != nil {
				log.Warn().Err(err).Str("id", id).Msg("ws status poll failed")
				return
			}
			if !ok {
				continue
			}
			if result.Status == "pending" {
				continue
			}
			if err := conn.WriteJSON(result); err != nil {
				log.Debug().Err(err).Str("id", id).Msg("ws write failed, client likely gone")
			}
			return
		}
	}
}
