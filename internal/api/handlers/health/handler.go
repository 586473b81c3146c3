package health

import (
	"context"
	"fmt"
	"net/http"

	"github.com/wb-go/wbf/dbpg"
	"github.com/wb-go/wbf/ginext"
	"github.com/wb-go/wbf/zlog"

	"github.com/campushub/messaging/internal/api/respond"
)

type transportVerifier interface {
	VerifyTransports(ctx context.Context) error
}

// Handler reports whether the database and the mail transports are reachable.
type Handler struct {
	db       *dbpg.DB
	verifier transportVerifier
}

// NewHandler creates a new Handler instance.
func NewHandler(db *dbpg.DB, verifier transportVerifier) *Handler {
	return &Handler{db: db, verifier: verifier}
}

// Check pings the database and verifies every registered transport.
func (h *Handler) Check(c *ginext.Context) {
	ctx := c.Request.Context()

	if err := h.db.Master.PingContext(ctx); err != nil {
		zlog.Logger.Error().Err(err).Msg("health check: database unreachable")
		respond.Fail(c.Writer, http.StatusInternalServerError, fmt.Errorf("database unreachable"))
		return
	}

	if err := h.verifier.VerifyTransports(ctx); err != nil {
		zlog.Logger.Error().Err(err).Msg("health check: transport unreachable")
		respond.Fail(c.Writer, http.StatusInternalServerError, fmt.Errorf("mail transport unreachable"))
		return
	}

	respond.OK(c.Writer, map[string]string{"status": "ok"})
}
