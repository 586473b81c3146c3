// Package middlewares holds the gin middlewares shared by the router:
// CORS, actor extraction, cron trigger auth and public rate limiting.
package middlewares

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/wb-go/wbf/ginext"

	"github.com/campushub/messaging/internal/api/respond"
	"github.com/campushub/messaging/internal/model"
	"github.com/campushub/messaging/internal/ratelimit"
	"github.com/campushub/messaging/internal/service/permission"
)

const actorKey = "actor"

// ErrRateLimited is surfaced as 429 with a Retry-After hint.
var ErrRateLimited = errors.New("too many requests")

// CORSMiddleware allows cross-origin requests from the public site and
// the admin dashboard.
func CORSMiddleware() func(c *ginext.Context) {
	return func(c *ginext.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-User-ID, X-User-Role, X-College-ID")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// RateLimit gates an endpoint per client IP using the sliding-window
// limiter. Denied requests get a Retry-After header and a 429.
func RateLimit(limiter *ratelimit.Limiter) func(c *ginext.Context) {
	return func(c *ginext.Context) {
		res := limiter.Allow(c.ClientIP())
		if !res.Allowed {
			retryAfter := int(res.RetryAfter.Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}

			c.Writer.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			respond.Fail(c.Writer, http.StatusTooManyRequests, ErrRateLimited)
			c.Abort()
			return
		}

		c.Next()
	}
}

// CronAuth guards the cron trigger with a shared bearer secret.
func CronAuth(secret string) func(c *ginext.Context) {
	return func(c *ginext.Context) {
		token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if secret == "" || subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
			respond.Fail(c.Writer, http.StatusUnauthorized, errors.New("invalid cron secret"))
			c.Abort()
			return
		}

		c.Next()
	}
}

// Actor extracts the authenticated principal from the X-User-* headers
// populated by the upstream auth layer and stores it in the request
// context. Requests without a valid actor are rejected as unauthenticated.
func Actor() func(c *ginext.Context) {
	return func(c *ginext.Context) {
		id, err := uuid.Parse(c.GetHeader("X-User-ID"))
		if err != nil {
			respond.Fail(c.Writer, http.StatusUnauthorized, errors.New("missing or invalid user id"))
			c.Abort()
			return
		}

		role := model.Role(c.GetHeader("X-User-Role"))
		if !role.Valid() {
			respond.Fail(c.Writer, http.StatusUnauthorized, fmt.Errorf("unknown role %q", role))
			c.Abort()
			return
		}

		actor := model.Actor{ID: id, Role: role}

		if collegeID := c.GetHeader("X-College-ID"); collegeID != "" {
			parsed, err := uuid.Parse(collegeID)
			if err != nil {
				respond.Fail(c.Writer, http.StatusUnauthorized, errors.New("invalid college id"))
				c.Abort()
				return
			}
			actor.CollegeID = &parsed
		}

		c.Set(actorKey, actor)
		c.Next()
	}
}

// ActorFrom returns the actor stored by the Actor middleware.
func ActorFrom(c *ginext.Context) (model.Actor, bool) {
	v, ok := c.Get(actorKey)
	if !ok {
		return model.Actor{}, false
	}

	actor, ok := v.(model.Actor)

	return actor, ok
}

type permissionEvaluator interface {
	HasPermission(ctx context.Context, actor model.Actor, action model.Action, resource model.Resource) (bool, error)
}

// RequirePermission rejects the request with 403 unless the evaluator
// confirms the actor may perform action on resource. Malformed enum input
// is a configuration error and maps to 500, never 403.
func RequirePermission(evaluator permissionEvaluator, action model.Action, resource model.Resource) func(c *ginext.Context) {
	return func(c *ginext.Context) {
		actor, ok := ActorFrom(c)
		if !ok {
			respond.Fail(c.Writer, http.StatusUnauthorized, errors.New("unauthenticated"))
			c.Abort()
			return
		}

		allowed, err := evaluator.HasPermission(c.Request.Context(), actor, action, resource)
		if err != nil {
			respond.Fail(c.Writer, http.StatusInternalServerError, errors.New("internal server error"))
			c.Abort()
			return
		}

		if !allowed {
			respond.Fail(c.Writer, http.StatusForbidden, permission.ErrPermissionDenied)
			c.Abort()
			return
		}

		c.Next()
	}
}
