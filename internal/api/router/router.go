package router

import (
	"github.com/wb-go/wbf/ginext"

	healthhandler "github.com/campushub/messaging/internal/api/handlers/health"
	msghandler "github.com/campushub/messaging/internal/api/handlers/message"
	permhandler "github.com/campushub/messaging/internal/api/handlers/permission"
	"github.com/campushub/messaging/internal/middlewares"
	"github.com/campushub/messaging/internal/model"
	"github.com/campushub/messaging/internal/ratelimit"
	permsvc "github.com/campushub/messaging/internal/service/permission"
)

// New assembles the HTTP surface: the public contact endpoint behind the
// rate limiter, the cron trigger behind the shared secret, and the admin
// surface behind actor extraction plus permission checks.
func New(
	messages *msghandler.Handler,
	permissions *permhandler.Handler,
	health *healthhandler.Handler,
	evaluator *permsvc.Service,
	limiter *ratelimit.Limiter,
	cronSecret string,
) *ginext.Engine {
	e := ginext.New()
	e.Use(middlewares.CORSMiddleware())
	e.Use(ginext.Logger())
	e.Use(ginext.Recovery())

	e.GET("/health", health.Check)

	api := e.Group("/api")

	api.POST("/contact", middlewares.RateLimit(limiter), messages.CreateContact)

	cron := api.Group("/cron", middlewares.CronAuth(cronSecret))
	{
		cron.POST("/dispatch", messages.Cron)
	}

	admin := api.Group("/admin", middlewares.Actor())

	msgGroup := admin.Group("/messages")
	{
		msgGroup.POST("", middlewares.RequirePermission(evaluator, model.ActionCreate, model.ResourceMessage), messages.Create)
		msgGroup.GET("", middlewares.RequirePermission(evaluator, model.ActionView, model.ResourceMessage), messages.GetAll)
		msgGroup.GET("/:id", middlewares.RequirePermission(evaluator, model.ActionView, model.ResourceMessage), messages.Get)
		msgGroup.GET("/:id/status", middlewares.RequirePermission(evaluator, model.ActionView, model.ResourceMessage), messages.GetStatus)
		msgGroup.POST("/:id/send", middlewares.RequirePermission(evaluator, model.ActionEdit, model.ResourceMessage), messages.Send)
		msgGroup.POST("/:id/reply", middlewares.RequirePermission(evaluator, model.ActionCreate, model.ResourceMessage), messages.Reply)
		msgGroup.POST("/:id/delivered", middlewares.RequirePermission(evaluator, model.ActionEdit, model.ResourceMessage), messages.MarkDelivered)
		msgGroup.POST("/:id/read", middlewares.RequirePermission(evaluator, model.ActionEdit, model.ResourceMessage), messages.MarkRead)
		msgGroup.DELETE("/:id", middlewares.RequirePermission(evaluator, model.ActionDelete, model.ResourceMessage), messages.Delete)
	}

	permGroup := admin.Group("/permissions")
	{
		permGroup.POST("", middlewares.RequirePermission(evaluator, model.ActionCreate, model.ResourcePermission), permissions.Create)
		permGroup.GET("", middlewares.RequirePermission(evaluator, model.ActionView, model.ResourcePermission), permissions.GetAll)
		permGroup.GET("/:id", middlewares.RequirePermission(evaluator, model.ActionView, model.ResourcePermission), permissions.Get)
		permGroup.PUT("/:id", middlewares.RequirePermission(evaluator, model.ActionEdit, model.ResourcePermission), permissions.Update)
		permGroup.DELETE("/:id", middlewares.RequirePermission(evaluator, model.ActionDelete, model.ResourcePermission), permissions.Delete)
	}

	return e
}
