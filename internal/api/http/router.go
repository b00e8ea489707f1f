package http

import (
	"net/http"
	"time"

	"github.com/EternisAI/silo-runners/internal/api/http/handler"
	"github.com/EternisAI/silo-runners/internal/api/http/middleware"
	"github.com/EternisAI/silo-runners/internal/auth"
	"github.com/EternisAI/silo-runners/internal/issuance"
	"github.com/EternisAI/silo-runners/internal/reconcile"
	"github.com/EternisAI/silo-runners/internal/store"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

type Services struct {
	Issuance    *issuance.Engine
	Reconciler  *reconcile.Runner
	Store       store.Store
	Auth        *auth.Service
	Metrics     http.Handler
	JWTSecret   string
	AdminAPIKey string
}

func CORS(cfg CORSConfig) gin.HandlerFunc {
	origins := cfg.AllowOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	maxAge := cfg.MaxAge
	if maxAge <= 0 {
		maxAge = 12 * time.Hour
	}
	return cors.New(cors.Config{
		AllowOrigins:  origins,
		AllowMethods:  []string{"PUT", "PATCH", "GET", "POST", "DELETE"},
		AllowHeaders:  []string{"Origin", "Content-Length", "Content-Type", "Authorization", "X-API-Key"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        maxAge,
	})
}

func SetupRoute(engine *gin.Engine, srvs *Services) {
	engine.Use(middleware.RequestLogger())

	var reconciler handler.HealthChecker
	if srvs.Reconciler != nil {
		reconciler = srvs.Reconciler
	}
	healthHandler := handler.NewHealthHandler(reconciler)
	engine.GET("/health", healthHandler.Check)

	if srvs.Metrics != nil {
		engine.GET("/metrics", gin.WrapH(srvs.Metrics))
	}

	v1 := engine.Group("/api/v1")

	if srvs.Auth != nil {
		tokenHandler := handler.NewTokenHandler(srvs.Auth)
		v1.POST("/admin/tokens", middleware.APIKeyAuth(srvs.AdminAPIKey), tokenHandler.Issue)
	}

	authed := v1.Group("", middleware.JWTAuth(srvs.JWTSecret))

	runnersHandler := handler.NewRunnersHandler(srvs.Issuance)
	runners := authed.Group("/runners")
	runners.POST("", runnersHandler.Provision)
	runners.GET("", runnersHandler.List)
	runners.GET("/:id", runnersHandler.Get)
	runners.DELETE("/:id", runnersHandler.Deprovision)

	admin := authed.Group("/admin", middleware.RequireAdmin())

	if srvs.Reconciler != nil {
		syncHandler := handler.NewSyncHandler(srvs.Reconciler)
		admin.POST("/sync/trigger", syncHandler.Trigger)
		admin.GET("/sync/status", syncHandler.Status)
	}

	policyHandler := handler.NewPolicyHandler(srvs.Store)
	admin.GET("/policies", policyHandler.ListUserPolicies)
	admin.PUT("/policies/:identity", policyHandler.PutUserPolicy)
	admin.GET("/policies/:identity", policyHandler.GetUserPolicy)
	admin.DELETE("/policies/:identity", policyHandler.DeleteUserPolicy)
	admin.GET("/teams", policyHandler.ListTeams)
	admin.POST("/teams", policyHandler.CreateTeam)
	admin.PUT("/teams/:id", policyHandler.UpdateTeam)
	admin.GET("/teams/:id/members", policyHandler.ListMembers)
	admin.POST("/teams/:id/members", policyHandler.AddMember)
	admin.DELETE("/teams/:id/members/:user", policyHandler.RemoveMember)

	ledgerHandler := handler.NewLedgerHandler(srvs.Store)
	admin.GET("/audit", ledgerHandler.ListAudit)
	admin.GET("/security-events", ledgerHandler.ListSecurityEvents)
}
