package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-library-api/internal/middleware"
)

// Handlers groups every HTTP handler mounted by the router. Nil members are skipped.
type Handlers struct {
	Books        *BookHandler
	Students     *StudentHandler
	Transactions *TransactionHandler
	Debts        *DebtHandler
	Audit        *AuditHandler
	Taxonomy     *TaxonomyHandler
	Imports      *ImportHandler
	Exports      *ExportHandler
	Dashboard    *DashboardHandler
	System       *SystemHandler
}

// RegisterRoutes mounts the library API under prefix. Mutating requests in the group pass
// through the capability check first.
func RegisterRoutes(r gin.IRouter, prefix string, h Handlers, capability middleware.CapabilityChecker) {
	if h.System != nil {
		r.GET("/health", h.System.Health)
		r.GET("/ready", h.System.Ready)
		r.GET("/metrics", h.System.Prometheus)
	}

	api := r.Group(prefix)
	api.Use(middleware.ResponseMeta(), middleware.RequireCapability(capability))

	if h.Books != nil {
		books := api.Group("/books")
		books.GET("", h.Books.List)
		books.POST("", h.Books.Create)
		books.GET("/:id", h.Books.Get)
		books.PUT("/:id", h.Books.Update)
		books.DELETE("/:id", h.Books.Delete)
	}

	if h.Students != nil {
		students := api.Group("/students")
		students.GET("", h.Students.List)
		students.POST("", h.Students.Create)
		students.GET("/:id", h.Students.Get)
		students.PUT("/:id", h.Students.Update)
		students.DELETE("/:id", h.Students.Delete)
	}

	if h.Transactions != nil {
		txns := api.Group("/transactions")
		txns.GET("", h.Transactions.List)
		txns.POST("", h.Transactions.Create)
		txns.GET("/:id", h.Transactions.Get)
		txns.PUT("/:id", h.Transactions.Update)
		txns.POST("/:id/loss", h.Transactions.MarkLoss)
	}

	if h.Debts != nil {
		debts := api.Group("/debts")
		debts.GET("", h.Debts.List)
		debts.POST("", h.Debts.Create)
		debts.GET("/:id", h.Debts.Get)
		debts.PUT("/:id", h.Debts.Update)
	}

	if h.Audit != nil {
		api.GET("/audit-logs", h.Audit.List)
	}

	if h.Taxonomy != nil {
		api.GET("/taxonomy", h.Taxonomy.List)
		api.POST("/taxonomy", h.Taxonomy.Create)
		api.DELETE("/taxonomy/:id", h.Taxonomy.Delete)
	}

	if h.Imports != nil {
		api.POST("/imports/books", h.Imports.Books)
		api.POST("/imports/students", h.Imports.Students)
	}

	if h.Exports != nil {
		api.POST("/exports", h.Exports.Create)
		api.GET("/exports/download", h.Exports.Download)
	}

	if h.Dashboard != nil {
		api.GET("/dashboard", h.Dashboard.Summary)
	}
}
