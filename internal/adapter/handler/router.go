package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/rl1809/zlagoda/internal/auth"
	"github.com/rl1809/zlagoda/internal/core/access"
	"github.com/rl1809/zlagoda/pkg/metrics"
)

// NewRouter wires the Gin engine with routes, auth and middlewares.
func NewRouter(h *HTTPHandler, signer *auth.Signer, m *metrics.ServerMetrics, gatherer prometheus.Gatherer, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	registerValidators()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestID())
	r.Use(zapLoggerMiddleware(logger))
	if m != nil {
		r.Use(metricsMiddleware(m))
	}

	r.GET("/healthz", h.HealthCheck)
	if gatherer != nil {
		r.GET("/metrics", gin.WrapH(metrics.Handler(gatherer)))
	}

	api := r.Group("/api", authenticate(signer))

	checks := api.Group("/checks")
	checks.POST("", require(access.Create, access.Check), h.SubmitCheckout)
	checks.POST("/quote", require(access.Create, access.Check), h.Quote)
	checks.GET("", require(access.Read, access.Check), h.ListReceipts)
	checks.GET("/:number", require(access.Read, access.Check), h.GetReceipt)
	checks.DELETE("/:number", require(access.Delete, access.Check), h.DeleteReceipt)

	storeProducts := api.Group("/store-products")
	storeProducts.GET("", require(access.Read, access.StoreProduct), h.ListInventory)
	storeProducts.GET("/:upc", require(access.Read, access.StoreProduct), h.GetInventory)
	storeProducts.PUT("/:upc", require(access.Create, access.StoreProduct), h.SaveInventory)
	storeProducts.DELETE("/:upc", require(access.Delete, access.StoreProduct), h.DeleteInventory)
	storeProducts.POST("/:upc/restock", require(access.Update, access.StoreProduct), h.Restock)
	storeProducts.POST("/:upc/promotion", require(access.Create, access.StoreProduct), h.Promote)

	cards := api.Group("/customer-cards")
	cards.GET("", require(access.Read, access.CustomerCard), h.ListCards)
	cards.GET("/:number", require(access.Read, access.CustomerCard), h.GetCard)
	cards.PUT("/:number", require(access.Create, access.CustomerCard), h.SaveCard)
	cards.DELETE("/:number", require(access.Delete, access.CustomerCard), h.DeleteCard)

	categories := api.Group("/categories")
	categories.GET("", require(access.Read, access.Category), h.ListCategories)
	categories.GET("/:number", require(access.Read, access.Category), h.GetCategory)
	categories.PUT("/:number", require(access.Create, access.Category), h.SaveCategory)
	categories.DELETE("/:number", require(access.Delete, access.Category), h.DeleteCategory)

	products := api.Group("/products")
	products.GET("", require(access.Read, access.Product), h.ListProducts)
	products.GET("/:id", require(access.Read, access.Product), h.GetProduct)
	products.PUT("/:id", require(access.Create, access.Product), h.SaveProduct)
	products.DELETE("/:id", require(access.Delete, access.Product), h.DeleteProduct)

	if logger != nil {
		logger.Info("router initialized")
	}

	return r
}
