package endpoint

import (
	"fmt"
	"net/http"

	"github.com/erlaaaand/dentizy/middleware"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// RouterDeps carries everything the HTTP surface needs. Gatherer and
// RateLimiter are optional.
type RouterDeps struct {
	AppName     string
	Patients    *PatientHandler
	RateLimiter *middleware.RateLimiter
	Gatherer    prometheus.Gatherer
	Logger      *zap.Logger
}

func NewRouter(deps RouterDeps) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(deps.Logger))
	router.Use(middleware.CORSMiddleware())

	// Basic HTTP handler for root path
	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": fmt.Sprintf("Welcome to %s!", deps.AppName),
		})
	})

	if deps.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	createHandlers := []gin.HandlerFunc{deps.Patients.CreatePatient}
	if deps.RateLimiter != nil {
		createHandlers = append([]gin.HandlerFunc{deps.RateLimiter.Middleware()}, createHandlers...)
	}
	router.POST("/patient", createHandlers...)
	router.GET("/patient/code/:code", deps.Patients.GetPatientByCode)
	router.GET("/patient/code-statistics", deps.Patients.GetCodeStatistics)

	return router
}
