package api

import (
	"log"

	requesthandlers "github.com/chendingplano/dataviewer/api/RequestHandlers"
	"github.com/chendingplano/dataviewer/api/metrics"
	"github.com/labstack/echo/v4"
)

const DefaultBasePath = "/dataviewer/api"

func RegisterRoutes(e *echo.Echo, h *requesthandlers.Handlers, base_path string) {
	if base_path == "" {
		base_path = DefaultBasePath
	}
	g := e.Group(base_path)

	log.Println("Register " + base_path + "/categories route (DVW_RTR_018)")
	g.GET("/categories", h.HandleCategories)

	log.Println("Register " + base_path + "/subcategories route (DVW_RTR_021)")
	g.GET("/subcategories", h.HandleSubcategories)

	log.Println("Register " + base_path + "/variables route (DVW_RTR_024)")
	g.GET("/variables", h.HandleVariables)

	log.Println("Register " + base_path + "/variable route (DVW_RTR_027)")
	g.GET("/variable", h.HandleVariable)

	log.Println("Register " + base_path + "/years route (DVW_RTR_030)")
	g.GET("/years", h.HandleYears)

	log.Println("Register " + base_path + "/entities route (DVW_RTR_033)")
	g.GET("/entities", h.HandleEntities)

	log.Println("Register " + base_path + "/data route (DVW_RTR_036)")
	g.GET("/data", h.HandleData)
	g.POST("/data", h.HandleData)

	log.Println("Register " + base_path + "/metadata route (DVW_RTR_040)")
	g.GET("/metadata", h.HandleMetadata)

	log.Println("Register /healthz route (DVW_RTR_043)")
	e.GET("/healthz", h.HandleHealthz)

	log.Println("Register /metrics route (DVW_RTR_046)")
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))
}
