package handlers

import "github.com/gin-gonic/gin"

// RegisterRoutes mounts the report API on router.
func RegisterRoutes(router gin.IRouter, reports *ReportsHandler, images *ImagesHandler) {
	router.GET("/health", HealthHandler)
	router.GET("/photo-groups", PhotoGroupsHandler)

	router.POST("/reports", reports.CreateReport)
	router.GET("/reports/:id", reports.GetReport)
	router.PUT("/reports/:id", reports.SaveForm)
	router.POST("/reports/:id/images/:group", images.UploadImage)
	router.POST("/reports/:id/generate", reports.GenerateReport)
	router.GET("/reports/:id/download", reports.DownloadReport)
}
