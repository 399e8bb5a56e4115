package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"reportr-backend/internal/models"
)

// HealthHandler godoc
// @Summary     Health check
// @Description Returns the health status of the API
// @Tags        health
// @Produce     json
// @Success     200 {object} models.HealthResponse
// @Router      /health [get]
func HealthHandler(c *gin.Context) {
	response := models.HealthResponse{
		Status: "ok",
	}
	c.JSON(http.StatusOK, response)
}

// PhotoGroupsHandler godoc
// @Summary     List photo groups
// @Description Returns every photo group with the number of images it must and may hold
// @Tags        reports
// @Produce     json
// @Success     200 {object} models.PhotoGroupsResponse
// @Router      /photo-groups [get]
func PhotoGroupsHandler(c *gin.Context) {
	groups := models.PhotoGroups()
	response := models.PhotoGroupsResponse{PhotoGroups: make([]models.PhotoGroupResponse, 0, len(groups))}
	for _, g := range groups {
		limits := g.Limits()
		response.PhotoGroups = append(response.PhotoGroups, models.PhotoGroupResponse{Name: g, Min: limits.Min, Max: limits.Max})
	}
	c.JSON(http.StatusOK, response)
}
