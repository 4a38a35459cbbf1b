package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Error is the JSON body for every non-2xx response.
type Error struct {
	Message string `json:"message"`
}

// OK sends a 200 JSON response with the given body.
func OK(c *gin.Context, body interface{}) {
	c.JSON(http.StatusOK, body)
}

// Created sends a 201 JSON response with the given body.
func Created(c *gin.Context, body interface{}) {
	c.JSON(http.StatusCreated, body)
}

// NoContent sends 204.
func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// BadRequest sends 400 with a message.
func BadRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, Error{Message: msg})
}

// Unauthorized sends 401.
func Unauthorized(c *gin.Context, msg string) {
	c.JSON(http.StatusUnauthorized, Error{Message: msg})
}

// Forbidden sends 403.
func Forbidden(c *gin.Context, msg string) {
	c.JSON(http.StatusForbidden, Error{Message: msg})
}

// NotFound sends 404.
func NotFound(c *gin.Context, msg string) {
	c.JSON(http.StatusNotFound, Error{Message: msg})
}

// Conflict sends 409.
func Conflict(c *gin.Context, msg string) {
	c.JSON(http.StatusConflict, Error{Message: msg})
}

// RangeNotSatisfiable sends 416 for unsatisfiable byte-range requests.
func RangeNotSatisfiable(c *gin.Context, msg string) {
	c.JSON(http.StatusRequestedRangeNotSatisfiable, Error{Message: msg})
}

// ServiceUnavailable sends 503.
func ServiceUnavailable(c *gin.Context, msg string) {
	c.JSON(http.StatusServiceUnavailable, Error{Message: msg})
}

// Internal sends 500.
func Internal(c *gin.Context, msg string) {
	c.JSON(http.StatusInternalServerError, Error{Message: msg})
}
