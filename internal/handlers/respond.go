package handlers

import (
	"github.com/gin-gonic/gin"
)

// ErrorResponse aborts the chain with {"error": message}.
func ErrorResponse(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"error": message})
}
