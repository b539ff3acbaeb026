package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const bearerTokenKey = "bearer_token"

// BearerTokenMiddleware extrae el token del header Authorization y lo guarda en el contexto.
// La validación del token la hace el servicio de cuentas.
func BearerTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := strings.TrimSpace(c.GetHeader("Authorization"))
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "bearer") {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			c.Abort()
			return
		}
		token = strings.TrimSpace(token)
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			c.Abort()
			return
		}

		c.Set(bearerTokenKey, token)
		c.Next()
	}
}

// GetBearerToken obtiene el token guardado por BearerTokenMiddleware.
func GetBearerToken(c *gin.Context) (string, bool) {
	val, ok := c.Get(bearerTokenKey)
	if !ok {
		return "", false
	}
	token, ok := val.(string)
	return token, ok && token != ""
}
