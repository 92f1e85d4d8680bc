package middleware

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"pawfund/internal/models"
)

const actorKey = "actor"

// AuthMiddleware requires an HMAC-signed bearer token. The "sub" claim
// becomes the actor id and role=admin grants admin rights.
func AuthMiddleware(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := authenticate(c, jwtSecret)
		if !ok {
			return
		}
		c.Set(actorKey, actor)
		c.Next()
	}
}

// OptionalAuth sets the actor when a valid token is present and lets
// anonymous requests through. A malformed or bad token is still rejected.
func OptionalAuth(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("Authorization") == "" {
			c.Next()
			return
		}
		actor, ok := authenticate(c, jwtSecret)
		if !ok {
			return
		}
		c.Set(actorKey, actor)
		c.Next()
	}
}

// ActorFrom returns the authenticated caller, or the zero Actor.
func ActorFrom(c *gin.Context) models.Actor {
	v, ok := c.Get(actorKey)
	if !ok {
		return models.Actor{}
	}
	actor, _ := v.(models.Actor)
	return actor
}

func authenticate(c *gin.Context, jwtSecret string) (models.Actor, bool) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		slog.Debug("no auth header found", "path", c.FullPath())
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
		return models.Actor{}, false
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		slog.Debug("auth header format is not Bearer", "path", c.FullPath())
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization header format"})
		return models.Actor{}, false
	}

	token, err := jwt.Parse(parts[1], func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(jwtSecret), nil
	})
	if err != nil {
		slog.Debug("token parsing error", "error", err.Error())
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
		return models.Actor{}, false
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
		return models.Actor{}, false
	}

	subject, ok := subjectOf(claims["sub"])
	if !ok {
		slog.Debug("invalid 'sub' claim in token")
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
		return models.Actor{}, false
	}

	role, _ := claims["role"].(string)
	return models.Actor{ID: subject, Admin: role == "admin"}, true
}

// subjectOf accepts string subjects and the numeric ids older tokens carry.
func subjectOf(v any) (string, bool) {
	switch sub := v.(type) {
	case string:
		return sub, sub != ""
	case float64:
		return strconv.FormatInt(int64(sub), 10), true
	default:
		return "", false
	}
}
