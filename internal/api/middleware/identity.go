package middleware

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/orrn/printflow/internal/db"
)

const (
	tokenDuration = 24 * time.Hour

	settingsKeyAPIPassword = "api_password"
	settingsKeyJWTSecret   = "jwt_secret"
)

type Claims struct {
	jwt.RegisteredClaims
	Submitter string `json:"submitter"`
}

// IdentityMiddleware authenticates API callers and attaches a submitter id
// to the request context. Submitting systems log in once with the shared
// API password and present the issued token afterwards.
type IdentityMiddleware struct {
	settings *db.SettingsStore
	secret   []byte
}

type LoginRequest struct {
	Submitter string `json:"submitter" binding:"required"`
	Password  string `json:"password" binding:"required"`
}

type SetupRequest struct {
	Password string `json:"password" binding:"required,min=6"`
}

func NewIdentityMiddleware(settings *db.SettingsStore) (*IdentityMiddleware, error) {
	m := &IdentityMiddleware{settings: settings}

	secret, err := m.getOrCreateSecret()
	if err != nil {
		return nil, err
	}
	m.secret = secret

	return m, nil
}

func (m *IdentityMiddleware) getOrCreateSecret() ([]byte, error) {
	ctx := context.Background()
	setting, err := m.settings.Get(ctx, settingsKeyJWTSecret)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			secret := make([]byte, 32)
			if _, err := rand.Read(secret); err != nil {
				return nil, err
			}
			if err := m.settings.Set(ctx, settingsKeyJWTSecret, hex.EncodeToString(secret)); err != nil {
				return nil, err
			}
			return secret, nil
		}
		return nil, err
	}
	return hex.DecodeString(setting.Value)
}

func (m *IdentityMiddleware) isSetupRequired() bool {
	_, err := m.settings.Get(context.Background(), settingsKeyAPIPassword)
	return errors.Is(err, sql.ErrNoRows)
}

func (m *IdentityMiddleware) generateToken(submitter string) (string, error) {
	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   submitter,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenDuration)),
			Issuer:    "printflow",
		},
		Submitter: submitter,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

func (m *IdentityMiddleware) validateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}
	return nil, errors.New("invalid token")
}

func tokenFromRequest(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	return ""
}

func (m *IdentityMiddleware) SetupHandler(c *gin.Context) {
	if !m.isSetupRequired() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "setup already completed"})
		return
	}

	var req SetupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "password must be at least 6 characters"})
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to hash password"})
		return
	}

	if err := m.settings.Set(c.Request.Context(), settingsKeyAPIPassword, string(hashed)); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save password"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "setup completed"})
}

func (m *IdentityMiddleware) LoginHandler(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	if m.isSetupRequired() {
		c.JSON(http.StatusForbidden, gin.H{"error": "setup required"})
		return
	}

	setting, err := m.settings.Get(c.Request.Context(), settingsKeyAPIPassword)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server error"})
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(setting.Value), []byte(req.Password)); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid password"})
		return
	}

	token, err := m.generateToken(req.Submitter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token, "expires_in": int(tokenDuration.Seconds())})
}

func (m *IdentityMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := tokenFromRequest(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}

		claims, err := m.validateToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}

		c.Set("submitter", claims.Submitter)
		c.Next()
	}
}
