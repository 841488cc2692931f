package web

import (
	"encoding/gob"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/sessions"

	"clothshop/internal/auth"
)

const (
	sessionName   = "clothshop"
	keyCurrency   = "currency"
	keyAdminToken = "admin_token"
	ctxActor      = "actor"
)

func init() {
	gob.Register(Flash{})
}

type Flash struct {
	Type    string
	Message string
}

// RequestLogger logs each request once it is served.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.Info("HTTP Request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
			"ip", c.ClientIP(),
		)
	}
}

func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Content-Security-Policy", "default-src 'self'; style-src 'self' 'unsafe-inline'; img-src 'self' data:")
		c.Next()
	}
}

func (s *Server) session(c *gin.Context) *sessions.Session {
	// a broken or foreign cookie yields a fresh session
	session, err := s.sessions.Get(c.Request, sessionName)
	if err != nil {
		slog.Debug("Session decode failed", "error", err)
	}
	return session
}

func (s *Server) save(c *gin.Context, session *sessions.Session) {
	if err := session.Save(c.Request, c.Writer); err != nil {
		slog.Error("Failed to save session", "error", err)
	}
}

func (s *Server) flash(c *gin.Context, kind, message string) {
	session := s.session(c)
	session.AddFlash(Flash{Type: kind, Message: message})
	s.save(c, session)
}

// redirectWithFlash stores the message and sends the browser to location.
func (s *Server) redirectWithFlash(c *gin.Context, location, kind, message string) {
	s.flash(c, kind, message)
	c.Redirect(http.StatusSeeOther, location)
}

func flashes(session *sessions.Session) []Flash {
	var out []Flash
	for _, f := range session.Flashes() {
		if fm, ok := f.(Flash); ok {
			out = append(out, fm)
		}
	}
	return out
}

// adminClaims returns the verified claims of the session token, or nil.
func (s *Server) adminClaims(session *sessions.Session) *auth.Claims {
	token, ok := session.Values[keyAdminToken].(string)
	if !ok || token == "" {
		return nil
	}
	claims, err := s.tokens.Verify(token)
	if err != nil {
		return nil
	}
	if !s.policy.IsModerator(claims.UserID) {
		return nil
	}
	return claims
}

// RequireAdmin lets through requests carrying a valid moderator token and
// stores the web actor in the context.
func (s *Server) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := s.session(c)
		claims := s.adminClaims(session)
		if claims == nil {
			delete(session.Values, keyAdminToken)
			session.AddFlash(Flash{Type: "error", Message: "Войдите, чтобы открыть эту страницу"})
			s.save(c, session)
			c.Redirect(http.StatusSeeOther, "/admin/login")
			c.Abort()
			return
		}
		c.Set(ctxActor, auth.Actor{UserID: claims.UserID, Web: true})
		c.Next()
	}
}

func actor(c *gin.Context) auth.Actor {
	if a, ok := c.Get(ctxActor); ok {
		return a.(auth.Actor)
	}
	return auth.Actor{}
}
