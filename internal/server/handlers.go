package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/verigate/verigate/internal/guard"
	"go.uber.org/zap"
)

// handleLogin sits behind the score middleware, so a resolved response
// and its threshold are always on the context here. A low score does not
// block the attempt outright; it downgrades it to a step-up challenge,
// which is the standard way to consume a continuous score.
func (s *Server) handleLogin(c *gin.Context) {
	var form struct {
		Username string `form:"username" binding:"required"`
	}
	if err := c.ShouldBind(&form); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "username is required"})
		return
	}

	human, err := guard.IsHuman(c)
	if err != nil {
		s.logger.Error("login: no verification response on context", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "verification unavailable"})
		return
	}
	if !human {
		c.JSON(http.StatusForbidden, gin.H{"error": "additional verification required"})
		return
	}

	token, err := s.tokens.Issue(form.Username, "web")
	if err != nil {
		s.logger.Error("login: issue token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not establish session"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}

func (s *Server) handleComment(c *gin.Context) {
	var form struct {
		Body string `form:"body" binding:"required"`
	}
	if err := c.ShouldBind(&form); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "body is required"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"status": "accepted"})
}

func (s *Server) handleContact(c *gin.Context) {
	var form struct {
		Email   string `form:"email" binding:"required,email"`
		Message string `form:"message" binding:"required"`
	}
	if err := c.ShouldBind(&form); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "email and message are required"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
}

func (s *Server) handleAttest(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "attested"})
}
