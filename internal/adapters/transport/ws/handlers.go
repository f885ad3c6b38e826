package ws

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/bnema/azad-hub/internal/domain"
)

const (
	extensionIDHeader = "X-Extension-Id"
	tabIDHeader       = "X-Tab-Id"

	maxBodyBytes = 1 << 20
)

func (s *Server) handleExternal(c *gin.Context) {
	body, ok := readBody(c)
	if !ok {
		return
	}

	response, respond, err := s.hub.HandleExternal(c.Request.Context(), c.GetHeader(extensionIDHeader), body)
	if err != nil {
		s.hubUnavailable(c, err)
		return
	}
	if !respond {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, response)
}

func (s *Server) handleContextMenuDescriptor(c *gin.Context) {
	c.JSON(http.StatusOK, domain.SaveOrderDebugInfoMenu)
}

func (s *Server) handleContextMenuClick(c *gin.Context) {
	var click domain.ContextMenuClick
	if err := c.ShouldBindJSON(&click); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid context menu click"})
		return
	}
	if err := s.hub.HandleContextMenu(c.Request.Context(), click); err != nil {
		s.hubUnavailable(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}

func (s *Server) handleRuntime(c *gin.Context) {
	var tabID *domain.PeerID
	if raw := strings.TrimSpace(c.GetHeader(tabIDHeader)); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + tabIDHeader + " header"})
			return
		}
		id := domain.PeerID(parsed)
		tabID = &id
	}

	body, ok := readBody(c)
	if !ok {
		return
	}
	if err := s.hub.HandleRuntimeMessage(c.Request.Context(), body, tabID); err != nil {
		s.hubUnavailable(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}

func (s *Server) handleStatus(c *gin.Context) {
	snapshot, err := s.hub.Snapshot(c.Request.Context())
	if err != nil {
		s.hubUnavailable(c, err)
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) hubUnavailable(c *gin.Context, err error) {
	if errors.Is(err, context.Canceled) {
		c.Status(499)
		return
	}
	s.logger.Warn("hub unavailable", zap.String("path", c.FullPath()), zap.Error(err))
	c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
}

func readBody(c *gin.Context) ([]byte, bool) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not read request body"})
		return nil, false
	}
	return body, true
}
