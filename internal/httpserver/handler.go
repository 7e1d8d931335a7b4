package httpserver

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"ambubot/internal/usecase"
)

const HealthVersion = "1.0.0"

type queryRequest struct {
	UserName string `json:"user_name"`
	Text     string `json:"text"`
	Bot      bool   `json:"bot"`
}

type locationRequest struct {
	Text string `json:"text"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
	Text   string `json:"text"`
}

func (srv *HTTPServer) mapHandlers() {
	srv.gin.Use(gin.Recovery(), correlationID(), requestLogger(srv.l), bodyLimit(maxBodyBytes))

	srv.gin.GET("/health", srv.healthCheck)
	srv.gin.POST("/query", srv.handleQuery)
	srv.gin.POST("/location", srv.handleLocation)

	srv.gin.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, errorResponse{Error: "NOT_FOUND", Text: usecase.FallbackText})
	})
}

func (srv *HTTPServer) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "version": HealthVersion})
}

func (srv *HTTPServer) handleQuery(c *gin.Context) {
	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		srv.invalidJSON(c, err)
		return
	}
	out, err := srv.query.Query(c.Request.Context(), usecase.QueryInput{UserName: req.UserName, Text: req.Text, Bot: req.Bot})
	if err != nil {
		srv.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (srv *HTTPServer) handleLocation(c *gin.Context) {
	var req locationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		srv.invalidJSON(c, err)
		return
	}
	out, err := srv.location.Locate(c.Request.Context(), usecase.LocationInput{Text: req.Text})
	if err != nil {
		srv.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (srv *HTTPServer) invalidJSON(c *gin.Context, err error) {
	srv.l.WarnContext(c.Request.Context(), "invalid request body", "path", c.FullPath(), "err", err)
	c.JSON(http.StatusBadRequest, errorResponse{
		Error:  string(usecase.ErrorInvalidInput),
		Reason: "invalid_json",
		Text:   usecase.FallbackText,
	})
}

func (srv *HTTPServer) fail(c *gin.Context, err error) {
	ue := usecase.AsError(err)
	status := ue.Code.HTTPStatus()
	if status >= http.StatusInternalServerError {
		srv.l.ErrorContext(c.Request.Context(), "request failed", "code", ue.Code, "reason", ue.Reason, "err", ue.Err)
	} else {
		srv.l.WarnContext(c.Request.Context(), "request rejected", "code", ue.Code, "reason", ue.Reason, "err", ue.Err)
	}
	c.JSON(status, errorResponse{Error: string(ue.Code), Reason: ue.Reason, Text: ue.Code.UserText()})
}
