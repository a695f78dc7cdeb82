package main

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"resumepay/pkg/payment"
	"resumepay/pkg/store"
)

// defaultMaxUpload matches the 5MB screenshot limit of the upload form.
const defaultMaxUpload = 5 * 1024 * 1024

// app holds the handler dependencies; there is no package level state.
type app struct {
	sessions  *payment.Manager
	verifier  *payment.Verifier
	attempts  store.Store
	grants    *grantIssuer
	admin     adminCredentials
	maxUpload int64
	registry  *prometheus.Registry
	log       *zap.SugaredLogger
}

func (a *app) routes(r *gin.Engine) {
	pay := r.Group("/payments/sessions")
	pay.POST("", a.createSessionHandler)
	pay.GET("/:id", a.getSessionHandler)
	pay.POST("/:id/receipt", a.uploadReceiptHandler)
	pay.POST("/:id/verify", a.verifyHandler)
	pay.POST("/:id/retry", a.retryHandler)
	pay.DELETE("/:id", a.closeHandler)

	r.GET("/exports/grant", grantAuthMiddleware(a.grants), grantInfoHandler)

	adminGroup := r.Group("/admin", adminAuthMiddleware(a.admin))
	adminGroup.GET("/attempts", a.listAttemptsHandler)

	if a.registry != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{})))
	}
	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
}

// requestLogger logs one line per request.
func requestLogger(log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Infow("HTTP request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"took", time.Since(start),
		)
	}
}

// errorStatus maps payment errors to HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, payment.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, payment.ErrWindowExpired):
		return http.StatusGone
	case errors.Is(err, payment.ErrNoReceipt):
		return http.StatusBadRequest
	case errors.Is(err, payment.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, payment.ErrInvalidFileType):
		return http.StatusUnsupportedMediaType
	}
	return http.StatusInternalServerError
}

func (a *app) abortWith(c *gin.Context, err error) {
	status := errorStatus(err)
	if status == http.StatusInternalServerError {
		a.log.Errorw("Request failed", "path", c.FullPath(), "error", err)
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

type createSessionRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

func (a *app) createSessionHandler(c *gin.Context) {
	var req createSessionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	if req.Amount.IsNegative() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "amount must be positive"})
		return
	}
	s := a.sessions.Create(req.Amount)
	c.JSON(http.StatusCreated, s.Snapshot(a.sessions.Now()))
}

func (a *app) session(c *gin.Context) (*payment.Session, bool) {
	s, err := a.sessions.Get(c.Param("id"))
	if err != nil {
		a.abortWith(c, err)
		return nil, false
	}
	return s, true
}

func (a *app) getSessionHandler(c *gin.Context) {
	s, ok := a.session(c)
	if !ok {
		return
	}
	now := a.sessions.Now()
	s.Tick(now)
	c.JSON(http.StatusOK, s.Snapshot(now))
}

func (a *app) uploadReceiptHandler(c *gin.Context) {
	s, ok := a.session(c)
	if !ok {
		return
	}
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file missing"})
		return
	}
	if file.Size > a.maxUpload {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("file too large (max %s)", payment.FormatFileSize(a.maxUpload))})
		return
	}
	f, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot read upload"})
		return
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, a.maxUpload+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot read upload"})
		return
	}

	ct := file.Header.Get("Content-Type")
	if ct == "" || ct == "application/octet-stream" {
		ct = mimetype.Detect(data).String()
	}
	receipt, err := payment.NewUploadedReceipt(data, ct, file.Filename)
	if err != nil {
		a.log.Infow("Upload rejected", "session", s.ID(), "file", file.Filename, "content_type", ct)
		c.JSON(http.StatusUnsupportedMediaType, gin.H{
			"error":  payment.InvalidFileType.Message(),
			"reason": payment.InvalidFileType,
		})
		return
	}
	now := a.sessions.Now()
	if err := s.SelectFile(receipt, now); err != nil {
		a.abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, s.Snapshot(now))
}

func (a *app) verifyHandler(c *gin.Context) {
	s, ok := a.session(c)
	if !ok {
		return
	}
	verdict, err := a.verifier.Verify(c.Request.Context(), s)
	if err != nil {
		a.abortWith(c, err)
		return
	}
	resp := gin.H{"verdict": verdict, "session": s.Snapshot(a.sessions.Now())}
	if verdict.Accepted {
		token, exp, err := a.grants.Issue(s)
		if err != nil {
			a.abortWith(c, err)
			return
		}
		resp["grant"] = gin.H{"token": token, "expires_at": exp}
		a.sessions.Succeeded(s)
	}
	c.JSON(http.StatusOK, resp)
}

func (a *app) retryHandler(c *gin.Context) {
	next, err := a.sessions.Retry(c.Param("id"))
	if err != nil {
		a.abortWith(c, err)
		return
	}
	c.JSON(http.StatusCreated, next.Snapshot(a.sessions.Now()))
}

func (a *app) closeHandler(c *gin.Context) {
	if err := a.sessions.Close(c.Param("id")); err != nil {
		a.abortWith(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func grantInfoHandler(c *gin.Context) {
	claims := c.MustGet("grant").(*grantClaims)
	c.JSON(http.StatusOK, gin.H{
		"session_id": claims.SessionID,
		"scope":      claims.Scope,
		"amount":     claims.Amount,
		"expires_at": claims.ExpiresAt.Time,
	})
}

func (a *app) listAttemptsHandler(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	items, err := a.attempts.ListAttempts(c.Request.Context(), limit)
	if err != nil {
		a.log.Errorw("List attempts failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, items)
}
