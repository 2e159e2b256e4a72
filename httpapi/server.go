// Package httpapi exposes wallet connection and offer settlement over HTTP
// for local tooling and embedding surfaces.
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	walletcore "github.com/offerhaven/walletcore"
)

// Server wires the wallet router and settlement flow into a gin engine.
type Server struct {
	router *walletcore.Router
	flow   *walletcore.Flow
	logger *slog.Logger
	engine *gin.Engine

	// ctx outlives individual requests: pairing approval waits on the
	// wallet-side human, long after the connect response went out.
	ctx    context.Context
	cancel context.CancelFunc
}

type Option func(*Server)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

func NewServer(router *walletcore.Router, flow *walletcore.Flow, opts ...Option) *Server {
	s := &Server{
		router: router,
		flow:   flow,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	engine.GET("/healthz", s.handleHealth)
	engine.GET("/wallet/status", s.handleStatus)
	engine.POST("/wallet/connect", s.handleConnect)
	engine.POST("/wallet/disconnect", s.handleDisconnect)
	engine.POST("/offers/pending", s.handleCapturePending)
	engine.POST("/offers/:id/take", s.handleTakeOffer)

	s.engine = engine
	return s
}

// Handler returns the underlying HTTP handler for mounting or testing.
func (s *Server) Handler() http.Handler { return s.engine }

// Close abandons any in-flight pairing approval waits.
func (s *Server) Close() { s.cancel() }

// Run serves the API on addr until the listener fails.
func (s *Server) Run(addr string) error {
	s.logger.Info("http api listening", "addr", addr)
	return s.engine.Run(addr)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleStatus(c *gin.Context) {
	st := s.flow.Status()
	c.JSON(http.StatusOK, gin.H{
		"backend":   st.Backend.String(),
		"address":   st.Address,
		"connected": st.Backend != walletcore.BackendNone,
		"pending":   st.Pending,
		"busy":      st.Busy,
	})
}

// handleConnect starts a wallet connection. ?backend=injected connects the
// injected provider synchronously; the default starts a remote pairing and
// returns the URI for the wallet to scan. Approval completes asynchronously.
func (s *Server) handleConnect(c *gin.Context) {
	ctx := c.Request.Context()

	if c.Query("backend") == "injected" {
		addrs, err := s.router.ConnectInjected(ctx)
		if err != nil {
			s.renderError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"backend": "injected", "addresses": addrs})
		return
	}

	// The request context dies with the 202; the approval wait and any
	// deferred settlement run on the server's lifetime context instead.
	result, err := s.router.ConnectRemote(s.ctx)
	if err != nil {
		s.renderError(c, err)
		return
	}
	go func() {
		if err := <-result.Approved; err != nil {
			s.logger.Warn("pairing approval failed", "error", err)
			return
		}
		s.logger.Info("pairing approved", "address", s.router.Address())
		if out, ran := s.flow.OnConnected(s.ctx); ran {
			s.logger.Info("pending offer settled after connect", "status", string(out.Status), "tx_id", out.TxID)
		}
	}()
	c.JSON(http.StatusAccepted, gin.H{"backend": "remote", "uri": result.URI})
}

func (s *Server) handleDisconnect(c *gin.Context) {
	s.router.Disconnect(c.Request.Context(), walletcore.BackendNone)
	c.JSON(http.StatusOK, gin.H{"status": "disconnected"})
}

// handleCapturePending records an offer from navigation-style query
// parameters for settlement once a wallet connects. If a wallet is already
// connected the offer settles immediately.
func (s *Server) handleCapturePending(c *gin.Context) {
	params := map[string]string{}
	for key, values := range c.Request.URL.Query() {
		if len(values) > 0 {
			params[key] = values[0]
		}
	}
	if !s.flow.CapturePending(params) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no offer parameter recognized"})
		return
	}
	if s.router.Active() != walletcore.BackendNone {
		if out, ran := s.flow.OnConnected(c.Request.Context()); ran {
			s.renderOutcome(c, out)
			return
		}
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "pending"})
}

func (s *Server) handleTakeOffer(c *gin.Context) {
	out := s.flow.Settle(c.Request.Context(), c.Param("id"))
	s.renderOutcome(c, out)
}

func (s *Server) renderOutcome(c *gin.Context, out walletcore.Outcome) {
	if out.Status == walletcore.SettleSuccess {
		c.JSON(http.StatusOK, gin.H{"status": "success", "tx_id": out.TxID})
		return
	}
	c.JSON(statusForCategory(out.Category), gin.H{
		"status":   "failed",
		"category": string(out.Category),
		"message":  out.Message,
	})
}

func (s *Server) renderError(c *gin.Context, err error) {
	var werr *walletcore.WalletError
	if errors.As(err, &werr) {
		c.JSON(statusForCategory(walletcore.Category(werr.Code)), gin.H{
			"error": werr.Message,
			"code":  werr.Code,
		})
		return
	}
	c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
}

func statusForCategory(category walletcore.Category) int {
	switch category {
	case walletcore.CategoryUserRejected:
		return http.StatusConflict
	case walletcore.CategoryPendingApproval:
		return http.StatusTooManyRequests
	case walletcore.CategoryStaleSession:
		return http.StatusConflict
	case walletcore.CategoryInsufficientFunds:
		return http.StatusPaymentRequired
	case walletcore.Category(walletcore.ErrCodeNoWalletConnected):
		return http.StatusPreconditionFailed
	default:
		return http.StatusBadGateway
	}
}
