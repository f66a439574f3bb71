// Package api exposes a thin, read-only HTTP+WS surface over the Searcher:
// select/compare/similar/graph queries plus a websocket broadcast stream
// endpoint backed by Hub, for `sumav serve`. Grounded on the teacher's gin-based
// SetupRouter/AuthMiddleware/RateLimiter/Hub stack.
package api

import (
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/sumav/sumav/internal/graph"
	"github.com/sumav/sumav/internal/tokenizer"
)

// APIHandler serves sumav's query endpoints over a live Searcher.
type APIHandler struct {
	searcher *graph.Searcher
	wsHub    *Hub
}

// SetupRouter builds the gin engine for `sumav serve`.
func SetupRouter(searcher *graph.Searcher, wsHub *Hub) *gin.Engine {
	r := gin.Default()

	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if allowedOrigins == "" || allowedOrigins == "*" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		} else {
			for _, allowed := range strings.Split(allowedOrigins, ",") {
				if strings.TrimSpace(allowed) == origin {
					c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
					break
				}
			}
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	handler := &APIHandler{searcher: searcher, wsHub: wsHub}

	pub := r.Group("/api/v1")
	{
		pub.GET("/health", handler.handleHealth)
		pub.GET("/stream", wsHub.Subscribe)
	}

	auth := r.Group("/api/v1")
	auth.Use(AuthMiddleware())
	auth.Use(NewRateLimiter(30, 5).Middleware())
	{
		auth.GET("/select", handler.handleSelect)
		auth.GET("/compare", handler.handleCompare)
		auth.GET("/similar/:token", handler.handleSimilar)
		auth.GET("/graph/:hash", handler.handleGraph)
	}

	return r
}

func (h *APIHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "operational",
		"engine": "sumav token-graph engine",
	})
}

// handleSelect implements GET /api/v1/select?hash=<md5|sha256> or
// ?verdict=<verdict>&verdict=<verdict>..., returning the representative
// token for a bag of AV verdicts (spec.md §4.3.1).
func (h *APIHandler) handleSelect(c *gin.Context) {
	hash := c.Query("hash")
	verdicts := c.QueryArray("verdict")

	var tokens []string
	if hash == "" {
		if len(verdicts) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "supply hash or one or more verdict params"})
			return
		}
		tokens = tokenizer.Tokens(verdicts)
	}

	opts := graph.DefaultSearchOptions()
	if n, err := strconv.Atoi(c.Query("top_n")); err == nil && n > 0 {
		opts.TopN = &n
	}
	opts.Alias = c.Query("alias") == "true"
	opts.AllowOutOfGraphFallback = c.Query("allow_out_of_graph_fallback") == "true"

	best, scored, err := h.searcher.GetRepresentativeToken(c.Request.Context(), tokens, hash, opts)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if scored != nil {
		c.JSON(http.StatusOK, gin.H{"candidates": scored})
		return
	}
	c.JSON(http.StatusOK, gin.H{"representative": best})
}

// handleCompare implements GET /api/v1/compare?a=<token>&b=<token>
// (spec.md §4.3.2).
func (h *APIHandler) handleCompare(c *gin.Context) {
	a, b := c.Query("a"), c.Query("b")
	if a == "" || b == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "supply both a and b query params"})
		return
	}
	withRowCount := c.Query("with_row_count") == "true"

	cmp, err := h.searcher.CompareTokens(c.Request.Context(), a, b, withRowCount)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if cmp == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no edge between these tokens"})
		return
	}
	c.JSON(http.StatusOK, cmp)
}

// handleSimilar implements GET /api/v1/similar/:token (spec.md §4.3.2's
// get_related_tokens).
func (h *APIHandler) handleSimilar(c *gin.Context) {
	related, err := h.searcher.GetRelatedTokens(c.Request.Context(), c.Param("token"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, related)
}

// handleGraph implements GET /api/v1/graph/:hash (spec.md §4.3.3's
// get_graph, per-sample adjacency extraction).
func (h *APIHandler) handleGraph(c *gin.Context) {
	adj, err := h.searcher.GetGraph(c.Request.Context(), c.Param("hash"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if adj == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown hash"})
		return
	}
	c.JSON(http.StatusOK, adj)
}
