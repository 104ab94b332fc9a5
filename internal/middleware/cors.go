package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/aura-ads/wizard/config"
)

// CORSConfig describes which browser origins may call the API and what they may send.
type CORSConfig struct {
	AllowedOrigins string // "*" or comma-separated, e.g. "http://localhost:5173"
	AllowedMethods []string
	AllowedHeaders []string
	MaxAgeSec      int
}

// CORSConfigFrom maps the server config section to a CORSConfig.
func CORSConfigFrom(c config.ServerConfig) CORSConfig {
	return CORSConfig{
		AllowedOrigins: c.CORSAllowedOrigins,
		AllowedMethods: c.CORSAllowedMethods,
		AllowedHeaders: c.CORSAllowedHeaders,
		MaxAgeSec:      c.CORSMaxAgeSec,
	}
}

var (
	defaultCORSMethods = []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions}
	defaultCORSHeaders = []string{"Content-Type", "Authorization"}
)

// CORS sets CORS headers for the wizard front-end. A preflight asking for a method
// outside AllowedMethods is answered with 403.
func CORS(cfg CORSConfig) gin.HandlerFunc {
	origins := parseOrigins(cfg.AllowedOrigins)
	methods := cfg.AllowedMethods
	if len(methods) == 0 {
		methods = defaultCORSMethods
	}
	headers := cfg.AllowedHeaders
	if len(headers) == 0 {
		headers = defaultCORSHeaders
	}
	allowed := make(map[string]bool, len(methods))
	for _, m := range methods {
		allowed[strings.ToUpper(m)] = true
	}
	allowMethods := strings.Join(methods, ", ")
	allowHeaders := strings.Join(headers, ", ")
	maxAge := ""
	if cfg.MaxAgeSec > 0 {
		maxAge = strconv.Itoa(cfg.MaxAgeSec)
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		allowOrigin := ""
		if len(origins) == 0 || origins["*"] {
			allowOrigin = "*"
		} else if origin != "" && origins[origin] {
			allowOrigin = origin
			c.Header("Vary", "Origin")
		}

		if c.Request.Method == http.MethodOptions {
			if m := c.GetHeader("Access-Control-Request-Method"); m != "" && !allowed[strings.ToUpper(m)] {
				c.AbortWithStatus(http.StatusForbidden)
				return
			}
		}
		if allowOrigin != "" {
			c.Header("Access-Control-Allow-Origin", allowOrigin)
			c.Header("Access-Control-Allow-Methods", allowMethods)
			c.Header("Access-Control-Allow-Headers", allowHeaders)
			if maxAge != "" {
				c.Header("Access-Control-Max-Age", maxAge)
			}
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func parseOrigins(s string) map[string]bool {
	m := make(map[string]bool)
	for _, o := range strings.Split(strings.TrimSpace(s), ",") {
		if o = strings.TrimSpace(o); o != "" {
			m[o] = true
		}
	}
	return m
}
