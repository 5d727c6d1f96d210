package middleware

import (
	"github.com/gin-contrib/secure"
	"github.com/gin-gonic/gin"
)

func SecureHeaders(sslRedirect bool) gin.HandlerFunc {
	cfg := secure.Config{
		FrameDeny:          true,
		ContentTypeNosniff: true,
		BrowserXssFilter:   true,
		ReferrerPolicy:     "strict-origin-when-cross-origin",
	}
	if sslRedirect {
		cfg.SSLRedirect = true
		cfg.STSSeconds = 31536000
		cfg.STSIncludeSubdomains = true
	}
	return secure.New(cfg)
}
