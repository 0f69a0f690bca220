// Package qhttp carries the small amount of ambient HTTP tooling used by the
// Hub's operational surface. It is not part of any wire contract.
package qhttp

import (
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// LoggerMiddleware logs method, status, latency, client IP, and full request
// URI (including query string) for every request via logrus.
func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		uri := c.Request.URL.RequestURI()
		method := c.Request.Method

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		log.WithFields(log.Fields{
			"status":     status,
			"latency":    latency,
			"client_ip":  c.ClientIP(),
			"req_method": method,
			"req_uri":    uri,
		}).Infof("status=%d method=%s uri=%s latency=%s", status, method, uri, latency)
	}
}
