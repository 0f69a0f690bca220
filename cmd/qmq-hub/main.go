// Command qmq-hub runs a standalone Hub control plane: client/worker
// registration by identity, liveness tracking, and registry-change
// notification, plus an admin HTTP surface for health checks and stats.
package main

import (
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/nelkinda/health-go"
	log "github.com/sirupsen/logrus"

	"github.com/nowrozi/qmq/hub"
	"github.com/nowrozi/qmq/internal/qhttp"
	"github.com/nowrozi/qmq/internal/qlog"
	"github.com/nowrozi/qmq/qconfig"
)

const version = "0.1.0"

func main() {
	configPath := flag.String("config", "", "path to a hub config YAML file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		return
	}

	cfg, err := qconfig.LoadHubConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "qmq-hub: %v\n", err)
		os.Exit(1)
	}
	qlog.Initialize(cfg.Log)

	basePort, err := basePortFromEndpoint(cfg.BaseEndpoint)
	if err != nil {
		log.WithError(err).Fatal("invalid base_endpoint")
	}

	h, err := hub.New(basePort)
	if err != nil {
		log.WithError(err).Fatal("failed to create hub")
	}
	h.SetHeartbeat(cfg.HeartbeatInterval)
	h.SetLiveness(cfg.WorkerLiveness)
	defer func() { _ = h.Close() }()

	done := make(chan bool, 1)
	go h.Run(done)

	log.WithFields(log.Fields{
		"hub_id":    h.HubID(),
		"registrar": h.RegistrarPort(),
	}).Info("hub started")

	if cfg.HTTPAddr != "" {
		go runHTTPServer(cfg.HTTPAddr, h)
	}

	termChan := make(chan os.Signal, 1)
	signal.Notify(termChan, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-termChan:
		h.Stop()
	case <-done:
	}

	log.Info("hub exiting")
}

// basePortFromEndpoint extracts the port number from a "tcp://*:PORT"
// style endpoint string.
func basePortFromEndpoint(endpoint string) (int, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return 0, fmt.Errorf("parsing endpoint %q: %w", endpoint, err)
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		return 0, fmt.Errorf("endpoint %q has no numeric port: %w", endpoint, err)
	}
	return port, nil
}

func runHTTPServer(addr string, h *hub.Hub) {
	checker := health.New(health.Health{Version: "1", ReleaseID: version})

	r := gin.New()
	r.Use(gin.Recovery(), qhttp.LoggerMiddleware())
	r.GET("/healthz", gin.WrapF(checker.Handler))
	r.GET("/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, h.Stats())
	})

	if err := r.Run(addr); err != nil && err != http.ErrServerClosed {
		log.WithError(err).Error("hub HTTP server stopped")
	}
}
