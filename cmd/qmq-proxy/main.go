// Command qmq-proxy runs a standalone XSUB/XPUB forwarder between a
// frontend and backend endpoint, with an optional capture tap.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/nowrozi/qmq/internal/qlog"
	"github.com/nowrozi/qmq/proxy"
	"github.com/nowrozi/qmq/qconfig"
	"github.com/nowrozi/qmq/qcontext"
)

const version = "0.1.0"

func main() {
	frontend := flag.String("frontend", "tcp://*:6000", "endpoint publishers connect to")
	backend := flag.String("backend", "tcp://*:6001", "endpoint subscribers connect to")
	capture := flag.String("capture", "", "optional PUSH endpoint every forwarded frame is also sent to")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		return
	}

	qlog.Initialize(qconfig.LogConfig{Level: "info", Formatter: "text"})

	ctx := qcontext.Default("QMQ_PROXY")
	defer ctx.Close()

	fwd, err := proxy.NewForwarder(ctx)
	if err != nil {
		log.WithError(err).Fatal("failed to start forwarder")
	}
	defer func() { _ = fwd.Close() }()

	if err := fwd.Frontend("XSUB", *frontend); err != nil {
		log.WithError(err).Fatal("failed to configure frontend")
	}
	if err := fwd.Backend("XPUB", *backend); err != nil {
		log.WithError(err).Fatal("failed to configure backend")
	}
	if *capture != "" {
		if err := fwd.Capture(*capture); err != nil {
			log.WithError(err).Fatal("failed to configure capture")
		}
	}

	log.WithFields(log.Fields{"frontend": *frontend, "backend": *backend}).Info("proxy started")

	termChan := make(chan os.Signal, 1)
	signal.Notify(termChan, syscall.SIGINT, syscall.SIGTERM)
	<-termChan

	log.Info("proxy exiting")
}
