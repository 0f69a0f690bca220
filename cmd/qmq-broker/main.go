// Command qmq-broker runs a standalone Majordomo-protocol broker,
// routing client requests to registered workers by service name.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/nowrozi/qmq/internal/qlog"
	"github.com/nowrozi/qmq/mdp"
	"github.com/nowrozi/qmq/qconfig"
)

const version = "0.1.0"

func main() {
	configPath := flag.String("config", "", "path to a broker config YAML file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		return
	}

	cfg, err := qconfig.LoadBrokerConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "qmq-broker: %v\n", err)
		os.Exit(1)
	}
	qlog.Initialize(cfg.Log)

	broker, err := mdp.NewBroker(cfg.Endpoint)
	if err != nil {
		log.WithError(err).Fatal("failed to create broker")
	}

	if cfg.SnapshotStore {
		store, err := mdp.NewBoltPersistenceStore(cfg.SnapshotPath)
		if err != nil {
			log.WithError(err).Fatal("failed to open snapshot store")
		}
		broker.UsePersistence(store)
	}

	if err := broker.Bind(); err != nil {
		log.WithError(err).Fatal("failed to bind broker")
	}
	defer func() { _ = broker.Close() }()

	done := make(chan bool, 1)
	go broker.Run(done)

	log.WithField("endpoint", cfg.Endpoint).Info("broker started")

	termChan := make(chan os.Signal, 1)
	signal.Notify(termChan, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-termChan:
	case <-done:
	}

	log.Info("broker exiting")
}
