// Command qmq-worker-echo is a minimal Majordomo worker that echoes
// every request back as its reply, useful for exercising a broker by
// hand or in integration tests.
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
	broker := flag.String("broker", "tcp://127.0.0.1:5555", "broker endpoint to connect to")
	service := flag.String("service", "echo", "service name to register as")
	verbose := flag.Bool("verbose", false, "log every request/reply")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		return
	}

	qlog.Initialize(qconfig.LogConfig{Level: "info", Formatter: "text"})

	worker, err := mdp.NewWorker(*broker, *service)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to broker")
	}
	worker.SetVerbose(*verbose)
	defer worker.Close()

	log.WithFields(log.Fields{"broker": *broker, "service": *service}).Info("echo worker started")

	termChan := make(chan os.Signal, 1)
	signal.Notify(termChan, syscall.SIGINT, syscall.SIGTERM)

	requestDone := make(chan struct{})
	go runEchoLoop(worker, requestDone)

	select {
	case <-termChan:
		worker.Shutdown()
	case <-requestDone:
	}

	log.Info("echo worker exiting")
}

func runEchoLoop(worker *mdp.Worker, done chan struct{}) {
	defer close(done)

	var reply []string
	for {
		request, err := worker.Recv(reply)
		if err != nil {
			if mdp.IsPermanentError(err) {
				log.WithError(err).Error("echo worker stopping after permanent error")
				return
			}
			log.WithError(err).Warn("echo worker continuing after transient error")
			reply = nil
			continue
		}
		reply = request // echo the request back verbatim
	}
}
