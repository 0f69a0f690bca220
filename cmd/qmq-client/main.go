// Command qmq-client sends one Majordomo request to a named service and
// prints the reply, useful for exercising a broker by hand.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/nowrozi/qmq/internal/qlog"
	"github.com/nowrozi/qmq/mdp"
	"github.com/nowrozi/qmq/qconfig"
)

const version = "0.1.0"

func main() {
	broker := flag.String("broker", "tcp://127.0.0.1:5555", "broker endpoint to connect to")
	service := flag.String("service", "echo", "service name to request")
	timeout := flag.Duration("timeout", 5*time.Second, "reply timeout")
	verbose := flag.Bool("verbose", false, "log the request/reply round trip")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		return
	}

	request := flag.Args()
	if len(request) == 0 {
		fmt.Fprintln(os.Stderr, "usage: qmq-client [flags] <request frame>...")
		os.Exit(2)
	}

	qlog.Initialize(qconfig.LogConfig{Level: "info", Formatter: "text"})

	client, err := mdp.NewClient(*broker)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to broker")
	}
	client.SetVerbose(*verbose)
	client.SetTimeout(*timeout)
	defer func() { _ = client.Close() }()

	command, reply, err := sendAndRecv(client, *service, request)
	if err != nil {
		log.WithError(err).Fatal("failed to receive reply")
	}

	fmt.Printf("%s: %s\n", command, strings.Join(reply, " | "))
}

// sendAndRecv sends the request and waits for a reply. A retryable
// failure (broker unreachable, poll/recv socket error, timeout) gets one
// reconnect-and-resend attempt; a permanent one is returned immediately.
func sendAndRecv(client *mdp.Client, service string, request []string) (command string, reply []string, err error) {
	if err = client.Send(service, request...); err != nil {
		return "", nil, fmt.Errorf("send request: %w", err)
	}

	command, reply, err = client.RecvReport()
	if err == nil {
		return command, reply, nil
	}
	if !mdp.IsRetryableError(err) {
		return "", nil, fmt.Errorf("receive reply: %w", err)
	}

	log.WithError(err).Warn("retryable error waiting for reply, reconnecting and retrying once")
	if rerr := client.ConnectToBroker(); rerr != nil {
		return "", nil, fmt.Errorf("reconnect after retryable error: %w", rerr)
	}
	if err = client.Send(service, request...); err != nil {
		return "", nil, fmt.Errorf("resend request: %w", err)
	}
	command, reply, err = client.RecvReport()
	if err != nil {
		return "", nil, fmt.Errorf("receive reply after retry: %w", err)
	}
	return command, reply, nil
}
