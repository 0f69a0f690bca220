// Package mdp implements the Majordomo request/reply broker protocol: a
// ROUTER-based broker matching clients to round-robin worker pools by
// service name, with heartbeats, worker lifecycle management, and the
// Majordomo Management Interface (MMI) built in.
//
// Grounded on the reference core/mdp package's architecture (Broker/
// Service/brokerWorker types, request persistence, MMI handler), but
// reconstructed to the literal wire protocol in
// original_source/qmq/mdp.h/mdp.cpp: client header QMDPC01, worker header
// QMDPW0X, worker commands READY/REQUEST/REPORT/HEARTBEAT/DISCONNECT,
// client reply codes REPORT/NAK. The reference's later MDP/0.2 evolution
// (MDPC02/MDPW02, PARTIAL/FINAL streaming replies) is not reproduced.
package mdp

import "time"

const (
	// MdpClient is the client-side protocol header.
	MdpClient = "QMDPC01"

	// MdpWorker is the worker-side protocol header.
	MdpWorker = "QMDPW0X"

	// HeartbeatLiveness is the number of heartbeat cycles a worker is
	// deemed to be dead after.
	HeartbeatLiveness = 3

	// HeartbeatInterval is the interval at which the broker and workers
	// send heartbeats.
	HeartbeatInterval = 2500 * time.Millisecond

	// HeartbeatExpiry is the total duration a worker is given before
	// being purged for silence.
	HeartbeatExpiry = HeartbeatInterval * HeartbeatLiveness
)

// Client reply codes, sent from broker to client.
const (
	MdpcReport = "REPORT"
	MdpcNak    = "NAK"
)

// Worker commands, exchanged between broker and worker.
const (
	MdpwReady      = "READY"
	MdpwRequest    = "REQUEST"
	MdpwReport     = "REPORT"
	MdpwHeartbeat  = "HEARTBEAT"
	MdpwDisconnect = "DISCONNECT"
)

// MMI (Majordomo Management Interface) constants.
const (
	MMINamespace = "mmi."

	MMIService   = "mmi.service"
	MMIWorkers   = "mmi.workers"
	MMIHeartbeat = "mmi.heartbeat"
	MMIBroker    = "mmi.broker"
	MMIFilter    = "mmi.filter"
)

// MMI filter operations, the first operand of an mmi.filter request.
const (
	MMIFilterEnable  = "enable"
	MMIFilterDisable = "disable"
)

// MMI response codes, HTTP-status-inspired.
const (
	MMICodeOK             = "200"
	MMICodeBadRequest     = "400"
	MMICodeNotFound       = "404"
	MMICodeNotImplemented = "501"
	MMICodeError          = "500"
)

var (
	// MMIServices lists all supported MMI services and their purpose.
	MMIServices = map[string]string{
		MMIService:   "Check if a service is available",
		MMIWorkers:   "List workers for a service",
		MMIHeartbeat: "Echo heartbeat",
		MMIBroker:    "Get broker information",
		MMIFilter:    "Toggle a per-service command blacklist",
	}
)

const boolTrue = "true"
