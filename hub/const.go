// Package hub implements a higher-level broker that pairs clients and
// workers by registration rather than by named service: a registrar
// (ROUTER) handles registration and state messages, a PUB/ROUTER ping/pong
// pair tracks worker liveness, and a notifier PUB fans out registry
// changes to every connected client.
//
// Grounded on original_source/qmq/qhub.h/qhub.cpp/hub_p.h's QHub/QClient/
// QWorker classes and their five-socket wire protocol, with the reference
// core/mdp broker's code shape (map-plus-ordered-list registries,
// finalizer cleanup, heartbeat-ticker Run loop) borrowed for idiom.
package hub

import "time"

// Registrar wire headers: seven printable bytes identifying the sender as
// a client or a worker.
const (
	HeaderClient = "SRCL010"
	HeaderWorker = "SRWO010"
)

// Client command codes, carried as the numeric prefix of a "<code>-<value>"
// command frame on the registrar socket.
const (
	CmdRequest   = 1 // CMD_REQ: register / query
	CmdWorkerCmd = 3 // CMD_WORKER_CMD: forward a command to a named worker
	CmdState     = 5 // CMD_STATE: client state change, e.g. "Disconnected"
)

// Worker command codes, carried the same way on the registrar socket.
const (
	CmdRegister = 4 // CMD_REG: worker registration
)

// StateDisconnected is the CMD_STATE value a client sends on shutdown.
const StateDisconnected = "Disconnected"

// pingLiteral is the second frame published on the ping socket and echoed
// back by workers on the pong socket.
const pingLiteral = "Ping"

// workerCommandFrame marks a pong-socket message as a forwarded
// CMD_WORKER_CMD rather than a ping/pong heartbeat exchange.
const workerCommandFrame = "Command"

const (
	// DefaultHeartbeat is the interval between ping broadcasts and the
	// worker expiry window.
	DefaultHeartbeat = 2000 * time.Millisecond
	// DefaultLiveness is the number of missed heartbeats a worker
	// tolerates before being purged.
	DefaultLiveness = 2
)
