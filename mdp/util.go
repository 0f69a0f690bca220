package mdp

import "fmt"

func popWorker(workers []*brokerWorker) (worker *brokerWorker, rest []*brokerWorker) {
	worker = workers[0]
	rest = workers[1:]
	return
}

func delWorker(workers []*brokerWorker, worker *brokerWorker) []*brokerWorker {
	for i := 0; i < len(workers); i++ {
		if workers[i] == worker {
			workers = append(workers[:i], workers[i+1:]...)
			i--
		}
	}
	return workers
}

func stringArrayToByte2D(in []string) (out [][]byte) {
	for _, str := range in {
		out = append(out, []byte(str))
	}
	return
}

func byte2DToStringArray(in [][]byte) (out []string) {
	for _, bytes := range in {
		out = append(out, string(bytes))
	}
	return
}

// popStr removes and returns the first element of msg.
func popStr(msg []string) (head string, rest []string) {
	if len(msg) == 0 {
		return "", msg
	}
	return msg[0], msg[1:]
}

// popMsg removes and returns the first element of a queue of pending
// request bodies.
func popMsg(queue [][]string) ([]string, [][]string) {
	if len(queue) == 0 {
		return nil, queue
	}
	return queue[0], queue[1:]
}

// unwrap removes the client return-address envelope (one identity frame,
// followed by an empty delimiter if present) from the front of msg.
func unwrap(msg []string) (address string, rest []string) {
	address, rest = popStr(msg)
	if len(rest) > 0 && rest[0] == "" {
		rest = rest[1:]
	}
	return
}

// wrap prepends a return-address envelope (identity, empty delimiter) to msg.
func wrap(address string, msg []string) []string {
	out := make([]string, 0, len(msg)+2)
	out = append(out, address, "")
	return append(out, msg...)
}

// validateClientMessage checks the frames of a client->broker request,
// after the leading identity and empty-delimiter frames have already been
// stripped by the broker's router-socket receive.
func validateClientMessage(frames []string) error {
	if len(frames) < 2 {
		return fmt.Errorf("client message must have at least 2 frames, got %d", len(frames))
	}
	if frames[0] != MdpClient {
		return fmt.Errorf("frame 0 must be %s, got %s", MdpClient, frames[0])
	}
	if frames[1] == "" {
		return fmt.Errorf("frame 1 (service) cannot be empty")
	}
	return nil
}

// validateBrokerToClientMessage checks the frames of a broker->client
// reply, after the leading empty-delimiter frame has been stripped.
func validateBrokerToClientMessage(frames []string) error {
	if len(frames) < 3 {
		return fmt.Errorf("broker reply must have at least 3 frames, got %d", len(frames))
	}
	if frames[0] != MdpClient {
		return fmt.Errorf("frame 0 must be %s, got %s", MdpClient, frames[0])
	}
	if frames[1] != MdpcReport && frames[1] != MdpcNak {
		return fmt.Errorf("frame 1 must be %s or %s, got %s", MdpcReport, MdpcNak, frames[1])
	}
	if frames[2] == "" {
		return fmt.Errorf("frame 2 (service) cannot be empty")
	}
	return nil
}

// validateWorkerMessage checks the frames of a worker->broker message,
// after the leading identity and empty-delimiter frames have been stripped.
func validateWorkerMessage(frames []string) error {
	if len(frames) < 2 {
		return fmt.Errorf("worker message must have at least 2 frames, got %d", len(frames))
	}
	if frames[0] != MdpWorker {
		return fmt.Errorf("frame 0 must be %s, got %s", MdpWorker, frames[0])
	}
	switch frames[1] {
	case MdpwReady, MdpwRequest, MdpwReport, MdpwHeartbeat, MdpwDisconnect:
	default:
		return fmt.Errorf("frame 1 must be a valid worker command, got %s", frames[1])
	}
	return nil
}
