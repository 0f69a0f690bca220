package qconfig

import (
	"os"
	"strconv"
)

// ContextConfig holds the process-wide socket defaults applied to every
// socket created from a qcontext.Context, and the IO-thread count used to
// initialize the underlying transport. These mirror the environment
// variables recognised by the singleton context: {PREFIX}_IO_THREADS,
// {PREFIX}_MAX_SOCKETS, {PREFIX}_LINGER, {PREFIX}_SNDHWM, {PREFIX}_RCVHWM,
// {PREFIX}_PIPEHWM, {PREFIX}_IPV6.
type ContextConfig struct {
	IOThreads  int  `yaml:"io_threads" default:"1"`
	MaxSockets int  `yaml:"max_sockets" default:"1024"`
	Linger     int  `yaml:"linger_ms" default:"0"`
	SndHWM     int  `yaml:"sndhwm" default:"1000"`
	RcvHWM     int  `yaml:"rcvhwm" default:"1000"`
	PipeHWM    int  `yaml:"pipehwm" default:"1000"`
	IPv6       bool `yaml:"ipv6" default:"false"`
}

// DefaultContextConfig returns the struct-tag defaults without touching the
// environment.
func DefaultContextConfig() ContextConfig {
	return ContextConfig{
		IOThreads:  1,
		MaxSockets: 1024,
		Linger:     0,
		SndHWM:     1000,
		RcvHWM:     1000,
		PipeHWM:    1000,
		IPv6:       false,
	}
}

// LoadContextConfigFromEnv applies the recognised environment-variable
// overrides for the given prefix on top of the defaults. A prefix of "QMQ"
// recognises QMQ_IO_THREADS, QMQ_MAX_SOCKETS, and so on.
func LoadContextConfigFromEnv(prefix string) ContextConfig {
	cfg := DefaultContextConfig()

	if v, ok := envInt(prefix + "_IO_THREADS"); ok {
		cfg.IOThreads = v
	}
	if v, ok := envInt(prefix + "_MAX_SOCKETS"); ok {
		cfg.MaxSockets = v
	}
	if v, ok := envInt(prefix + "_LINGER"); ok {
		cfg.Linger = v
	}
	if v, ok := envInt(prefix + "_SNDHWM"); ok {
		cfg.SndHWM = v
	}
	if v, ok := envInt(prefix + "_RCVHWM"); ok {
		cfg.RcvHWM = v
	}
	if v, ok := envInt(prefix + "_PIPEHWM"); ok {
		cfg.PipeHWM = v
	}
	if v, ok := os.LookupEnv(prefix + "_IPV6"); ok {
		cfg.IPv6 = v == "1" || v == "true"
	}

	return cfg
}

func envInt(key string) (int, bool) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}
