// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package comms

import "time"

// Defaults for the link timing
const (
	DefaultBaudRate           = 115200
	DefaultBackoff            = 30 * time.Second
	DefaultBurstTimeout       = 5 * time.Second
	DefaultInfoTimeout        = 200 * time.Millisecond
	DefaultKeepaliveInterval  = 15 * time.Second
	DefaultHistoricalInterval = 60 * time.Second
	DefaultTickInterval       = 10 * time.Millisecond
	DefaultPollInterval       = 100 * time.Millisecond

	// breakSettle is the pause between the line break and the second flush
	breakSettle = 250 * time.Millisecond
)

type config struct {
	baudRate           int
	backoff            time.Duration
	burstTimeout       time.Duration
	infoTimeout        time.Duration
	keepaliveInterval  time.Duration
	historicalInterval time.Duration
	tickInterval       time.Duration
	pollInterval       time.Duration
}

func defaultConfig() config {
	return config{
		baudRate:           DefaultBaudRate,
		backoff:            DefaultBackoff,
		burstTimeout:       DefaultBurstTimeout,
		infoTimeout:        DefaultInfoTimeout,
		keepaliveInterval:  DefaultKeepaliveInterval,
		historicalInterval: DefaultHistoricalInterval,
		tickInterval:       DefaultTickInterval,
		pollInterval:       DefaultPollInterval,
	}
}

// Option configures an Engine
type Option func(*config)

// WithBaudRate sets the serial speed passed to Transport.Open
func WithBaudRate(baud int) Option {
	return func(c *config) { c.baudRate = baud }
}

// WithBackoff sets the delay before retrying a failed bring-up
func WithBackoff(d time.Duration) Option {
	return func(c *config) { c.backoff = d }
}

// WithBurstTimeout sets how long to wait for the post-reset burst to end
func WithBurstTimeout(d time.Duration) Option {
	return func(c *config) { c.burstTimeout = d }
}

// WithInfoTimeout sets the wait for each info query reply
func WithInfoTimeout(d time.Duration) Option {
	return func(c *config) { c.infoTimeout = d }
}

// WithKeepaliveInterval sets the PERIODIC_STATUS_REQUEST cadence
func WithKeepaliveInterval(d time.Duration) Option {
	return func(c *config) { c.keepaliveInterval = d }
}

// WithHistoricalInterval sets the GET_HISTORICAL_DATA_BUFFERS cadence
func WithHistoricalInterval(d time.Duration) Option {
	return func(c *config) { c.historicalInterval = d }
}

// WithTickInterval sets the sleep between state machine ticks
func WithTickInterval(d time.Duration) Option {
	return func(c *config) { c.tickInterval = d }
}

// WithPollInterval sets the sleep after an empty read during a handshake wait
func WithPollInterval(d time.Duration) Option {
	return func(c *config) { c.pollInterval = d }
}
