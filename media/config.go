// SPDX-License-Identifier: MPL-2.0
// Copyright (C) 2024 Emir Aganovic

package media

import "time"

// TOSClass is the IP TOS class a Transport's sockets should request.
// It is applied best-effort; see applyTOS in tos_linux.go.
type TOSClass int

const (
	TOSNone TOSClass = iota
	TOSLowDelay
	TOSThroughput
	TOSReliability
	TOSMinCost
)

// tosByte returns the raw IP_TOS byte value conventionally used for
// each class (matches the values the original yrtp engine wrote).
func (c TOSClass) tosByte() byte {
	switch c {
	case TOSLowDelay:
		return 0x10
	case TOSThroughput:
		return 0x08
	case TOSReliability:
		return 0x04
	case TOSMinCost:
		return 0x02
	default:
		return 0
	}
}

// Config carries the configuration surface a caller uses to build a
// Transport or Session. It is not a file format; this core never
// parses configuration files itself -- a caller owning that concern
// builds a Config value and passes it in.
type Config struct {
	MinPort int
	MaxPort int

	Buffer int

	MinSleep time.Duration
	DefSleep time.Duration

	AutoAddr  bool
	AnySSRC   bool
	RTCP      bool
	DrillHole bool

	Timeout   time.Duration
	WarnLater bool

	Padding int
	TOS     TOSClass
	LocalIP string

	// NotifyMsg templates Notification.Target for every event this
	// Session/Monitor/Reflector raises. "{id}" is replaced with the
	// notification's logical ID; empty means Target falls back to ID
	// unchanged.
	NotifyMsg string

	// RTCPInterval paces Session's periodic Sender Report emission.
	// Zero falls back to 5s.
	RTCPInterval time.Duration
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		MinPort:   16384,
		MaxPort:   32768,
		Buffer:    240,
		MinSleep:  1 * time.Millisecond,
		DefSleep:  5 * time.Millisecond,
		AutoAddr:  true,
		AnySSRC:   false,
		RTCP:      true,
		DrillHole: false,
		Timeout:   3000 * time.Millisecond,
		WarnLater: false,
		Padding:      0,
		TOS:          TOSNone,
		NotifyMsg:    "",
		RTCPInterval: 5 * time.Second,
	}
}

// Option mutates a Config using the usual functional-options
// convention rather than a config-file parser, which is out of scope
// for this core.
type Option func(*Config)

func WithPortRange(min, max int) Option {
	return func(c *Config) { c.MinPort, c.MaxPort = min, max }
}

func WithBuffer(samples int) Option {
	return func(c *Config) { c.Buffer = samples }
}

func WithGroupSleep(d time.Duration) Option {
	return func(c *Config) { c.DefSleep = clampDuration(d, 1*time.Millisecond, 50*time.Millisecond) }
}

func WithMinSleep(d time.Duration) Option {
	return func(c *Config) { c.MinSleep = clampDuration(d, 1*time.Millisecond, 20*time.Millisecond) }
}

func WithAutoAddr(b bool) Option {
	return func(c *Config) { c.AutoAddr = b }
}

func WithAnySSRC(b bool) Option {
	return func(c *Config) { c.AnySSRC = b }
}

func WithRTCP(b bool) Option {
	return func(c *Config) { c.RTCP = b }
}

func WithDrillHole(b bool) Option {
	return func(c *Config) { c.DrillHole = b }
}

func WithTimeout(d time.Duration, warnLater bool) Option {
	return func(c *Config) { c.Timeout = d; c.WarnLater = warnLater }
}

func WithPadding(n int) Option {
	return func(c *Config) { c.Padding = n }
}

func WithTOS(class TOSClass) Option {
	return func(c *Config) { c.TOS = class }
}

func WithLocalIP(ip string) Option {
	return func(c *Config) { c.LocalIP = ip }
}

func WithNotifyMsg(name string) Option {
	return func(c *Config) { c.NotifyMsg = name }
}

func WithRTCPInterval(d time.Duration) Option {
	return func(c *Config) { c.RTCPInterval = d }
}

// NewConfig builds a Config from DefaultConfig with opts applied.
func NewConfig(opts ...Option) Config {
	c := DefaultConfig()
	for _, opt := range opts {
		opt(&c)
	}
	c.DefSleep = clampDuration(c.DefSleep, 1*time.Millisecond, 50*time.Millisecond)
	c.MinSleep = clampDuration(c.MinSleep, 1*time.Millisecond, 20*time.Millisecond)
	if c.RTCPInterval <= 0 {
		c.RTCPInterval = 5 * time.Second
	}
	return c
}

func clampDuration(d, min, max time.Duration) time.Duration {
	if d < min {
		return min
	}
	if d > max {
		return max
	}
	return d
}
