package syncer

import (
	"context"
	"time"
)

// Pinger is anything that can cheaply check remote reachability
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingProbe treats a successful ping within Timeout as connected
type PingProbe struct {
	Pinger  Pinger
	Timeout time.Duration
}

func NewPingProbe(p Pinger, timeout time.Duration) *PingProbe {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &PingProbe{Pinger: p, Timeout: timeout}
}

func (p *PingProbe) IsConnected(ctx context.Context) bool {
	if p == nil || p.Pinger == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()
	return p.Pinger.Ping(ctx) == nil
}
