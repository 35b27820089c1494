package server

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Tyrowin/linechat/internal/protocol"
)

// Monitor periodically pings every registered session and evicts the ones
// that stopped answering.
type Monitor struct {
	registry     *Registry
	initialDelay time.Duration
	interval     time.Duration
	timeout      time.Duration
	log          *logrus.Entry
}

// NewMonitor creates a Monitor for the sessions in registry.
func NewMonitor(registry *Registry, cfg HeartbeatConfig, log *logrus.Entry) *Monitor {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Monitor{
		registry:     registry,
		initialDelay: positiveDuration(cfg.InitialDelay, defaultHeartbeatDelay).Std(),
		interval:     positiveDuration(cfg.Interval, defaultHeartbeatEvery).Std(),
		timeout:      positiveDuration(cfg.Timeout, defaultHeartbeatTimeout).Std(),
		log:          log.WithField("component", "heartbeat"),
	}
}

// Run ticks until ctx is cancelled: first after the initial delay, then at
// every interval.
func (m *Monitor) Run(ctx context.Context) {
	timer := time.NewTimer(m.initialDelay)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			m.tick(time.Now())
			timer.Reset(m.interval)
		}
	}
}

// tick pings the snapshot, then evicts sessions whose last PONG is older
// than the timeout. Neither step waits on a slow session.
func (m *Monitor) tick(now time.Time) int {
	sessions := m.registry.All()
	ping := protocol.Ping()
	for _, s := range sessions {
		s.Send(ping)
	}

	evicted := 0
	for _, s := range sessions {
		idle := now.Sub(s.LastPongAt())
		if idle <= m.timeout {
			continue
		}
		m.log.WithFields(logrus.Fields{
			"session": s.ID(),
			"user":    s.Username(),
			"idle":    idle.Round(time.Millisecond),
		}).Warn("Evicting unresponsive session")
		go s.Disconnect(ReasonHeartbeatTimeout)
		evicted++
	}
	return evicted
}
