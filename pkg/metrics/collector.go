// Package metrics exposes gateway activity as Prometheus metrics. The
// Collector is a gateway.Observer.
package metrics

import (
	"fmt"
	"net/http"

	"github.com/dbehnke/ysf-gateway/pkg/gateway"
	"github.com/dbehnke/ysf-gateway/pkg/reflectors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ysfgw"

// Collector holds the gateway metrics
type Collector struct {
	gatherer prometheus.Gatherer

	FramesRelayed  *prometheus.CounterVec
	Transmissions  *prometheus.CounterVec
	LinkChanges    *prometheus.CounterVec
	WiresXCommands *prometheus.CounterVec
	LinkTimeouts   prometheus.Counter

	Destination prometheus.Gauge
	Talking     *prometheus.GaugeVec
}

var _ gateway.Observer = (*Collector)(nil)

// NewCollector registers the gateway metrics against reg, the default
// registry when nil
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	c := &Collector{gatherer: gatherer}
	var err error

	if c.FramesRelayed, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "frames_relayed_total",
		Help:      "Frames relayed, by direction and remote network.",
	}, []string{"direction", "network"})); err != nil {
		return nil, err
	}
	if c.Transmissions, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "transmissions_total",
		Help:      "Voice transmissions started, by direction.",
	}, []string{"direction"})); err != nil {
		return nil, err
	}
	if c.LinkChanges, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "link_changes_total",
		Help:      "Link changes, by the network linked afterwards.",
	}, []string{"network"})); err != nil {
		return nil, err
	}
	if c.WiresXCommands, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "wiresx_commands_total",
		Help:      "Wires-X commands received from the repeater.",
	}, []string{"command"})); err != nil {
		return nil, err
	}
	if c.LinkTimeouts, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tg_change_timeouts_total",
		Help:      "Talkgroup changes abandoned waiting for the DMR network.",
	})); err != nil {
		return nil, err
	}
	if c.Destination, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "linked_destination",
		Help:      "ID of the linked destination, 0 when unlinked.",
	})); err != nil {
		return nil, err
	}
	if c.Talking, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "transmission_active",
		Help:      "1 while a transmission is relayed in the direction.",
	}, []string{"direction"})); err != nil {
		return nil, err
	}

	return c, nil
}

// Handler exposes the registry in the Prometheus text format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}

// LinkChanged implements gateway.Observer
func (c *Collector) LinkChanged(s gateway.Status) {
	c.LinkChanges.WithLabelValues(s.Network).Inc()
	c.Destination.Set(float64(s.DstID))
}

// FrameRelayed implements gateway.Observer
func (c *Collector) FrameRelayed(dir gateway.Direction, network reflectors.NetworkType) {
	c.FramesRelayed.WithLabelValues(dir.String(), network.String()).Inc()
}

// Transmission implements gateway.Observer
func (c *Collector) Transmission(dir gateway.Direction, _ string, active bool) {
	if active {
		c.Transmissions.WithLabelValues(dir.String()).Inc()
		c.Talking.WithLabelValues(dir.String()).Set(1)
		return
	}
	c.Talking.WithLabelValues(dir.String()).Set(0)
}

// WiresXCommand implements gateway.Observer
func (c *Collector) WiresXCommand(command, _ string) {
	c.WiresXCommands.WithLabelValues(command).Inc()
}

// LinkTimeout implements gateway.Observer
func (c *Collector) LinkTimeout() {
	c.LinkTimeouts.Inc()
}

// register adds c to reg, returning the collector already registered
// under the same name when there is one
func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		are, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return c, err
		}
		existing, ok := are.ExistingCollector.(T)
		if !ok {
			return c, fmt.Errorf("collector already registered with incompatible type: %w", err)
		}
		return existing, nil
	}
	return c, nil
}
