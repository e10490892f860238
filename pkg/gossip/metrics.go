package gossip

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// Metrics instruments for the gossip node.
// When no MeterProvider is configured (noop), all recording is zero-cost.
var (
	meter = otel.Meter("gossipnet.node")

	metricSent       metric.Int64Counter
	metricReceived   metric.Int64Counter
	metricDuplicates metric.Int64Counter
	metricBadPackets metric.Int64Counter
	metricPeersLive  metric.Int64UpDownCounter
	metricPowMs      metric.Float64Histogram
)

func init() {
	var err error

	metricSent, err = meter.Int64Counter("gossipnet.messages.sent",
		metric.WithDescription("Envelopes sent over UDP"),
		metric.WithUnit("{messages}"),
	)
	if err != nil {
		panic("otel meter: " + err.Error())
	}

	metricReceived, err = meter.Int64Counter("gossipnet.messages.received",
		metric.WithDescription("Envelopes decoded from inbound datagrams"),
		metric.WithUnit("{messages}"),
	)
	if err != nil {
		panic("otel meter: " + err.Error())
	}

	metricDuplicates, err = meter.Int64Counter("gossipnet.gossip.duplicates",
		metric.WithDescription("GOSSIP arrivals suppressed by the seen set"),
		metric.WithUnit("{messages}"),
	)
	if err != nil {
		panic("otel meter: " + err.Error())
	}

	metricBadPackets, err = meter.Int64Counter("gossipnet.packets.bad",
		metric.WithDescription("Datagrams dropped as malformed"),
		metric.WithUnit("{packets}"),
	)
	if err != nil {
		panic("otel meter: " + err.Error())
	}

	metricPeersLive, err = meter.Int64UpDownCounter("gossipnet.peers.active",
		metric.WithDescription("Entries in the peer table"),
		metric.WithUnit("{peers}"),
	)
	if err != nil {
		panic("otel meter: " + err.Error())
	}

	metricPowMs, err = meter.Float64Histogram("gossipnet.pow.compute_ms",
		metric.WithDescription("Time spent computing the admission proof"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		panic("otel meter: " + err.Error())
	}
}
