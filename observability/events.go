package observability

import (
	"credo/core/events"
)

// EventSink counts committed ledger events. It satisfies events.Emitter so it
// can sit in the pool's fanout next to the journal and the stream hub.
type EventSink struct {
	metrics *LendingMetrics
}

// NewEventSink binds the sink to m, or to the process registry when m is nil.
func NewEventSink(m *LendingMetrics) *EventSink {
	if m == nil {
		m = Lending()
	}
	return &EventSink{metrics: m}
}

func (s *EventSink) Emit(evt events.Event) {
	if s == nil || evt == nil {
		return
	}
	s.metrics.events.WithLabelValues(evt.EventType()).Inc()
	if liq, ok := evt.(events.LendingLiquidation); ok {
		wire := liq.Event()
		s.metrics.liquidations.WithLabelValues(orUnknown(wire.Attributes["debtAsset"]), orUnknown(wire.Attributes["collateralAsset"])).Inc()
	}
}
