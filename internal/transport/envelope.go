// Package transport implements the message envelope, the in-process
// fanout bus, and the durable-stream bridge shared by every component.
package transport

import "time"

// Envelope is the wire shape shared by both transports: the in-process
// bus and the durable stream bridge. Payload encoding is the publisher's
// choice (compact binary preferred, JSON allowed for low-rate control
// topics); transport itself is payload-agnostic.
type Envelope struct {
	Seq     uint64
	TSMillis int64
	Source  string
	Topic   string
	Payload []byte
}

// Topic name constants, dot-delimited and pattern-subscribable.
const (
	TopicSignalEdge       = "signal.edge"
	TopicSignalArb        = "signal.arb"
	TopicExecutionRequest = "execution.request"
	TopicExecutionResult  = "execution.result"
	TopicPositionUpdate   = "position.update"
	TopicKillSwitch       = "kill_switch"
	TopicAuditExecution   = "audit.execution"
)

// PriceTopic builds the price.{venue}.{market_id} topic for a quote update.
func PriceTopic(venue, marketID string) string {
	return "price." + venue + "." + marketID
}

// EventTopic builds the event.{kind}.{event_id} topic for an event update.
func EventTopic(kind, eventID string) string {
	return "event." + kind + "." + eventID
}

// HealthTopic builds the health.{component}.{instance} heartbeat topic.
func HealthTopic(component, instance string) string {
	return "health." + component + "." + instance
}

// OrchestratorTopic builds the orchestrator.{assign|release} command topic.
func OrchestratorTopic(action string) string {
	return "orchestrator." + action
}

// Now stamps ts_ms from a wall-clock time, used by publishers.
func Now(t time.Time) int64 {
	return t.UnixMilli()
}
