package outbox

// Event is an integration event awaiting publication. EventType doubles as
// the Kafka topic.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}
