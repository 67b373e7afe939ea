package topics

const (
	// Ciclo de vida dos rounds (acca em grupo)
	RoundEvents = "round_events"

	// DLQ
	RoundEventsDLQ = "round_events_dlq"
)
