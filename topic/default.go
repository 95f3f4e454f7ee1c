package topic

import "context"

// Default is the orchestrator behind the package-level functions
var Default = New()

// Produce registers p for topic on Default
func Produce(topic string, p Producer) {
	Default.Produce(topic, p)
}

// Consume registers c for topic on Default
func Consume(topic string, c Consumer) {
	Default.Consume(topic, c)
}

// Execute runs topic on Default
func Execute(ctx context.Context, topic string, dep any) error {
	return Default.Execute(ctx, topic, dep)
}
