package kafka

// Topic names for pitchbook run lifecycle events.
const (
	TopicRunEvents     = "pitchbook.run.events"
	TopicRunCompleted  = "pitchbook.run.completed"
	TopicSectionEvents = "pitchbook.section.events"
)
