package pipeline

// State is a step of a single pipeline run.
type State string

const (
	StateReceived         State = "received"
	StateValidated        State = "validated"
	StateSegmented        State = "segmented"
	StateComposited       State = "composited"
	StatePersisted        State = "persisted"
	StateDone             State = "done"
	StateValidationFailed State = "validation_failed"
	StateProcessingFailed State = "processing_failed"
)
