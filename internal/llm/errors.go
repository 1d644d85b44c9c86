package llm

// ModelUnavailableError signals that the model service could not be reached
// after the configured retries. The resilience engine absorbs it per phase.
type ModelUnavailableError struct {
	Err error
}

func (e *ModelUnavailableError) Error() string {
	return "model unavailable: " + e.Err.Error()
}

func (e *ModelUnavailableError) Unwrap() error { return e.Err }

// MalformedResponseError signals that a response expected to be JSON could
// not be parsed even after repair and one re-invoke.
type MalformedResponseError struct {
	Raw string
	Err error
}

func (e *MalformedResponseError) Error() string {
	return "malformed model response: " + e.Err.Error()
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }
