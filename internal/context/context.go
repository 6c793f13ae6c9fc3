package context

// Message is a model-agnostic chat message used across the context pipeline.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Window is the bounded prompt submitted to the generation backend for one
// dispatch: the system preamble, the surviving history turns oldest first,
// and the pending user message. It is built fresh per dispatch and never
// persisted.
type Window struct {
	Preamble string
	History  []Message
	Pending  string
}

// TokenCounter measures a window with the generation backend's tokenizer.
// The count covers the preamble, every history turn, and the pending message.
type TokenCounter interface {
	CountTokens(window Window) (int, error)
}
