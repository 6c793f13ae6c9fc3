package context

import (
	"errors"

	"go.uber.org/zap"
)

// ErrExhausted means no amount of trimming can bring the window under the
// token budget: only the preamble and at most one history turn would remain.
// The conversation has to be restarted in a fresh chatroom.
var ErrExhausted = errors.New("conversation context exhausted")

// Assembler builds a token-bounded window from conversation history.
// Trimming only ever removes the oldest history turn; the preamble and the
// pending message are never dropped and the relative order of the surviving
// turns is preserved.
type Assembler struct {
	counter   TokenCounter
	safeLimit int
	logger    *zap.Logger
}

// NewAssembler creates an assembler that trims until the measured token
// count is strictly below safeLimit.
func NewAssembler(counter TokenCounter, safeLimit int, logger *zap.Logger) *Assembler {
	return &Assembler{counter: counter, safeLimit: safeLimit, logger: logger}
}

// Assemble constructs preamble + history + pending and drops the oldest
// history turn until the window fits the budget, or returns ErrExhausted
// once dropping further would remove all history.
//
// A token-count failure is treated as non-fatal: trimming stops and the
// window is returned as-is so the dispatch still happens. The backend is
// left to enforce its own hard limit in that case.
func (a *Assembler) Assemble(history []Message, pending, preamble string) (Window, error) {
	window := Window{
		Preamble: preamble,
		History:  append([]Message(nil), history...),
		Pending:  pending,
	}

	for {
		count, err := a.counter.CountTokens(window)
		if err != nil {
			a.logger.Warn("token count failed, dispatching without further trimming",
				zap.Int("history_len", len(window.History)),
				zap.Error(err))
			return window, nil
		}
		if count < a.safeLimit {
			return window, nil
		}
		if len(window.History) <= 1 {
			return Window{}, ErrExhausted
		}

		dropped := window.History[0]
		window.History = window.History[1:]
		a.logger.Info("dropped oldest turn to reduce tokens",
			zap.String("role", dropped.Role),
			zap.Int("token_count", count),
			zap.Int("remaining_turns", len(window.History)))
	}
}
