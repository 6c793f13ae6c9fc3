package context

import (
	"errors"
	"testing"

	"go.uber.org/zap"
)

// perTurnCounter charges a fixed token cost per window slot (preamble,
// each history turn, pending message).
type perTurnCounter struct {
	perSlot int
}

func (c perTurnCounter) CountTokens(w Window) (int, error) {
	return (2 + len(w.History)) * c.perSlot, nil
}

type funcCounter func(Window) (int, error)

func (f funcCounter) CountTokens(w Window) (int, error) { return f(w) }

func history(n int) []Message {
	msgs := make([]Message, 0, n)
	for i := 0; i < n; i++ {
		role := "user"
		if i%2 == 1 {
			role = "assistant"
		}
		msgs = append(msgs, Message{Role: role, Content: string(rune('a' + i))})
	}
	return msgs
}

func TestAssemble_NoTrimming(t *testing.T) {
	a := NewAssembler(perTurnCounter{perSlot: 10}, 7000, zap.NewNop())

	hist := history(4)
	window, err := a.Assemble(hist, "pending", "preamble")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if window.Preamble != "preamble" {
		t.Errorf("preamble = %q, want %q", window.Preamble, "preamble")
	}
	if window.Pending != "pending" {
		t.Errorf("pending = %q, want %q", window.Pending, "pending")
	}
	if len(window.History) != 4 {
		t.Fatalf("expected full history, got %d turns", len(window.History))
	}
	for i := range hist {
		if window.History[i] != hist[i] {
			t.Errorf("turn %d = %+v, want %+v", i, window.History[i], hist[i])
		}
	}
}

func TestAssemble_DropsOldestFirst(t *testing.T) {
	// With 3000 tokens per slot and a limit of 13000, preamble + pending +
	// at most 2 history turns fit (4*3000 < 13000, 5*3000 >= 13000).
	a := NewAssembler(perTurnCounter{perSlot: 3000}, 13000, zap.NewNop())

	hist := history(6)
	window, err := a.Assemble(hist, "hi", "preamble")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(window.History) != 2 {
		t.Fatalf("expected 2 surviving turns, got %d", len(window.History))
	}
	// The two newest turns survive, in order.
	if window.History[0] != hist[4] || window.History[1] != hist[5] {
		t.Errorf("surviving turns = %+v, want newest two of %+v", window.History, hist)
	}
	if window.Preamble != "preamble" || window.Pending != "hi" {
		t.Errorf("preamble/pending were not preserved: %+v", window)
	}
}

func TestAssemble_TrimmedWindowIsUnderLimit(t *testing.T) {
	counter := perTurnCounter{perSlot: 100}
	limit := 1000
	a := NewAssembler(counter, limit, zap.NewNop())

	window, err := a.Assemble(history(50), "hi", "preamble")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	count, _ := counter.CountTokens(window)
	if count >= limit {
		t.Errorf("returned window measures %d tokens, want < %d", count, limit)
	}
}

func TestAssemble_Exhausted(t *testing.T) {
	a := NewAssembler(perTurnCounter{perSlot: 5000}, 7000, zap.NewNop())

	_, err := a.Assemble(history(10), "hi", "preamble")
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("expected ErrExhausted, got %v", err)
	}
}

func TestAssemble_ExhaustedWithEmptyHistory(t *testing.T) {
	// Even with no history to drop, an over-budget preamble+pending pair
	// is exhausted rather than dispatched empty.
	a := NewAssembler(perTurnCounter{perSlot: 5000}, 7000, zap.NewNop())

	_, err := a.Assemble(nil, "hi", "preamble")
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("expected ErrExhausted, got %v", err)
	}
}

func TestAssemble_EmptyHistoryUnderLimit(t *testing.T) {
	a := NewAssembler(perTurnCounter{perSlot: 10}, 7000, zap.NewNop())

	window, err := a.Assemble(nil, "hello", "preamble")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(window.History) != 0 {
		t.Errorf("expected empty history, got %d turns", len(window.History))
	}
	if window.Preamble != "preamble" || window.Pending != "hello" {
		t.Errorf("window = %+v, want preamble+pending only", window)
	}
}

func TestAssemble_CounterFailureStopsTrimming(t *testing.T) {
	calls := 0
	counter := funcCounter(func(w Window) (int, error) {
		calls++
		if calls == 1 {
			return 100000, nil
		}
		return 0, errors.New("tokenizer unavailable")
	})
	a := NewAssembler(counter, 7000, zap.NewNop())

	// One turn is dropped on the first measurement; the failure on the
	// second stops trimming but still yields a dispatchable window.
	window, err := a.Assemble(history(4), "hi", "preamble")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(window.History) != 3 {
		t.Errorf("expected 3 turns after one drop, got %d", len(window.History))
	}
}

func TestAssemble_CounterFailureOnFirstCall(t *testing.T) {
	counter := funcCounter(func(w Window) (int, error) {
		return 0, errors.New("tokenizer unavailable")
	})
	a := NewAssembler(counter, 7000, zap.NewNop())

	window, err := a.Assemble(history(4), "hi", "preamble")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(window.History) != 4 {
		t.Errorf("expected untrimmed history, got %d turns", len(window.History))
	}
}

func TestAssemble_DoesNotMutateInput(t *testing.T) {
	a := NewAssembler(perTurnCounter{perSlot: 3000}, 13000, zap.NewNop())

	hist := history(6)
	want := history(6)
	if _, err := a.Assemble(hist, "hi", "preamble"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := range want {
		if hist[i] != want[i] {
			t.Errorf("input history mutated at %d: %+v", i, hist[i])
		}
	}
}
