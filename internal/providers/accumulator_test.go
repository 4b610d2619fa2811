package providers

import (
	"testing"

	"github.com/neuromance/neuromance-go/internal/domain"
)

func TestToolCallAccumulator_MergesFragmentsByIndex(t *testing.T) {
	acc := NewToolCallAccumulator()
	acc.Add(domain.ToolCallDelta{Index: 0, ID: "call_1", Name: "get_weather"})
	acc.Add(domain.ToolCallDelta{Index: 0, Arguments: `{"locat`})
	acc.Add(domain.ToolCallDelta{Index: 0, Arguments: `ion":"SF"}`})

	calls := acc.Finish()
	if len(calls) != 1 {
		t.Fatalf("expected 1 completed call, got %d", len(calls))
	}
	if calls[0].ID != "call_1" || calls[0].Function.Name != "get_weather" {
		t.Fatalf("unexpected call: %+v", calls[0])
	}
	if len(calls[0].Function.Arguments) != 1 || calls[0].Function.Arguments[0] != `{"location":"SF"}` {
		t.Fatalf("arguments not merged correctly: %+v", calls[0].Function.Arguments)
	}
}

func TestToolCallAccumulator_PreservesIndexOrder(t *testing.T) {
	acc := NewToolCallAccumulator()
	acc.Add(domain.ToolCallDelta{Index: 1, ID: "call_b", Name: "second"})
	acc.Add(domain.ToolCallDelta{Index: 0, ID: "call_a", Name: "first"})

	calls := acc.Finish()
	if len(calls) != 2 || calls[0].ID != "call_a" || calls[1].ID != "call_b" {
		t.Fatalf("expected calls sorted by index, got %+v", calls)
	}
}

func TestToolCallAccumulator_IncompleteCallOmitted(t *testing.T) {
	acc := NewToolCallAccumulator()
	acc.Add(domain.ToolCallDelta{Index: 0, Arguments: "{}"}) // no id/name ever arrives

	if got := acc.Finish(); len(got) != 0 {
		t.Fatalf("expected incomplete call to be omitted, got %+v", got)
	}
}

func TestToolCallAccumulator_FinishDeltasMarksDone(t *testing.T) {
	acc := NewToolCallAccumulator()
	acc.Add(domain.ToolCallDelta{Index: 0, ID: "call_1", Name: "search", Arguments: "{}"})

	deltas := acc.FinishDeltas()
	if len(deltas) != 1 || !deltas[0].Done {
		t.Fatalf("expected a single Done delta, got %+v", deltas)
	}
}

func TestToolCallAccumulator_Empty(t *testing.T) {
	acc := NewToolCallAccumulator()
	if !acc.Empty() {
		t.Fatal("expected a fresh accumulator to be empty")
	}
	acc.Add(domain.ToolCallDelta{Index: 0, ID: "call_1"})
	if acc.Empty() {
		t.Fatal("expected accumulator to be non-empty after Add")
	}
}
