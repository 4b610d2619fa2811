package providers

import (
	"sort"

	"github.com/neuromance/neuromance-go/internal/domain"
)

// ToolCallAccumulator merges index-keyed domain.ToolCallDelta fragments
// into complete domain.ToolCall values (spec.md §4.2.1): a provider streams
// a tool call's id/name once and its arguments as a sequence of string
// fragments sharing the same Index, in arrival order. Arguments accumulate
// as a single growing string per index; whichever adapter owns the
// accumulator decides when an index is finished (end of stream, or a
// provider-specific "stop" signal for that content block).
type ToolCallAccumulator struct {
	order []int
	byIdx map[int]*accumulatingCall
}

type accumulatingCall struct {
	id   string
	name string
	args string
}

// NewToolCallAccumulator returns an empty accumulator.
func NewToolCallAccumulator() *ToolCallAccumulator {
	return &ToolCallAccumulator{byIdx: make(map[int]*accumulatingCall)}
}

// Add merges one delta fragment into the call at delta.Index.
func (a *ToolCallAccumulator) Add(delta domain.ToolCallDelta) {
	call, ok := a.byIdx[delta.Index]
	if !ok {
		call = &accumulatingCall{}
		a.byIdx[delta.Index] = call
		a.order = append(a.order, delta.Index)
	}
	if delta.ID != "" {
		call.id = delta.ID
	}
	if delta.Name != "" {
		call.name = delta.Name
	}
	if delta.Arguments != "" {
		call.args += delta.Arguments
	}
}

// SetArguments overwrites the accumulated argument string for delta.Index
// rather than appending to it. Some providers (the Responses API's
// function_call_arguments.done event) deliver a final, authoritative
// arguments string after a run of delta fragments gathered by Add; the
// authoritative string replaces the fragments instead of extending them.
func (a *ToolCallAccumulator) SetArguments(index int, args string) {
	call, ok := a.byIdx[index]
	if !ok {
		call = &accumulatingCall{}
		a.byIdx[index] = call
		a.order = append(a.order, index)
	}
	call.args = args
}

// Finish returns every accumulated call that has both an id and a name, in
// ascending index order. A call with no argument fragments
// at all gets an empty argument list, which CoerceArguments treats as {}.
func (a *ToolCallAccumulator) Finish() []domain.ToolCall {
	indices := append([]int(nil), a.order...)
	sort.Ints(indices)

	var calls []domain.ToolCall
	for _, idx := range indices {
		call := a.byIdx[idx]
		if call.id == "" || call.name == "" {
			continue
		}
		var args []string
		if call.args != "" {
			args = []string{call.args}
		}
		calls = append(calls, domain.NewToolCall(call.id, call.name, args))
	}
	return calls
}

// FinishDeltas is like Finish but returns the completed calls as single,
// Done deltas — the shape an adapter emits on its output channel once a
// stream ends so the caller never has to special-case a "final" message.
func (a *ToolCallAccumulator) FinishDeltas() []domain.ToolCallDelta {
	indices := append([]int(nil), a.order...)
	sort.Ints(indices)

	var deltas []domain.ToolCallDelta
	for _, idx := range indices {
		call := a.byIdx[idx]
		if call.id == "" || call.name == "" {
			continue
		}
		deltas = append(deltas, domain.ToolCallDelta{
			Index:     idx,
			ID:        call.id,
			Name:      call.name,
			Arguments: call.args,
			Done:      true,
		})
	}
	return deltas
}

// Empty reports whether no fragments have been accumulated at all.
func (a *ToolCallAccumulator) Empty() bool {
	return len(a.byIdx) == 0
}
