// Package tasks defines the task specifications multiplexed inside a single
// generation call.
//
// A Spec describes one logical deliverable: its identity, the prompt fragment
// that requests it, and the output key whose boundary markers delimit its
// content in the engine's streamed output. The Spec set for a session is fixed
// before the session starts and never mutates while the call is in flight.
//
//	specs := []tasks.Spec{
//		{ID: "overview", DisplayName: "Overview", OutputKey: "overview", PromptFragment: "..."},
//	}
//	if err := tasks.Validate(specs); err != nil {
//		// duplicate or empty IDs
//	}
//
// The marker helpers produce the canonical delimiters the demultiplexer
// searches for:
//
//	tasks.StartMarker("overview") // "=== TASK_START: overview ==="
//	tasks.EndMarker("overview")   // "=== TASK_END: overview ==="
package tasks
