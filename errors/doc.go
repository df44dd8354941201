// Package errors provides a structured error taxonomy for multiplexed
// generation runs in genmux. It defines the error codes and categories the
// retry ladder uses to decide between retrying, degrading, salvaging, and
// failing a run.
//
// # Error Categories
//
// Errors are classified into four categories:
//
//   - Limit: Resource-limit failures of the generation engine (turn limits,
//     timeouts, aborts) where a degraded or salvage-only attempt may recover
//     partial value.
//   - Transient: Temporary failures where a plain retry may succeed
//     (rate limits, upstream 5xx).
//   - Permanent: Failures where retry will not help (invalid input,
//     billing errors).
//   - Internal: Unexpected errors indicating bugs or system failures.
//
// # Error Codes
//
// Each error has a specific code that identifies the type of failure:
//
//   - TIMEOUT: Call cancelled by its deadline with nothing to salvage
//   - TURN_LIMIT: Engine stopped at its turn/token limit
//   - CANCELLED: Call aborted by the caller
//   - UPSTREAM_ERROR: Engine reported an execution error
//   - EXTRACTION_MISS: No extraction strategy matched a task
//   - PERSISTENCE: Write failure for a resolved task
//   - GENERATION_FAILED: Retry ladder exhausted
//   - And more...
//
// # Usage
//
// Create a new error:
//
//	err := errors.New(errors.ErrCodeTimeout, "generation call timed out")
//
// Wrap an existing error with context:
//
//	wrapped := errors.Wrap(err, "running generation attempt")
//
// Check how the retry ladder should treat an error:
//
//	if genErr, ok := errors.AsGenError(err); ok && genErr.Category() == errors.CategoryLimit {
//	    // degrade or salvage
//	}
//
// # JSON Serialization
//
// All errors support JSON serialization so outcomes and warnings can be
// persisted alongside generated artifacts:
//
//	data, err := json.Marshal(genErr)
package errors
