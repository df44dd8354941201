package errors

// ErrorCategory classifies errors by their nature and recovery semantics.
type ErrorCategory string

// Error categories define how the retry ladder should handle errors.
const (
	// CategoryLimit indicates the generation engine hit a resource limit.
	// Examples: turn limit exceeded, call timeout, caller abort.
	// A degraded or salvage-only attempt may still recover partial value.
	CategoryLimit ErrorCategory = "limit"

	// CategoryTransient indicates temporary failures where retry may succeed.
	// Examples: rate limiting, upstream 5xx, network errors.
	CategoryTransient ErrorCategory = "transient"

	// CategoryPermanent indicates failures where retry will not help.
	// Examples: invalid input, billing errors, unsupported requests.
	CategoryPermanent ErrorCategory = "permanent"

	// CategoryInternal indicates unexpected errors, bugs, or system failures.
	// Examples: nil pointer, assertion failures, corrupted state.
	CategoryInternal ErrorCategory = "internal"
)

// String returns the string representation of the category.
func (c ErrorCategory) String() string {
	return string(c)
}

// IsRetryable returns true if errors in this category may succeed on retry.
// Limit-class errors are retryable too, but the ladder prefers degradation
// and salvage over a plain retry for them.
func (c ErrorCategory) IsRetryable() bool {
	switch c {
	case CategoryLimit, CategoryTransient:
		return true
	default:
		return false
	}
}

// ErrorCode identifies specific error types within categories.
type ErrorCode string

// Limit-class codes (degradable).
const (
	ErrCodeTimeout   ErrorCode = "TIMEOUT"    // Call deadline fired with nothing to salvage
	ErrCodeTurnLimit ErrorCode = "TURN_LIMIT" // Engine stopped at its turn/token limit
	ErrCodeCancelled ErrorCode = "CANCELLED"  // Call aborted before completion
)

// Transient codes.
const (
	ErrCodeRateLimit   ErrorCode = "RATE_LIMITED" // Engine rate limit exceeded
	ErrCodeUnavailable ErrorCode = "UNAVAILABLE"  // Engine temporarily unavailable
	ErrCodeNetworkErr  ErrorCode = "NETWORK_ERR"  // Network connectivity issue
)

// Permanent codes.
const (
	ErrCodeUpstream     ErrorCode = "UPSTREAM_ERROR" // Engine reported an execution error
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"  // Malformed or invalid request
	ErrCodeBilling      ErrorCode = "BILLING"        // Billing/quota failure, never retried
	ErrCodeUnsupported  ErrorCode = "UNSUPPORTED"    // Operation not supported by the engine
)

// Run-level codes.
const (
	ErrCodeExtractionMiss   ErrorCode = "EXTRACTION_MISS"   // No extraction strategy matched a task
	ErrCodePersistence      ErrorCode = "PERSISTENCE"       // Write failure for a resolved task
	ErrCodeGenerationFailed ErrorCode = "GENERATION_FAILED" // Retry ladder exhausted
)

// Internal codes.
const (
	ErrCodeInternal ErrorCode = "INTERNAL" // Unexpected internal error
	ErrCodePanic    ErrorCode = "PANIC"    // Recovered from panic
)

// String returns the string representation of the error code.
func (c ErrorCode) String() string {
	return string(c)
}

// DefaultCategory returns the default category for an error code.
func (c ErrorCode) DefaultCategory() ErrorCategory {
	switch c {
	// Limit
	case ErrCodeTimeout, ErrCodeTurnLimit, ErrCodeCancelled:
		return CategoryLimit

	// Transient
	case ErrCodeRateLimit, ErrCodeUnavailable, ErrCodeNetworkErr:
		return CategoryTransient

	// Permanent
	case ErrCodeUpstream, ErrCodeInvalidInput, ErrCodeBilling, ErrCodeUnsupported,
		ErrCodeExtractionMiss, ErrCodePersistence, ErrCodeGenerationFailed:
		return CategoryPermanent

	// Internal
	case ErrCodeInternal, ErrCodePanic:
		return CategoryInternal

	default:
		return CategoryInternal
	}
}

// DefaultRetryable returns whether this error code is typically retryable.
func (c ErrorCode) DefaultRetryable() bool {
	return c.DefaultCategory().IsRetryable()
}

// codeDescriptions provides human-readable descriptions for error codes.
var codeDescriptions = map[ErrorCode]string{
	ErrCodeTimeout:          "generation call timed out",
	ErrCodeTurnLimit:        "engine turn limit exceeded",
	ErrCodeCancelled:        "generation call cancelled",
	ErrCodeRateLimit:        "engine rate limit exceeded",
	ErrCodeUnavailable:      "engine temporarily unavailable",
	ErrCodeNetworkErr:       "network connectivity error",
	ErrCodeUpstream:         "engine execution error",
	ErrCodeInvalidInput:     "invalid request",
	ErrCodeBilling:          "billing or quota failure",
	ErrCodeUnsupported:      "operation not supported",
	ErrCodeExtractionMiss:   "no extraction strategy matched",
	ErrCodePersistence:      "failed to persist task content",
	ErrCodeGenerationFailed: "generation failed after all attempts",
	ErrCodeInternal:         "internal error",
	ErrCodePanic:            "recovered from panic",
}

// Description returns the human-readable description for the code.
func (c ErrorCode) Description() string {
	if desc, ok := codeDescriptions[c]; ok {
		return desc
	}
	return string(c)
}
