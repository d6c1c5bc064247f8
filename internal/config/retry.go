package config

import "git.home.luguber.info/inful/buildmon/internal/foundation/normalization"

// RetryBackoffMode enumerates supported backoff strategies for retries.
type RetryBackoffMode string

const (
	RetryBackoffFixed       RetryBackoffMode = "fixed"
	RetryBackoffLinear      RetryBackoffMode = "linear"
	RetryBackoffExponential RetryBackoffMode = "exponential"
)

var backoffNormalizer = normalization.New(map[string]RetryBackoffMode{
	"fixed":       RetryBackoffFixed,
	"linear":      RetryBackoffLinear,
	"exponential": RetryBackoffExponential,
}, "")

// NormalizeRetryBackoff maps raw input onto a typed mode. Unknown input
// yields the empty mode, which the defaults applier replaces with fixed.
func NormalizeRetryBackoff(raw string) RetryBackoffMode {
	return backoffNormalizer.Normalize(raw)
}
