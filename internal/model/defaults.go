package model

import "time"

// Shared defaults used by both the client and the mock service binaries.
const (
	DefaultAPIURL               = "http://localhost:8000"
	DefaultMockAddr             = "127.0.0.1:8000"
	DefaultMaxGroupSize         = 4
	DefaultStabilityThreshold   = 20.0
	DefaultRequestTimeout       = 30 * time.Second
	DefaultRequestsPerSecond    = 20
	DefaultRequestBurst         = 10
	DefaultBreakerFailures      = 5
	DefaultBreakerCooldown      = 15 * time.Second
	DefaultWaitForServiceTries  = 5
	DefaultMaxGroupSizeLimit    = 50
	DefaultStabilityStepPercent = 5.0
)
