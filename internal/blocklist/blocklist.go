package blocklist

import (
	"strings"

	"go.uber.org/zap"
)

// Checker flags senders whose mail is always treated as automated: blocked
// domains (internal relays, bounce hosts) and machine local-parts such as
// mailer-daemon or no-reply.
type Checker struct {
	domains    []string
	localParts []string
	logger     *zap.Logger
}

// defaultLocalParts are sender local-part fragments that identify machine
// senders regardless of domain
var defaultLocalParts = []string{
	"mailer-daemon", "postmaster", "no-reply", "noreply", "do-not-reply", "bounce",
}

// NewChecker creates a new blocklist checker
func NewChecker(domains []string, logger *zap.Logger) *Checker {
	normalized := make([]string, len(domains))
	for i, domain := range domains {
		normalized[i] = strings.ToLower(strings.TrimSpace(domain))
	}

	if len(normalized) > 0 && logger != nil {
		logger.Info("Initialized sender blocklist", zap.Strings("domains", normalized))
	}

	return &Checker{
		domains:    normalized,
		localParts: defaultLocalParts,
		logger:     logger,
	}
}

// IsBlocked reports whether the sender address is an automated/blocked sender
func (c *Checker) IsBlocked(from string) bool {
	parts := strings.Split(strings.ToLower(strings.TrimSpace(from)), "@")
	if len(parts) != 2 {
		return false
	}
	local, domain := parts[0], parts[1]

	for _, blocked := range c.domains {
		if blocked == domain {
			if c.logger != nil {
				c.logger.Debug("Sender domain is blocklisted",
					zap.String("domain", domain),
					zap.String("email", from))
			}
			return true
		}
	}

	for _, fragment := range c.localParts {
		if strings.Contains(local, fragment) {
			return true
		}
	}

	return false
}
