package generation

import (
	"strings"
	"time"
)

const (
	ModeSync  = "sync"
	ModeQueue = "queue"
)

// Config holds generation knobs.
type Config struct {
	TemplateVersion string
	Concurrency     int
	Timeout         time.Duration
	Retention       time.Duration
	SignedURLTTL    time.Duration
	VerifyPDFText   bool
	Mode            string
	EmailClaimTTL   time.Duration
}

func (c Config) concurrency() int {
	if c.Concurrency <= 0 {
		return 3
	}
	return c.Concurrency
}

func (c Config) timeout() time.Duration {
	if c.Timeout <= 0 {
		return 150 * time.Second
	}
	return c.Timeout
}

func (c Config) retention() time.Duration {
	if c.Retention <= 0 {
		return 180 * 24 * time.Hour
	}
	return c.Retention
}

func (c Config) signedURLTTL() time.Duration {
	if c.SignedURLTTL <= 0 {
		return 15 * time.Minute
	}
	return c.SignedURLTTL
}

func (c Config) emailClaimTTL() time.Duration {
	if c.EmailClaimTTL <= 0 {
		return 3 * time.Minute
	}
	return c.EmailClaimTTL
}

func (c Config) templateVersion() string {
	if v := strings.TrimSpace(c.TemplateVersion); v != "" {
		return v
	}
	return "v1"
}

func (c Config) queued() bool {
	return c.Mode == ModeQueue
}
