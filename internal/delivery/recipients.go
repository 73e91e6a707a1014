package delivery

import (
	"net/mail"
	"strings"
	"time"
)

// Config is the per-owner delivery configuration.
type Config struct {
	OwnerID          string    `json:"-"`
	SendToCandidate  bool      `json:"sendToCandidate"`
	SendToSupervisor bool      `json:"sendToSupervisor"`
	SupervisorEmail  string    `json:"supervisorEmail,omitempty"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// DefaultConfig sends to the candidate only.
func DefaultConfig(ownerID string) Config {
	return Config{OwnerID: ownerID, SendToCandidate: true}
}

// CanCandidateDownload reports whether the candidate may fetch the document
// directly. Supervisor-only delivery hides it from the candidate.
func (c Config) CanCandidateDownload() bool {
	return !(c.SendToSupervisor && !c.SendToCandidate)
}

// Validate checks the supervisor address when supervisor delivery is on.
func (c Config) Validate() error {
	if c.SendToSupervisor {
		addr := strings.TrimSpace(c.SupervisorEmail)
		if addr == "" {
			return ErrInvalidConfig
		}
		if _, err := mail.ParseAddress(addr); err != nil {
			return ErrInvalidConfig
		}
	}
	return nil
}

// ResolveRecipients returns the addresses a finished report goes to. A nil or
// inconsistent config falls back to the candidate. Addresses are deduplicated
// case-insensitively and keep their first spelling.
func ResolveRecipients(cfg *Config, candidateEmail string) []string {
	candidate := strings.TrimSpace(candidateEmail)
	if cfg == nil {
		return dedupe(candidate)
	}

	var out []string
	if cfg.SendToCandidate {
		out = append(out, candidate)
	}
	if cfg.SendToSupervisor {
		out = append(out, strings.TrimSpace(cfg.SupervisorEmail))
	}
	recipients := dedupe(out...)
	if len(recipients) == 0 {
		return dedupe(candidate)
	}
	return recipients
}

func dedupe(addrs ...string) []string {
	seen := make(map[string]struct{}, len(addrs))
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		if a == "" {
			continue
		}
		key := strings.ToLower(a)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, a)
	}
	return out
}
