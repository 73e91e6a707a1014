package delivery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"disc-report/internal/shared/metrics"
	"disc-report/internal/shared/storage/object"
	"disc-report/internal/shared/telemetry"
	"disc-report/internal/shared/util"
)

const pdfContentType = "application/pdf"

// StoredDocument describes an uploaded report.
type StoredDocument struct {
	Path      string
	Filename  string
	SizeBytes int64
}

// Delivery is one report to email.
type Delivery struct {
	AttemptID     string
	CandidateName string
	Recipients    []string
	Filename      string
	PDF           []byte
}

// RecipientResult records the outcome for one address.
type RecipientResult struct {
	Address string `json:"address"`
	Sent    bool   `json:"sent"`
	Error   string `json:"error,omitempty"`
}

// Result summarizes a delivery.
type Result struct {
	Recipients   []string          `json:"recipients"`
	PerRecipient []RecipientResult `json:"perRecipient"`
	Filename     string            `json:"filename"`
}

// Sent counts the recipients that received the email.
func (r Result) Sent() int {
	n := 0
	for _, pr := range r.PerRecipient {
		if pr.Sent {
			n++
		}
	}
	return n
}

// Manager stores generated documents and emails them.
type Manager struct {
	store   object.ObjectStore
	Mailer  Mailer
	Company string
	Now     func() time.Time
}

// NewManager constructs a Manager.
func NewManager(store object.ObjectStore, mailer Mailer, company string) *Manager {
	return &Manager{
		store:   store,
		Mailer:  mailer,
		Company: company,
		Now:     time.Now,
	}
}

// Store uploads pdf under a free version-qualified path. Uploads never
// overwrite; losing a race for a path moves on to the next suffix.
func (m *Manager) Store(ctx context.Context, ownerID, templateVersion, displayName string, pdf []byte) (StoredDocument, error) {
	if len(pdf) == 0 {
		return StoredDocument{}, ErrEmptyDocument
	}
	base := StoragePath(ownerID, templateVersion, displayName)

	next := 0
	for next <= MaxPathSuffix {
		key, n, err := uniquePathFrom(ctx, base, next, m.store.Exists)
		if err != nil {
			return StoredDocument{}, err
		}
		size, err := m.store.Save(ctx, key, bytes.NewReader(pdf), object.SaveOptions{
			ContentType: pdfContentType,
			NoOverwrite: true,
		})
		if errors.Is(err, object.ErrExists) {
			telemetry.Warn("delivery.path_taken", map[string]any{"path": key})
			next = n + 1
			continue
		}
		if err != nil {
			return StoredDocument{}, fmt.Errorf("upload %s: %w", key, err)
		}
		return StoredDocument{Path: key, Filename: Filename(displayName), SizeBytes: size}, nil
	}
	return StoredDocument{}, fmt.Errorf("%w: %s", ErrNoFreePath, base)
}

// Deliver sends one email per recipient with the PDF attached. Every
// recipient is attempted. It fails only when no send succeeded.
func (m *Manager) Deliver(ctx context.Context, d Delivery) (Result, error) {
	res := Result{Recipients: d.Recipients, Filename: d.Filename}
	if res.Filename == "" {
		res.Filename = Filename(d.CandidateName)
	}
	if len(d.Recipients) == 0 {
		return res, ErrNoRecipients
	}
	if len(d.PDF) == 0 {
		return res, ErrEmptyDocument
	}

	html, text, err := RenderEmail(EmailData{
		FirstName: GreetingName(d.CandidateName),
		Company:   m.Company,
		Year:      m.now().Year(),
	})
	if err != nil {
		return res, fmt.Errorf("render email: %w", err)
	}

	var errs []error
	for _, to := range d.Recipients {
		msg := Message{
			To:      to,
			Subject: Subject,
			HTML:    html,
			Text:    text,
			Attachments: []Attachment{{
				Filename:    res.Filename,
				ContentType: pdfContentType,
				Data:        d.PDF,
			}},
		}
		if err := m.Mailer.Send(ctx, msg); err != nil {
			metrics.IncEmailFailed()
			telemetry.Error("delivery.email_failed", map[string]any{
				"attempt_id": d.AttemptID,
				"to_hash":    util.Fingerprint(to),
				"error":      err,
			})
			errs = append(errs, fmt.Errorf("%s: %w", to, err))
			res.PerRecipient = append(res.PerRecipient, RecipientResult{Address: to, Error: err.Error()})
			continue
		}
		metrics.IncEmailSent()
		telemetry.Info("delivery.email_sent", map[string]any{
			"attempt_id": d.AttemptID,
			"to_hash":    util.Fingerprint(to),
		})
		res.PerRecipient = append(res.PerRecipient, RecipientResult{Address: to, Sent: true})
	}

	if res.Sent() == 0 {
		return res, fmt.Errorf("%w: %w", ErrAllSendsFailed, errors.Join(errs...))
	}
	return res, nil
}

func (m *Manager) now() time.Time {
	if m.Now == nil {
		return time.Now()
	}
	return m.Now()
}
