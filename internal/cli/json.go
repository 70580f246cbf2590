package cli

import (
	"time"

	"github.com/rmed/simpleice/internal/app"
	"github.com/rmed/simpleice/internal/domain"
	"github.com/rmed/simpleice/internal/store"
)

// ---------------------------------------------------------------------------
// ICE mail JSON type (list, show, new, edit, activate, ...)
// ---------------------------------------------------------------------------

type jsonIceMail struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Recipients []string `json:"recipients"`
	Subject    string   `json:"subject"`
	Body       string   `json:"body,omitempty"`
	Status     string   `json:"status"`
	TriggerAt  string   `json:"trigger_at,omitempty"`
	SentAt     string   `json:"sent_at,omitempty"`

	DeliveryAttempts *attemptCounts `json:"delivery_attempts,omitempty"`
}

func toJSONIceMail(m domain.IceMail, withBody bool) jsonIceMail {
	out := jsonIceMail{
		ID:         m.ID,
		Name:       m.Name,
		Recipients: m.Recipients(),
		Subject:    m.Subject,
		Status:     string(m.Status),
		TriggerAt:  formatTime(m.TriggerAt),
		SentAt:     formatTime(m.SentAt),
	}
	if withBody {
		out.Body = m.Body
	}
	return out
}

func toJSONIceMails(c store.Collection) []jsonIceMail {
	out := make([]jsonIceMail, 0, len(c))
	for _, m := range c {
		out = append(out, toJSONIceMail(m, false))
	}
	return out
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}

// ---------------------------------------------------------------------------
// Check cycle JSON type (check)
// ---------------------------------------------------------------------------

type jsonCycle struct {
	Now    string        `json:"now"`
	Sent   []jsonOutcome `json:"sent"`
	Failed []jsonOutcome `json:"failed"`
}

type jsonOutcome struct {
	Name      string `json:"name"`
	Recipient string `json:"recipient"`
	ErrorKind string `json:"error_kind,omitempty"`
	Error     string `json:"error,omitempty"`
}

func toJSONCycle(s app.CycleSummary) jsonCycle {
	return jsonCycle{
		Now:    s.Now.Format(time.RFC3339),
		Sent:   toJSONOutcomes(s.Sent),
		Failed: toJSONOutcomes(s.Failed),
	}
}

func toJSONOutcomes(outcomes []app.Outcome) []jsonOutcome {
	out := make([]jsonOutcome, 0, len(outcomes))
	for _, o := range outcomes {
		j := jsonOutcome{Name: o.Mail.Name, Recipient: o.Mail.Recipient}
		if o.Err != nil {
			j.ErrorKind = app.ErrorKind(o.Err)
			j.Error = o.Err.Error()
		}
		out = append(out, j)
	}
	return out
}

// ---------------------------------------------------------------------------
// Delivery JSON type (history)
// ---------------------------------------------------------------------------

type jsonDelivery struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Recipient   string `json:"recipient"`
	AttemptedAt string `json:"attempted_at"`
	Outcome     string `json:"outcome"`
	ErrorKind   string `json:"error_kind,omitempty"`
	Error       string `json:"error,omitempty"`
}

func toJSONDeliveries(deliveries []store.Delivery) []jsonDelivery {
	out := make([]jsonDelivery, 0, len(deliveries))
	for _, d := range deliveries {
		out = append(out, jsonDelivery{
			ID:          d.ID,
			Name:        d.MailName,
			Recipient:   d.Recipient,
			AttemptedAt: d.AttemptedAt.Format(time.RFC3339),
			Outcome:     d.Outcome,
			ErrorKind:   d.ErrorKind,
			Error:       d.Error,
		})
	}
	return out
}

// ---------------------------------------------------------------------------
// Action JSON type (remove, create-config, secret)
// ---------------------------------------------------------------------------

type jsonAction struct {
	OK     bool   `json:"ok"`
	Action string `json:"action"`
	Name   string `json:"name,omitempty"`
	Path   string `json:"path,omitempty"`
}
