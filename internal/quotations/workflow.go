package quotations

import (
	"fmt"
	"time"

	"github.com/kemosabixv/rcng-pwa-sub001/internal/shared"
)

// Action is a workflow verb.
type Action string

const (
	ActionSend   Action = "send"
	ActionAccept Action = "accept"
	ActionReject Action = "reject"
)

// transitions maps each action to the statuses it may start from.
var transitions = map[Action]struct {
	from []Status
	to   Status
}{
	ActionSend:   {from: []Status{StatusDraft}, to: StatusSent},
	ActionAccept: {from: []Status{StatusDraft, StatusSent}, to: StatusAccepted},
	ActionReject: {from: []Status{StatusDraft, StatusSent}, to: StatusRejected},
}

// plan checks action against the current quotation and returns the update to
// persist. An expired quotation accepts no workflow action.
func plan(q Quotation, action Action, now time.Time, by int64, note *string) (Transition, error) {
	rule, ok := transitions[action]
	if !ok {
		return Transition{}, fmt.Errorf("%w: unknown action %q", shared.ErrInvalidState, action)
	}
	current := q.withDerivedStatus(now).Status
	allowed := false
	for _, from := range rule.from {
		if current == from {
			allowed = true
			break
		}
	}
	if !allowed {
		return Transition{}, fmt.Errorf("%w: cannot %s a quotation that is %s", shared.ErrInvalidState, action, current)
	}
	return Transition{From: rule.from, To: rule.to, At: now, By: by, Note: note}, nil
}

// ensureEditable rejects edits of accepted or rejected quotations.
func ensureEditable(q Quotation) error {
	if q.Status.Terminal() {
		return fmt.Errorf("%w: quotation %s is %s and can no longer be modified", shared.ErrInvalidState, q.QuotationNumber, q.Status)
	}
	return nil
}
