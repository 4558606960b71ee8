package appointment

import "fmt"

type Action string

const (
	ActionApprove  Action = "approve"
	ActionReject   Action = "reject"
	ActionAssign   Action = "assign_guide"
	ActionUnassign Action = "unassign_guide"
	ActionComplete Action = "complete"
	ActionCancel   Action = "cancel"
)

type transition struct {
	from       []Status
	to         Status
	clearGuide bool
}

// transitions is the lifecycle state machine. The administrative override
// bypasses it.
var transitions = map[Action]transition{
	ActionApprove: {
		from: []Status{StatusCreated, StatusPendingAdmin, StatusRejected},
		to:   StatusApproved,
	},
	ActionReject: {
		from:       []Status{StatusCreated, StatusPendingAdmin, StatusApproved, StatusAccepted},
		to:         StatusRejected,
		clearGuide: true,
	},
	ActionAssign: {
		from: []Status{StatusApproved},
		to:   StatusAccepted,
	},
	ActionUnassign: {
		from:       []Status{StatusAccepted},
		to:         StatusApproved,
		clearGuide: true,
	},
	ActionComplete: {
		from: []Status{StatusAccepted},
		to:   StatusCompleted,
	},
	ActionCancel: {
		from:       []Status{StatusCreated, StatusPendingAdmin, StatusApproved, StatusAccepted},
		to:         StatusCanceled,
		clearGuide: true,
	},
}

// editableStatuses are the states in which the owner may still change the request.
var editableStatuses = []Status{StatusCreated, StatusPendingAdmin}

func (t transition) allows(from Status) bool {
	return containsStatus(t.from, from)
}

func containsStatus(list []Status, s Status) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

func invalidTransition(action Action, from Status) error {
	return fmt.Errorf("cannot %s an appointment that is %s: %w", action, from, ErrInvalidTransition)
}
