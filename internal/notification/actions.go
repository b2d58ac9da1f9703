package notification

// Action is an interactive button shown on a notification.
type Action struct {
	ID    string `json:"action"`
	Label string `json:"title"`
}

// Action styles accepted in Request.ActionStyle.
const (
	ActionStyleYesNo       = "yes_no"
	ActionStyleAcknowledge = "acknowledge"
	ActionStylePoll        = "poll"
	ActionStyleRSVP        = "rsvp"
)

var actionTemplates = map[string][]Action{
	ActionStyleYesNo: {
		{ID: "yes", Label: "Yes"},
		{ID: "no", Label: "No"},
	},
	ActionStyleAcknowledge: {
		{ID: "ack", Label: "Got it"},
	},
	ActionStylePoll: {
		{ID: "option_a", Label: "Option A"},
		{ID: "option_b", Label: "Option B"},
	},
	ActionStyleRSVP: {
		{ID: "going", Label: "Going"},
		{ID: "maybe", Label: "Maybe"},
		{ID: "not_going", Label: "Can't make it"},
	},
}

// Actions returns the buttons for style. Unknown or empty styles have none.
func Actions(style string) []Action {
	tmpl, ok := actionTemplates[style]
	if !ok {
		return nil
	}
	out := make([]Action, len(tmpl))
	copy(out, tmpl)
	return out
}

// IsKnownAction reports whether id belongs to one of the action templates.
func IsKnownAction(id string) bool {
	for _, tmpl := range actionTemplates {
		for _, a := range tmpl {
			if a.ID == id {
				return true
			}
		}
	}
	return false
}
