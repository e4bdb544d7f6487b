package core

import (
	"fmt"
	"strings"
)

// ActivityContentStrategy renders the activity message recorded when a
// conversation changes status. An empty string means no activity is recorded.
type ActivityContentStrategy interface {
	StatusChangeContent(status ConversationStatus, actor Actor, reason string) string
}

type HumanActivity struct{}

func (HumanActivity) StatusChangeContent(status ConversationStatus, actor Actor, _ string) string {
	name := actorDisplayName(actor)
	switch status {
	case ConversationStatusResolved:
		return fmt.Sprintf("Conversation was marked resolved by %s", name)
	case ConversationStatusOpen:
		return fmt.Sprintf("Conversation was reopened by %s", name)
	case ConversationStatusPending:
		return fmt.Sprintf("Conversation was marked as pending by %s", name)
	case ConversationStatusSnoozed:
		return fmt.Sprintf("Conversation was snoozed by %s", name)
	default:
		return ""
	}
}

// AutomatedActivity covers assistants and automation rules. A resolve with a
// reason renders the reason; statuses without automated wording render nothing.
type AutomatedActivity struct{}

func (AutomatedActivity) StatusChangeContent(status ConversationStatus, actor Actor, reason string) string {
	name := actorDisplayName(actor)
	reason = strings.TrimSpace(reason)
	switch {
	case status == ConversationStatusResolved && reason != "":
		return fmt.Sprintf("%s resolved the conversation. Reason: %s", name, reason)
	case status == ConversationStatusResolved:
		return fmt.Sprintf("%s resolved the conversation", name)
	case status == ConversationStatusOpen:
		return fmt.Sprintf("%s reopened the conversation", name)
	case status == ConversationStatusPending:
		return fmt.Sprintf("%s marked the conversation as pending", name)
	default:
		return ""
	}
}

func defaultActivityStrategies() map[ActorKind]ActivityContentStrategy {
	return map[ActorKind]ActivityContentStrategy{
		ActorKindHuman:     HumanActivity{},
		ActorKindAutomated: AutomatedActivity{},
	}
}

func actorDisplayName(actor Actor) string {
	if name := strings.TrimSpace(actor.Name); name != "" {
		return name
	}
	if id := strings.TrimSpace(actor.ID); id != "" {
		return id
	}
	return "System"
}
