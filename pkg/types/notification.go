package types

import (
	"fmt"
	"time"
)

// InstanceEvent names the action a notification describes
type InstanceEvent string

const (
	EventStart  InstanceEvent = "instance.start"
	EventStop   InstanceEvent = "instance.stop"
	EventIP     InstanceEvent = "instance.ip"
	EventStatus InstanceEvent = "instance.status"
)

// Notification is one human readable outcome message
type Notification struct {
	Text     string
	Event    InstanceEvent
	Instance InstanceRef
	Success  bool
}

// Action is the verb used in failure messages
func (e InstanceEvent) Action() string {
	switch e {
	case EventStart:
		return "start"
	case EventStop:
		return "stop"
	case EventIP:
		return "get the IP of"
	case EventStatus:
		return "get the status of"
	default:
		return string(e)
	}
}

// StartedNotification reports an accepted start
func StartedNotification(ref InstanceRef) Notification {
	return Notification{Text: fmt.Sprintf("%s was started to boot.", ref.Name), Event: EventStart, Instance: ref, Success: true}
}

// StoppedNotification reports an accepted stop
func StoppedNotification(ref InstanceRef) Notification {
	return Notification{Text: fmt.Sprintf("%s was started to shutdown.", ref.Name), Event: EventStop, Instance: ref, Success: true}
}

// IPNotification reports an address lookup. The address itself is never included.
func IPNotification(ref InstanceRef) Notification {
	return Notification{Text: fmt.Sprintf("Instance information obtained for %s.", ref.Name), Event: EventIP, Instance: ref, Success: true}
}

// StatusNotification reports the observed lifecycle status
func StatusNotification(ref InstanceRef, status string) Notification {
	return Notification{Text: fmt.Sprintf("%s is %s.", ref.Name, status), Event: EventStatus, Instance: ref, Success: true}
}

// FailureNotification reports a failed action
func FailureNotification(event InstanceEvent, ref InstanceRef, err error) Notification {
	return Notification{
		Text:     fmt.Sprintf("Failed to %s %s: %v", event.Action(), ref.Name, err),
		Event:    event,
		Instance: ref,
		Success:  false,
	}
}

// WebhookPayload is the Discord-compatible webhook body
type WebhookPayload struct {
	Content   string `json:"content"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatar_url"`
}

// InstanceEventMessage is the JSON document published to the event bus
type InstanceEventMessage struct {
	Event   InstanceEvent `json:"event"`
	Name    string        `json:"name"`
	Project string        `json:"project"`
	Zone    string        `json:"zone"`
	Message string        `json:"message"`
	Success bool          `json:"success"`
	Time    int64         `json:"time"`
}

// NewInstanceEventMessage builds the event bus document for n at t
func NewInstanceEventMessage(n Notification, t time.Time) InstanceEventMessage {
	return InstanceEventMessage{
		Event:   n.Event,
		Name:    n.Instance.Name,
		Project: n.Instance.Project,
		Zone:    n.Instance.Zone,
		Message: n.Text,
		Success: n.Success,
		Time:    t.Unix(),
	}
}
