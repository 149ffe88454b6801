package types

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNotificationText(t *testing.T) {
	ref := InstanceRef{Name: "vm-1", Project: "proj-a", Zone: "us-central1-a"}

	tests := []struct {
		name         string
		notification Notification
		wantText     string
		wantEvent    InstanceEvent
		wantSuccess  bool
	}{
		{"start", StartedNotification(ref), "vm-1 was started to boot.", EventStart, true},
		{"stop", StoppedNotification(ref), "vm-1 was started to shutdown.", EventStop, true},
		{"ip", IPNotification(ref), "Instance information obtained for vm-1.", EventIP, true},
		{"status", StatusNotification(ref, "STOPPING"), "vm-1 is STOPPING.", EventStatus, true},
		{"stop failure", FailureNotification(EventStop, ref, errors.New("denied")), "Failed to stop vm-1: denied", EventStop, false},
		{"ip failure", FailureNotification(EventIP, ref, errors.New("gone")), "Failed to get the IP of vm-1: gone", EventIP, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantText, tt.notification.Text)
			assert.Equal(t, tt.wantEvent, tt.notification.Event)
			assert.Equal(t, tt.wantSuccess, tt.notification.Success)
			assert.Equal(t, ref, tt.notification.Instance)
		})
	}
}

func TestInstanceEventAction(t *testing.T) {
	assert.Equal(t, "start", EventStart.Action())
	assert.Equal(t, "get the status of", EventStatus.Action())
	assert.Equal(t, "instance.reset", InstanceEvent("instance.reset").Action())
}
