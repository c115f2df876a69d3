package probe

import "strings"

// Notification permission values a target reports.
const (
	PermissionGranted = "granted"
	PermissionDefault = "default"
	PermissionDenied  = "denied"
)

// Service worker lifecycle states a target reports.
const (
	WorkerInstalling = "installing"
	WorkerWaiting    = "waiting"
	WorkerActivated  = "activated"
)

// StateReport is the consolidated push-subscription state a probe target
// reports about its own origin.
type StateReport struct {
	NotificationPermission  string `json:"notificationPermission"`
	ServiceWorkerRegistered bool   `json:"serviceWorkerRegistered"`
	ServiceWorkerState      string `json:"serviceWorkerState,omitempty"`
	ServiceWorkerURL        string `json:"serviceWorkerUrl,omitempty"`
	Subscribed              bool   `json:"subscribed"`
}

// SubscribedAt reports whether the state amounts to a live push subscription:
// permission granted, a registered worker in the activated state, an active
// subscription, and a worker script URL containing the given path fragment.
// An empty fragment matches any worker URL. All five conditions must hold.
func (r StateReport) SubscribedAt(fragment string) bool {
	return r.NotificationPermission == PermissionGranted &&
		r.ServiceWorkerRegistered &&
		r.ServiceWorkerState == WorkerActivated &&
		r.Subscribed &&
		strings.Contains(r.ServiceWorkerURL, fragment)
}

// PermissionState answers the notification-permission-state topic.
type PermissionState struct {
	Permission string `json:"permission"`
}

// WorkerState answers the service-worker-state and service-worker-query
// topics.
type WorkerState struct {
	Registered bool   `json:"registered"`
	State      string `json:"state,omitempty"`
	URL        string `json:"url,omitempty"`
}

// WorkerRegistration answers the service-worker-registration topic.
type WorkerRegistration struct {
	Registered bool   `json:"registered"`
	URL        string `json:"url,omitempty"`
}
