package contracts

// TopicConnectHandshake is the reserved topic of the broadcast that opens a
// connection and of the acknowledgment sent back on the private channel. A
// listener only ever accepts a broadcast carrying this topic.
const TopicConnectHandshake = "connect-handshake"

// Reserved feature topics. Their payload shapes are owned by the glue layer
// on each side; the messaging core routes them like any other topic.
const (
	TopicNotificationPermission    = "notification-permission-state"
	TopicServiceWorkerState        = "service-worker-state"
	TopicServiceWorkerRegistration = "service-worker-registration"
	TopicServiceWorkerQuery        = "service-worker-query"
	TopicOriginSubscriptionState   = "origin-subscription-state"
)
