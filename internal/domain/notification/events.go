package notification

// Realtime channel event names.
const (
	EventConnect      = "connect"
	EventDisconnect   = "disconnect"
	EventConnectError = "connect_error"
	EventNotification = "notification"
)
