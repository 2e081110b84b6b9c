package websocket

import "time"

// ReconnectDelay exposes the backoff schedule to the external test package.
func ReconnectDelay(config ChannelConfig, attempt int) time.Duration {
	c := &Channel{config: config}
	return c.delay(attempt)
}
