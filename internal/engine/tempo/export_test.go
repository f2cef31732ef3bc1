package tempo

import (
	"context"
	"time"
)

// SetSleep replaces the wait between rate-limited attempts
func (c *Client) SetSleep(f func(ctx context.Context, d time.Duration) error) {
	c.sleep = f
}
