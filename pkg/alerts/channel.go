package alerts

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// channelTimeout bounds one delivery attempt.
const channelTimeout = 10 * time.Second

// maxErrorBody caps how much of a rejected response is quoted in errors.
const maxErrorBody = 200

func newChannelClient(userAgent string) *resty.Client {
	c := resty.New().
		SetTimeout(channelTimeout).
		SetHeader("Content-Type", "application/json")
	if userAgent != "" {
		c.SetHeader("User-Agent", userAgent)
	}
	return c
}

// rejected reports a non-2xx delivery response.
func rejected(channel string, resp *resty.Response) error {
	msg := strings.TrimSpace(resp.String())
	if len(msg) > maxErrorBody {
		msg = msg[:maxErrorBody]
	}
	if msg == "" {
		return fmt.Errorf("%s returned status %d", channel, resp.StatusCode())
	}
	return fmt.Errorf("%s returned status %d: %s", channel, resp.StatusCode(), msg)
}
