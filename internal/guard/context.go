package guard

import (
	"github.com/gin-gonic/gin"
	"github.com/verigate/verigate/pkg/recaptcha"
)

// contextKey is where the resolved response lives on the gin context.
const contextKey = "verigate.response"

// contextEntry pairs the resolved response with the threshold that was in
// force when the route's decision was made, so downstream handlers branch
// on the same boundary the middleware used.
type contextEntry struct {
	resp      *recaptcha.Response
	threshold float64
}

func attach(c *gin.Context, resp *recaptcha.Response, threshold float64) {
	c.Set(contextKey, contextEntry{resp: resp, threshold: threshold})
}

// ResponseFrom returns the verification response the middleware attached
// to this request. recaptcha.ErrNotResolved is returned when the request
// was never verified (bypassed, remembered, or the middleware not
// installed).
func ResponseFrom(c *gin.Context) (*recaptcha.Response, error) {
	v, ok := c.Get(contextKey)
	if !ok {
		return nil, recaptcha.ErrNotResolved
	}
	return v.(contextEntry).resp, nil
}

// IsHuman reports whether this request's score cleared the route's
// threshold. Fails with the recaptcha accessor errors when no score
// response was attached.
func IsHuman(c *gin.Context) (bool, error) {
	v, ok := c.Get(contextKey)
	if !ok {
		return false, recaptcha.ErrNotResolved
	}
	entry := v.(contextEntry)
	return entry.resp.IsHuman(entry.threshold)
}

// IsRobot is the negation of IsHuman.
func IsRobot(c *gin.Context) (bool, error) {
	human, err := IsHuman(c)
	if err != nil {
		return false, err
	}
	return !human, nil
}
