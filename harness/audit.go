package harness

import (
	"context"
	nethttp "net/http"
	"strconv"
	"time"

	"github.com/field-workshops/labkit/http"
	"github.com/field-workshops/labkit/validation"
)

// LoginWindow is how far back VerifyLogin searches the audit trail.
const LoginWindow = 5 * time.Minute

type principal struct {
	Type       string `json:"type"`
	Identifier string `json:"identifier"`
}

type auditFilter struct {
	Actions    []string    `json:"actions"`
	Principals []principal `json:"principals"`
	FilterType string      `json:"filterType"`
	StartTime  string      `json:"startTime"`
}

// VerifyLogin reports whether user logged in within LoginWindow. The audit
// trail is queried once; an empty result is not an error.
func (c *Client) VerifyLogin(ctx context.Context, user string) (bool, error) {
	if err := validation.Struct(struct {
		User string `json:"user" validate:"required"`
	}{user}); err != nil {
		return false, err
	}

	since := c.now().Add(-LoginWindow).UnixMilli()
	filter := auditFilter{
		Actions:    []string{"LOGIN"},
		Principals: []principal{{Type: "USER", Identifier: user}},
		FilterType: "Audit",
		StartTime:  strconv.FormatInt(since, 10),
	}

	c.logger.Info().Str("user", user).Msg("Validating platform login")
	resp, err := c.http.Execute(ctx, http.Endpoint{
		Method:   nethttp.MethodPost,
		Path:     auditListPath,
		Query:    c.scope("", ""),
		Encoding: http.EncodingJSON,
	}, filter, http.SingleShot(http.Status2xx()))
	if err != nil {
		return false, err
	}

	if err := http.MinCount(1, "data", "totalItems")(resp); err != nil {
		c.logger.Info().Str("user", user).Dur("window", LoginWindow).Msg("No login found")
		return false, nil
	}
	c.logger.Info().Str("user", user).Msg("Login found in audit trail")
	return true, nil
}
