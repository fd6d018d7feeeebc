package wordpress

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hpungsan/wpswap/internal/errors"
)

// Check outcomes.
const (
	StatusPass    = "pass"
	StatusWarning = "warning"
	StatusFail    = "fail"
	StatusUnknown = "unknown"
)

const (
	probeTimeout   = 10 * time.Second
	permalinksHint = "Settings → Permalinks"
)

// User is the authenticated account returned by /users/me.
type User struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// Check is one diagnostic probe.
type Check struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Diagnostics is the outcome of Diagnose.
type Diagnostics struct {
	Tests           []Check  `json:"tests"`
	OverallStatus   string   `json:"overall_status"`
	Recommendations []string `json:"recommendations"`
}

// Ping verifies the REST API is reachable and the credentials work.
func (c *Client) Ping(ctx context.Context) (*User, error) {
	resp, err := c.probe(ctx, "discover api", "/wp-json/", true)
	if err != nil {
		return nil, err
	}
	if resp.status != http.StatusOK {
		e := statusError("discover api", resp)
		e.Details["hint"] = "the REST API may be disabled; check the site URL and hosting settings"
		return nil, e
	}

	var user User
	if _, err := c.getJSON(ctx, "authenticate", apiPrefix+"/users/me", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// probe is a single attempt with the short diagnostic timeout.
func (c *Client) probe(ctx context.Context, op, path string, anonymous bool) (*response, error) {
	endpoint := c.baseURL + path
	resp, err := c.sendOnce(ctx, request{op: op, method: http.MethodGet, path: path, anonymous: anonymous}, endpoint, probeTimeout)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errors.NewCanceled(op)
		}
		return nil, errors.NewRemote(op, 0, err.Error())
	}
	return resp, nil
}

// Diagnose runs the connection checks and never fails: every problem is
// reported as a failed check with recommendations.
func (c *Client) Diagnose(ctx context.Context) *Diagnostics {
	d := &Diagnostics{Tests: []Check{}, Recommendations: []string{}}
	recommend := func(r ...string) { d.Recommendations = append(d.Recommendations, r...) }

	rest := Check{Name: "REST API Availability"}
	if resp, err := c.probe(ctx, "discover api", "/wp-json/", true); err != nil {
		rest.Status, rest.Message = StatusFail, "cannot reach site: "+errMessage(err)
		recommend("Check that the WordPress URL is correct and the site is online")
	} else if resp.status == http.StatusOK {
		rest.Status, rest.Message = StatusPass, "REST API is accessible"
	} else {
		rest.Status, rest.Message = StatusFail, fmt.Sprintf("REST API returned status %d", resp.status)
		recommend("Contact your hosting provider; the REST API may be disabled")
	}
	d.Tests = append(d.Tests, rest)

	posts := Check{Name: "Public Posts Endpoint"}
	if resp, err := c.probe(ctx, "list posts", apiPrefix+"/posts", true); err != nil {
		posts.Status, posts.Message = StatusFail, "error: "+errMessage(err)
	} else {
		posts.Message = fmt.Sprintf("status %d", resp.status)
		posts.Status = StatusPass
		if resp.status != http.StatusOK {
			posts.Status = StatusWarning
			recommend("Posts endpoint not accessible; the REST API may be restricted")
		}
	}
	d.Tests = append(d.Tests, posts)

	https := Check{Name: "HTTPS Enabled"}
	if strings.HasPrefix(c.baseURL, "https://") {
		https.Status, https.Message = StatusPass, "site uses HTTPS (required for application passwords)"
	} else {
		https.Status, https.Message = StatusFail, "site uses HTTP; application passwords require HTTPS"
		recommend("Enable an SSL certificate on the hosting account (most hosts offer free Let's Encrypt certificates)")
	}
	d.Tests = append(d.Tests, https)

	auth := Check{Name: "Authentication"}
	blocked := false
	if resp, err := c.probe(ctx, "authenticate", apiPrefix+"/users/me", false); err != nil {
		auth.Status, auth.Message = StatusFail, "connection error: "+errMessage(err)
	} else {
		auth.Status = StatusFail
		switch resp.status {
		case http.StatusOK:
			var user User
			name := "unknown"
			if json.Unmarshal(resp.body, &user) == nil && user.Name != "" {
				name = user.Name
			}
			auth.Status, auth.Message = StatusPass, "authenticated as: "+name
		case http.StatusUnauthorized:
			auth.Message = "401 Unauthorized: invalid credentials"
			recommend(
				"Verify the WordPress username is correct (not the email address)",
				"Regenerate the application password and try again",
				"Make sure the password was copied without extra characters",
			)
		case http.StatusNotAcceptable:
			blocked = true
			auth.Message = "406 Not Acceptable: server blocking request"
			recommend(
				"mod_security or a hosting firewall is blocking the request",
				"Fix 1: go to WordPress "+permalinksHint+" and click 'Save Changes' (regenerates .htaccess)",
				"Fix 2: ask the hosting provider to allow the /wp/v2/ URL paths in its firewall",
				"Fix 3: temporarily disable security plugins such as Wordfence to test",
			)
		case http.StatusForbidden:
			auth.Message = "403 Forbidden: valid credentials but insufficient permissions"
			recommend("The account may lack permissions; try an administrator account")
		default:
			auth.Message = fmt.Sprintf("status %d: %s", resp.status, http.StatusText(resp.status))
		}
	}
	d.Tests = append(d.Tests, auth)

	header := Check{Name: "Authorization Header"}
	switch {
	case blocked:
		header.Status, header.Message = StatusFail, "server not passing authorization headers"
		recommend("The server is stripping authorization headers, the most common cause of 406 errors")
	case auth.Status == StatusPass:
		header.Status, header.Message = StatusPass, "authorization headers working correctly"
	default:
		header.Status, header.Message = StatusUnknown, "cannot determine without a successful authentication"
	}
	d.Tests = append(d.Tests, header)

	d.OverallStatus = overall(d.Tests)
	if d.OverallStatus != StatusPass && !mentionsPermalinks(d.Recommendations) {
		recommend("Quick fix to try: WordPress Dashboard → " + permalinksHint + " → 'Save Changes' (often fixes authorization issues)")
	}
	return d
}

// overall is pass when every check passed, fail when any failed, otherwise warning.
func overall(tests []Check) string {
	allPass := true
	for _, t := range tests {
		if t.Status == StatusFail {
			return StatusFail
		}
		if t.Status != StatusPass {
			allPass = false
		}
	}
	if allPass {
		return StatusPass
	}
	return StatusWarning
}

func mentionsPermalinks(recs []string) bool {
	for _, r := range recs {
		if strings.Contains(r, permalinksHint) {
			return true
		}
	}
	return false
}

func errMessage(err error) string {
	if e, ok := errors.As(err); ok {
		return e.Message
	}
	return err.Error()
}
