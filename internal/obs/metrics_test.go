package obs

import "testing"

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                              "/",
		"/metrics":                      "/metrics",
		"/v1/events/01ABCDEF":           "/v1/events/:id",
		"/v1/events/01ABCDEF/retry":     "/v1/events/:id/retry",
		"/v1/events/01ABCDEF/extra":     "/v1/events/01ABCDEF/extra",
		"/v1/events":                    "/v1/events",
		"/v1/claims":                    "/v1/claims",
		"/v1/events/01ABCDEF?verbose=1": "/v1/events/:id",
		"/v1/events/pending":            "/v1/events/pending",
		"/v1/events/watch":              "/v1/events/watch",
		"/v1/organizations/org-7":       "/v1/organizations/:id",
		"/v1/sessions/abc123":           "/v1/sessions/:id",
		"/v1/organizations/org-7/units": "/v1/organizations/:id/units",
		"/v1/users/u-9/permissions":     "/v1/users/:id/permissions",
		"/v1/streams/organization/o-1":  "/v1/streams/:type/:id",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}
