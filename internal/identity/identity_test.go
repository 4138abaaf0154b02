package identity

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestMiddlewareIssuesCookieAndReadsSessionHeader(t *testing.T) {
	t.Parallel()

	var gotUser, gotSession string
	h := Middleware(true)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		gotUser = UserIDFromContext(r.Context())
		gotSession = SessionIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/session", nil)
	req.Header.Set(SessionHeaderName, "tab-1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if !isValidAnonID(gotUser) {
		t.Fatalf("unexpected user id %q", gotUser)
	}
	if gotSession != "tab-1" {
		t.Fatalf("session = %q, want tab-1", gotSession)
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Value != gotUser {
		t.Fatalf("expected anon cookie for %q, got %+v", gotUser, cookies)
	}

	// The cookie is reused on the next request.
	req2 := httptest.NewRequest(http.MethodGet, "/api/session?session_id=tab-2", nil)
	req2.AddCookie(cookies[0])
	h.ServeHTTP(httptest.NewRecorder(), req2)
	if gotUser != cookies[0].Value || gotSession != "tab-2" {
		t.Fatalf("got user=%q session=%q", gotUser, gotSession)
	}
}

func TestSanitizeSessionID(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"":          DefaultSessionIDValue,
		"  abc  ":   "abc",
		"a:b":       DefaultSessionIDValue,
		"../../etc": DefaultSessionIDValue,
		"tab_1.2-3": "tab_1.2-3",
	}
	for in, want := range tests {
		if got := sanitizeSessionID(in); got != want {
			t.Errorf("sanitizeSessionID(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCheckpointKey(t *testing.T) {
	t.Parallel()

	if got := CheckpointKey("anon_x", "tab"); got != "anon_x:tab" {
		t.Fatalf("CheckpointKey = %q", got)
	}
	if got := CheckpointKey("anon_x", "bad:id"); got != "anon_x:default" {
		t.Fatalf("CheckpointKey = %q", got)
	}
}
