package shield

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if GetLogger(r.Context()) == nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte("ok"))
	})
}

func chain(h http.Handler, mws []func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

func mustHash(t *testing.T, pw string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	return string(h)
}

func TestStack_NoAuth(t *testing.T) {
	h := chain(okHandler(), Stack(nil, "", ""))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodHead, "/api/status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rec.Code)
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" || rec.Header().Get("Cache-Control") != "no-store" {
		t.Fatalf("headers: got %v", rec.Header())
	}
	if len(rec.Header().Get("X-Trace-ID")) != 8 {
		t.Fatalf("trace id: got %q", rec.Header().Get("X-Trace-ID"))
	}
}

func TestBasicAuth(t *testing.T) {
	// WHAT: The bcrypt-protected stack rejects missing or wrong credentials but leaves /health open.
	// WHY: Liveness checks carry no credentials.
	h := chain(okHandler(), Stack(nil, "admin", mustHash(t, "s3cret")))

	cases := []struct {
		name       string
		path       string
		user, pass string
		want       int
	}{
		{"none", "/api/status", "", "", http.StatusUnauthorized},
		{"wrong password", "/api/status", "admin", "nope", http.StatusUnauthorized},
		{"wrong user", "/api/status", "root", "s3cret", http.StatusUnauthorized},
		{"ok", "/api/status", "admin", "s3cret", http.StatusOK},
		{"health open", "/health", "", "", http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			if tc.user != "" || tc.pass != "" {
				req.SetBasicAuth(tc.user, tc.pass)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Fatalf("status: got %d, want %d", rec.Code, tc.want)
			}
			if tc.want == http.StatusUnauthorized && rec.Header().Get("WWW-Authenticate") == "" {
				t.Fatal("missing WWW-Authenticate")
			}
		})
	}
}

func TestBasicAuth_AnyUser(t *testing.T) {
	h := BasicAuth("", mustHash(t, "pw"))(okHandler())
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.SetBasicAuth("whoever", "pw")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rec.Code)
	}
}
