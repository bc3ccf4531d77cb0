package lim

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func requestFrom(remoteAddr, xff string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = remoteAddr
	if xff != "" {
		r.Header.Set("X-Forwarded-For", xff)
	}
	return r
}

func TestGetRealIP(t *testing.T) {
	tests := []struct {
		name    string
		remote  string
		xff     string
		proxies []string
		want    string
	}{
		{"no proxies configured", "203.0.113.5:1234", "10.0.0.1", nil, "203.0.113.5"},
		{"direct connection", "203.0.113.5:1234", "", []string{"10.0.0.1"}, "203.0.113.5"},
		{"untrusted remote ignores xff", "203.0.113.5:1234", "198.51.100.7", []string{"10.0.0.1"}, "203.0.113.5"},
		{"trusted proxy uses xff", "10.0.0.1:1234", "198.51.100.7", []string{"10.0.0.1"}, "198.51.100.7"},
		{"chain walks past trusted hops", "10.0.0.1:1234", "198.51.100.7, 10.0.0.2", []string{"10.0.0.1", "10.0.0.2"}, "198.51.100.7"},
		{"cidr trusted proxy", "10.0.5.9:1234", "198.51.100.7", []string{"10.0.0.0/16"}, "198.51.100.7"},
		{"spoofed garbage in xff", "10.0.0.1:1234", "garbage, 198.51.100.7", []string{"10.0.0.1"}, "198.51.100.7"},
		{"all hops trusted", "10.0.0.1:1234", "10.0.0.2, 10.0.0.3", []string{"10.0.0.0/16"}, "10.0.0.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := GetRealIP(requestFrom(tt.remote, tt.xff), tt.proxies)
			if got != tt.want {
				t.Errorf("GetRealIP = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestCheckLimit_LocalFallback(t *testing.T) {
	// Without Redis the limiter fails closed to the conservative per-IP
	// limit.
	l := New(1000, 10, 3, nil, nil)
	defer l.Stop()

	allowed := 0
	for i := 0; i < 10; i++ {
		r := requestFrom("203.0.113.5:1234", "")
		w := httptest.NewRecorder()
		res := l.CheckLimit(w, r, "read")
		if res.Allowed {
			allowed++
		}
	}
	if allowed != 3 {
		t.Errorf("allowed = %d, want 3 (conservative burst)", allowed)
	}
}

func TestCheckLimit_PerIPIsolation(t *testing.T) {
	l := New(1000, 10, 1, nil, nil)
	defer l.Stop()

	r1 := requestFrom("203.0.113.5:1234", "")
	if res := l.CheckLimit(httptest.NewRecorder(), r1, "read"); !res.Allowed {
		t.Fatal("first request from first ip should pass")
	}
	if res := l.CheckLimit(httptest.NewRecorder(), r1, "read"); res.Allowed {
		t.Fatal("second request from first ip should be limited")
	}
	r2 := requestFrom("198.51.100.7:1234", "")
	if res := l.CheckLimit(httptest.NewRecorder(), r2, "read"); !res.Allowed {
		t.Fatal("other ip must have its own bucket")
	}
}

func TestStripPort(t *testing.T) {
	if got := stripPort("10.0.0.1:8080"); got != "10.0.0.1" {
		t.Errorf("got %s", got)
	}
	if got := stripPort("10.0.0.1"); got != "10.0.0.1" {
		t.Errorf("got %s", got)
	}
	if got := stripPort("[::1]:8080"); got != "::1" {
		t.Errorf("got %s", got)
	}
}
