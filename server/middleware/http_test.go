package middleware_test

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/audioscribe/logger"
	"github.com/kbukum/audioscribe/resilience"
	"github.com/kbukum/audioscribe/server/middleware"
)

func status(code int) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(code) }
}

func serve(mw middleware.Middleware, h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	mw(h).ServeHTTP(rr, req)
	return rr
}

func jsonLogger() (*logger.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return logger.NewWithWriter(&logger.Config{Level: "debug", Format: "json"}, "audioscribe", &buf), &buf
}

func TestRecovery(t *testing.T) {
	t.Run("passes through", func(t *testing.T) {
		rr := serve(middleware.Recovery(logger.Nop()), status(http.StatusAccepted), httptest.NewRequest("GET", "/", http.NoBody))
		if rr.Code != http.StatusAccepted {
			t.Fatalf("got %d", rr.Code)
		}
	})

	t.Run("panic becomes internal error", func(t *testing.T) {
		log, buf := jsonLogger()
		boom := http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("decoder exploded") })
		rr := serve(middleware.Recovery(log), boom, httptest.NewRequest("POST", "/transcribe", http.NoBody))
		if rr.Code != http.StatusInternalServerError {
			t.Fatalf("got %d", rr.Code)
		}
		var body map[string]any
		if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
			t.Fatalf("body is not JSON: %v", err)
		}
		if body["code"] != "INTERNAL_ERROR" {
			t.Errorf("unexpected body %v", body)
		}
		if !strings.Contains(buf.String(), "decoder exploded") {
			t.Errorf("panic value not logged: %s", buf.String())
		}
	})
}

func TestRequestID(t *testing.T) {
	tests := []struct {
		name     string
		incoming string
	}{
		{"generated", ""},
		{"preserved", "custom-id-123"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", http.NoBody)
			if tt.incoming != "" {
				req.Header.Set(middleware.HeaderRequestID, tt.incoming)
			}
			var seen string
			h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = r.Header.Get(middleware.HeaderRequestID)
			})
			rr := serve(middleware.RequestID(), h, req)

			got := rr.Header().Get(middleware.HeaderRequestID)
			if got == "" || got != seen {
				t.Fatalf("response id %q, handler saw %q", got, seen)
			}
			if tt.incoming != "" && got != tt.incoming {
				t.Errorf("expected %q kept, got %q", tt.incoming, got)
			}
		})
	}
}

func TestCORS(t *testing.T) {
	restricted := &middleware.CORSConfig{
		AllowedOrigins: []string{"https://app.example.com"},
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Content-Type"},
	}
	open := &middleware.CORSConfig{AllowedOrigins: []string{"*"}, AllowCredentials: true}

	tests := []struct {
		name        string
		cfg         *middleware.CORSConfig
		method      string
		origin      string
		wantCode    int
		wantOrigin  string
		wantHeaders map[string]string
	}{
		{
			name: "allowed origin", cfg: restricted, method: "GET", origin: "https://app.example.com",
			wantCode: http.StatusOK, wantOrigin: "https://app.example.com",
			wantHeaders: map[string]string{"Access-Control-Allow-Methods": "GET, POST", "Access-Control-Allow-Headers": "Content-Type"},
		},
		{name: "disallowed origin", cfg: restricted, method: "GET", origin: "https://evil.example", wantCode: http.StatusOK},
		{name: "no origin", cfg: open, method: "GET", wantCode: http.StatusOK},
		{name: "preflight", cfg: open, method: "OPTIONS", origin: "https://x.example", wantCode: http.StatusNoContent, wantOrigin: "https://x.example"},
		{
			name: "credentials", cfg: open, method: "GET", origin: "https://x.example",
			wantCode: http.StatusOK, wantOrigin: "https://x.example",
			wantHeaders: map[string]string{"Access-Control-Allow-Credentials": "true"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/transcribe", http.NoBody)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			reached := false
			h := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { reached = true })
			rr := serve(middleware.CORS(tt.cfg), h, req)

			if rr.Code != tt.wantCode {
				t.Errorf("code %d, want %d", rr.Code, tt.wantCode)
			}
			if reached == (tt.method == http.MethodOptions) {
				t.Errorf("handler reached=%v for %s", reached, tt.method)
			}
			if got := rr.Header().Get("Access-Control-Allow-Origin"); got != tt.wantOrigin {
				t.Errorf("allow-origin %q, want %q", got, tt.wantOrigin)
			}
			for k, v := range tt.wantHeaders {
				if got := rr.Header().Get(k); got != v {
					t.Errorf("%s = %q, want %q", k, got, v)
				}
			}
		})
	}
}

func TestCORSConfig_AllowsOrigin(t *testing.T) {
	cfg := &middleware.CORSConfig{AllowedOrigins: []string{"https://a.example"}}
	if !cfg.AllowsOrigin("https://a.example") || cfg.AllowsOrigin("https://b.example") {
		t.Error("allow-list not honored")
	}
	if !(&middleware.CORSConfig{AllowedOrigins: []string{"*"}}).AllowsOrigin("anything") {
		t.Error("wildcard should allow any origin")
	}
}

func TestRequestLogger(t *testing.T) {
	tests := []struct {
		name      string
		path      string
		code      int
		wantLevel string
	}{
		{"success at debug", "/transcribe", http.StatusCreated, "debug"},
		{"client error at warn", "/transcribe", http.StatusBadRequest, "warn"},
		{"server error at error", "/transcribe", http.StatusBadGateway, "error"},
		{"probe skipped", "/health", http.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log, buf := jsonLogger()
			req := httptest.NewRequest("POST", tt.path, http.NoBody)
			req.Header.Set(middleware.HeaderRequestID, "rid-1")
			rr := serve(middleware.RequestLogger(log), status(tt.code), req)
			if rr.Code != tt.code {
				t.Fatalf("code %d, want %d", rr.Code, tt.code)
			}
			if tt.wantLevel == "" {
				if buf.Len() != 0 {
					t.Errorf("probe should not log, got %s", buf.String())
				}
				return
			}
			var line map[string]any
			if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
				t.Fatalf("bad log line %q: %v", buf.String(), err)
			}
			if line["level"] != tt.wantLevel {
				t.Errorf("level %v, want %s", line["level"], tt.wantLevel)
			}
			if line[logger.FieldStatus] != float64(tt.code) || line[logger.FieldRequestID] != "rid-1" {
				t.Errorf("unexpected fields %v", line)
			}
		})
	}
}

func TestBodySizeLimit(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := io.ReadAll(r.Body); err != nil {
			w.WriteHeader(http.StatusRequestEntityTooLarge)
		}
	})
	for _, tt := range []struct {
		size int
		want int
	}{
		{1024, http.StatusOK},
		{1025, http.StatusRequestEntityTooLarge},
	} {
		req := httptest.NewRequest("POST", "/transcribe", strings.NewReader(strings.Repeat("x", tt.size)))
		if rr := serve(middleware.BodySizeLimit("1KB"), h, req); rr.Code != tt.want {
			t.Errorf("size %d: got %d, want %d", tt.size, rr.Code, tt.want)
		}
	}
}

func TestParseSize(t *testing.T) {
	tests := map[string]int64{
		"10MB":  10 << 20,
		"512kb": 512 << 10,
		"1GB":   1 << 30,
		"2048":  2048,
		"100B":  100,
		" 2 KB": 2 << 10,
		"":      7,
		"lots":  7,
		"-5MB":  7,
	}
	for in, want := range tests {
		if got := middleware.ParseSize(in, 7); got != want {
			t.Errorf("ParseSize(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestRateLimit_PerClient(t *testing.T) {
	gin.SetMode(gin.TestMode)
	limiter := resilience.NewKeyedRateLimiter(resilience.RateLimiterConfig{Rate: 0.001, Burst: 2}, 0)
	r := gin.New()
	r.POST("/transcribe", middleware.RateLimit(limiter, nil), func(c *gin.Context) { c.Status(http.StatusOK) })

	send := func(ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest("POST", "/transcribe", http.NoBody)
		req.RemoteAddr = ip + ":1234"
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, req)
		return rr
	}

	var codes []int
	for range 3 {
		codes = append(codes, send("10.0.0.1").Code)
	}
	if !slices.Equal(codes, []int{200, 200, 429}) {
		t.Fatalf("codes %v, want [200 200 429]", codes)
	}
	if rr := send("10.0.0.1"); rr.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After on a limited response")
	}
	if code := send("10.0.0.2").Code; code != http.StatusOK {
		t.Fatalf("another client has its own bucket, got %d", code)
	}
}

func TestChain_Order(t *testing.T) {
	var order []string
	tag := func(name string) middleware.Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name+">")
				next.ServeHTTP(w, r)
				order = append(order, "<"+name)
			})
		}
	}
	h := http.HandlerFunc(func(http.ResponseWriter, *http.Request) { order = append(order, "handler") })
	serve(middleware.Chain(tag("outer"), tag("inner")), h, httptest.NewRequest("GET", "/", http.NoBody))

	want := []string{"outer>", "inner>", "handler", "<inner", "<outer"}
	if !slices.Equal(order, want) {
		t.Fatalf("order %v, want %v", order, want)
	}
}

func TestGinWrap(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.GinWrap(middleware.RequestID()))
	var seen string
	r.GET("/x", func(c *gin.Context) {
		seen = c.GetHeader(middleware.HeaderRequestID)
		c.Status(http.StatusOK)
	})
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest("GET", "/x", http.NoBody))
	if seen == "" || rr.Header().Get(middleware.HeaderRequestID) != seen {
		t.Errorf("request id not propagated through gin: handler %q, response %q", seen, rr.Header().Get(middleware.HeaderRequestID))
	}
}

type flushRecorder struct {
	http.ResponseWriter
	flushed bool
}

func (f *flushRecorder) Flush() { f.flushed = true }

type hijackRecorder struct {
	*httptest.ResponseRecorder
	hijacked bool
}

func (h *hijackRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h.hijacked = true
	server, client := net.Pipe()
	_ = client.Close()
	return server, bufio.NewReadWriter(bufio.NewReader(server), bufio.NewWriter(server)), nil
}

func TestStatusWriter_Flush(t *testing.T) {
	fr := &flushRecorder{ResponseWriter: httptest.NewRecorder()}
	h := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.(http.Flusher).Flush()
	})
	middleware.RequestLogger(logger.Nop())(h).ServeHTTP(fr, httptest.NewRequest("GET", "/stream", http.NoBody))
	if !fr.flushed {
		t.Error("Flush not delegated")
	}
}

func TestStatusWriter_HijackLogsUpgrade(t *testing.T) {
	log, buf := jsonLogger()
	hr := &hijackRecorder{ResponseRecorder: httptest.NewRecorder()}
	h := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hj, ok := w.(http.Hijacker)
		if !ok {
			t.Fatal("logging writer must support hijacking")
		}
		conn, _, err := hj.Hijack()
		if err != nil {
			t.Fatalf("Hijack: %v", err)
		}
		_ = conn.Close()
	})
	middleware.RequestLogger(log)(h).ServeHTTP(hr, httptest.NewRequest("GET", "/ws/transcribe", http.NoBody))

	if !hr.hijacked {
		t.Fatal("Hijack not delegated")
	}
	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("bad log line: %v", err)
	}
	if line[logger.FieldStatus] != float64(http.StatusSwitchingProtocols) || line["upgraded"] != true {
		t.Errorf("upgrade not recorded: %v", line)
	}
}
