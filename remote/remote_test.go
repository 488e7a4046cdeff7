package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/image/bmp"

	"github.com/hazyhaar/placebot/canvas"
	"github.com/hazyhaar/placebot/horosafe"
	"github.com/hazyhaar/placebot/internal/fetch"
	"github.com/hazyhaar/placebot/target"
)

// fakeService mimics the canvas service and a descriptor host.
type fakeService struct {
	t          *testing.T
	board      []byte
	logins     int
	draws      int
	drawStatus int
	lastDraw   map[string]string
}

func (s *fakeService) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /target.json", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"x": 3, "y": 4, "image": "http://%s/img.png", "fallbacks": ["http://%s/b.json"]}`, r.Host, r.Host)
	})
	mux.HandleFunc("GET /img.png", func(w http.ResponseWriter, r *http.Request) {
		img := image.NewNRGBA(image.Rect(0, 0, 2, 1))
		img.SetNRGBA(0, 0, color.NRGBA{229, 0, 0, 255})
		png.Encode(w, img)
	})
	mux.HandleFunc("GET /img.bmp", func(w http.ResponseWriter, r *http.Request) {
		img := image.NewRGBA(image.Rect(0, 0, 3, 2))
		bmp.Encode(w, img)
	})
	mux.HandleFunc("GET /junk.png", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not an image"))
	})
	mux.HandleFunc("GET /api/place/board-bitmap", func(w http.ResponseWriter, r *http.Request) {
		w.Write(s.board)
	})
	mux.HandleFunc("POST /api/login/{user}", func(w http.ResponseWriter, r *http.Request) {
		s.logins++
		r.ParseForm()
		if r.PathValue("user") != "bot" || r.Form.Get("passwd") != "hunter2" || r.Form.Get("op") != "login-main" {
			w.Write([]byte(`{"json": {"errors": [["WRONG_PASSWORD", "wrong password", "passwd"]]}}`))
			return
		}
		w.Write([]byte(`{"json": {"errors": [], "data": {"modhash": "mh1", "cookie": "ck1"}}}`))
	})
	mux.HandleFunc("POST /api/place/draw.json", func(w http.ResponseWriter, r *http.Request) {
		s.draws++
		r.ParseForm()
		c, err := r.Cookie("reddit_session")
		if err != nil || c.Value != "ck1" || r.Header.Get("X-Modhash") != "mh1" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		s.lastDraw = map[string]string{"x": r.Form.Get("x"), "y": r.Form.Get("y"), "color": r.Form.Get("color")}
		if s.drawStatus == http.StatusTooManyRequests {
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(map[string]any{"wait_seconds": 12.5})
			return
		}
		if s.drawStatus != 0 {
			w.WriteHeader(s.drawStatus)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"wait_seconds": 300})
	})
	return mux
}

func newTestClient(t *testing.T, svc *fakeService) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(svc.handler())
	t.Cleanup(srv.Close)
	f := fetch.New(fetch.Config{URLValidator: horosafe.ValidateScheme})
	return NewClient(Config{BaseURL: srv.URL}, f, nil), srv
}

func TestFetchDescriptor(t *testing.T) {
	c, srv := newTestClient(t, &fakeService{t: t})
	d, err := c.FetchDescriptor(context.Background(), srv.URL+"/target.json")
	if err != nil {
		t.Fatalf("fetch descriptor: %v", err)
	}
	if d.X != 3 || d.Y != 4 || d.MajorVersion != target.SupportedMajor {
		t.Fatalf("descriptor: got %+v", d)
	}
	if len(d.Fallbacks) != 1 {
		t.Fatalf("fallbacks: got %v", d.Fallbacks)
	}
}

func TestFetchDescriptor_TransportError(t *testing.T) {
	c, srv := newTestClient(t, &fakeService{t: t})
	_, err := c.FetchDescriptor(context.Background(), srv.URL+"/missing.json")
	if !errors.Is(err, target.ErrTransport) {
		t.Fatalf("error: got %v, want ErrTransport", err)
	}
	var se *fetch.StatusError
	if !errors.As(err, &se) || se.Code != 404 {
		t.Fatalf("status error: got %v", err)
	}
}

func TestFetchImage_Formats(t *testing.T) {
	// WHAT: PNG and BMP reference images both decode.
	// WHY: Target authors publish images in whatever format their editor exports.
	c, srv := newTestClient(t, &fakeService{t: t})
	ctx := context.Background()

	img, err := c.FetchImage(ctx, srv.URL+"/img.png")
	if err != nil {
		t.Fatalf("png: %v", err)
	}
	if img.Bounds().Dx() != 2 || img.Bounds().Dy() != 1 {
		t.Fatalf("png bounds: %v", img.Bounds())
	}

	img, err = c.FetchImage(ctx, srv.URL+"/img.bmp")
	if err != nil {
		t.Fatalf("bmp: %v", err)
	}
	if img.Bounds().Dx() != 3 || img.Bounds().Dy() != 2 {
		t.Fatalf("bmp bounds: %v", img.Bounds())
	}

	if _, err := c.FetchImage(ctx, srv.URL+"/junk.png"); !errors.Is(err, target.ErrFormat) {
		t.Fatalf("junk: got %v, want ErrFormat", err)
	}
}

func TestFetchCanvas_SkipsHeader(t *testing.T) {
	// WHAT: The 4-byte board prefix is skipped before loading pixels.
	// WHY: The board endpoint prepends a timestamp to the bitmap.
	board := append([]byte{0xDE, 0xAD, 0xBE, 0xEF}, 0x5A, 0x00, 0x00, 0x3C)
	c, _ := newTestClient(t, &fakeService{t: t, board: board})
	cv := canvas.New(4, 2)
	if err := c.FetchCanvas(context.Background(), cv); err != nil {
		t.Fatalf("fetch canvas: %v", err)
	}
	if cv.Sample(0, 0) != 5 || cv.Sample(1, 0) != 0xA || cv.Sample(3, 1) != 0xC {
		t.Fatalf("samples: %d %d %d", cv.Sample(0, 0), cv.Sample(1, 0), cv.Sample(3, 1))
	}
}

func TestFetchCanvas_Short(t *testing.T) {
	c, _ := newTestClient(t, &fakeService{t: t, board: []byte{0, 0, 0, 0, 1}})
	err := c.FetchCanvas(context.Background(), canvas.New(4, 2))
	if !errors.Is(err, target.ErrTransport) || !errors.Is(err, canvas.ErrShortSnapshot) {
		t.Fatalf("error: got %v", err)
	}
}

func TestLoginAndPlace(t *testing.T) {
	svc := &fakeService{t: t}
	c, _ := newTestClient(t, svc)
	ctx := context.Background()

	s, err := c.Login(ctx, "bot", "hunter2")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if s.Modhash != "mh1" {
		t.Fatalf("modhash: got %q", s.Modhash)
	}
	wait, err := c.Place(ctx, s, 10, 20, 5)
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	if wait != 300*time.Second {
		t.Fatalf("wait: got %v", wait)
	}
	if svc.lastDraw["x"] != "10" || svc.lastDraw["y"] != "20" || svc.lastDraw["color"] != "5" {
		t.Fatalf("draw form: got %v", svc.lastDraw)
	}
}

func TestLogin_WrongPassword(t *testing.T) {
	c, _ := newTestClient(t, &fakeService{t: t})
	_, err := c.Login(context.Background(), "bot", "wrong")
	if !errors.Is(err, ErrAuth) {
		t.Fatalf("error: got %v, want ErrAuth", err)
	}
}

func TestPlace_RateLimited(t *testing.T) {
	svc := &fakeService{t: t, drawStatus: http.StatusTooManyRequests}
	c, _ := newTestClient(t, svc)
	ctx := context.Background()
	s, err := c.Login(ctx, "bot", "hunter2")
	if err != nil {
		t.Fatal(err)
	}
	_, err = c.Place(ctx, s, 1, 1, 1)
	var rl *RateLimitError
	if !errors.As(err, &rl) {
		t.Fatalf("error: got %v, want RateLimitError", err)
	}
	if rl.Wait != 12500*time.Millisecond {
		t.Fatalf("wait: got %v", rl.Wait)
	}
	if !errors.Is(err, ErrPlacement) {
		t.Fatal("rate limit should match ErrPlacement")
	}
}

func TestPlacer_ReusesSessionUntilFailure(t *testing.T) {
	// WHAT: The placer logs in once, reuses the session, and logs in again after a failure.
	// WHY: Sessions are reusable until they fail; a failed one must not be retried.
	svc := &fakeService{t: t}
	c, _ := newTestClient(t, svc)
	p := NewPlacer(c, "bot", "hunter2")
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := p.Place(ctx, 1, 1, 1); err != nil {
			t.Fatalf("place %d: %v", i, err)
		}
	}
	if svc.logins != 1 {
		t.Fatalf("logins: got %d, want 1", svc.logins)
	}

	svc.drawStatus = http.StatusInternalServerError
	if _, err := p.Place(ctx, 1, 1, 1); !errors.Is(err, ErrPlacement) {
		t.Fatalf("failing place: got %v", err)
	}
	svc.drawStatus = 0
	if _, err := p.Place(ctx, 1, 1, 1); err != nil {
		t.Fatalf("place after failure: %v", err)
	}
	if svc.logins != 2 {
		t.Fatalf("logins after failure: got %d, want 2", svc.logins)
	}
}

func TestPlacer_KeepsSessionWhenRateLimited(t *testing.T) {
	// WHAT: A 429 surfaces the server cooldown and keeps the session for the next attempt.
	// WHY: Being rate limited says nothing about the session; logging in again is wasted traffic.
	svc := &fakeService{t: t}
	c, _ := newTestClient(t, svc)
	p := NewPlacer(c, "bot", "hunter2")
	ctx := context.Background()

	if _, err := p.Place(ctx, 1, 1, 1); err != nil {
		t.Fatalf("first place: %v", err)
	}
	svc.drawStatus = http.StatusTooManyRequests
	_, err := p.Place(ctx, 1, 1, 1)
	var rl *RateLimitError
	if !errors.As(err, &rl) || rl.RetryAfter() != 12500*time.Millisecond {
		t.Fatalf("rate limited place: got %v", err)
	}
	svc.drawStatus = 0
	if _, err := p.Place(ctx, 1, 1, 1); err != nil {
		t.Fatalf("place after cooldown: %v", err)
	}
	if svc.logins != 1 {
		t.Fatalf("logins: got %d, want 1", svc.logins)
	}
}

func TestSeconds_Clamped(t *testing.T) {
	cases := []struct {
		in   float64
		want time.Duration
	}{
		{1.5, 1500 * time.Millisecond},
		{-3, 0},
		{math.NaN(), 0},
		{1e300, MaxWait},
		{math.Inf(1), MaxWait},
		{MaxWait.Seconds() + 1, MaxWait},
	}
	for _, tc := range cases {
		if got := seconds(tc.in); got != tc.want {
			t.Fatalf("seconds(%v): got %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestPlace_HugeWaitClamped(t *testing.T) {
	// WHAT: An absurd wait_seconds is capped rather than overflowing into a negative duration.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"wait_seconds": 1e300}`))
	}))
	t.Cleanup(srv.Close)
	c := NewClient(Config{BaseURL: srv.URL}, fetch.New(fetch.Config{URLValidator: horosafe.ValidateScheme}), nil)
	wait, err := c.Place(context.Background(), &Session{Modhash: "m", fetcher: c.fetcher}, 0, 0, 0)
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	if wait != MaxWait {
		t.Fatalf("wait: got %v, want %v", wait, MaxWait)
	}
}

func TestPlacer_LoginFailure(t *testing.T) {
	c, _ := newTestClient(t, &fakeService{t: t})
	p := NewPlacer(c, "bot", "nope")
	if _, err := p.Place(context.Background(), 0, 0, 0); !errors.Is(err, ErrAuth) {
		t.Fatalf("error: got %v, want ErrAuth", err)
	}
}
