package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/extra-connectors/tpbridge/pkg/assets"
	"github.com/extra-connectors/tpbridge/pkg/battery"
	"github.com/extra-connectors/tpbridge/pkg/clock"
	"github.com/extra-connectors/tpbridge/pkg/config"
	"github.com/extra-connectors/tpbridge/pkg/router"
	"github.com/extra-connectors/tpbridge/pkg/sink"
	"github.com/extra-connectors/tpbridge/pkg/transport"
	"github.com/extra-connectors/tpbridge/pkg/types"
)

const waitFor = 5 * time.Second

type memEndpoint struct {
	frames  chan [][]byte
	sent    chan [][]byte
	sendErr chan error
	done    chan struct{}
	once    sync.Once
}

func newMemEndpoint() *memEndpoint {
	return &memEndpoint{
		frames:  make(chan [][]byte, 16),
		sent:    make(chan [][]byte, 16),
		sendErr: make(chan error, 1),
		done:    make(chan struct{}),
	}
}

func (e *memEndpoint) Recv(ctx context.Context) ([][]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-e.done:
		return nil, transport.ErrClosed
	case parts := <-e.frames:
		return parts, nil
	}
}

func (e *memEndpoint) Send(_ context.Context, parts ...[]byte) error {
	select {
	case <-e.done:
		return transport.ErrClosed
	case err := <-e.sendErr:
		return err
	default:
	}
	e.sent <- parts
	return nil
}

func (e *memEndpoint) Close() error {
	e.once.Do(func() { close(e.done) })
	return nil
}

func (e *memEndpoint) next(t *testing.T) []string {
	t.Helper()
	select {
	case parts := <-e.sent:
		s := make([]string, len(parts))
		for i, p := range parts {
			s[i] = string(p)
		}
		return s
	case <-time.After(waitFor):
		t.Fatalf("timed out waiting for a sent frame")
		return nil
	}
}

// memOpener hands out fresh endpoints on every bind, like a transport
// that is torn down and rebuilt on restart.
type memOpener struct {
	mu       sync.Mutex
	in, out  *memEndpoint
	inbounds int
}

func (o *memOpener) Inbound(context.Context, transport.Pattern, []string) (transport.Endpoint, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.in = newMemEndpoint()
	o.inbounds++
	return o.in, nil
}

func (o *memOpener) Outbound(context.Context) (transport.Endpoint, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.out = newMemEndpoint()
	return o.out, nil
}

func (o *memOpener) endpoints() (*memEndpoint, *memEndpoint) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.in, o.out
}

func iconFS(t *testing.T) fstest.MapFS {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewNRGBA(image.Rect(0, 0, 16, 16))); err != nil {
		t.Fatalf("failed to encode icon: %v", err)
	}
	fsys := fstest.MapFS{}
	for _, name := range []string{assets.BudsLeft, assets.BudsRight, assets.Headset, assets.Mouse} {
		fsys[name] = &fstest.MapFile{Data: buf.Bytes()}
	}
	return fsys
}

type testServer struct {
	s      *Server
	opener *memOpener
	engine *gin.Engine
	conf   *config.File
}

func newTestServer(t *testing.T, fsys fstest.MapFS) *testServer {
	t.Helper()

	conf := config.NewFileFromConfig(nil, filepath.Join(t.TempDir(), "tpbridge.json"))
	opener := &memOpener{}
	s, err := NewServer(Options{
		Config: conf,
		Assets: assets.FSProvider{FS: fsys},
		Opener: func(config.Config) transport.Opener { return opener },
		Now: func() time.Time {
			return time.Date(2024, 3, 4, 7, 30, 0, 0, time.Local)
		},
	})
	if err != nil {
		t.Fatalf("NewServer returned error: %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	t.Cleanup(s.Stop)

	return &testServer{
		s:      s,
		opener: opener,
		engine: setupRoutes(s, []string{"http://localhost:3000"}),
		conf:   conf,
	}
}

func (ts *testServer) do(t *testing.T, method, path, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	ts.engine.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("failed to decode %q: %v", w.Body.String(), err)
	}
	return v
}

func TestCurrentTimeOnStart(t *testing.T) {
	ts := newTestServer(t, iconFS(t))

	w := ts.do(t, "GET", "/states/"+clock.StateCurrentTime, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if st := decodeBody[sink.State](t, w); st.Value != "07:30" {
		t.Errorf("unexpected current time %q", st.Value)
	}
}

func TestPostFrame(t *testing.T) {
	ts := newTestServer(t, iconFS(t))

	tests := []struct {
		name  string
		body  string
		code  int
		reply string
		value string
	}{
		{name: "lock", body: `{"topic":"ChangeKeyboardLockState","payload":"true"}`, code: http.StatusOK, reply: transport.ReplyAck, value: "Locked"},
		{name: "unknown topic", body: `{"topic":"Nope","payload":"x"}`, code: http.StatusNotFound, reply: transport.ReplyNack},
		{name: "bad payload", body: `{"topic":"ChangeKeyboardLockState","payload":"yes"}`, code: http.StatusUnprocessableEntity, reply: transport.ReplyError},
		{name: "not json", body: `{`, code: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do(t, "POST", "/frames", tt.body)
			if w.Code != tt.code {
				t.Fatalf("expected %d, got %d: %s", tt.code, w.Code, w.Body.String())
			}
			if tt.reply == "" {
				return
			}
			resp := decodeBody[types.FrameResponse](t, w)
			if resp.Reply != tt.reply || resp.Value != tt.value {
				t.Errorf("unexpected response %+v", resp)
			}
		})
	}

	w := ts.do(t, "GET", "/states/"+router.StateKeyboardLock, "")
	if st := decodeBody[sink.State](t, w); st.Value != "Locked" {
		t.Errorf("unexpected lock state %q", st.Value)
	}
	if w := ts.do(t, "GET", "/states/no.such.state", ""); w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for a missing state, got %d", w.Code)
	}
}

func TestInboundBatteryFrame(t *testing.T) {
	ts := newTestServer(t, iconFS(t))
	in, _ := ts.opener.endpoints()

	in.frames <- [][]byte{[]byte(router.TopicBatteryMonitor), []byte(`{"buds":{"leftBattery":80,"leftState":3}}`)}
	if got := in.next(t); got[0] != transport.ReplyAck {
		t.Fatalf("expected ACK, got %q", got)
	}

	report := decodeBody[[]battery.GaugeReport](t, ts.do(t, "GET", "/snapshot", ""))
	if len(report) != 4 || report[0].Percent == nil || *report[0].Percent != 80 || report[0].StatusName != "InCase" {
		t.Fatalf("unexpected snapshot %+v", report)
	}
	if report[2].Percent != nil {
		t.Errorf("headset must stay empty, got %+v", report[2])
	}

	w := ts.do(t, "GET", "/states/"+router.StateBatteryImage, "")
	if st := decodeBody[sink.State](t, w); st.Value == "" {
		t.Errorf("expected the rendered image in the state store")
	}

	w = ts.do(t, "GET", "/image.png", "")
	if w.Code != http.StatusOK || w.Header().Get("Content-Type") != "image/png" {
		t.Fatalf("unexpected image response %d %s", w.Code, w.Header().Get("Content-Type"))
	}
	img, err := png.Decode(w.Body)
	if err != nil {
		t.Fatalf("failed to decode image: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 415 || b.Dy() != 415 {
		t.Errorf("unexpected image size %v", b)
	}

	etag := w.Header().Get("ETag")
	if etag == "" {
		t.Fatalf("expected an ETag")
	}
	if w := ts.do(t, "GET", "/image.png", "", "If-None-Match", etag); w.Code != http.StatusNotModified {
		t.Errorf("expected 304 for a matching ETag, got %d", w.Code)
	}
}

func TestImageMissingAssets(t *testing.T) {
	fsys := iconFS(t)
	delete(fsys, assets.Mouse)
	ts := newTestServer(t, fsys)

	if w := ts.do(t, "GET", "/image.png", ""); w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 without icons, got %d", w.Code)
	}
}

func TestSetLock(t *testing.T) {
	ts := newTestServer(t, iconFS(t))
	_, out := ts.opener.endpoints()

	if w := ts.do(t, "PUT", "/lock", `"toggle"`); w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}
	if got := out.next(t); len(got) != 2 || got[0] != router.TopicKeyboardLock || got[1] != "Toggle" {
		t.Errorf("unexpected outbound frame %q", got)
	}

	if w := ts.do(t, "PUT", "/lock", `"flip"`); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for an unknown action, got %d", w.Code)
	}

	// The reply for Toggle frees the next request.
	out.frames <- [][]byte{[]byte(transport.ReplyAck)}
	out.sendErr <- transport.ErrNotConnected
	if w := ts.do(t, "PUT", "/lock", `"Enable"`); w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 while the peer is unreachable, got %d", w.Code)
	}
	if w := ts.do(t, "PUT", "/lock", `"Disable"`); w.Code != http.StatusAccepted {
		t.Fatalf("expected 202 once the peer is back, got %d: %s", w.Code, w.Body.String())
	}
	if got := out.next(t); got[1] != "Disable" {
		t.Errorf("unexpected outbound frame %q", got)
	}
}

func TestSetLockLabelsRestartsBridge(t *testing.T) {
	ts := newTestServer(t, iconFS(t))

	if w := ts.do(t, "PUT", "/lock-labels", `{"true":"Unlocked","false":"Locked"}`); w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	if ts.opener.inbounds != 2 {
		t.Errorf("expected the bridge to be bound again, got %d binds", ts.opener.inbounds)
	}

	in, _ := ts.opener.endpoints()
	in.frames <- [][]byte{[]byte(router.TopicKeyboardLock), []byte("true")}
	if got := in.next(t); got[0] != transport.ReplyAck {
		t.Fatalf("expected ACK, got %q", got)
	}
	w := ts.do(t, "GET", "/states/"+router.StateKeyboardLock, "")
	if st := decodeBody[sink.State](t, w); st.Value != "Unlocked" {
		t.Errorf("expected inverted polarity, got %q", st.Value)
	}

	reloaded, err := config.NewFile(ts.conf.Path())
	if err != nil {
		t.Fatalf("NewFile returned error: %v", err)
	}
	if reloaded.LockTrueLabel() != "Unlocked" {
		t.Errorf("labels were not saved")
	}

	if w := ts.do(t, "PUT", "/lock-labels", `{"true":"Same","false":"Same"}`); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for equal labels, got %d", w.Code)
	}
}

func TestSetLockLabelsKeepsOldLabelsWhenSaveFails(t *testing.T) {
	ts := newTestServer(t, iconFS(t))

	// A directory in place of the config file makes every save fail.
	if err := os.Mkdir(ts.conf.Path(), 0o755); err != nil {
		t.Fatalf("failed to create directory: %v", err)
	}

	if w := ts.do(t, "PUT", "/lock-labels", `{"true":"Open","false":"Shut"}`); w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d: %s", w.Code, w.Body.String())
	}
	if ts.conf.LockTrueLabel() != "Locked" || ts.conf.LockFalseLabel() != "Unlocked" {
		t.Errorf("labels changed to %s/%s after a failed save", ts.conf.LockTrueLabel(), ts.conf.LockFalseLabel())
	}
	if ts.opener.inbounds != 1 {
		t.Errorf("a failed save must not restart the bridge, got %d binds", ts.opener.inbounds)
	}

	if w := ts.do(t, "PUT", "/clock-schedule", `"@hourly"`); w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	if got := ts.conf.ClockSchedule(); got != "* * * * *" {
		t.Errorf("schedule changed to %q after a failed save", got)
	}
}

func TestSetClockSchedule(t *testing.T) {
	ts := newTestServer(t, iconFS(t))

	tests := []struct {
		body string
		code int
	}{
		{body: `"every minute"`, code: http.StatusBadRequest},
		{body: `5`, code: http.StatusBadRequest},
		{body: `"*/30 * * * * *"`, code: http.StatusCreated},
	}
	for _, tt := range tests {
		if w := ts.do(t, "PUT", "/clock-schedule", tt.body); w.Code != tt.code {
			t.Errorf("PUT %s: expected %d, got %d: %s", tt.body, tt.code, w.Code, w.Body.String())
		}
	}

	if ts.opener.inbounds != 2 {
		t.Errorf("expected one restart, got %d binds", ts.opener.inbounds)
	}
	reloaded, err := config.NewFile(ts.conf.Path())
	if err != nil {
		t.Fatalf("NewFile returned error: %v", err)
	}
	if got := reloaded.ClockSchedule(); got != "*/30 * * * * *" {
		t.Errorf("schedule was not saved, got %q", got)
	}
	if st := decodeBody[types.Status](t, ts.do(t, "GET", "/status", "")); !st.TickerRunning {
		t.Errorf("ticker must run after the restart")
	}
}

func TestSetHandlerErrorPolicy(t *testing.T) {
	ts := newTestServer(t, iconFS(t))

	if w := ts.do(t, "PUT", "/handler-error-policy", `"ignore"`); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for an unknown policy, got %d", w.Code)
	}
	if w := ts.do(t, "PUT", "/handler-error-policy", `"fatal"`); w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	if ts.opener.inbounds != 2 {
		t.Fatalf("expected the bridge to be bound again, got %d binds", ts.opener.inbounds)
	}

	in, _ := ts.opener.endpoints()
	in.frames <- [][]byte{[]byte(router.TopicBatteryMonitor), []byte(`{"buds":`)}
	if got := in.next(t); got[0] != transport.ReplyError {
		t.Fatalf("expected ERR, got %q", got)
	}
	select {
	case err := <-ts.s.Errors():
		if !errors.Is(err, router.ErrMalformedPayload) {
			t.Errorf("unexpected bridge error %v", err)
		}
	case <-time.After(waitFor):
		t.Fatalf("a fatal handler error must stop the bridge")
	}
}

func TestStatusAndInfo(t *testing.T) {
	ts := newTestServer(t, iconFS(t))

	st := decodeBody[types.Status](t, ts.do(t, "GET", "/status", ""))
	if st.Bridge != "receiving" && st.Bridge != "bound" {
		t.Errorf("unexpected bridge state %q", st.Bridge)
	}
	if st.Transport != config.TransportZMQ || st.Pattern != "reqrep" || !st.TickerRunning {
		t.Errorf("unexpected status %+v", st)
	}

	if w := ts.do(t, "GET", "/version", ""); w.Code != http.StatusOK {
		t.Errorf("expected 200 for version, got %d", w.Code)
	}

	raw := decodeBody[config.RawFileConfig](t, ts.do(t, "GET", "/config", ""))
	if raw.LockTrueLabel == nil || *raw.LockTrueLabel != "Locked" {
		t.Errorf("unexpected config %+v", raw)
	}

	ts.do(t, "POST", "/frames", `{"topic":"Nope","payload":"x"}`)
	w := ts.do(t, "GET", "/metrics", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `tpbridge_frames_total{reply="NACK",topic="other"} 1`) {
		t.Errorf("metrics do not count the unknown frame:\n%s", w.Body.String())
	}

	w = ts.do(t, "OPTIONS", "/states", "", "Origin", "http://localhost:3000", "Access-Control-Request-Method", "GET")
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("unexpected CORS origin %q", got)
	}
}

func TestStopClosesBridge(t *testing.T) {
	ts := newTestServer(t, iconFS(t))
	ts.s.Stop()

	if _, b, tk := ts.s.current(); b != nil || tk != nil {
		t.Fatalf("expected bridge and ticker to be released")
	}
	in, _ := ts.opener.endpoints()
	select {
	case <-in.done:
	default:
		t.Errorf("inbound endpoint is still open")
	}
	if w := ts.do(t, "PUT", "/lock", `"Enable"`); w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 after Stop, got %d", w.Code)
	}
}
