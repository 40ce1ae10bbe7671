package router

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	fws "github.com/fasthttp/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devicegateway/internal/api/util"
	"devicegateway/internal/broadcast"
	"devicegateway/internal/core/repository"
	"devicegateway/internal/core/service"
	"devicegateway/internal/metrics"
)

type fixedSessions int

func (n fixedSessions) ActiveSessions() int { return int(n) }

func newTestApp(t *testing.T, opts Options) (*fiber.App, service.DeviceService, *broadcast.Broadcaster) {
	t.Helper()
	devices := service.NewDeviceService(repository.NewInMemoryDeviceRepository(), nil, time.Minute)
	b := broadcast.NewBroadcaster(16, nil)
	t.Cleanup(b.Close)
	return NewRouter(devices, fixedSessions(2), b, opts), devices, b
}

func doJSON(t *testing.T, app *fiber.App, req *http.Request) (int, map[string]any) {
	t.Helper()
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]any
	if len(body) > 0 && body[0] == '{' {
		require.NoError(t, json.Unmarshal(body, &out), string(body))
	}
	return resp.StatusCode, out
}

func submitRequest(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/device", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestStatusAndHealth(t *testing.T) {
	app, _, b := newTestApp(t, Options{})
	b.Attach("probe")

	status, body := doJSON(t, app, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "API working fine", body["message"])

	status, body = doJSON(t, app, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])
	assert.EqualValues(t, 2, body["sessions"])
	assert.EqualValues(t, 1, body["subscribers"])
}

func TestSubmitDevice(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantOK     bool
	}{
		{name: "valid", body: `{"imei":"867567021398618","data":"hello"}`, wantStatus: http.StatusOK, wantOK: true},
		{name: "missing imei", body: `{"data":"hello"}`, wantStatus: http.StatusBadRequest},
		{name: "malformed json", body: `{"imei":`, wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app, _, _ := newTestApp(t, Options{})
			status, body := doJSON(t, app, submitRequest(tt.body))
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantOK, body["success"])
			if tt.wantOK {
				assert.Equal(t, "Data received", body["message"])
			}
		})
	}
}

func TestSubmitDoesNotBroadcast(t *testing.T) {
	app, _, b := newTestApp(t, Options{})
	sub := b.Attach("probe")

	status, _ := doJSON(t, app, submitRequest(`{"imei":"867567021398618","data":"x"}`))
	require.Equal(t, http.StatusOK, status)

	select {
	case e := <-sub.Events():
		t.Fatalf("unexpected event %q", e.Kind)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSubmitRequiresTokenWhenSecretSet(t *testing.T) {
	app, _, _ := newTestApp(t, Options{JWTSecret: "s3cret"})

	status, _ := doJSON(t, app, submitRequest(`{"imei":"1","data":"x"}`))
	assert.Equal(t, http.StatusUnauthorized, status)

	bad := submitRequest(`{"imei":"1","data":"x"}`)
	bad.Header.Set("Authorization", "Bearer not-a-token")
	status, _ = doJSON(t, app, bad)
	assert.Equal(t, http.StatusUnauthorized, status)

	token, err := util.IssueToken("s3cret", "test", time.Minute)
	require.NoError(t, err)
	good := submitRequest(`{"imei":"1","data":"x"}`)
	good.Header.Set("Authorization", "Bearer "+token)
	status, body := doJSON(t, app, good)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["success"])
}

func TestDeviceLookup(t *testing.T) {
	app, devices, _ := newTestApp(t, Options{})
	_, err := devices.Submit(context.Background(), "867567021398618", "payload")
	require.NoError(t, err)

	status, body := doJSON(t, app, httptest.NewRequest(http.MethodGet, "/api/devices/867567021398618", nil))
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "867567021398618", body["imei"])
	assert.Equal(t, "payload", body["lastData"])
	assert.Equal(t, "online", body["status"])

	status, _ = doJSON(t, app, httptest.NewRequest(http.MethodGet, "/api/devices/unknown", nil))
	assert.Equal(t, http.StatusNotFound, status)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/devices", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	var list []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	require.Len(t, list, 1)
	assert.Equal(t, "867567021398618", list[0]["imei"])
}

func TestMetricsEndpoint(t *testing.T) {
	metrics.Register()
	app, _, _ := newTestApp(t, Options{})

	_, _ = doJSON(t, app, httptest.NewRequest(http.MethodGet, "/api/status", nil))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "gateway_http_requests_total")
}

func TestWebSocketRequiresUpgrade(t *testing.T) {
	app, _, _ := newTestApp(t, Options{})
	status, _ := doJSON(t, app, httptest.NewRequest(http.MethodGet, "/ws", nil))
	assert.Equal(t, http.StatusUpgradeRequired, status)
}

func TestWebSocketReceivesEvents(t *testing.T) {
	app, _, b := newTestApp(t, Options{})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go app.Listener(ln)
	t.Cleanup(func() { _ = app.Shutdown() })

	conn, _, err := fws.DefaultDialer.Dial("ws://"+ln.Addr().String()+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return b.Count() == 1 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, conn.WriteMessage(fws.TextMessage, []byte("ping")))
	b.Publish(broadcast.NewEvent(broadcast.KindPacket, broadcast.SeveritySuccess, "Packet decoded", broadcast.PacketData{
		IMEI:         "3231384c",
		PacketHeader: "1001",
		Raw:          "40 40",
	}))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var got map[string]any
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, "tcp-data", got["event"])
	assert.Equal(t, "success", got["severity"])
	data, ok := got["data"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "1001", data["packetHeader"])

	conn.Close()
	require.Eventually(t, func() bool { return b.Count() == 0 }, 2*time.Second, 5*time.Millisecond)
}
