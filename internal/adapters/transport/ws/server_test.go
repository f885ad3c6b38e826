package ws

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bnema/azad-hub/internal/application"
	"github.com/bnema/azad-hub/internal/domain"
	"github.com/bnema/azad-hub/internal/observability"
)

type stubEntitlement struct{ authorised bool }

func (s stubEntitlement) CheckAuthorised(context.Context) (bool, error) { return s.authorised, nil }

type memorySettings struct {
	mu    sync.Mutex
	flags map[string]bool
}

func (m *memorySettings) StoreBoolean(_ context.Context, key string, value bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.flags == nil {
		m.flags = make(map[string]bool)
	}
	m.flags[key] = value
	return nil
}

func (m *memorySettings) LoadBoolean(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	value, ok := m.flags[key]
	if !ok {
		return false, domain.ErrSettingNotFound
	}
	return value, nil
}

type stubBilling struct{}

func (stubBilling) DisplayPaymentUI(context.Context) error { return nil }

type recordingHost struct {
	mu      sync.Mutex
	cookies []string
	tabs    []string
}

func (h *recordingHost) RemoveCookie(_ context.Context, url, name string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cookies = append(h.cookies, url+"#"+name)
	return nil
}

func (h *recordingHost) OpenTab(_ context.Context, url string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.tabs = append(h.tabs, url)
	return nil
}

func (h *recordingHost) openedTabs() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.tabs...)
}

type testEnv struct {
	url  string
	host *recordingHost
	reg  *prometheus.Registry
}

func startServer(t *testing.T) testEnv {
	t.Helper()
	return startServerWith(t, Config{})
}

func startServerWith(t *testing.T, cfg Config) testEnv {
	t.Helper()

	reg := prometheus.NewRegistry()
	host := &recordingHost{}
	hub, err := application.NewHub(application.HubDeps{
		Entitlement: stubEntitlement{authorised: true},
		Settings:    &memorySettings{},
		Billing:     stubBilling{},
		Host:        host,
		Clock:       fixedClock{now: time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)},
		Metrics:     observability.MustNewMetrics(reg),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- hub.Run(ctx) }()

	srv, err := NewServer(cfg, hub, Options{Gatherer: reg})
	require.NoError(t, err)
	httpSrv := httptest.NewServer(srv.Handler())

	t.Cleanup(func() {
		_ = srv.closePeers()
		httpSrv.Close()
		cancel()
		require.NoError(t, <-done)
	})

	return testEnv{url: httpSrv.URL, host: host, reg: reg}
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func (e testEnv) dial(t *testing.T, hello helloFrame) *websocket.Conn {
	t.Helper()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(e.url, "http")+"/ws", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	hello.Type = "hello"
	require.NoError(t, conn.WriteJSON(hello))
	return conn
}

func (e testEnv) dialWelcomed(t *testing.T, hello helloFrame) *websocket.Conn {
	t.Helper()

	conn := e.dial(t, hello)
	var welcome welcomeFrame
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&welcome))
	require.Equal(t, welcomeFrame{Type: "welcome", Version: protocolVersion}, welcome)
	return conn
}

func (e testEnv) waitForStatus(t *testing.T, check func(application.Snapshot) bool) {
	t.Helper()

	require.Eventually(t, func() bool {
		resp, err := http.Get(e.url + "/status")
		if err != nil {
			return false
		}
		defer func() { _ = resp.Body.Close() }()
		var snapshot application.Snapshot
		if err := json.NewDecoder(resp.Body).Decode(&snapshot); err != nil {
			return false
		}
		return check(snapshot)
	}, 2*time.Second, 10*time.Millisecond)
}

func readFrame(t *testing.T, conn *websocket.Conn) string {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	return string(data)
}

func tab(id int) *domain.PeerID {
	peer := domain.PeerID(id)
	return &peer
}

func TestControlCommandsReachContentPeersVerbatim(t *testing.T) {
	env := startServer(t)

	content := env.dialWelcomed(t, helloFrame{Name: domain.ContentConnectionName, TabID: tab(7)})
	control := env.dialWelcomed(t, helloFrame{Name: domain.ControlConnectionName})
	env.waitForStatus(t, func(s application.Snapshot) bool {
		return s.ControlConnected && len(s.ContentPeers) == 1
	})

	command := `{"action":"scrape_years","years":[2024,2023],"extra":"kept"}`
	require.NoError(t, control.WriteMessage(websocket.TextMessage, []byte(command)))

	assert.Equal(t, command, readFrame(t, content))
}

func TestAdvertisedPeriodsReachControl(t *testing.T) {
	env := startServer(t)

	control := env.dialWelcomed(t, helloFrame{Name: domain.ControlConnectionName})
	assert.JSONEq(t, `{"action":"advertise_periods","periods":[]}`, readFrame(t, control))
	content := env.dialWelcomed(t, helloFrame{Name: domain.ContentConnectionName, TabID: tab(3)})
	env.waitForStatus(t, func(s application.Snapshot) bool { return len(s.ContentPeers) == 1 })

	require.NoError(t, content.WriteMessage(websocket.TextMessage, []byte(`{"action":"advertise_periods","periods":[3,1]}`)))

	assert.JSONEq(t, `{"action":"advertise_periods","periods":[1,3]}`, readFrame(t, control))
	env.waitForStatus(t, func(s application.Snapshot) bool {
		return assert.ObjectsAreEqual([]int{1, 3}, s.AdvertisedPeriods)
	})
}

func TestFeatureCheckAnswersControl(t *testing.T) {
	env := startServer(t)

	control := env.dialWelcomed(t, helloFrame{Name: domain.ControlConnectionName})
	assert.JSONEq(t, `{"action":"advertise_periods","periods":[]}`, readFrame(t, control))
	require.NoError(t, control.WriteMessage(websocket.TextMessage,
		[]byte(`{"action":"check_feature_authorized","feature_id":"premium_preview"}`)))

	assert.JSONEq(t, `{"action":"authorisation_status","authorisation_status":true}`, readFrame(t, control))
}

func TestStalledContentPeerDoesNotBlockTheHub(t *testing.T) {
	env := startServerWith(t, Config{PeerOutboxSize: 4})

	control := env.dialWelcomed(t, helloFrame{Name: domain.ControlConnectionName})
	assert.JSONEq(t, `{"action":"advertise_periods","periods":[]}`, readFrame(t, control))
	env.dialWelcomed(t, helloFrame{Name: domain.ContentConnectionName, TabID: tab(9)})
	env.waitForStatus(t, func(s application.Snapshot) bool { return len(s.ContentPeers) == 1 })

	command := []byte(`{"action":"scrape_years","years":[2024],"pad":"` + strings.Repeat("x", 256<<10) + `"}`)
	for range 150 {
		if err := control.WriteMessage(websocket.TextMessage, command); err != nil {
			break
		}
	}

	started := time.Now()
	resp, err := http.Get(env.url + "/status")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Less(t, time.Since(started), 2*time.Second)

	require.Eventually(t, func() bool {
		resp, err := http.Get(env.url + "/status")
		if err != nil {
			return false
		}
		defer func() { _ = resp.Body.Close() }()
		var snapshot application.Snapshot
		if err := json.NewDecoder(resp.Body).Decode(&snapshot); err != nil {
			return false
		}
		return len(snapshot.ContentPeers) == 0
	}, 10*time.Second, 50*time.Millisecond)
}

func TestPeerSendFailsOnceOutboxIsFull(t *testing.T) {
	upgrader := websocket.Upgrader{}
	accepted := make(chan *websocket.Conn, 1)
	httpSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		accepted <- conn
	}))
	t.Cleanup(httpSrv.Close)

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(httpSrv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	conn := <-accepted
	peer := &peerConn{conn: conn, logger: zap.NewNop(), outbox: make(chan []byte, 1), done: make(chan struct{})}

	require.NoError(t, peer.Send([]byte(`{"action":"abort"}`)))
	require.ErrorIs(t, peer.Send([]byte(`{"action":"abort"}`)), errPeerOutboxFull)
	require.ErrorIs(t, peer.Send([]byte(`{"action":"abort"}`)), errPeerClosed)
	require.NoError(t, peer.Close())
}

func TestUnknownConnectionNameIsClosedWithoutFrames(t *testing.T) {
	env := startServer(t)

	conn := env.dial(t, helloFrame{Name: "azad_unknown"})
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	var netErr net.Error
	if errors.As(err, &netErr) {
		assert.False(t, netErr.Timeout(), "connection should be closed by the server")
	}
}

func TestContentWithoutTabIsClosed(t *testing.T) {
	env := startServer(t)

	conn := env.dial(t, helloFrame{Name: domain.ContentConnectionName})
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	env.waitForStatus(t, func(s application.Snapshot) bool { return len(s.ContentPeers) == 0 })
}

func TestContentDisconnectUnregistersPeer(t *testing.T) {
	env := startServer(t)

	content := env.dialWelcomed(t, helloFrame{Name: domain.ContentConnectionName, TabID: tab(9)})
	env.waitForStatus(t, func(s application.Snapshot) bool { return len(s.ContentPeers) == 1 })

	require.NoError(t, content.Close())
	env.waitForStatus(t, func(s application.Snapshot) bool { return len(s.ContentPeers) == 0 })
}

func TestExternalEndpoint(t *testing.T) {
	env := startServer(t)
	content := env.dialWelcomed(t, helloFrame{Name: domain.ContentConnectionName, TabID: tab(1)})
	env.waitForStatus(t, func(s application.Snapshot) bool { return len(s.ContentPeers) == 1 })

	post := func(sender, body string) *http.Response {
		req, err := http.NewRequest(http.MethodPost, env.url+"/external", strings.NewReader(body))
		require.NoError(t, err)
		req.Header.Set(extensionIDHeader, sender)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		t.Cleanup(func() { _ = resp.Body.Close() })
		return resp
	}

	t.Run("disallowed caller gets no response", func(t *testing.T) {
		resp := post("not-an-allowed-extension", `{"action":"get_items_3m"}`)
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
		body, _ := io.ReadAll(resp.Body)
		assert.Empty(t, body)
	})

	t.Run("unsupported action", func(t *testing.T) {
		resp := post("jjegocddaijoaiooabldmkcmlfdahkoe", `{"action":"scrape_years"}`)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		body, _ := io.ReadAll(resp.Body)
		assert.JSONEq(t, `{"status":"unsupported"}`, string(body))
	})

	t.Run("get_items_3m triggers a three month scrape", func(t *testing.T) {
		resp := post("jjegocddaijoaiooabldmkcmlfdahkoe", `{"action":"get_items_3m"}`)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		body, _ := io.ReadAll(resp.Body)
		assert.JSONEq(t, `{"status":"ack"}`, string(body))

		assert.JSONEq(t,
			`{"action":"scrape_range_and_dump_items","start_date":"2025-03-15T12:00:00Z","end_date":"2025-06-15T12:00:00Z"}`,
			readFrame(t, content))
	})
}

func TestContextMenuEndpoints(t *testing.T) {
	env := startServer(t)
	content := env.dialWelcomed(t, helloFrame{Name: domain.ContentConnectionName, TabID: tab(2)})
	env.waitForStatus(t, func(s application.Snapshot) bool { return len(s.ContentPeers) == 1 })

	resp, err := http.Get(env.url + "/context-menu")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	body, _ := io.ReadAll(resp.Body)
	assert.JSONEq(t, `{"id":"save_order_debug_info","title":"save order debug info","contexts":["link"]}`, string(body))

	click := `{"menu_item_id":"save_order_debug_info","link_url":"https://www.amazon.com/gp/your-account/order-details?orderID=123-4567890-1234567"}`
	clickResp, err := http.Post(env.url+"/context-menu", "application/json", strings.NewReader(click))
	require.NoError(t, err)
	defer func() { _ = clickResp.Body.Close() }()
	assert.Equal(t, http.StatusAccepted, clickResp.StatusCode)

	assert.JSONEq(t, `{"action":"dump_order_detail","order_id":"123-4567890-1234567"}`, readFrame(t, content))

	badResp, err := http.Post(env.url+"/context-menu", "application/json", strings.NewReader(`not json`))
	require.NoError(t, err)
	defer func() { _ = badResp.Body.Close() }()
	assert.Equal(t, http.StatusBadRequest, badResp.StatusCode)
}

func TestRuntimeEndpointDelegatesToHost(t *testing.T) {
	env := startServer(t)

	req, err := http.NewRequest(http.MethodPost, env.url+"/runtime", strings.NewReader(`{"action":"open_tab","url":"https://example.com/help"}`))
	require.NoError(t, err)
	req.Header.Set(tabIDHeader, "12")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	require.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]string{"https://example.com/help"}, env.host.openedTabs())
	}, 2*time.Second, 10*time.Millisecond)

	bad, err := http.NewRequest(http.MethodPost, env.url+"/runtime", strings.NewReader(`{}`))
	require.NoError(t, err)
	bad.Header.Set(tabIDHeader, "tab-twelve")
	badResp, err := http.DefaultClient.Do(bad)
	require.NoError(t, err)
	defer func() { _ = badResp.Body.Close() }()
	assert.Equal(t, http.StatusBadRequest, badResp.StatusCode)
}

func TestHealthAndMetrics(t *testing.T) {
	env := startServer(t)
	env.dialWelcomed(t, helloFrame{Name: domain.ControlConnectionName})
	env.waitForStatus(t, func(s application.Snapshot) bool { return s.ControlConnected })

	health, err := http.Get(env.url + "/healthz")
	require.NoError(t, err)
	defer func() { _ = health.Body.Close() }()
	assert.Equal(t, http.StatusOK, health.StatusCode)

	metrics, err := http.Get(env.url + "/metrics")
	require.NoError(t, err)
	defer func() { _ = metrics.Body.Close() }()
	body, _ := io.ReadAll(metrics.Body)
	assert.Contains(t, string(body), "azad_hub_control_connected 1")
}

func TestCORSAllowsExtensionOrigins(t *testing.T) {
	env := startServer(t)

	req, err := http.NewRequest(http.MethodOptions, env.url+"/external", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "chrome-extension://jjegocddaijoaiooabldmkcmlfdahkoe")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, "chrome-extension://jjegocddaijoaiooabldmkcmlfdahkoe", resp.Header.Get("Access-Control-Allow-Origin"))

	req.Header.Set("Origin", "https://evil.example")
	denied, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = denied.Body.Close() }()
	assert.Empty(t, denied.Header.Get("Access-Control-Allow-Origin"))
}
