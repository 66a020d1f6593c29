package ws

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/kioskhelper/internal/domain/events"
	"github.com/GriffinCanCode/kioskhelper/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/kioskhelper/internal/shared/types"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func startServer(t *testing.T, h *Handler) string {
	t.Helper()
	r := gin.New()
	r.GET("/v1/events", h.HandleConnection)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/events"
}

func readFrame(t *testing.T, conn *websocket.Conn) types.WSMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg types.WSMessage
	require.NoError(t, sonic.Unmarshal(data, &msg))
	return msg
}

func TestStreamsEvents(t *testing.T) {
	bus := events.NewBus(zap.NewNop())
	defer bus.Close()
	metrics := monitoring.NewMetrics()
	url := startServer(t, NewHandler(bus, nil, zap.NewNop()).WithMetrics(metrics))

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	assert.Equal(t, TypeSystem, readFrame(t, conn).Type)
	assert.Equal(t, 1, bus.Subscribers())
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.WSConnections))

	active := true
	bus.Publish(types.Event{Type: types.EventKioskApplied, DNDActive: &active})

	msg := readFrame(t, conn)
	assert.Equal(t, TypeEvent, msg.Type)
	require.NotNil(t, msg.Event)
	assert.Equal(t, types.EventKioskApplied, msg.Event.Type)
	require.NotNil(t, msg.Event.DNDActive)
	assert.True(t, *msg.Event.DNDActive)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`)))
	assert.Equal(t, TypePong, readFrame(t, conn).Type)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"subscribe"}`)))
	assert.Equal(t, TypeError, readFrame(t, conn).Type)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`not json`)))
	assert.Equal(t, "malformed frame", readFrame(t, conn).Message)

	conn.Close()
	assert.Eventually(t, func() bool {
		return bus.Subscribers() == 0 && testutil.ToFloat64(metrics.WSConnections) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestBusCloseEndsStream(t *testing.T) {
	bus := events.NewBus(zap.NewNop())
	url := startServer(t, NewHandler(bus, nil, zap.NewNop()))

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	readFrame(t, conn)

	bus.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
}

func TestCheckOrigin(t *testing.T) {
	bus := events.NewBus(zap.NewNop())
	defer bus.Close()
	url := startServer(t, NewHandler(bus, []string{"http://console.local"}, zap.NewNop()))

	header := map[string][]string{"Origin": {"http://console.local"}}
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	conn.Close()

	header = map[string][]string{"Origin": {"http://evil.local"}}
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 403, resp.StatusCode)
}
