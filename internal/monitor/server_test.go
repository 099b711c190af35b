package monitor

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peter-kozarec/replay/pkg/common"
	"github.com/peter-kozarec/replay/pkg/dispatch"
	"github.com/peter-kozarec/replay/pkg/exchange/sandbox"
	"github.com/peter-kozarec/replay/pkg/utility/fixed"
)

type fakeStatus struct{}

func (fakeStatus) Status() sandbox.Status {
	return sandbox.Status{Connected: true, Clock: "running", RequestsPending: 2}
}

func serve(t *testing.T, hub *Hub) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(NewServer("", fakeStatus{}, hub, nil).Router())
	t.Cleanup(srv.Close)
	return srv
}

func TestServer_Status(t *testing.T) {
	srv := serve(t, NewHub(nil))

	resp, err := http.Get(srv.URL + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var status sandbox.Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.True(t, status.Connected)
	assert.Equal(t, "running", status.Clock)
	assert.Equal(t, 2, status.RequestsPending)
}

func TestServer_Healthz(t *testing.T) {
	srv := serve(t, NewHub(nil))
	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func dial(t *testing.T, srv *httptest.Server, hub *Hub) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/events", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 5*time.Second, 10*time.Millisecond)
	return conn
}

func TestServer_Events(t *testing.T) {
	hub := NewHub(nil, dispatch.KindExecution)
	conn := dial(t, serve(t, hub), hub)

	hub.Tap(dispatch.TickerKey("SPY", dispatch.KindBidAsk), common.BidAsk{Ticker: "SPY"})
	hub.Tap(dispatch.GlobalKey(dispatch.KindExecution), common.Execution{
		ExecId: "1",
		Ticker: "SPY",
		Price:  fixed.MustParse("471.20"),
	})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg struct {
		Key   string           `json:"key"`
		Kind  string           `json:"kind"`
		Event common.Execution `json:"event"`
	}
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, "execution", msg.Key)
	assert.Equal(t, "execution", msg.Kind)
	assert.Equal(t, "1", msg.Event.ExecId)
	assert.True(t, msg.Event.Price.Eq(fixed.MustParse("471.20")))
}

func TestHub_DropsForSlowClients(t *testing.T) {
	hub := NewHub(nil)
	c := &client{send: make(chan []byte, 1)}
	hub.clients[c] = struct{}{}

	hub.Tap(dispatch.GlobalKey(dispatch.KindError), common.ErrorEvent{Message: "a"})
	hub.Tap(dispatch.GlobalKey(dispatch.KindError), common.ErrorEvent{Message: "b"})

	assert.Len(t, c.send, 1)
	assert.EqualValues(t, 1, hub.Dropped())

	hub.Close()
	assert.Zero(t, hub.Clients())
}

func TestHub_ClientGoneIsRemoved(t *testing.T) {
	hub := NewHub(nil)
	conn := dial(t, serve(t, hub), hub)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return hub.Clients() == 0 }, 5*time.Second, 10*time.Millisecond)
}
