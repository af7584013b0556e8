package signal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dkeye/Conclave/internal/core"
	"github.com/dkeye/Conclave/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

func TestEnvelope_BothCodecs(t *testing.T) {
	for _, c := range []Codec{JSON, Msgpack} {
		frame, err := c.Marshal(map[string]any{
			"type": TypePublish,
			"id":   3,
			"data": map[string]any{"transportId": "t1", "kind": "audio"},
		})
		require.NoError(t, err)

		var env envelope
		require.NoError(t, c.Unmarshal(frame, &env))
		require.Equal(t, TypePublish, env.Type)
		require.Equal(t, uint64(3), env.ID)

		var p publishRequest
		require.NoError(t, env.Data.decode(c, &p))
		require.Equal(t, domain.TransportID("t1"), p.TransportID)
		require.Equal(t, "audio", p.Kind)
	}
}

func TestEnvelope_MissingData(t *testing.T) {
	var env envelope
	require.NoError(t, JSON.Unmarshal([]byte(`{"type":"ping","id":1}`), &env))
	var p joinRoomRequest
	require.NoError(t, env.Data.decode(JSON, &p))
	require.Empty(t, p.RoomName)

	require.NoError(t, JSON.Unmarshal([]byte(`{"type":"ping","id":1,"data":null}`), &env))
	require.True(t, env.Data.empty())
}

func TestRequest_DecodeBadData(t *testing.T) {
	var env envelope
	require.NoError(t, JSON.Unmarshal([]byte(`{"type":"joinRoom","id":1,"data":{"roomName":5}}`), &env))
	req := request{codec: JSON, raw: env.Data}
	var p joinRoomRequest
	require.ErrorIs(t, req.decode(&p), domain.ErrBadRequest)
}

func TestCodecFor(t *testing.T) {
	c, ok := codecFor(websocket.TextMessage)
	require.True(t, ok)
	require.Equal(t, websocket.TextMessage, c.FrameType())
	c, ok = codecFor(websocket.BinaryMessage)
	require.True(t, ok)
	require.Equal(t, websocket.BinaryMessage, c.FrameType())
	_, ok = codecFor(websocket.PingMessage)
	require.False(t, ok)
}

func TestRateLimiter_SlidingWindow(t *testing.T) {
	rl := NewRateLimiter(2, time.Second)
	now := time.Unix(100, 0)
	rl.now = func() time.Time { return now }

	require.True(t, rl.Allow("p"))
	require.True(t, rl.Allow("p"))
	require.False(t, rl.Allow("p"))
	require.True(t, rl.Allow("q"))

	now = now.Add(1100 * time.Millisecond)
	require.True(t, rl.Allow("p"))

	rl.Forget("p")
	require.True(t, rl.Allow("p"))
	require.True(t, NewRateLimiter(0, time.Second).Allow("any"))
}

func TestNotifier_EncodesPushes(t *testing.T) {
	conn := newWsSignalConn(nil, 4)
	n := &notifier{conn: conn}

	require.NoError(t, n.Notify(core.ProducerAvailable{Producer: "p1", Peer: "a", Kind: domain.KindAudio}))
	require.NoError(t, n.Notify(core.ProducerClosed{Producer: "p1", Consumer: "c1"}))
	require.NoError(t, n.Notify(core.EngineFault{Reason: "gone"}))

	want := []string{
		`{"type":"producerAvailable","data":{"producerId":"p1","peerId":"a","kind":"audio"}}`,
		`{"type":"producerClosed","data":{"producerId":"p1","consumerId":"c1"}}`,
		`{"type":"engineFault","data":{"reason":"gone"}}`,
	}
	for _, w := range want {
		f := <-conn.send
		require.Equal(t, websocket.TextMessage, f.typ)
		require.JSONEq(t, w, string(f.data))
	}
}

func TestWsSignalConn_Backpressure(t *testing.T) {
	conn := newWsSignalConn(nil, 1)
	require.NoError(t, conn.TrySend(core.Frame("a")))
	require.ErrorIs(t, conn.TrySend(core.Frame("b")), ErrBackpressure)
}

func TestResponses(t *testing.T) {
	b, err := json.Marshal(errResponse(4, domain.ErrNotInRoom))
	require.NoError(t, err)
	require.JSONEq(t, `{"type":"response","id":4,"ok":false,"error":{"code":"NotInRoom","message":"not in room"}}`, string(b))

	b, err = json.Marshal(okResponse(5, nil))
	require.NoError(t, err)
	require.JSONEq(t, `{"type":"response","id":5,"ok":true}`, string(b))
}

func TestWsSignalConn_SwitchesCodecs(t *testing.T) {
	conn := newWsSignalConn(nil, 4)
	require.Equal(t, JSON, conn.Codec())

	conn.setCodec(Msgpack)
	require.NoError(t, conn.SendValue(okResponse(1, nil)))
	conn.setCodec(JSON)
	require.NoError(t, conn.SendValue(okResponse(2, nil)))

	require.Equal(t, websocket.BinaryMessage, (<-conn.send).typ)
	f := <-conn.send
	require.Equal(t, websocket.TextMessage, f.typ)
	require.JSONEq(t, `{"type":"response","id":2,"ok":true}`, string(f.data))
}

func TestMsgpack_ConnectTransportParams(t *testing.T) {
	frame, err := Msgpack.Marshal(map[string]any{
		"type": TypeConnectTransport,
		"id":   9,
		"data": map[string]any{
			"transportId": "t1",
			"params": map[string]any{
				"description": map[string]any{"type": "offer", "sdp": "v=0"},
			},
		},
	})
	require.NoError(t, err)

	var env envelope
	require.NoError(t, Msgpack.Unmarshal(frame, &env))
	req := request{codec: Msgpack, raw: env.Data}
	var p connectTransportRequest
	require.NoError(t, req.decode(&p))
	require.Equal(t, domain.TransportID("t1"), p.TransportID)
	require.JSONEq(t, `{"description":{"type":"offer","sdp":"v=0"}}`, string(p.Params))
}

func TestMsgpack_JoinRoomCapabilitiesAreMaps(t *testing.T) {
	caps := core.Params(`{"codecs":[{"kind":"audio","mimeType":"audio/opus","clockRate":48000}]}`)
	frame, err := Msgpack.Marshal(okResponse(3, joinRoomResponse{RTPCapabilities: caps}))
	require.NoError(t, err)

	var out struct {
		ID   uint64         `msgpack:"id"`
		Data map[string]any `msgpack:"data"`
	}
	require.NoError(t, msgpack.Unmarshal(frame, &out))
	require.Equal(t, uint64(3), out.ID)

	rc, ok := out.Data["rtpCapabilities"].(map[string]any)
	require.True(t, ok, "rtpCapabilities is %T", out.Data["rtpCapabilities"])
	codecs, ok := rc["codecs"].([]any)
	require.True(t, ok)
	require.Len(t, codecs, 1)
	codec := codecs[0].(map[string]any)
	require.Equal(t, "audio/opus", codec["mimeType"])
	require.EqualValues(t, 48000, codec["clockRate"])

	// And back into JSON params on the way in.
	var back joinRoomResponse
	raw, err := msgpack.Marshal(out.Data)
	require.NoError(t, err)
	require.NoError(t, Msgpack.Unmarshal(raw, &back))
	require.JSONEq(t, string(caps), string(back.RTPCapabilities))
}

// wsPair returns the server side of a live websocket and the client dialed
// into it.
func wsPair(t *testing.T) (*websocket.Conn, *websocket.Conn) {
	t.Helper()
	server := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		server <- ws
	}))
	t.Cleanup(srv.Close)

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return <-server, client
}

func TestWsSignalConn_FullBufferClosesConnection(t *testing.T) {
	ws, client := wsPair(t)
	conn := newWsSignalConn(ws, 1)

	require.NoError(t, conn.SendValue(push{Type: TypeProducerClosed, Data: producerClosed{ProducerID: "p1", ConsumerID: "c1"}}))
	err := conn.SendValue(push{Type: TypeProducerClosed, Data: producerClosed{ProducerID: "p2", ConsumerID: "c2"}})
	require.ErrorIs(t, err, ErrBackpressure)

	require.ErrorIs(t, conn.SendValue(okResponse(1, nil)), ErrConnClosed)
	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = client.ReadMessage()
	require.Error(t, err)
}

func TestServe_RecoversPanics(t *testing.T) {
	h := func(context.Context, request) (any, error) { panic("boom") }
	out, err := serve(context.Background(), h, request{})
	require.Nil(t, out)
	require.Error(t, err)
	require.Equal(t, "Internal", domain.Code(err))
}
