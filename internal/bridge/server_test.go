package bridge

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/normanking/avatarmotion/internal/audio"
	"github.com/normanking/avatarmotion/internal/avatar3d"
	"github.com/normanking/avatarmotion/internal/bus"
	"github.com/normanking/avatarmotion/internal/driver"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	ctrl   *avatar3d.Controller
	mixer  *audio.Mixer
	events *bus.EventBus
	server *Server
	http   *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mixer := audio.NewMixer(audio.DefaultConfig())
	ctrl, err := avatar3d.NewController(avatar3d.DefaultRig(), mixer, avatar3d.WithSeed(1))
	require.NoError(t, err)

	events := bus.NewEventBus()
	srv := New(DefaultConfig(), ctrl, mixer, events, zerolog.Nop())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		srv.Close()
		ts.Close()
		ctrl.Close()
	})
	return &fixture{ctrl: ctrl, mixer: mixer, events: events, server: srv, http: ts}
}

func (f *fixture) dial(t *testing.T) (*websocket.Conn, string) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.http.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	hello := readType(t, conn, "hello")
	id, _ := hello["client_id"].(string)
	require.NotEmpty(t, id)
	return conn, id
}

func readType(t *testing.T, conn *websocket.Conn, typ string) map[string]any {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		conn.SetReadDeadline(deadline)
		var msg map[string]any
		require.NoError(t, conn.ReadJSON(&msg))
		if msg["type"] == typ {
			return msg
		}
	}
	t.Fatalf("no %q message", typ)
	return nil
}

func TestServer_HelloAssignsID(t *testing.T) {
	f := newFixture(t)
	_, first := f.dial(t)
	_, second := f.dial(t)

	assert.NotEqual(t, first, second)
	assert.Eventually(t, func() bool { return f.server.ClientCount() == 2 }, time.Second, 10*time.Millisecond)
}

func TestServer_ModeMessages(t *testing.T) {
	f := newFixture(t)
	conn, _ := f.dial(t)

	require.NoError(t, conn.WriteJSON(Inbound{Type: "mode", Mode: "dance"}))
	assert.Eventually(t, func() bool {
		return f.ctrl.RequestedMode() == avatar3d.ModeDance
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, conn.WriteJSON(Inbound{Type: "stop_dance"}))
	assert.Eventually(t, func() bool {
		return f.ctrl.RequestedMode() == avatar3d.ModeIdle
	}, time.Second, 5*time.Millisecond)
}

func TestServer_ErrorReplies(t *testing.T) {
	f := newFixture(t)
	conn, _ := f.dial(t)

	require.NoError(t, conn.WriteJSON(Inbound{Type: "mode", Mode: "moonwalk"}))
	msg := readType(t, conn, "error")
	assert.Contains(t, msg["error"], "moonwalk")

	require.NoError(t, conn.WriteJSON(Inbound{Type: "teleport"}))
	msg = readType(t, conn, "error")
	assert.Contains(t, msg["error"], "teleport")

	for _, raw := range []string{"{not json", `{"type":"mode","mode":5}`, `{"type":`} {
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(raw)))
		msg = readType(t, conn, "error")
		assert.Equal(t, "malformed json", msg["error"], raw)
	}

	// still connected after bad frames
	require.NoError(t, conn.WriteJSON(Inbound{Type: "mode", Mode: "dance"}))
	assert.Eventually(t, func() bool {
		return f.ctrl.RequestedMode() == avatar3d.ModeDance
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, f.server.ClientCount())
}

func TestServer_MalformedFrameKeepsClient(t *testing.T) {
	f := newFixture(t)
	conn, _ := f.dial(t)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"blink","mode":[1]}`)))
	msg := readType(t, conn, "error")
	assert.Equal(t, "malformed json", msg["error"])

	assert.Equal(t, avatar3d.ModeIdle, f.ctrl.RequestedMode())
	assert.Equal(t, 1, f.server.ClientCount())
}

func TestServer_AudioReachesMixer(t *testing.T) {
	f := newFixture(t)
	conn, _ := f.dial(t)

	pcm := make([]byte, 512)
	for i := 0; i < 256; i++ {
		s := int16(32767 * math.Sin(2*math.Pi*16*float64(i)/256))
		binary.LittleEndian.PutUint16(pcm[2*i:], uint16(s))
	}
	require.NoError(t, conn.WriteJSON(Inbound{
		Type:    "audio",
		Channel: "output",
		PCM:     base64.StdEncoding.EncodeToString(pcm),
	}))

	assert.Eventually(t, func() bool {
		_, ok := f.mixer.Snapshot(avatar3d.ChannelOutput)
		return ok
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, conn.WriteJSON(Inbound{Type: "audio", Channel: "left", PCM: ""}))
	msg := readType(t, conn, "error")
	assert.Contains(t, msg["error"], "left")
}

func TestServer_BroadcastsPoseFrames(t *testing.T) {
	f := newFixture(t)
	conn, _ := f.dial(t)
	require.Eventually(t, func() bool { return f.server.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	d := driver.New(f.ctrl, driver.DefaultConfig(), zerolog.Nop())
	d.AddSink(f.server.Sink())
	f.ctrl.StartSpeaking()
	d.Step(1.0 / 60)

	msg := readType(t, conn, "pose")
	assert.Equal(t, "speak", msg["mode"])
	assert.EqualValues(t, 1, msg["seq"])
	channels, ok := msg["channels"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, channels, avatar3d.MouthOpen)
}

func TestServer_PoseEvery(t *testing.T) {
	f := newFixture(t)
	cfg := DefaultConfig()
	cfg.PoseEvery = 3
	srv := New(cfg, f.ctrl, nil, nil, zerolog.Nop())

	var got []uint64
	srv.mu.Lock()
	c := &client{id: "local", send: make(chan []byte, 16), done: make(chan struct{})}
	srv.clients[c.id] = c
	srv.mu.Unlock()

	sink := srv.Sink()
	for seq := uint64(1); seq <= 7; seq++ {
		sink(driver.Frame{Seq: seq, Pose: avatar3d.NewPoseState(nil)})
	}
	close(c.send)
	for data := range c.send {
		var msg PoseMessage
		require.NoError(t, json.Unmarshal(data, &msg))
		got = append(got, msg.Seq)
	}
	assert.Equal(t, []uint64{3, 6}, got)
}

func TestServer_ModeChangedEvent(t *testing.T) {
	f := newFixture(t)
	conn, _ := f.dial(t)
	require.Eventually(t, func() bool { return f.server.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	f.events.PublishSync(bus.ModeChanged("idle", "whisper"))
	msg := readType(t, conn, "mode_changed")
	assert.Equal(t, "idle", msg["from"])
	assert.Equal(t, "whisper", msg["to"])
}

func TestServer_DisconnectPublishesEvent(t *testing.T) {
	f := newFixture(t)
	left := make(chan string, 1)
	f.events.Subscribe(bus.EventTypeClientDisconnected, func(e bus.Event) { left <- e.String("client") })

	conn, id := f.dial(t)
	conn.Close()

	select {
	case got := <-left:
		assert.Equal(t, id, got)
	case <-time.After(2 * time.Second):
		t.Fatal("no disconnect event")
	}
	assert.Eventually(t, func() bool { return f.server.ClientCount() == 0 }, time.Second, 5*time.Millisecond)
}

func TestServer_Healthz(t *testing.T) {
	f := newFixture(t)
	resp, err := http.Get(f.http.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}
