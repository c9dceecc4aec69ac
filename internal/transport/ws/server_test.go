package ws

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"pixelcraft.ai/internal/pipeline"
	"pixelcraft.ai/internal/protocol"
	"pixelcraft.ai/internal/service"
	"pixelcraft.ai/internal/tuning"
)

func dial(t *testing.T) *websocket.Conn {
	t.Helper()
	mgr, err := service.New(service.Config{
		Converter: pipeline.New(tuning.Defaults(), nil, nil),
		DataDir:   t.TempDir(),
	})
	if err != nil {
		t.Fatalf("service.New: %v", err)
	}
	ts := httptest.NewServer(NewServer(mgr, nil).Handler())
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() {
		_ = conn.Close()
		ts.Close()
		mgr.Close()
	})
	return conn
}

func framePNG(t *testing.T) string {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 3, 2))
	for i := 0; i < 6; i++ {
		img.Set(i%3, i/3, color.NRGBA{R: 10, G: 200, B: 10, A: 255})
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png: %v", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func send(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	if err := conn.WriteJSON(v); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func next(t *testing.T, conn *websocket.Conn) (protocol.BaseMessage, []byte) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	_, b, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	base, err := protocol.DecodeBase(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return base, b
}

func TestServer_ConvertStreamsProgressThenResult(t *testing.T) {
	conn := dial(t)
	send(t, conn, protocol.ConvertMsg{
		Type:            protocol.TypeConvert,
		ProtocolVersion: protocol.Version,
		ReqID:           "r1",
		Format:          "mcstructure",
		Name:            "leaf",
		Frames:          []string{framePNG(t), framePNG(t)},
	})

	var stages []string
	for {
		base, b := next(t, conn)
		if base.ReqID != "r1" {
			t.Fatalf("req_id=%q", base.ReqID)
		}
		if base.Type == protocol.TypeProgress {
			var p protocol.ProgressMsg
			_ = json.Unmarshal(b, &p)
			stages = append(stages, p.Stage)
			continue
		}
		if base.Type != protocol.TypeResult {
			t.Fatalf("unexpected %s: %s", base.Type, b)
		}
		var res protocol.ResultMsg
		if err := json.Unmarshal(b, &res); err != nil {
			t.Fatalf("result: %v", err)
		}
		data, err := base64.StdEncoding.DecodeString(res.Data)
		if err != nil {
			t.Fatalf("base64: %v", err)
		}
		if res.Filename != "leaf.mcstructure" || res.Stats.Bytes != len(data) || !res.Stats.UsedDefault {
			t.Fatalf("result=%+v", res.Stats)
		}
		break
	}
	want := "DECODE,BUILD,BUILD,ENCODE,ENCODE"
	if got := strings.Join(stages, ","); got != want {
		t.Fatalf("stages=%s", got)
	}
}

func TestServer_Errors(t *testing.T) {
	conn := dial(t)

	send(t, conn, map[string]any{"type": "HELLO"})
	base, b := next(t, conn)
	var e protocol.ErrorMsg
	_ = json.Unmarshal(b, &e)
	if base.Type != protocol.TypeError || e.Code != protocol.ErrProtoBadRequest {
		t.Fatalf("got %s", b)
	}

	send(t, conn, protocol.ConvertMsg{Type: protocol.TypeConvert, ProtocolVersion: "0.1", Format: "mcstructure", Frames: []string{"AA=="}})
	_, b = next(t, conn)
	_ = json.Unmarshal(b, &e)
	if e.Code != protocol.ErrProtoVersion {
		t.Fatalf("got %s", b)
	}

	send(t, conn, protocol.ConvertMsg{Type: protocol.TypeConvert, ProtocolVersion: protocol.Version, ReqID: "r2", Format: "mcstructure", Frames: []string{"!!"}})
	base, _ = next(t, conn)
	if base.Type != protocol.TypeProgress {
		t.Fatalf("expected DECODE progress, got %s", base.Type)
	}
	_, b = next(t, conn)
	_ = json.Unmarshal(b, &e)
	if e.Code != protocol.ErrInvalidInput || e.ReqID != "r2" {
		t.Fatalf("got %s", b)
	}
}

func TestServer_PipelinedRequestsAllAnswered(t *testing.T) {
	conn := dial(t)
	ids := []string{"a", "b", "c"}
	for _, id := range ids {
		send(t, conn, protocol.ConvertMsg{
			Type:            protocol.TypeConvert,
			ProtocolVersion: protocol.Version,
			ReqID:           id,
			Format:          "schematic",
			Frames:          []string{framePNG(t)},
		})
	}
	var done []string
	for len(done) < len(ids) {
		base, b := next(t, conn)
		switch base.Type {
		case protocol.TypeProgress:
		case protocol.TypeResult:
			done = append(done, base.ReqID)
		default:
			t.Fatalf("unexpected %s", b)
		}
	}
	if got := strings.Join(done, ","); got != "a,b,c" {
		t.Fatalf("results=%s", got)
	}
}
