package ws

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"pixelcraft.ai/internal/pipeline"
	"pixelcraft.ai/internal/protocol"
	"pixelcraft.ai/internal/service"
	"pixelcraft.ai/internal/voxel"
)

// MaxMessage caps one CONVERT message.
const MaxMessage = 48 << 20

// CloseWait bounds how long a closing connection waits for queued replies.
const CloseWait = 2 * time.Second

// Converter runs one conversion synchronously.
type Converter interface {
	Convert(ctx context.Context, sub service.Submission, progress func(stage string, done, total int)) (*pipeline.Result, error)
	Limits() voxel.Limits
}

// Server streams conversions over a websocket: the client sends CONVERT, the
// server answers with PROGRESS messages and then RESULT or ERROR. A
// connection handles one conversion at a time.
type Server struct {
	conv Converter
	log  *log.Logger

	upgrader websocket.Upgrader
}

func NewServer(conv Converter, logger *log.Logger) *Server {
	return &Server{
		conv: conv,
		log:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.SetReadLimit(MaxMessage)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		out := make(chan []byte, 16)

		// Writer goroutine. It owns conn writes and exits when out is closed.
		written := make(chan struct{})
		go func() {
			defer close(written)
			for {
				select {
				case <-ctx.Done():
					return
				case b, ok := <-out:
					if !ok {
						return
					}
					_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()
		send := func(v any) bool {
			b, err := json.Marshal(v)
			if err != nil {
				return false
			}
			select {
			case out <- b:
				return true
			case <-ctx.Done():
				return false
			}
		}

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(5 * time.Minute))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			if !s.handle(ctx, r.RemoteAddr, msg, send) {
				break
			}
		}
		// Only the reader loop sends, so out can be closed here.
		close(out)
		select {
		case <-written:
		case <-time.After(CloseWait):
		}
	}
}

// handle runs one message. It returns false when the connection is gone.
func (s *Server) handle(ctx context.Context, remote string, msg []byte, send func(any) bool) bool {
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		return send(protocol.NewError("", protocol.ErrProtoBadRequest, "bad json"))
	}
	if base.Type != protocol.TypeConvert {
		return send(protocol.NewError(base.ReqID, protocol.ErrProtoBadRequest, "expected CONVERT, got "+base.Type))
	}
	var req protocol.ConvertMsg
	if err := json.Unmarshal(msg, &req); err != nil {
		return send(protocol.NewError(base.ReqID, protocol.ErrProtoBadRequest, "bad CONVERT: "+err.Error()))
	}
	if req.ProtocolVersion != protocol.Version {
		return send(protocol.NewError(req.ReqID, protocol.ErrProtoVersion, "protocol_version must be "+protocol.Version))
	}

	if !send(protocol.ProgressMsg{Type: protocol.TypeProgress, ProtocolVersion: protocol.Version, ReqID: req.ReqID, Stage: protocol.StageDecode, Total: len(req.Frames)}) {
		return false
	}
	sub, err := service.FromConvert(req, remote, s.conv.Limits())
	if err != nil {
		return send(s.errorMsg(req.ReqID, err))
	}

	alive := true
	res, err := s.conv.Convert(ctx, sub, func(stage string, done, total int) {
		alive = alive && send(protocol.ProgressMsg{
			Type: protocol.TypeProgress, ProtocolVersion: protocol.Version, ReqID: req.ReqID,
			Stage: stage, Done: done, Total: total,
		})
	})
	if !alive {
		return false
	}
	if err != nil {
		return send(s.errorMsg(req.ReqID, err))
	}
	return send(protocol.ResultMsg{
		Type:            protocol.TypeResult,
		ProtocolVersion: protocol.Version,
		ReqID:           req.ReqID,
		Filename:        res.Filename,
		Data:            base64.StdEncoding.EncodeToString(res.Bytes),
		Stats: protocol.ResultStats{
			Size:        res.Size,
			PaletteLen:  res.PaletteLen,
			Bytes:       len(res.Bytes),
			UsedDefault: res.UsedDefault,
			ElapsedMS:   res.Elapsed.Milliseconds(),
		},
	})
}

func (s *Server) errorMsg(reqID string, err error) protocol.ErrorMsg {
	code := service.Code(err)
	msg := err.Error()
	if code == protocol.ErrInternal {
		if s.log != nil {
			s.log.Printf("ws: internal error: %v", err)
		}
		msg = "internal error"
	}
	return protocol.NewError(reqID, code, msg)
}
