// Package httpapi serves conversions over plain HTTP: a synchronous convert
// endpoint and the background job API.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"pixelcraft.ai/internal/blocks"
	"pixelcraft.ai/internal/frames"
	"pixelcraft.ai/internal/persistence/indexdb"
	"pixelcraft.ai/internal/pipeline"
	"pixelcraft.ai/internal/protocol"
	"pixelcraft.ai/internal/service"
	"pixelcraft.ai/internal/voxel"
	"pixelcraft.ai/internal/voxel/rotate"
)

// DefaultMaxBody caps request bodies.
const DefaultMaxBody = 32 << 20

// Service is what the handlers need from the job manager.
type Service interface {
	Convert(ctx context.Context, sub service.Submission, progress func(stage string, done, total int)) (*pipeline.Result, error)
	Submit(sub service.Submission) (indexdb.JobRow, error)
	Get(ctx context.Context, id string) (indexdb.JobRow, bool)
	List(ctx context.Context, state string, limit int) ([]indexdb.JobRow, error)
	Limits() voxel.Limits
}

type Server struct {
	svc     Service
	log     *log.Logger
	maxBody int64
}

func NewServer(svc Service, logger *log.Logger) *Server {
	return &Server{svc: svc, log: logger, maxBody: DefaultMaxBody}
}

// Register mounts the API on mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("/v1/convert", s.handleConvert)
	mux.HandleFunc("/v1/jobs", s.handleJobs)
	mux.HandleFunc("/v1/jobs/", s.handleJob)
}

func (s *Server) handleConvert(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(rw, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	sub, err := s.readSubmission(rw, r)
	if err != nil {
		s.writeError(rw, err)
		return
	}
	res, err := s.svc.Convert(r.Context(), sub, nil)
	if err != nil {
		s.writeError(rw, err)
		return
	}
	h := rw.Header()
	h.Set("Content-Type", contentType(sub.Format))
	h.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": res.Filename}))
	h.Set("Content-Length", strconv.Itoa(len(res.Bytes)))
	h.Set("X-Pixelcraft-Size", fmt.Sprintf("%d,%d,%d", res.Size[0], res.Size[1], res.Size[2]))
	h.Set("X-Pixelcraft-Palette-Len", strconv.Itoa(res.PaletteLen))
	if res.UsedDefault {
		h.Set("X-Pixelcraft-Used-Default", "1")
	}
	rw.WriteHeader(http.StatusOK)
	_, _ = rw.Write(res.Bytes)
}

func (s *Server) handleJobs(rw http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		sub, err := s.readSubmission(rw, r)
		if err != nil {
			s.writeError(rw, err)
			return
		}
		row, err := s.svc.Submit(sub)
		if err != nil {
			s.writeError(rw, err)
			return
		}
		rw.Header().Set("Location", "/v1/jobs/"+row.ID)
		writeJSON(rw, http.StatusAccepted, jobStatus(row))
	case http.MethodGet:
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		rows, err := s.svc.List(r.Context(), strings.ToUpper(r.URL.Query().Get("state")), limit)
		if err != nil {
			s.writeError(rw, err)
			return
		}
		out := make([]protocol.JobStatus, 0, len(rows))
		for _, row := range rows {
			out = append(out, jobStatus(row))
		}
		writeJSON(rw, http.StatusOK, out)
	default:
		http.Error(rw, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleJob serves /v1/jobs/<id> and /v1/jobs/<id>/output.
func (s *Server) handleJob(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(rw, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/jobs/"), "/")
	id, sub, _ := strings.Cut(rest, "/")
	if id == "" || (sub != "" && sub != "output") {
		writeJSON(rw, http.StatusNotFound, protocol.NewError("", protocol.ErrNotFound, "no such resource"))
		return
	}
	row, ok := s.svc.Get(r.Context(), id)
	if !ok {
		writeJSON(rw, http.StatusNotFound, protocol.NewError("", protocol.ErrNotFound, "job "+id+" not found"))
		return
	}
	if sub == "" {
		writeJSON(rw, http.StatusOK, jobStatus(row))
		return
	}
	if row.State != service.StateDone || row.OutputPath == "" {
		writeJSON(rw, http.StatusConflict, protocol.NewError("", protocol.ErrBusy, "job "+id+" is "+strings.ToLower(row.State)))
		return
	}
	f, err := os.Open(row.OutputPath)
	if err != nil {
		writeJSON(rw, http.StatusGone, protocol.NewError("", protocol.ErrNotFound, "output pruned"))
		return
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		s.writeError(rw, err)
		return
	}
	name := filepath.Base(row.OutputPath)
	rw.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	http.ServeContent(rw, r, name, st.ModTime(), f)
}

// readSubmission accepts either a JSON CONVERT message or a multipart form
// with one or more "frames" files and format/axis/name/palette fields.
func (s *Server) readSubmission(rw http.ResponseWriter, r *http.Request) (service.Submission, error) {
	r.Body = http.MaxBytesReader(rw, r.Body, s.maxBody)
	source := r.RemoteAddr
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch ct {
	case "application/json":
		var msg protocol.ConvertMsg
		if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
			return service.Submission{}, requestError(err)
		}
		return service.FromConvert(msg, source, s.svc.Limits())
	case "multipart/form-data":
		if err := r.ParseMultipartForm(s.maxBody); err != nil {
			return service.Submission{}, requestError(err)
		}
		return fromForm(r, source, s.svc.Limits())
	}
	return service.Submission{}, blocks.InvalidInput("unsupported content type %q", ct)
}

func fromForm(r *http.Request, source string, lim voxel.Limits) (service.Submission, error) {
	format, err := pipeline.ParseFormat(r.FormValue("format"))
	if err != nil {
		return service.Submission{}, err
	}
	axis, err := rotate.ParseAxis(r.FormValue("axis"))
	if err != nil {
		return service.Submission{}, err
	}
	sub := service.Submission{Format: format, Axis: axis, Name: r.FormValue("name"), Source: source}
	if p := r.FormValue("palette"); p != "" {
		sub.Palette = []blocks.BlockSpec{}
		if err := json.Unmarshal([]byte(p), &sub.Palette); err != nil {
			return service.Submission{}, blocks.InvalidInput("palette: %v", err)
		}
	}
	files := r.MultipartForm.File["frames"]
	if len(files) == 0 {
		return service.Submission{}, blocks.InvalidInput("no frames")
	}
	if sub.Name == "" {
		sub.Name = files[0].Filename
	}
	for _, fh := range files {
		rest, ok := frames.Remaining(lim, len(sub.Frames))
		if !ok {
			break
		}
		f, err := fh.Open()
		if err != nil {
			return service.Submission{}, err
		}
		fs, err := frames.Decode(f, rest)
		_ = f.Close()
		if err != nil {
			return service.Submission{}, fmt.Errorf("%s: %w", fh.Filename, err)
		}
		sub.Frames = append(sub.Frames, fs...)
	}
	return sub, nil
}

func requestError(err error) error {
	var tooBig *http.MaxBytesError
	if errors.As(err, &tooBig) {
		return tooLarge{limit: tooBig.Limit}
	}
	if errors.Is(err, io.EOF) {
		return blocks.InvalidInput("empty body")
	}
	return blocks.InvalidInput("bad request body: %v", err)
}

type tooLarge struct{ limit int64 }

func (e tooLarge) Error() string { return fmt.Sprintf("request body over %d bytes", e.limit) }

// Status maps an error to the HTTP status and client error code.
func Status(err error) (int, string) {
	var tl tooLarge
	if errors.As(err, &tl) {
		return http.StatusRequestEntityTooLarge, protocol.ErrTooLarge
	}
	switch code := service.Code(err); code {
	case protocol.ErrInvalidInput:
		return http.StatusBadRequest, code
	case protocol.ErrPaletteExhausted:
		return http.StatusUnprocessableEntity, code
	case protocol.ErrBusy:
		return http.StatusServiceUnavailable, code
	case protocol.ErrIndexOutOfRange, protocol.ErrLengthMismatch:
		return http.StatusInternalServerError, code
	default:
		return http.StatusInternalServerError, protocol.ErrInternal
	}
}

func (s *Server) writeError(rw http.ResponseWriter, err error) {
	status, code := Status(err)
	msg := err.Error()
	if code == protocol.ErrInternal {
		if s.log != nil {
			s.log.Printf("http: internal error: %v", err)
		}
		msg = "internal error"
	}
	writeJSON(rw, status, protocol.NewError("", code, msg))
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}

func contentType(f pipeline.Format) string {
	if f == pipeline.MCWorld {
		return "application/zip"
	}
	return "application/octet-stream"
}

func jobStatus(row indexdb.JobRow) protocol.JobStatus {
	st := protocol.JobStatus{
		JobID:      row.ID,
		State:      row.State,
		Format:     row.Format,
		Axis:       row.Axis,
		PaletteLen: row.PaletteLen,
		Bytes:      int(row.Bytes),
		MirrorKey:  row.MirrorKey,
		ErrorCode:  row.ErrorCode,
		Error:      row.Error,
		CreatedAt:  row.CreatedAt,
		UpdatedAt:  row.UpdatedAt,
	}
	if row.SizeX > 0 {
		st.Size = [3]int{row.SizeX, row.SizeY, row.SizeZ}
	}
	if row.State == service.StateDone && row.OutputPath != "" {
		st.Output = "/v1/jobs/" + row.ID + "/output"
	}
	return st
}
