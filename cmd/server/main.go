package main

import (
	"context"
	"flag"
	"io"
	"log"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"pixelcraft.ai/internal/catalogs"
	persistlog "pixelcraft.ai/internal/persistence/log"
	"pixelcraft.ai/internal/pipeline"
	"pixelcraft.ai/internal/service"
	"pixelcraft.ai/internal/transport/httpapi"
	"pixelcraft.ai/internal/transport/ws"
	"pixelcraft.ai/internal/tuning"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		configDir  = flag.String("configs", "./configs", "config directory (blocks.json, tuning.yaml)")
		schemaPath = flag.String("schema", "./schemas/palette.schema.json", "palette schema (empty to skip validation)")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		disableDB  = flag.Bool("disable_db", false, "disable the job index")
		worldTmp   = flag.String("world_tmp", "", "scratch dir for mcworld databases (default: <data>/tmp)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", tp)
		tune, _ = tuning.Load("")
	}
	cat, err := catalogs.Load(*configDir, *schemaPath)
	if err != nil {
		logger.Fatalf("load catalogs: %v", err)
	}
	logger.Printf("block catalog: %d candidates digest=%s", cat.Len(), cat.PaletteDigest)

	idx, err := openJobIndex(*dataDir, *disableDB, logger)
	if err != nil {
		logger.Fatalf("open job index: %v", err)
	}
	if idx != nil {
		defer idx.Close()
		if err := idx.UpsertCatalogs(*configDir, cat, tune); err != nil {
			logger.Printf("job index: upsert catalogs: %v", err)
		}
	}

	mirror, err := buildMirror(*dataDir, logger)
	if err != nil {
		logger.Fatalf("init mirror: %v", err)
	}

	convLog := persistlog.NewConversionLogger(*dataDir)
	defer convLog.Close()

	conv := pipeline.New(tune, cat, logger)
	conv.WorldDir = strings.TrimSpace(*worldTmp)
	if conv.WorldDir == "" {
		conv.WorldDir = filepath.Join(*dataDir, "tmp")
	}

	cfg := service.Config{
		Converter:   conv,
		DataDir:     *dataDir,
		Workers:     tune.Jobs.Workers,
		QueueDepth:  tune.Jobs.QueueDepth,
		KeepOutputs: tune.Jobs.KeepOutputs,
		ConvLog:     convLog,
		Logger:      logger,
	}
	if idx != nil {
		cfg.Index = idx
	}
	if mirror != nil {
		cfg.Mirror = mirror
	}
	mgr, err := service.New(cfg)
	if err != nil {
		logger.Fatalf("service: %v", err)
	}
	if mirror != nil {
		mirror.OnUploaded = mgr.MarkMirrored
	}

	metrics := func(w io.Writer) {
		if idx != nil {
			writeIndexMetrics(w, idx.Stats())
		}
		if mirror != nil {
			writeMirrorMetrics(w, mirror.Stats())
		}
	}
	mux := routes(httpapi.NewServer(mgr, logger), ws.NewServer(mgr, logger), metrics)
	if envBool("PC_ENABLE_PPROF_HTTP", false) {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
		logger.Printf("pprof endpoints enabled at /debug/pprof/")
	}

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, cancel := signalContext()
	defer cancel()
	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s", *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}

	// Drain queued jobs before their uploads, then the index.
	mgr.Close()
	if mirror != nil {
		mirror.Close()
	}
	logger.Printf("stopped")
}

func routes(api *httpapi.Server, wsSrv *ws.Server, metrics func(io.Writer)) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		if metrics != nil {
			metrics(rw)
		}
	})
	api.Register(mux)
	mux.HandleFunc("/v1/ws", wsSrv.Handler())
	return mux
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
