package main

import (
	"context"
	"fmt"
	"io/ioutil"
	stdlog "log"
	"net"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	log "github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/namsral/flag"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	metrics "github.com/slok/go-http-metrics/metrics/prometheus"
	"github.com/slok/go-http-metrics/middleware"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/shiplytics/inzone"
	"github.com/shiplytics/inzone/loglevel"
	"github.com/shiplytics/inzone/server"
	"github.com/shiplytics/inzone/server/debug"
	"github.com/shiplytics/inzone/storage/badger"
	"github.com/shiplytics/inzone/storage/bbolt"
	"github.com/shiplytics/inzone/storage/leveldb"
)

const appName = "inzoned"

var (
	version = "no version from LDFLAGS"

	logLevel        = flag.String("logLevel", "INFO", "DEBUG|INFO|WARN|ERROR")
	dbPath          = flag.String("dbPath", "zones.db", "Database path")
	storageBackend  = flag.String("storageBackend", "leveldb", "Storage backend: leveldb|bbolt|badger")
	zonesPath       = flag.String("zonesPath", "", "Load GeoJSON zone files from this directory instead of a DB")
	workers         = flag.Int("workers", 0, "Batch query workers, 0 means all CPUs")
	httpMetricsPort = flag.Int("httpMetricsPort", 8088, "http port")
	httpAPIPort     = flag.Int("httpAPIPort", 9201, "http API port")
	healthPort      = flag.Int("healthPort", 6666, "grpc health port")

	httpServer        *http.Server
	grpcHealthServer  *grpc.Server
	httpMetricsServer *http.Server
)

func main() {
	flag.Parse()

	logger := log.NewJSONLogger(log.NewSyncWriter(os.Stdout))
	logger = log.With(logger, "caller", log.Caller(5), "ts", log.DefaultTimestampUTC)
	logger = log.With(logger, "app", appName)
	logger = loglevel.NewLevelFilterFromString(logger, *logLevel)

	stdlog.SetOutput(log.NewStdlibAdapter(logger))

	level.Info(logger).Log("msg", "Starting app", "version", version)

	ctx := context.Background()
	ctx, cancel := context.WithCancel(ctx)

	// catch termination
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(interrupt)

	g, ctx := errgroup.WithContext(ctx)

	go func() {
		stdlog.Println(http.ListenAndServe("localhost:6060", nil))
	}()

	var (
		engine      *inzone.Engine
		dataVersion string
	)

	if *zonesPath != "" {
		payloads, err := readZonePayloads(*zonesPath)
		if err != nil {
			level.Error(logger).Log("msg", "failed to read zones", "error", err, "zones_path", *zonesPath)
			os.Exit(2)
		}

		engine, err = inzone.NewEngine(payloads, inzone.Options{Workers: *workers})
		if err != nil {
			level.Error(logger).Log("msg", "failed to build engine", "error", err)
			os.Exit(2)
		}
		dataVersion = *zonesPath
	} else {
		var (
			store inzone.Store
			clean func() error
			err   error
		)

		switch *storageBackend {
		case "bbolt":
			store, clean, err = bbolt.NewROStorage(*dbPath, logger)
		case "leveldb":
			store, clean, err = leveldb.NewROStorage(*dbPath, logger)
		case "badger":
			store, clean, err = badger.NewROStorage(*dbPath, logger)
		default:
			level.Error(logger).Log("msg", "unknown storage backend", "backend", *storageBackend)
			os.Exit(2)
		}
		if err != nil {
			level.Error(logger).Log("msg", "failed to open storage", "error", err, "db_path", *dbPath)
			os.Exit(2)
		}
		defer clean()

		infos, err := store.LoadIndexInfos()
		if err != nil {
			level.Error(logger).Log("msg", "failed to read infos", "error", err)
			os.Exit(2)
		}
		level.Info(logger).Log("msg", "read index_infos", "zone_count", infos.ZoneCount)

		engine, err = inzone.NewEngineFromStore(store, inzone.Options{Workers: *workers})
		if err != nil {
			level.Error(logger).Log("msg", "failed to build engine", "error", err)
			os.Exit(2)
		}
		dataVersion = fmt.Sprintf("%s %s", infos.Filename, infos.IndexTime.Format(time.RFC3339))
	}

	level.Info(logger).Log("msg", "built zone engine",
		"zone_count", engine.Len(),
		"workers", engine.Workers(),
	)

	// gRPC Health Server
	healthServer := health.NewServer()
	g.Go(func() error {
		grpcHealthServer = grpc.NewServer()

		healthpb.RegisterHealthServer(grpcHealthServer, healthServer)

		haddr := fmt.Sprintf(":%d", *healthPort)
		hln, err := net.Listen("tcp", haddr)
		if err != nil {
			level.Error(logger).Log("msg", "gRPC Health server: failed to listen", "error", err)
			os.Exit(2)
		}
		level.Info(logger).Log("msg", fmt.Sprintf("gRPC health server listening at %s", haddr))
		return grpcHealthServer.Serve(hln)
	})

	// server
	srv, err := server.New(engine, logger, healthServer)
	if err != nil {
		level.Error(logger).Log("msg", "can't get a working server", "error", err)
		os.Exit(2)
	}

	// web server metrics
	g.Go(func() error {
		httpMetricsServer = &http.Server{
			Addr:         fmt.Sprintf(":%d", *httpMetricsPort),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		}
		level.Info(logger).Log("msg", fmt.Sprintf("HTTP Metrics server listening at :%d", *httpMetricsPort))

		versionGauge.WithLabelValues(version).Add(1)
		dataVersionGauge.WithLabelValues(dataVersion).Add(1)

		// Register Prometheus metrics handler.
		http.Handle("/metrics", promhttp.Handler())

		if err := httpMetricsServer.ListenAndServe(); err != http.ErrServerClosed {
			return err
		}

		return nil
	})

	// API web server
	g.Go(func() error {
		// metrics middleware.
		metricsMwr := middleware.New(middleware.Config{
			Recorder: metrics.NewRecorder(metrics.Config{Prefix: appName}),
		})

		r := mux.NewRouter()

		r.HandleFunc("/api/debug/cells", debug.S2CellQueryHandler)
		r.HandleFunc("/api/zone/{id}", srv.ZoneHandler)

		r.Handle("/api/within/{lat}/{lng}",
			metricsMwr.Handler("/api/within/lat/lng",
				http.HandlerFunc(srv.WithinHandler)))

		r.Handle("/api/batch",
			metricsMwr.Handler("/api/batch",
				http.HandlerFunc(srv.BatchHandler))).Methods("POST")

		r.HandleFunc("/healthz", func(w http.ResponseWriter, request *http.Request) {
			w.Header().Set("Content-Type", "application/json")

			resp, err := healthServer.Check(ctx, &healthpb.HealthCheckRequest{
				Service: fmt.Sprintf("grpc.health.v1.%s", appName)},
			)
			if err != nil {
				json := []byte(fmt.Sprintf("{\"status\": \"%s\"}", healthpb.HealthCheckResponse_UNKNOWN.String()))
				w.WriteHeader(http.StatusInternalServerError)
				w.Write(json)
				return
			}
			if resp.Status != healthpb.HealthCheckResponse_SERVING {
				w.WriteHeader(http.StatusInternalServerError)
			}
			json := []byte(fmt.Sprintf("{\"status\": \"%s\"}", resp.Status.String()))
			w.Write(json)
		})

		httpServer = &http.Server{
			Addr:         fmt.Sprintf(":%d", *httpAPIPort),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			Handler:      handlers.CompressHandler(handlers.CORS()(r)),
		}
		level.Info(logger).Log("msg", fmt.Sprintf("HTTP API server listening at :%d", *httpAPIPort))

		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			return err
		}

		return nil
	})

	healthServer.SetServingStatus(fmt.Sprintf("grpc.health.v1.%s", appName), healthpb.HealthCheckResponse_SERVING)
	level.Info(logger).Log("msg", "serving status to SERVING")

	select {
	case <-interrupt:
		cancel()
		break
	case <-ctx.Done():
		break
	}

	level.Warn(logger).Log("msg", "received shutdown signal")

	healthServer.SetServingStatus(fmt.Sprintf("grpc.health.v1.%s", appName), healthpb.HealthCheckResponse_NOT_SERVING)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if httpMetricsServer != nil {
		_ = httpMetricsServer.Shutdown(shutdownCtx)
	}

	if httpServer != nil {
		_ = httpServer.Shutdown(shutdownCtx)
	}

	if grpcHealthServer != nil {
		grpcHealthServer.GracefulStop()
	}

	err = g.Wait()
	if err != nil {
		level.Error(logger).Log("msg", "server returning an error", "error", err)
		os.Exit(2)
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	fmt.Printf("Alloc = %v MiB", bToMb(m.Alloc))
	fmt.Printf("\tTotalAlloc = %v MiB", bToMb(m.TotalAlloc))
	fmt.Printf("\tSys = %v MiB", bToMb(m.Sys))
	fmt.Printf("\tNumGC = %v\n", m.NumGC)
}

// readZonePayloads loads every .geojson file in dir, one zone per file,
// in lexical order so zone ids are reproducible.
func readZonePayloads(dir string) ([][]byte, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.geojson"))
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no .geojson files found in %s", dir)
	}

	payloads := make([][]byte, 0, len(files))
	for _, f := range files {
		b, err := ioutil.ReadFile(f)
		if err != nil {
			return nil, fmt.Errorf("can't read %s: %w", f, err)
		}
		payloads = append(payloads, b)
	}

	return payloads, nil
}

func bToMb(b uint64) uint64 {
	return b / 1024 / 1024
}
