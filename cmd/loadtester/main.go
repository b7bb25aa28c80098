package main

import (
	"context"
	"fmt"
	"io"
	"io/ioutil"
	stdlog "log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	log "github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/namsral/flag"
	"github.com/rcrowley/go-metrics"

	"github.com/shiplytics/inzone/loglevel"
)

const appName = "loadtester"

var (
	logLevel     = flag.String("logLevel", "INFO", "DEBUG|INFO|WARN|ERROR")
	testDuration = flag.Duration("testDuration", 0, "performs the test for duration, 0 = infinite")
	insideURI    = flag.String("insideURI", "http://localhost:9201", "inzoned HTTP API URI")
	latMin       = flag.Float64("latMin", 49.10, "Lat min")
	lngMin       = flag.Float64("lngMin", -1.10, "Lng min")
	latMax       = flag.Float64("latMax", 46.63, "Lat max")
	lngMax       = flag.Float64("lngMax", 5.5, "Lng max")
)

func main() {
	flag.Parse()

	exitcode := 0
	defer func() { os.Exit(exitcode) }()

	logger := log.NewJSONLogger(log.NewSyncWriter(os.Stdout))
	logger = log.With(logger, "caller", log.Caller(5), "ts", log.DefaultTimestampUTC)
	logger = log.With(logger, "app", appName)
	logger = loglevel.NewLevelFilterFromString(logger, *logLevel)

	stdlog.SetOutput(log.NewStdlibAdapter(logger))

	rand.Seed(time.Now().UnixNano())

	client := &http.Client{}

	ctx, cancel := context.WithCancel(context.Background())

	if *testDuration > 0 {
		ctx, cancel = context.WithTimeout(ctx, *testDuration)
	}

	// catch termination
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, syscall.SIGINT, syscall.SIGTERM)

	defer signal.Stop(interrupt)

	var wg sync.WaitGroup

	wg.Add(1)

	go func() {
		defer wg.Done()

		tm := metrics.NewTimer()

		for {
			rctx, rcancel := context.WithTimeout(ctx, 200*time.Millisecond)

			t := time.Now()
			lat := *latMin + rand.Float64()*(*latMax-*latMin) // nolint: gosec
			lng := *lngMin + rand.Float64()*(*lngMax-*lngMin) // nolint: gosec

			url := fmt.Sprintf("%s/api/within/%s/%s", *insideURI,
				strconv.FormatFloat(lat, 'f', -1, 64),
				strconv.FormatFloat(lng, 'f', -1, 64),
			)

			req, err := http.NewRequestWithContext(rctx, http.MethodGet, url, nil)
			if err != nil {
				level.Error(logger).Log("msg", "error building request", "error", err)
				rcancel()
				cancel()

				break
			}

			resp, err := client.Do(req)
			if err != nil {
				level.Error(logger).Log("msg", "error with request", "error", err)
				rcancel()
				cancel()

				break
			}

			_, _ = io.Copy(ioutil.Discard, resp.Body)
			resp.Body.Close()

			tm.UpdateSince(t)

			rcancel()

			level.Debug(logger).Log(
				"msg", "queried zone",
				"status", resp.StatusCode,
				"lat", lat,
				"lng", lng,
			)
		}

		msg := fmt.Sprintf("count %d rate mean %.0f/s rate1 %.0f/s 99p %.0f\n",
			tm.Count(), tm.RateMean(), tm.Rate1(), tm.Percentile(99.0))
		level.Info(logger).Log("msg", msg)
	}()

	select {
	case <-interrupt:
		cancel()

		break
	case <-ctx.Done():
		break
	}

	wg.Wait()
}
