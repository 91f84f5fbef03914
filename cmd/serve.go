package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/hts/internal/frame"
	"github.com/sells-group/hts/internal/hierarchy"
	"github.com/sells-group/hts/internal/methods"
	"github.com/sells-group/hts/internal/reconcile"
	"github.com/sells-group/hts/internal/sampler"
)

var servePort int

// columnPayload is one value column on the wire. Nulls stand in for NaN,
// which JSON cannot carry.
type columnPayload struct {
	Name   string     `json:"name"`
	Values []*float64 `json:"values"`
}

// framePayload is a long-format frame on the wire.
type framePayload struct {
	IDs     []string        `json:"unique_id"`
	Times   []string        `json:"ds"`
	Columns []columnPayload `json:"columns"`
}

type optionsPayload struct {
	Intervals  string    `json:"intervals,omitempty"`
	Levels     []float64 `json:"levels,omitempty"`
	NumSamples int       `json:"num_samples,omitempty"`
	Seed       int64     `json:"seed,omitempty"`
	Workers    int       `json:"workers,omitempty"`
	Balanced   bool      `json:"balanced,omitempty"`
}

type reconcileRequest struct {
	// Levels are label names top to bottom; Series carries one label set per
	// bottom series. Together they define the summing matrix.
	Levels    []string            `json:"levels"`
	Series    []map[string]string `json:"series"`
	Forecasts framePayload        `json:"forecasts"`
	Actuals   *framePayload       `json:"actuals,omitempty"`
	Methods   []methods.Spec      `json:"methods,omitempty"`
	Options   *optionsPayload     `json:"options,omitempty"`
}

type reconcileResponse struct {
	RunID           string              `json:"run_id"`
	Frame           framePayload        `json:"frame"`
	ExecutionSecs   map[string]float64  `json:"execution_secs"`
	IntervalColumns map[string][]string `json:"interval_columns,omitempty"`
	SampleColumns   map[string][]string `json:"sample_columns,omitempty"`
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the reconciliation HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		limiter := rate.NewLimiter(rate.Limit(cfg.Server.RatePerSecond), cfg.Server.RateBurst)
		r := buildRouter(limiter)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: r,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeoutSecs)*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutCtx); err != nil {
				zap.L().Error("graceful shutdown failed", zap.Error(err))
				_ = srv.Close()
			}
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// buildRouter assembles the middleware chain and routes.
func buildRouter(limiter *rate.Limiter) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         300,
	}))
	r.Use(rateLimit(limiter))

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Post("/v1/reconcile", handleReconcile)

	return r
}

func handleReconcile(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, cfg.Server.MaxBodyBytes)

	var body reconcileRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, eris.Wrap(err, "invalid request body"))
		return
	}

	series := make([]hierarchy.Labels, len(body.Series))
	for i, s := range body.Series {
		series[i] = hierarchy.Labels(s)
	}
	matrix, tags, err := hierarchy.Aggregate(body.Levels, series)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	forecasts, err := payloadFrame(&body.Forecasts)
	if err != nil {
		writeError(w, http.StatusBadRequest, eris.Wrap(err, "forecasts"))
		return
	}
	var actuals *frame.Frame
	if body.Actuals != nil {
		if actuals, err = payloadFrame(body.Actuals); err != nil {
			writeError(w, http.StatusBadRequest, eris.Wrap(err, "actuals"))
			return
		}
	}

	specs := body.Methods
	if len(specs) == 0 {
		if specs, err = methodSpecs(""); err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
	}
	pipeline, err := methods.BuildAll(specs)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	engine, err := reconcile.New(pipeline...)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	opts, err := serveOptions(body.Options)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	res, err := engine.Reconcile(r.Context(), reconcile.Request{
		Forecasts: forecasts,
		Actuals:   actuals,
		Hierarchy: matrix,
		Tags:      tags,
		Options:   opts,
	})
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	secs := make(map[string]float64, len(res.ExecutionTimes))
	for k, d := range res.ExecutionTimes {
		secs[k] = d.Seconds()
	}
	writeJSON(w, http.StatusOK, reconcileResponse{
		RunID:           res.RunID,
		Frame:           framePayloadOf(res.Forecasts),
		ExecutionSecs:   secs,
		IntervalColumns: res.IntervalColumns,
		SampleColumns:   res.SampleColumns,
	})
}

// serveOptions overlays payload options on the configured defaults.
func serveOptions(p *optionsPayload) (reconcile.Options, error) {
	rc := cfg.Reconcile
	opts := reconcile.DefaultOptions()
	opts.Sort = rc.Sort
	opts.Seed = rc.Seed
	opts.NumSamples = rc.NumSamples
	opts.Workers = rc.Workers
	opts.Levels = rc.Levels

	method := rc.Intervals
	if p != nil {
		if p.Intervals != "" {
			method = p.Intervals
		}
		if len(p.Levels) > 0 {
			opts.Levels = p.Levels
		}
		if p.NumSamples > 0 {
			opts.NumSamples = p.NumSamples
		}
		if p.Seed != 0 {
			opts.Seed = p.Seed
		}
		if p.Workers > 0 {
			opts.Workers = p.Workers
		}
		opts.Balanced = p.Balanced
	}

	var err error
	opts.IntervalsMethod, err = sampler.ParseMethod(method)
	return opts, err
}

// payloadFrame converts a wire frame to the internal representation.
func payloadFrame(p *framePayload) (*frame.Frame, error) {
	times := make([]time.Time, len(p.Times))
	for i, s := range p.Times {
		ts, err := frame.ParseTime(s)
		if err != nil {
			return nil, err
		}
		times[i] = ts
	}
	f, err := frame.New(p.IDs, times)
	if err != nil {
		return nil, err
	}
	for _, col := range p.Columns {
		vals := make([]float64, len(col.Values))
		for i, v := range col.Values {
			if v == nil {
				vals[i] = math.NaN()
			} else {
				vals[i] = *v
			}
		}
		if err := f.AddColumn(col.Name, vals); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// framePayloadOf converts an internal frame to the wire shape.
func framePayloadOf(f *frame.Frame) framePayload {
	times := make([]string, f.Len())
	for i, ts := range f.Times() {
		times[i] = ts.Format("2006-01-02 15:04:05")
	}
	cols := f.Columns()
	out := framePayload{IDs: f.IDs(), Times: times, Columns: make([]columnPayload, 0, len(cols))}
	for _, name := range cols {
		vals, err := f.Column(name)
		if err != nil {
			continue
		}
		ptrs := make([]*float64, len(vals))
		for i := range vals {
			if !math.IsNaN(vals[i]) {
				v := vals[i]
				ptrs[i] = &v
			}
		}
		out.Columns = append(out.Columns, columnPayload{Name: name, Values: ptrs})
	}
	return out
}

// statusFor maps run failures to HTTP codes: input and configuration
// problems are the client's, everything else is ours.
func statusFor(err error) int {
	for _, sentinel := range []error{
		reconcile.ErrConfig,
		reconcile.ErrMissingInput,
		reconcile.ErrLevelDomain,
		reconcile.ErrSchema,
		reconcile.ErrAlignment,
		reconcile.ErrMissingInterval,
	} {
		if errors.Is(err, sentinel) {
			return http.StatusBadRequest
		}
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	if status >= http.StatusInternalServerError {
		zap.L().Error("request failed", zap.Error(err))
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// rateLimit rejects requests beyond the shared limiter's budget.
func rateLimit(l *rate.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.Allow() {
				writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "rate limit exceeded"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// requestLogger logs one line per request through the global zap logger.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
		)
	})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
