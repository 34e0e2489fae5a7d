// Package monitoring turns a running scheduler into a web server that shows
// and controls its bindings.
package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"runtime/pprof"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/pprof/profile"
	"github.com/gorilla/mux"
	"github.com/rs/xid"
	"github.com/shirou/gopsutil/process"
	"github.com/syifan/goseth"
	"go.uber.org/zap"

	"github.com/sarchlab/bindengine/activation"
	"github.com/sarchlab/bindengine/binding"
	"github.com/sarchlab/bindengine/monitoring/web"
	"github.com/sarchlab/bindengine/tick"
	"github.com/sarchlab/bindengine/tracing"
	"github.com/sarchlab/bindengine/updater"
)

var (
	errNotRegistered = errors.New("no scheduler registered")
	errEntryNotFound = errors.New("entry not found")
	errStageNotFound = errors.New("stage not found")
)

// MainThread runs actions on the goroutine that steps the host.
type MainThread interface {
	activation.Dispatcher
	IsCaptured() bool
	OnMainThread() bool
}

// Monitor serves the live state of a scheduler over HTTP. Handlers read and
// change the scheduler on the host's main goroutine.
type Monitor struct {
	ctx        *binding.Context
	mainThread MainThread
	tracer     *tracing.AverageTimeTracer

	portNumber int
	timeout    time.Duration
	logger     *zap.Logger

	progressBarsLock sync.Mutex
	progressBars     []*ProgressBar

	server *http.Server
}

// NewMonitor creates a new Monitor.
func NewMonitor() *Monitor {
	return &Monitor{
		tracer:  tracing.NewAverageTimeTracer(nil),
		timeout: 2 * time.Second,
		logger:  zap.NewNop(),
	}
}

// WithPortNumber sets the port number of the monitor. Ports below 1000 are
// refused and a random port is used instead.
func (m *Monitor) WithPortNumber(portNumber int) *Monitor {
	if portNumber != 0 && portNumber < 1000 {
		m.logger.Warn("monitor port not allowed, using a random port",
			zap.Int("port", portNumber))

		portNumber = 0
	}

	m.portNumber = portNumber

	return m
}

// WithLogger sets the logger.
func (m *Monitor) WithLogger(l *zap.Logger) *Monitor {
	m.logger = l
	return m
}

// WithTimeout sets how long a request waits for the main goroutine.
func (m *Monitor) WithTimeout(d time.Duration) *Monitor {
	m.timeout = d
	return m
}

// RegisterContext sets the scheduler to monitor and the main goroutine it
// runs on. The monitor's tracer is attached to every updater.
func (m *Monitor) RegisterContext(ctx *binding.Context, mainThread MainThread) {
	m.ctx = ctx
	m.mainThread = mainThread

	for _, u := range ctx.Updaters() {
		u.AcceptHook(m.tracer)
	}
}

// Tracer returns the tracer that feeds /api/tracer.
func (m *Monitor) Tracer() *tracing.AverageTimeTracer {
	return m.tracer
}

// CreateProgressBar creates a new progress bar.
func (m *Monitor) CreateProgressBar(name string, total uint64) *ProgressBar {
	bar := &ProgressBar{
		ID:        xid.New().String(),
		Name:      name,
		StartTime: time.Now(),
		Total:     total,
	}

	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	m.progressBars = append(m.progressBars, bar)

	return bar
}

// CompleteProgressBar removes a bar from the page.
func (m *Monitor) CompleteProgressBar(pb *ProgressBar) {
	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	newBars := make([]*ProgressBar, 0, len(m.progressBars))
	for _, b := range m.progressBars {
		if b != pb {
			newBars = append(newBars, b)
		}
	}

	m.progressBars = newBars
}

// Router returns the handler serving the API and the web page.
func (m *Monitor) Router() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/api/now", m.now).Methods(http.MethodGet)
	r.HandleFunc("/api/tree", m.tree).Methods(http.MethodGet)
	r.HandleFunc("/api/stages", m.listStages).Methods(http.MethodGet)
	r.HandleFunc("/api/stage/{name}", m.listStageEntries).
		Methods(http.MethodGet)
	r.HandleFunc("/api/entry/{id:[0-9]+}", m.entryDetail).
		Methods(http.MethodGet)
	r.HandleFunc("/api/entry/{id:[0-9]+}/pause", m.pauseEntry(true)).
		Methods(http.MethodPost)
	r.HandleFunc("/api/entry/{id:[0-9]+}/resume", m.pauseEntry(false)).
		Methods(http.MethodPost)
	r.HandleFunc("/api/hot", m.hotEntries).Methods(http.MethodGet)
	r.HandleFunc("/api/profiling", m.profiling).
		Methods(http.MethodGet, http.MethodPost)
	r.HandleFunc("/api/tracer", m.tracerTimes).Methods(http.MethodGet)
	r.HandleFunc("/api/progress", m.listProgressBars).Methods(http.MethodGet)
	r.HandleFunc("/api/resource", m.listResources).Methods(http.MethodGet)
	r.HandleFunc("/api/profile", m.collectProfile).Methods(http.MethodGet)
	r.PathPrefix("/").Handler(http.FileServer(web.GetAssets()))

	return r
}

// StartServer starts serving in the background and returns the address it
// listens on.
func (m *Monitor) StartServer() (string, error) {
	addr := ":" + strconv.Itoa(m.portNumber)

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("monitor listen on %s: %w", addr, err)
	}

	url := fmt.Sprintf("http://localhost:%d",
		listener.Addr().(*net.TCPAddr).Port)

	m.server = &http.Server{
		Handler:           m.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		err := m.server.Serve(listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Error("monitor server stopped", zap.Error(err))
		}
	}()

	m.logger.Info("monitoring bindings", zap.String("url", url))

	return url, nil
}

// Shutdown stops the server started by StartServer.
func (m *Monitor) Shutdown(ctx context.Context) error {
	if m.server == nil {
		return nil
	}

	return m.server.Shutdown(ctx)
}

// onMain runs fn on the main goroutine and waits for it. Before the host has
// started, fn runs on the caller. A request that times out before the main
// goroutine picks fn up is abandoned and fn never runs.
func (m *Monitor) onMain(r *http.Request, fn func()) error {
	if m.ctx == nil {
		return errNotRegistered
	}

	if m.mainThread == nil ||
		!m.mainThread.IsCaptured() ||
		m.mainThread.OnMainThread() {
		fn()
		return nil
	}

	const (
		queued int32 = iota
		running
		abandoned
	)

	var state atomic.Int32
	done := make(chan struct{})
	m.mainThread.Post(func() {
		if !state.CompareAndSwap(queued, running) {
			return
		}

		defer close(done)
		fn()
	})

	ctx, cancel := context.WithTimeout(r.Context(), m.timeout)
	defer cancel()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		if state.CompareAndSwap(queued, abandoned) {
			return fmt.Errorf("waiting for the main goroutine: %w", ctx.Err())
		}

		<-done

		return nil
	}
}

type nowRsp struct {
	Frame   uint64  `json:"frame"`
	NowMs   float64 `json:"now_ms"`
	Playing bool    `json:"playing"`
}

func (m *Monitor) now(w http.ResponseWriter, r *http.Request) {
	var rsp nowRsp

	err := m.onMain(r, func() {
		host := m.ctx.Host()
		rsp = nowRsp{
			Frame:   host.FrameCount(),
			NowMs:   float64(host.Now()) / float64(time.Millisecond),
			Playing: host.IsPlaying(),
		}
	})

	m.respond(w, rsp, err)
}

type nodeRsp struct {
	Tag      string    `json:"tag"`
	Children []nodeRsp `json:"children,omitempty"`
}

func describeNode(n *tick.Node) nodeRsp {
	rsp := nodeRsp{Tag: string(n.Tag)}
	for _, c := range n.Children() {
		rsp.Children = append(rsp.Children, describeNode(c))
	}

	return rsp
}

func (m *Monitor) tree(w http.ResponseWriter, r *http.Request) {
	var rsp nodeRsp

	err := m.onMain(r, func() {
		rsp = describeNode(m.ctx.Host().Root())
	})

	m.respond(w, rsp, err)
}

type stageRsp struct {
	Name       string `json:"name"`
	Active     bool   `json:"active"`
	Entries    int    `json:"entries"`
	Executions uint64 `json:"executions"`
	Removals   uint64 `json:"removals"`
}

func (m *Monitor) listStages(w http.ResponseWriter, r *http.Request) {
	var rsp []stageRsp

	err := m.onMain(r, func() {
		for _, u := range m.ctx.Updaters() {
			s := u.Stats()
			rsp = append(rsp, stageRsp{
				Name:       u.Name(),
				Active:     s.Active,
				Entries:    s.Entries,
				Executions: s.Executions,
				Removals:   s.Removals,
			})
		}
	})

	m.respond(w, rsp, err)
}

type entryRsp struct {
	ID                     int     `json:"id"`
	Context                string  `json:"context"`
	Stage                  string  `json:"stage"`
	FrameInterval          int     `json:"frame_interval"`
	TimeIntervalMs         float64 `json:"time_interval_ms"`
	Paused                 bool    `json:"paused"`
	CurrentExecutionTimeMs float64 `json:"current_execution_time_ms"`
	TotalExecutionsCount   uint64  `json:"total_executions_count"`
}

func describeEntry(d *updater.StageData) entryRsp {
	return entryRsp{
		ID:                     d.ID,
		Context:                describeContext(d.Context),
		Stage:                  d.StageName,
		FrameInterval:          d.UpdateFrameInterval,
		TimeIntervalMs:         float64(d.UpdateTimeInterval) / float64(time.Millisecond),
		Paused:                 d.IsPaused,
		CurrentExecutionTimeMs: d.CurrentExecutionTimeMs,
		TotalExecutionsCount:   d.TotalExecutionsCount,
	}
}

func describeContext(ctx any) string {
	if s, ok := ctx.(fmt.Stringer); ok {
		return s.String()
	}

	if ctx == nil {
		return ""
	}

	return fmt.Sprintf("%T", ctx)
}

func (m *Monitor) listStageEntries(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	stage, ok := binding.ParseStage(name)
	if !ok {
		m.respondError(w, http.StatusNotFound, errStageNotFound)
		return
	}

	rsp := []entryRsp{}

	err := m.onMain(r, func() {
		for _, d := range m.ctx.Updater(stage).Entries() {
			rsp = append(rsp, describeEntry(d))
		}
	})

	m.respond(w, rsp, err)
}

func entryID(r *http.Request) int {
	id, _ := strconv.Atoi(mux.Vars(r)["id"])
	return id
}

func (m *Monitor) entryDetail(w http.ResponseWriter, r *http.Request) {
	id := entryID(r)
	buf := bytes.NewBuffer(nil)

	var found bool
	var serr error

	err := m.onMain(r, func() {
		d := m.ctx.Entry(id)
		if d == nil {
			return
		}

		found = true

		serializer := goseth.NewSerializer()
		serializer.SetRoot(d.Context)
		serializer.SetMaxDepth(1)

		if fields := r.URL.Query().Get("field"); fields != "" {
			if serr = serializer.SetEntryPoint(strings.Split(fields, ".")); serr != nil {
				return
			}
		}

		serr = serializer.Serialize(buf)
	})

	switch {
	case err != nil:
		m.respondError(w, http.StatusServiceUnavailable, err)
	case !found:
		m.respondError(w, http.StatusNotFound, errEntryNotFound)
	case serr != nil:
		m.respondError(w, http.StatusBadRequest, serr)
	default:
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(buf.Bytes())
	}
}

func (m *Monitor) pauseEntry(paused bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := entryID(r)

		var rsp *entryRsp

		err := m.onMain(r, func() {
			d := m.ctx.Entry(id)
			if d == nil {
				return
			}

			d.IsPaused = paused
			e := describeEntry(d)
			rsp = &e
		})

		if err == nil && rsp == nil {
			m.respondError(w, http.StatusNotFound, errEntryNotFound)
			return
		}

		m.respond(w, rsp, err)
	}
}

type hotParams struct {
	sort   string
	limit  int
	offset int
}

func parseHotParams(r *http.Request) (hotParams, error) {
	q := r.URL.Query()
	p := hotParams{sort: q.Get("sort")}

	if p.sort == "" {
		p.sort = "time"
	}

	if p.sort != "time" && p.sort != "count" {
		return p, fmt.Errorf(
			"invalid sort method: %s. Allowed values are `time` and `count`",
			p.sort)
	}

	var err error

	if s := q.Get("limit"); s != "" {
		if p.limit, err = strconv.Atoi(s); err != nil || p.limit < 0 {
			return p, fmt.Errorf("invalid limit: %s", s)
		}
	}

	if s := q.Get("offset"); s != "" {
		if p.offset, err = strconv.Atoi(s); err != nil || p.offset < 0 {
			return p, fmt.Errorf("invalid offset: %s", s)
		}
	}

	return p, nil
}

func sortAndSelectEntries(entries []entryRsp, p hotParams) []entryRsp {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]

		if p.sort == "count" {
			if a.TotalExecutionsCount != b.TotalExecutionsCount {
				return a.TotalExecutionsCount > b.TotalExecutionsCount
			}

			return a.CurrentExecutionTimeMs > b.CurrentExecutionTimeMs
		}

		if a.CurrentExecutionTimeMs != b.CurrentExecutionTimeMs {
			return a.CurrentExecutionTimeMs > b.CurrentExecutionTimeMs
		}

		return a.TotalExecutionsCount > b.TotalExecutionsCount
	})

	if p.offset >= len(entries) {
		return []entryRsp{}
	}

	entries = entries[p.offset:]

	if p.limit > 0 && p.limit < len(entries) {
		entries = entries[:p.limit]
	}

	return entries
}

func (m *Monitor) hotEntries(w http.ResponseWriter, r *http.Request) {
	p, err := parseHotParams(r)
	if err != nil {
		m.respondError(w, http.StatusBadRequest, err)
		return
	}

	entries := []entryRsp{}

	err = m.onMain(r, func() {
		for _, u := range m.ctx.Updaters() {
			for _, d := range u.Entries() {
				entries = append(entries, describeEntry(d))
			}
		}
	})

	if err != nil {
		m.respondError(w, http.StatusServiceUnavailable, err)
		return
	}

	m.respond(w, sortAndSelectEntries(entries, p), nil)
}

type profilingRsp struct {
	Enabled bool `json:"enabled"`
}

func (m *Monitor) profiling(w http.ResponseWriter, r *http.Request) {
	if m.ctx == nil {
		m.respondError(w, http.StatusServiceUnavailable, errNotRegistered)
		return
	}

	if r.Method == http.MethodPost {
		enabled, err := strconv.ParseBool(r.URL.Query().Get("enabled"))
		if err != nil {
			m.respondError(w, http.StatusBadRequest, err)
			return
		}

		m.ctx.SetProfilingEnabled(enabled)
	}

	m.respond(w, profilingRsp{Enabled: m.ctx.IsProfilingEnabled()}, nil)
}

func (m *Monitor) tracerTimes(w http.ResponseWriter, _ *http.Request) {
	m.respond(w, m.tracer.StageTimes(), nil)
}

func (m *Monitor) listProgressBars(w http.ResponseWriter, _ *http.Request) {
	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	m.respond(w, m.progressBars, nil)
}

type resourceRsp struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemorySize uint64  `json:"memory_size"`
}

func (m *Monitor) listResources(w http.ResponseWriter, _ *http.Request) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		m.respondError(w, http.StatusInternalServerError, err)
		return
	}

	cpuPercent, err := proc.CPUPercent()
	if err != nil {
		m.respondError(w, http.StatusInternalServerError, err)
		return
	}

	memory, err := proc.MemoryInfo()
	if err != nil {
		m.respondError(w, http.StatusInternalServerError, err)
		return
	}

	m.respond(w, resourceRsp{CPUPercent: cpuPercent, MemorySize: memory.RSS}, nil)
}

func (m *Monitor) collectProfile(w http.ResponseWriter, r *http.Request) {
	duration := time.Second
	if s := r.URL.Query().Get("seconds"); s != "" {
		secs, err := strconv.ParseFloat(s, 64)
		if err != nil || secs <= 0 || secs > 30 {
			m.respondError(w, http.StatusBadRequest,
				fmt.Errorf("invalid profile duration: %s", s))
			return
		}

		duration = time.Duration(secs * float64(time.Second))
	}

	buf := bytes.NewBuffer(nil)

	if err := pprof.StartCPUProfile(buf); err != nil {
		m.respondError(w, http.StatusConflict, err)
		return
	}

	select {
	case <-time.After(duration):
	case <-r.Context().Done():
	}

	pprof.StopCPUProfile()

	prof, err := profile.ParseData(buf.Bytes())
	if err != nil {
		m.respondError(w, http.StatusInternalServerError, err)
		return
	}

	m.respond(w, prof, nil)
}

func (m *Monitor) respond(w http.ResponseWriter, v any, err error) {
	if err != nil {
		status := http.StatusServiceUnavailable
		m.respondError(w, status, err)

		return
	}

	data, err := json.Marshal(v)
	if err != nil {
		m.respondError(w, http.StatusInternalServerError, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")

	if _, err := w.Write(data); err != nil {
		m.logger.Debug("monitor response not written", zap.Error(err))
	}
}

type errorRsp struct {
	Error string `json:"error"`
}

func (m *Monitor) respondError(w http.ResponseWriter, status int, err error) {
	m.logger.Debug("monitor request failed",
		zap.Int("status", status),
		zap.Error(err))

	data, _ := json.Marshal(errorRsp{Error: err.Error()})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}
