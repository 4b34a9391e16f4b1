package api

import (
	"errors"
	"fmt"
	"log"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/wellness.report/internal/catalog"
	"github.com/banshee-data/wellness.report/internal/chart"
	"github.com/banshee-data/wellness.report/internal/db"
	"github.com/banshee-data/wellness.report/internal/httputil"
	"github.com/banshee-data/wellness.report/internal/score"
	"github.com/banshee-data/wellness.report/internal/sources"
	"github.com/banshee-data/wellness.report/internal/timeutil"
	"github.com/banshee-data/wellness.report/internal/worker"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// DefaultHistoryDays is the number of days returned by the history and
// chart endpoints when no days parameter is given.
const DefaultHistoryDays = 30

type Server struct {
	db     *db.DB
	cat    *catalog.Catalog
	worker *worker.DailyWorker
}

// NewServer wires the HTTP handlers. worker may be nil, in which case
// POST /run answers 503.
func NewServer(store *db.DB, cat *catalog.Catalog, w *worker.DailyWorker) *Server {
	return &Server{db: store, cat: cat, worker: w}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /catalog", s.showCatalog)
	mux.HandleFunc("GET /residents", s.listResidents)
	mux.HandleFunc("POST /residents", s.createResident)
	mux.HandleFunc("GET /residents/{id}", s.showResident)
	mux.HandleFunc("PUT /residents/{id}/followed", s.setFollowed)
	mux.HandleFunc("GET /residents/{id}/score", s.latestScore)
	mux.HandleFunc("GET /residents/{id}/history", s.scoreHistory)
	mux.HandleFunc("POST /residents/{id}/observations", s.recordObservations)
	mux.HandleFunc("GET /residents/{id}/observations", s.listObservations)
	mux.HandleFunc("POST /residents/{id}/readings", s.recordReading)
	mux.HandleFunc("GET /residents/{id}/chart", s.scoreChart)
	mux.HandleFunc("POST /run", s.runNow)
	mux.HandleFunc("GET /run", s.lastRun)
	return mux
}

// resident resolves the {id} path value, writing the error response itself
// when it fails.
func (s *Server) resident(w http.ResponseWriter, r *http.Request) (*db.Resident, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id < 1 {
		httputil.BadRequest(w, "invalid resident id")
		return nil, false
	}
	res, err := s.db.GetResident(id)
	if errors.Is(err, db.ErrNotFound) {
		httputil.NotFound(w, fmt.Sprintf("resident %d not found", id))
		return nil, false
	}
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return nil, false
	}
	return res, true
}

// day returns the day query parameter, today when absent.
func (s *Server) day(r *http.Request) (string, error) {
	day := r.URL.Query().Get("day")
	if day == "" {
		if s.worker != nil {
			return s.worker.Today(), nil
		}
		return timeutil.DayKey(time.Now()), nil
	}
	if _, err := timeutil.ParseDay(day, time.UTC); err != nil {
		return "", fmt.Errorf("invalid 'day' parameter, want YYYY-MM-DD")
	}
	return day, nil
}

func (s *Server) showCatalog(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, s.cat.Items())
}

func (s *Server) listResidents(w http.ResponseWriter, r *http.Request) {
	residents, err := s.db.ListFollowedResidents()
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	if residents == nil {
		residents = []db.Resident{}
	}
	httputil.WriteJSONOK(w, residents)
}

type residentRequest struct {
	Room     string `json:"room"`
	Name     string `json:"name"`
	Followed *bool  `json:"followed"`
}

func (s *Server) createResident(w http.ResponseWriter, r *http.Request) {
	var req residentRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	if req.Room == "" {
		httputil.BadRequest(w, "room is required")
		return
	}
	res := &db.Resident{Room: req.Room, Name: req.Name, Followed: true}
	if req.Followed != nil {
		res.Followed = *req.Followed
	}
	if err := s.db.CreateResident(res); err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, res)
}

func (s *Server) showResident(w http.ResponseWriter, r *http.Request) {
	res, ok := s.resident(w, r)
	if !ok {
		return
	}
	httputil.WriteJSONOK(w, res)
}

func (s *Server) setFollowed(w http.ResponseWriter, r *http.Request) {
	res, ok := s.resident(w, r)
	if !ok {
		return
	}
	var req struct {
		Followed *bool `json:"followed"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	if req.Followed == nil {
		httputil.BadRequest(w, "followed is required")
		return
	}
	if err := s.db.SetFollowed(res.ID, *req.Followed); err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	res.Followed = *req.Followed
	httputil.WriteJSONOK(w, res)
}

func (s *Server) latestScore(w http.ResponseWriter, r *http.Request) {
	res, ok := s.resident(w, r)
	if !ok {
		return
	}
	latest, err := s.db.LatestScore(res.ID)
	if errors.Is(err, db.ErrNotFound) {
		httputil.NotFound(w, fmt.Sprintf("no score for resident %d yet", res.ID))
		return
	}
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, latest)
}

func (s *Server) scoreHistory(w http.ResponseWriter, r *http.Request) {
	res, ok := s.resident(w, r)
	if !ok {
		return
	}
	days, err := httputil.PositiveIntParam(r, "days", DefaultHistoryDays)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	history, err := s.db.ScoreHistory(res.ID, days)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	if history == nil {
		history = []db.DailyScore{}
	}
	httputil.WriteJSONOK(w, history)
}

// decodePairs turns the form's [[itemId, value|null], ...] body into
// observations.
func decodePairs(pairs [][]*float64) ([]score.Observation, error) {
	obs := make([]score.Observation, 0, len(pairs))
	for i, p := range pairs {
		if len(p) != 2 {
			return nil, fmt.Errorf("entry %d: want [itemId, value]", i)
		}
		if p[0] == nil || *p[0] != math.Trunc(*p[0]) || *p[0] < 0 {
			return nil, fmt.Errorf("entry %d: item id must be a non-negative integer", i)
		}
		obs = append(obs, score.Observation{ItemID: int(*p[0]), Value: p[1]})
	}
	return obs, nil
}

func (s *Server) recordObservations(w http.ResponseWriter, r *http.Request) {
	res, ok := s.resident(w, r)
	if !ok {
		return
	}
	day, err := s.day(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	var pairs [][]*float64
	if err := httputil.DecodeJSON(r, &pairs); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	obs, err := decodePairs(pairs)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	if err := score.Validate(s.cat, obs); err != nil {
		httputil.UnprocessableEntity(w, err.Error())
		return
	}
	if err := s.db.RecordObservations(res.ID, day, sources.SourceForm, obs); err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"resident_id": res.ID,
		"day":         day,
		"recorded":    len(obs),
	})
}

type observationView struct {
	ItemID int      `json:"item_id"`
	Value  *float64 `json:"value"`
}

func (s *Server) listObservations(w http.ResponseWriter, r *http.Request) {
	res, ok := s.resident(w, r)
	if !ok {
		return
	}
	day, err := s.day(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	out := make(map[sources.Source][]observationView)
	for _, src := range []sources.Source{sources.SourceForm, sources.SourceSensor, sources.SourceJournal} {
		obs, err := s.db.ObservationsForDay(res.ID, day, src)
		if err != nil {
			httputil.InternalServerError(w, err.Error())
			return
		}
		views := make([]observationView, len(obs))
		for i, o := range obs {
			views[i] = observationView{ItemID: o.ItemID, Value: o.Value}
		}
		out[src] = views
	}
	httputil.WriteJSONOK(w, out)
}

func (s *Server) recordReading(w http.ResponseWriter, r *http.Request) {
	res, ok := s.resident(w, r)
	if !ok {
		return
	}
	day, err := s.day(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	var reading sources.Reading
	if err := httputil.DecodeJSON(r, &reading); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	if !sources.ValidKind(reading.Kind) {
		httputil.UnprocessableEntity(w, fmt.Sprintf("unknown reading kind %q", reading.Kind))
		return
	}
	if err := s.db.RecordSensorReading(res.ID, day, reading); err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, reading)
}

func (s *Server) scoreChart(w http.ResponseWriter, r *http.Request) {
	res, ok := s.resident(w, r)
	if !ok {
		return
	}
	days, err := httputil.PositiveIntParam(r, "days", DefaultHistoryDays)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	history, err := s.db.ScoreHistory(res.ID, days)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	if len(history) == 0 {
		httputil.NotFound(w, fmt.Sprintf("no score for resident %d yet", res.ID))
		return
	}

	title := fmt.Sprintf("Room %s", res.Room)
	if res.Name != "" {
		title += " · " + res.Name
	}
	points := chart.FromScores(history)

	switch r.URL.Query().Get("format") {
	case "", "html":
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := chart.RenderHTML(w, title, points); err != nil {
			log.Printf("failed to render chart for resident %d: %v", res.ID, err)
		}
	case "png":
		w.Header().Set("Content-Type", "image/png")
		if err := chart.WritePNG(w, title, points); err != nil {
			log.Printf("failed to render chart for resident %d: %v", res.ID, err)
		}
	default:
		httputil.BadRequest(w, "invalid 'format' parameter, want html or png")
	}
}

func (s *Server) runNow(w http.ResponseWriter, r *http.Request) {
	if s.worker == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "scoring worker not running")
		return
	}
	report, err := s.worker.RunOnce(r.Context())
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, report)
}

func (s *Server) lastRun(w http.ResponseWriter, r *http.Request) {
	if s.worker == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "scoring worker not running")
		return
	}
	report := s.worker.LastReport()
	if report.RunID == "" {
		httputil.NotFound(w, "no run yet")
		return
	}
	httputil.WriteJSONOK(w, report)
}
