package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"gcalfeed/internal/config"
	appLog "gcalfeed/internal/log"
	"gcalfeed/internal/metrics"
	"gcalfeed/internal/model"
	"gcalfeed/internal/pipeline"
	"gcalfeed/internal/render"
)

// EventSource supplies the raw feed events. *feed.Service implements it.
type EventSource interface {
	Events(ctx context.Context) ([]model.Event, error)
	UpdatedAt() time.Time
}

// Server exposes the event list as JSON and as embeddable HTML fragments.
type Server struct {
	cfg    *config.Config
	source EventSource
	loc    *time.Location
	mux    *http.ServeMux

	// now is replaced in tests.
	now func() time.Time
}

// NewServer constructs a new Server. loc is the display timezone.
func NewServer(cfg *config.Config, source EventSource, loc *time.Location) *Server {
	if loc == nil {
		loc = time.Local
	}
	s := &Server{
		cfg:    cfg,
		source: source,
		loc:    loc,
		mux:    http.NewServeMux(),
		now:    time.Now,
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// Run serves on cfg.Listen until ctx is canceled, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// Empty credentials count as disabled.
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="gcalfeed", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/api/events", s.handleEvents)
	s.mux.HandleFunc("/shortlist", s.handleShortlist)
	s.mux.HandleFunc("/gravatar", s.handleGravatar)
	s.mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// eventsResponse is the JSON response shape for /api/events.
type eventsResponse struct {
	Events          []eventDTO `json:"events"`
	Mode            string     `json:"mode"`
	Items           int        `json:"items"`
	DisplayTimeZone string     `json:"display_timezone"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// eventDTO is a JSON-friendly view of a listed event. Dates are calendar
// dates (YYYY-MM-DD); EndDate is exclusive for all-day events.
type eventDTO struct {
	SourceID    string    `json:"source_id"`
	UID         string    `json:"uid"`
	Summary     string    `json:"summary"`
	Description string    `json:"description"`
	Location    string    `json:"location"`
	AllDay      bool      `json:"all_day"`
	Recurring   bool      `json:"recurring"`
	StartDate   string    `json:"start_date"`
	EndDate     string    `json:"end_date"`
	StartTime   time.Time `json:"start_time"`
}

// listOptions reads ?items= and ?mode= on top of the configured defaults.
func (s *Server) listOptions(r *http.Request) pipeline.Options {
	opts := pipeline.OptionsFromConfig(s.cfg, s.loc)
	opts.Now = s.now()

	q := r.URL.Query()
	opts.Items = parseIntDefault(q.Get("items"), s.cfg.Items)
	if mode := strings.TrimSpace(q.Get("mode")); mode != "" {
		opts.Mode = mode
	}
	return opts
}

// list runs the pipeline over the current feed snapshot.
func (s *Server) list(r *http.Request) ([]model.Event, pipeline.Options, error) {
	events, err := s.source.Events(r.Context())
	if err != nil {
		return nil, pipeline.Options{}, err
	}
	opts := s.listOptions(r)
	return pipeline.Run(events, opts), opts, nil
}

// handleEvents returns the event list as JSON.
//
// GET /api/events?items=5&mode=upcoming
//   - items: number of entries (default from config)
//   - mode:  list mode; only "upcoming" filters and resolves recurrences
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	events, opts, err := s.list(r)
	if err != nil {
		appLog.Error("api events: feed unavailable", err)
		writeError(w, http.StatusBadGateway, "calendar feeds unavailable")
		return
	}

	appLog.Debug("api events request", "mode", opts.Mode, "items", opts.Items, "returned", len(events))

	dtos := make([]eventDTO, 0, len(events))
	for _, ev := range events {
		dtos = append(dtos, eventDTO{
			SourceID:    ev.SourceID,
			UID:         ev.UID,
			Summary:     ev.Summary,
			Description: ev.Description,
			Location:    ev.Location,
			AllDay:      ev.AllDay,
			Recurring:   ev.Rule.IsRecurring(),
			StartDate:   ev.StartDate.Format(time.DateOnly),
			EndDate:     ev.EndDate.Format(time.DateOnly),
			StartTime:   ev.StartTime,
		})
	}

	writeJSON(w, http.StatusOK, eventsResponse{
		Events:          dtos,
		Mode:            opts.Mode,
		Items:           opts.Items,
		DisplayTimeZone: s.loc.String(),
		UpdatedAt:       s.source.UpdatedAt(),
	})
}

// handleShortlist returns the <div class="gcal shortlist"> fragment. It
// accepts the same query parameters as /api/events.
func (s *Server) handleShortlist(w http.ResponseWriter, r *http.Request) {
	events, _, err := s.list(r)
	if err != nil {
		appLog.Error("shortlist: feed unavailable", err)
		http.Error(w, "calendar feeds unavailable", http.StatusBadGateway)
		return
	}

	html, err := render.Shortlist(events, render.FormatFromConfig(s.cfg))
	if err != nil {
		appLog.Error("shortlist: render failed", err)
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}
	writeHTML(w, string(html))
}

// handleGravatar returns an <img> tag for ?email=, optionally resized by
// ?size=.
func (s *Server) handleGravatar(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	email := strings.TrimSpace(q.Get("email"))
	if email == "" {
		http.Error(w, "missing email", http.StatusBadRequest)
		return
	}

	opts := render.GravatarOptionsFromConfig(s.cfg)
	if size := parseIntDefault(q.Get("size"), 0); size > 0 {
		opts.Size = size
	}

	tag, err := render.GravatarTag(email, opts)
	if err != nil {
		appLog.Error("gravatar: render failed", err)
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}
	writeHTML(w, string(tag))
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func writeHTML(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
