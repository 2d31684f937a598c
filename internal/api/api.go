package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/panel-provisioner/internal/datadog"
	"github.com/thatsimonsguy/panel-provisioner/internal/model"
	"github.com/thatsimonsguy/panel-provisioner/internal/notifications"
	"github.com/thatsimonsguy/panel-provisioner/internal/provisioning"
)

// Pusher delivers a settings payload to the panel.
type Pusher interface {
	Push(ctx context.Context, payload provisioning.Payload) error
}

// Server exposes one provisioning session over HTTP and receives the panel's
// state callbacks. Pin changes made through the API only reach the panel when
// the payload is pushed again with POST /api/payload; until then GET
// /api/payload is a preview. The store is only touched while holding mu.
type Server struct {
	mu       sync.Mutex
	store    *provisioning.Store
	pusher   Pusher
	endpoint string
	token    string
}

type PinResponse struct {
	Ordinal             int                 `json:"ordinal"`
	Designator          model.Designator    `json:"designator"`
	Label               string              `json:"label"`
	Category            model.PinCategory   `json:"category"`
	UserSelectable      bool                `json:"user_selectable"`
	AllowedFunctions    []model.PinFunction `json:"allowed_functions"`
	Function            model.PinFunction   `json:"function"`
	PollIntervalMinutes *int                `json:"poll_interval_minutes,omitempty"`
	TriggerHigh         *bool               `json:"trigger_high,omitempty"`
}

type PinRequest struct {
	Function            string `json:"function"`
	PollIntervalMinutes *int   `json:"poll_interval_minutes,omitempty"`
	TriggerHigh         *bool  `json:"trigger_high,omitempty"`
}

// StateUpdate is what the panel sends when a sensor changes. Older firmware
// uses "pin" where the Pro uses "zone"; either may be a number or a string.
type StateUpdate struct {
	Zone     json.RawMessage `json:"zone,omitempty"`
	Pin      json.RawMessage `json:"pin,omitempty"`
	State    *int            `json:"state,omitempty"`
	Temp     *float64        `json:"temp,omitempty"`
	Humidity *float64        `json:"humi,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// NewServer builds a server over store. pusher may be nil, in which case the
// payload can be previewed but not pushed.
func NewServer(store *provisioning.Store, pusher Pusher, endpoint, token string) *Server {
	return &Server{
		store:    store,
		pusher:   pusher,
		endpoint: endpoint,
		token:    token,
	}
}

func (s *Server) Start(port int) error {
	addr := fmt.Sprintf("0.0.0.0:%d", port)
	log.Info().Str("address", addr).Msg("Starting REST API server")

	return http.ListenAndServe(addr, s.routes())
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	corsHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		mux.ServeHTTP(w, r)
	})

	mux.HandleFunc("/api/pins", s.handlePins)
	mux.HandleFunc("/api/pins/", s.handlePinOperations)
	mux.HandleFunc("/api/payload", s.handlePayload)
	mux.HandleFunc("/api/panel", s.handlePanelState)

	return corsHandler
}

func (s *Server) handlePins(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	table := s.store.Table()
	response := make([]PinResponse, 0, table.PinCount())
	for i := 0; i < table.PinCount(); i++ {
		pin, err := s.describePin(i)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		response = append(response, pin)
	}

	s.writeJSON(w, http.StatusOK, response)
}

func (s *Server) handlePinOperations(w http.ResponseWriter, r *http.Request) {
	designator := strings.TrimPrefix(r.URL.Path, "/api/pins/")
	if designator == "" || strings.Contains(designator, "/") {
		s.writeError(w, http.StatusNotFound, "Invalid path")
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.getPin(w, designator)
	case http.MethodPut:
		s.provisionPin(w, r, designator)
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (s *Server) getPin(w http.ResponseWriter, designator string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ordinal, err := s.store.Table().Lookup(designator)
	if err != nil {
		s.writeError(w, http.StatusNotFound, "Pin not found")
		return
	}
	pin, err := s.describePin(ordinal)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, pin)
}

func (s *Server) provisionPin(w http.ResponseWriter, r *http.Request, designator string) {
	var req PinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}

	fn, err := model.ParsePinFunction(req.Function)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	extra, err := provisioning.ExtraFromOptional(req.PollIntervalMinutes, req.TriggerHigh)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ordinal, err := s.store.Table().Lookup(designator)
	if err != nil {
		s.writeError(w, http.StatusNotFound, "Pin not found")
		return
	}

	if err := s.store.Provision(ordinal, fn, extra); err != nil {
		if errors.Is(err, provisioning.ErrValidation) {
			log.Warn().Err(err).Str("pin", designator).Str("function", req.Function).Msg("Rejected pin provisioning via API")
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	datadog.Gauge("pins.assigned", float64(s.store.Assigned()))

	pin, err := s.describePin(ordinal)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, pin)
}

func (s *Server) handlePayload(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.mu.Lock()
		payload := provisioning.BuildPayload(s.store, s.endpoint, s.token)
		s.mu.Unlock()

		s.writeJSON(w, http.StatusOK, payload)
	case http.MethodPost:
		s.pushPayload(w, r)
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// pushPayload re-sends the current assignments to the panel, which reboots
// after accepting them.
func (s *Server) pushPayload(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		s.writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	if s.pusher == nil {
		s.writeError(w, http.StatusServiceUnavailable, "No panel to push to")
		return
	}

	s.mu.Lock()
	payload := provisioning.BuildPayload(s.store, s.endpoint, s.token)
	s.mu.Unlock()

	if err := s.pusher.Push(r.Context(), payload); err != nil {
		log.Error().Err(err).Msg("Failed to push settings from API")
		datadog.Incr("pushes.failed", "source:api")
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	datadog.Incr("pushes", "source:api")
	log.Info().Msg("Pushed settings to panel from API")

	s.writeJSON(w, http.StatusOK, payload)
}

func (s *Server) authorized(r *http.Request) bool {
	got := []byte(r.Header.Get("Authorization"))
	want := []byte("Bearer " + s.token)
	return subtle.ConstantTimeCompare(got, want) == 1
}

func (s *Server) handlePanelState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut && r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if !s.authorized(r) {
		s.writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var update StateUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}

	raw := update.Zone
	if len(raw) == 0 {
		raw = update.Pin
	}
	designator, ok := parseDesignator(raw)
	if !ok {
		s.writeError(w, http.StatusBadRequest, "zone or pin is required")
		return
	}

	s.mu.Lock()
	ordinal, err := s.store.Table().Lookup(designator)
	var fn model.PinFunction
	if err == nil {
		fn, _, err = s.store.Query(ordinal)
	}
	s.mu.Unlock()
	if err != nil {
		s.writeError(w, http.StatusNotFound, "Pin not found")
		return
	}

	event := log.Info().Str("pin", designator).Str("function", string(fn))
	tag := "pin:" + designator
	if update.State != nil {
		event = event.Int("state", *update.State)
		datadog.Gauge("pin.state", float64(*update.State), tag)
		if fn == model.FunctionBinarySensor && *update.State == 1 {
			notifications.Notify("Zone open", "Pin "+designator+" reported open")
		}
	}
	if update.Temp != nil {
		event = event.Float64("temp", *update.Temp)
		datadog.Gauge("pin.temperature", *update.Temp, tag)
	}
	if update.Humidity != nil {
		event = event.Float64("humidity", *update.Humidity)
		datadog.Gauge("pin.humidity", *update.Humidity, tag)
	}
	event.Msg("Panel state update")
	datadog.Incr("panel.updates", tag)

	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) describePin(ordinal int) (PinResponse, error) {
	c, err := s.store.Table().Capability(ordinal)
	if err != nil {
		return PinResponse{}, err
	}
	fn, extra, err := s.store.Query(ordinal)
	if err != nil {
		return PinResponse{}, err
	}

	pin := PinResponse{
		Ordinal:          ordinal,
		Designator:       c.Designator,
		Label:            c.Label,
		Category:         c.Category,
		UserSelectable:   c.UserSelectable,
		AllowedFunctions: c.AllowedFunctions,
		Function:         fn,
	}
	if minutes, ok := extra.PollIntervalMinutes(); ok {
		pin.PollIntervalMinutes = &minutes
	}
	if high, ok := extra.TriggerHigh(); ok {
		pin.TriggerHigh = &high
	}
	return pin, nil
}

// parseDesignator accepts 3, "3" or "alarm1".
func parseDesignator(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", false
	}
	var name string
	if err := json.Unmarshal(raw, &name); err == nil {
		return name, name != ""
	}
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return strconv.Itoa(n), true
	}
	return "", false
}

func (s *Server) writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	s.writeJSON(w, statusCode, ErrorResponse{Error: message})
}
