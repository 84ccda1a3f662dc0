// mock-graph is a local stand-in for the WhatsApp Cloud API. It accepts
// template sends and template listings and produces configurable outcomes,
// which is enough to exercise the full queue -> drain -> activity-log path
// without a Facebook app.
package main

import (
	"encoding/json"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/kelseyhightower/envconfig"
)

type config struct {
	Port        string  `envconfig:"PORT" default:"8090"`
	OutcomeMode string  `envconfig:"MOCK_OUTCOME_MODE" default:"fixed"` // fixed | sequence | random
	OutcomesRaw string  `envconfig:"MOCK_OUTCOMES" default:"ok"`        // e.g. "ok,reject,ok"
	SuccessRate float64 `envconfig:"MOCK_SUCCESS_RATE" default:"0.9"`
	DelayMs     int     `envconfig:"MOCK_DELAY_MS" default:"0"`

	outcomes []string
	delay    time.Duration
}

type server struct {
	cfg   config
	idx   uint64
	rng   *rand.Rand
	rngMu sync.Mutex
}

func main() {
	var cfg config
	if err := envconfig.Process("", &cfg); err != nil {
		panic(err)
	}
	cfg.outcomes = strings.Split(cfg.OutcomesRaw, ",")
	cfg.delay = time.Duration(cfg.DelayMs) * time.Millisecond

	h := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{})
	slog.SetDefault(slog.New(h).With("service", "mock-graph"))

	s := &server{cfg: cfg, rng: rand.New(rand.NewSource(time.Now().UnixNano()))}

	router := mux.NewRouter()
	router.HandleFunc("/{version}/{phoneNumberID}/messages", s.handleSend).Methods(http.MethodPost)
	router.HandleFunc("/{version}/{businessID}/message_templates", s.handleListTemplates).Methods(http.MethodGet)

	slog.Info("mock graph listening", "port", cfg.Port, "mode", cfg.OutcomeMode)
	if err := http.ListenAndServe(":"+cfg.Port, router); err != nil {
		slog.Error("mock graph server failed", "err", err)
		os.Exit(1)
	}
}

func (s *server) handleSend(w http.ResponseWriter, r *http.Request) {
	if s.cfg.delay > 0 {
		time.Sleep(s.cfg.delay)
	}
	if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
		writeGraphError(w, http.StatusUnauthorized, "Invalid OAuth access token")
		return
	}

	var body struct {
		To       string `json:"to"`
		Type     string `json:"type"`
		Template struct {
			Name string `json:"name"`
		} `json:"template"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.To == "" {
		writeGraphError(w, http.StatusBadRequest, "Invalid parameter")
		return
	}

	switch s.nextOutcome() {
	case "reject":
		writeGraphError(w, http.StatusBadRequest, "Invalid phone number")
	case "throttle":
		writeGraphError(w, http.StatusTooManyRequests, "Rate limit hit")
	default:
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"messaging_product": "whatsapp",
			"contacts":          []map[string]string{{"input": body.To, "wa_id": body.To}},
			"messages":          []map[string]string{{"id": "wamid.mock"}},
		})
	}
}

func (s *server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"data": []map[string]any{
			{
				"id": "mock-tpl-1", "name": "order_update", "language": "en_US",
				"status": "APPROVED", "category": "UTILITY",
				"components": []map[string]any{{"type": "BODY", "text": "Hi {{1}}, your order is on the way."}},
			},
			{
				"id": "mock-tpl-2", "name": "unfinished_draft", "language": "en_US",
				"status": "PENDING", "category": "MARKETING",
				"components": []map[string]any{},
			},
		},
	})
}

func (s *server) nextOutcome() string {
	switch s.cfg.OutcomeMode {
	case "sequence":
		i := atomic.AddUint64(&s.idx, 1) - 1
		return strings.TrimSpace(s.cfg.outcomes[int(i)%len(s.cfg.outcomes)])
	case "random":
		s.rngMu.Lock()
		v := s.rng.Float64()
		s.rngMu.Unlock()
		if v < s.cfg.SuccessRate {
			return "ok"
		}
		return "reject"
	default:
		return strings.TrimSpace(s.cfg.outcomes[0])
	}
}

func writeGraphError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"message": msg}})
}
