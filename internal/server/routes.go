package server

import (
	"net/http"
	"strings"
)

// RegisterRoutes registers all HTTP routes and applies global middleware.
// Route registration is kept separate from server bootstrap.
func (s *Server) RegisterRoutes() {
	s.router.HandleFunc("/health", s.handleHealth)
	s.router.HandleFunc("/ws", s.handleWebsocket)

	s.router.HandleFunc("/api/v1/targets", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			s.handleTargetList(w, r)
		case http.MethodPost:
			s.handleTargetCreate(w, r)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})

	// Path-parameter routes dispatch on the remainder after the prefix:
	// /api/v1/targets/{id}[/checks[/latest]]
	s.router.HandleFunc("/api/v1/targets/", func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/api/v1/targets/")
		parts := strings.Split(strings.Trim(rest, "/"), "/")

		switch {
		case len(parts) == 1 && parts[0] != "":
			switch r.Method {
			case http.MethodGet:
				s.handleTargetGet(w, r, parts[0])
			case http.MethodPatch:
				s.handleTargetUpdate(w, r, parts[0])
			case http.MethodDelete:
				s.handleTargetDelete(w, r, parts[0])
			default:
				http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			}
		case len(parts) == 2 && parts[1] == "checks":
			if r.Method != http.MethodGet {
				http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
				return
			}
			s.handleCheckList(w, r, parts[0])
		case len(parts) == 3 && parts[1] == "checks" && parts[2] == "latest":
			if r.Method != http.MethodGet {
				http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
				return
			}
			s.handleCheckLatest(w, r, parts[0])
		default:
			http.NotFound(w, r)
		}
	})

	s.router.HandleFunc("/api/v1/incidents", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		s.handleIncidentList(w, r)
	})

	s.router.HandleFunc("/api/v1/incidents/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/incidents/"), "/")
		s.handleIncidentGet(w, r, id)
	})

	s.router.HandleFunc("/api/v1/metrics/uptime", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		s.handleUptimeMetrics(w, r)
	})

	// Middleware chain: RequestID -> Logger -> CORS.
	s.handler = RequestID(Logger(CORS(s.router)))
}
