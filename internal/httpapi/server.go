package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/denismitr/flowstore/command"
	"github.com/denismitr/flowstore/internal/metrics"
	"github.com/denismitr/flowstore/query"
	"github.com/denismitr/flowstore/store"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const RequestIDHeader = "X-Request-ID"

const maxOperationBytes = 4 << 20

type ctxKey int

const requestIDKey ctxKey = iota

type Server struct {
	router   *mux.Router
	commands *command.Handler
	queries  *query.Handler
	metrics  *metrics.Metrics
	validate *validator.Validate
	log      logrus.FieldLogger
}

func New(commands *command.Handler, queries *query.Handler, m *metrics.Metrics, log logrus.FieldLogger) *Server {
	s := &Server{
		router:   mux.NewRouter(),
		commands: commands,
		queries:  queries,
		metrics:  m,
		validate: validator.New(),
		log:      log,
	}

	s.routes()
	return s
}

func (s *Server) routes() {
	// ids may carry a slash, so match on the escaped path and unescape vars
	s.router.UseEncodedPath()
	s.router.Use(s.withRequestID, s.withAccessLog)

	s.router.HandleFunc("/healthz", s.healthz).Methods(http.MethodGet)
	s.router.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)

	v1 := s.router.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/operations", s.executeOperation).Methods(http.MethodPost)
	v1.HandleFunc("/owners/{owner_id}", s.getOwner).Methods(http.MethodGet)
	v1.HandleFunc("/owners/{owner_id}/apps/{app_id}", s.getApp).Methods(http.MethodGet)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) executeOperation(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxOperationBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.metrics.OperationsTotal.WithLabelValues("unknown", metrics.Invalid).Inc()
			s.fail(w, r, http.StatusRequestEntityTooLarge, errors.Errorf("operation exceeds %d bytes", tooLarge.Limit))
			return
		}

		s.fail(w, r, http.StatusBadRequest, errors.Wrap(err, "could not read request body"))
		return
	}

	cmd, err := command.DecodeOperation(body)
	if err != nil {
		typ := "unknown"
		if errors.Is(err, command.ErrUnknownCommand) {
			typ = "unsupported"
		}
		s.metrics.OperationsTotal.WithLabelValues(typ, metrics.Invalid).Inc()
		s.fail(w, r, http.StatusBadRequest, err)
		return
	}

	if err := s.validate.Struct(cmd); err != nil {
		s.metrics.OperationsTotal.WithLabelValues(cmd.Type(), metrics.Invalid).Inc()
		s.fail(w, r, http.StatusBadRequest, errors.Wrapf(err, "invalid %s", cmd.Type()))
		return
	}

	if err := s.commands.Execute(r.Context(), cmd); err != nil {
		status, outcome := classify(err)
		s.metrics.OperationsTotal.WithLabelValues(cmd.Type(), outcome).Inc()
		s.fail(w, r, status, err)
		return
	}

	s.metrics.OperationsTotal.WithLabelValues(cmd.Type(), metrics.OK).Inc()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getOwner(w http.ResponseWriter, r *http.Request) {
	ownerID, err := pathVar(r, "owner_id")
	if err != nil {
		s.metrics.QueriesTotal.WithLabelValues("owner", metrics.Invalid).Inc()
		s.fail(w, r, http.StatusBadRequest, err)
		return
	}

	owner, err := s.queries.Owner(r.Context(), ownerID)
	if err != nil {
		status, outcome := classify(err)
		s.metrics.QueriesTotal.WithLabelValues("owner", outcome).Inc()
		s.fail(w, r, status, err)
		return
	}

	s.metrics.QueriesTotal.WithLabelValues("owner", metrics.OK).Inc()
	writeJSON(w, http.StatusOK, owner)
}

func (s *Server) getApp(w http.ResponseWriter, r *http.Request) {
	ownerID, err := pathVar(r, "owner_id")
	if err != nil {
		s.metrics.QueriesTotal.WithLabelValues("app", metrics.Invalid).Inc()
		s.fail(w, r, http.StatusBadRequest, err)
		return
	}

	appID, err := pathVar(r, "app_id")
	if err != nil {
		s.metrics.QueriesTotal.WithLabelValues("app", metrics.Invalid).Inc()
		s.fail(w, r, http.StatusBadRequest, err)
		return
	}

	app, ok, err := s.queries.App(r.Context(), ownerID, appID)
	if err != nil {
		status, outcome := classify(err)
		s.metrics.QueriesTotal.WithLabelValues("app", outcome).Inc()
		s.fail(w, r, status, err)
		return
	}

	if !ok {
		s.metrics.QueriesTotal.WithLabelValues("app", metrics.NotFound).Inc()
		s.fail(w, r, http.StatusNotFound, errors.Errorf("app %s of owner %s not found", appID, ownerID))
		return
	}

	s.metrics.QueriesTotal.WithLabelValues("app", metrics.OK).Inc()
	writeJSON(w, http.StatusOK, app)
}

func pathVar(r *http.Request, name string) (string, error) {
	v, err := url.PathUnescape(mux.Vars(r)[name])
	if err != nil {
		return "", errors.Wrapf(err, "invalid %s", name)
	}

	return v, nil
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, store.ErrOwnerNotFound):
		return http.StatusNotFound, metrics.NotFound
	case errors.Is(err, command.ErrMalformedOperation), errors.Is(err, command.ErrUnknownCommand):
		return http.StatusBadRequest, metrics.Invalid
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, metrics.Failed
	}

	return http.StatusInternalServerError, metrics.Failed
}

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, status int, err error) {
	lg := s.log.WithError(err).WithFields(logrus.Fields{
		"request_id": RequestID(r.Context()),
		"status":     status,
	})

	msg := err.Error()
	if status >= http.StatusInternalServerError {
		lg.Error("request failed")
		msg = http.StatusText(status)
	} else {
		lg.Debug("request rejected")
	}

	writeJSON(w, status, errorResponse{Error: msg, RequestID: RequestID(r.Context())})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// RequestID returns the id assigned to the request by the server
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.New().String()
		}

		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (s *Server) withAccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		route := r.URL.Path
		if cr := mux.CurrentRoute(r); cr != nil {
			if tpl, err := cr.GetPathTemplate(); err == nil {
				route = tpl
			}
		}

		elapsed := time.Since(start)
		s.metrics.RequestDuration.WithLabelValues(route, strconv.Itoa(rec.status)).Observe(elapsed.Seconds())

		s.log.WithFields(logrus.Fields{
			"request_id": RequestID(r.Context()),
			"method":     r.Method,
			"route":      route,
			"status":     rec.status,
			"elapsed":    elapsed.String(),
		}).Info("request served")
	})
}
