package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/autoflow/autoflow/logger"
	"github.com/autoflow/autoflow/metadata"
	"github.com/autoflow/autoflow/service"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

type Server struct {
	http.Server
	Port             int
	metadataService  *metadata.Service
	executionService *service.WorkflowExecutionService
}

func NewServer(httpPort int, metadataService *metadata.Service, executionService *service.WorkflowExecutionService) (*Server, error) {
	s := &Server{
		Server: http.Server{
			Addr: fmt.Sprintf(":%d", httpPort),
		},
		Port:             httpPort,
		metadataService:  metadataService,
		executionService: executionService,
	}

	router := mux.NewRouter()
	router.HandleFunc("/template", s.HandleRegisterTemplate).Methods(http.MethodPost)
	router.HandleFunc("/template/{name}", s.HandleGetTemplate).Methods(http.MethodGet)
	router.HandleFunc("/template/{name}", s.HandleDeleteTemplate).Methods(http.MethodDelete)
	router.HandleFunc("/workflow/execute", s.HandleRunWorkflow).Methods(http.MethodPost)
	router.HandleFunc("/execution/{id}", s.HandleGetExecution).Methods(http.MethodGet)
	router.HandleFunc("/execution/{id}", s.HandlePurgeExecution).Methods(http.MethodDelete)
	router.HandleFunc("/execution/{id}/cancel", s.HandleCancelExecution).Methods(http.MethodPost)
	router.HandleFunc("/execution/{id}/pause", s.HandlePauseExecution).Methods(http.MethodPost)
	router.HandleFunc("/execution/{id}/resume", s.HandleResumeExecution).Methods(http.MethodPost)
	router.HandleFunc("/execution/{id}/intervention", s.HandleResolveIntervention).Methods(http.MethodPost)
	router.HandleFunc("/metrics", s.HandleGetMetrics).Methods(http.MethodGet)
	router.Use(loggingMiddleware)
	s.Handler = router
	return s, nil
}

func (s *Server) Start() error {
	logger.Info("starting http server on", zap.Int("port", s.Port))
	if err := s.ListenAndServe(); err != nil {
		return err
	}
	return nil
}

func (s *Server) Stop() error {
	logger.Info("stopping http server")
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	err := s.Shutdown(ctx)
	if err != nil {
		logger.Error("error shutting down http server")
	}
	return nil
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger.Info(r.RequestURI)
		next.ServeHTTP(w, r)
	})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, _ := json.Marshal(payload)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

func respondOK(w http.ResponseWriter, payload map[string]any) {
	respondWithJSON(w, http.StatusOK, payload)
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}
