package rest

import (
	"encoding/json"
	"net/http"

	"github.com/autoflow/autoflow/logger"
	"github.com/autoflow/autoflow/metadata"
	"github.com/autoflow/autoflow/model"
	"github.com/autoflow/autoflow/persistence"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

func (s *Server) HandleRunWorkflow(w http.ResponseWriter, r *http.Request) {
	var runReq model.WorkflowRunRequest
	if err := json.NewDecoder(r.Body).Decode(&runReq); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid run request")
		return
	}
	defer r.Body.Close()
	executionId, err := s.executionService.StartWorkflow(runReq.Name, runReq.Input)
	if err != nil {
		logger.Error("error running workflow", zap.String("name", runReq.Name), zap.Error(err))
		if _, ok := err.(metadata.UnknownTemplateError); ok {
			respondWithError(w, http.StatusNotFound, err.Error())
			return
		}
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondOK(w, map[string]any{"executionId": executionId})
}

func (s *Server) HandleGetExecution(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id := vars["id"]
	execution, err := s.executionService.GetExecution(id)
	if err != nil {
		if _, ok := err.(persistence.NotFoundError); ok {
			respondWithError(w, http.StatusNotFound, err.Error())
			return
		}
		respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, execution)
}

func (s *Server) HandlePurgeExecution(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id := vars["id"]
	if err := s.executionService.PurgeExecution(id); err != nil {
		if _, ok := err.(persistence.NotFoundError); ok {
			respondWithError(w, http.StatusNotFound, err.Error())
			return
		}
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondOK(w, map[string]any{"purged": true, "executionId": id})
}

func (s *Server) HandleCancelExecution(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id := vars["id"]
	if err := s.executionService.CancelExecution(id); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondOK(w, map[string]any{"cancelled": true, "executionId": id})
}

func (s *Server) HandlePauseExecution(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id := vars["id"]
	if err := s.executionService.PauseExecution(id); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondOK(w, map[string]any{"paused": true, "executionId": id})
}

func (s *Server) HandleResumeExecution(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id := vars["id"]
	if err := s.executionService.ResumeExecution(id); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondOK(w, map[string]any{"resumed": true, "executionId": id})
}

type interventionRequest struct {
	StepId     string `json:"stepId"`
	Resolution string `json:"resolution"`
}

func (s *Server) HandleResolveIntervention(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id := vars["id"]
	var req interventionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid intervention payload")
		return
	}
	defer r.Body.Close()
	if req.Resolution != model.RESOLUTION_APPROVED && req.Resolution != model.RESOLUTION_REJECTED {
		respondWithError(w, http.StatusBadRequest, "resolution must be approved or rejected")
		return
	}
	if err := s.executionService.ResolveIntervention(id, req.StepId, req.Resolution); err != nil {
		respondWithError(w, http.StatusNotFound, err.Error())
		return
	}
	respondOK(w, map[string]any{"resolved": true, "executionId": id, "stepId": req.StepId})
}

func (s *Server) HandleGetMetrics(w http.ResponseWriter, r *http.Request) {
	metrics, err := s.executionService.GetMetrics()
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, metrics)
}
