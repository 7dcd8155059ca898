package rest

import (
	"encoding/json"
	"net/http"

	"github.com/autoflow/autoflow/logger"
	"github.com/autoflow/autoflow/metadata"
	"github.com/autoflow/autoflow/model"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

func (s *Server) HandleRegisterTemplate(w http.ResponseWriter, r *http.Request) {
	var tmpl model.WorkflowTemplate
	if err := json.NewDecoder(r.Body).Decode(&tmpl); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid template payload")
		return
	}
	defer r.Body.Close()
	if err := s.metadataService.RegisterTemplate(tmpl); err != nil {
		logger.Error("error registering template", zap.String("template", tmpl.Name), zap.Error(err))
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondOK(w, map[string]any{"created": true, "name": tmpl.Name})
}

func (s *Server) HandleGetTemplate(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	name := vars["name"]
	tmpl, err := s.metadataService.GetTemplate(name)
	if err != nil {
		if _, ok := err.(metadata.UnknownTemplateError); ok {
			respondWithError(w, http.StatusNotFound, err.Error())
			return
		}
		respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, tmpl)
}

func (s *Server) HandleDeleteTemplate(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	name := vars["name"]
	if err := s.metadataService.DeleteTemplate(name); err != nil {
		if _, ok := err.(metadata.UnknownTemplateError); ok {
			respondWithError(w, http.StatusNotFound, err.Error())
			return
		}
		respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondOK(w, map[string]any{"deleted": true, "name": name})
}
