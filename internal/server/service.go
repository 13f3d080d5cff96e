package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/geo-ambiental/seia-sync/internal/database"
	"github.com/geo-ambiental/seia-sync/internal/models"
	"github.com/sirupsen/logrus"
)

type ProjectReader interface {
	GetProject(ctx context.Context, id string) (*models.Project, error)
}

type WatermarkReader interface {
	CurrentWatermark(ctx context.Context) (time.Time, bool, error)
}

type ProjectService struct {
	Projects  ProjectReader
	Watermark WatermarkReader
	Logger    logrus.FieldLogger
}

func NewProjectService(projects ProjectReader, watermark WatermarkReader, logger logrus.FieldLogger) *ProjectService {
	return &ProjectService{Projects: projects, Watermark: watermark, Logger: logger}
}

type watermarkResponse struct {
	Watermark *string `json:"watermark"`
}

func (h *ProjectService) GetProject(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		http.Error(w, "Project id is required in the URL path /projects/{id}", http.StatusBadRequest)
		return
	}

	project, err := h.Projects.GetProject(r.Context(), id)
	if err != nil {
		if errors.Is(err, database.ErrProjectNotFound) {
			http.Error(w, "Project not found", http.StatusNotFound)
			return
		}
		h.Logger.WithError(err).Errorf("Failed to retrieve project %s", id)
		http.Error(w, "Failed to retrieve project", http.StatusInternalServerError)
		return
	}

	writeJSON(w, project)
}

func (h *ProjectService) GetWatermark(w http.ResponseWriter, r *http.Request) {
	watermark, ok, err := h.Watermark.CurrentWatermark(r.Context())
	if err != nil {
		h.Logger.WithError(err).Error("Failed to retrieve watermark")
		http.Error(w, "Failed to retrieve watermark", http.StatusInternalServerError)
		return
	}

	var response watermarkResponse
	if ok {
		date := watermark.Format("2006-01-02")
		response.Watermark = &date
	}
	writeJSON(w, response)
}

func writeJSON(w http.ResponseWriter, body any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(body); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}
