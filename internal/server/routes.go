package server

import (
	"net/http"
)

func SetupRoutes(projectHandler *ProjectService) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /projects/{id}", projectHandler.GetProject)
	mux.HandleFunc("GET /watermark", projectHandler.GetWatermark)

	return mux
}
