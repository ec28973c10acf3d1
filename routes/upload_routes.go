package routes

import (
	"github.com/gorilla/mux"

	"github.com/Frodemaneskold/greenup/controllers"
)

// RegisterUploadRoutes sets up the presigned upload endpoints under
// /api/uploads.
func RegisterUploadRoutes(r *mux.Router, controller *controllers.UploadController) {
	uploadRouter := r.PathPrefix("/api/uploads").Subrouter()

	uploadRouter.HandleFunc("/background", controller.BackgroundUploadURL).Methods("POST")
	uploadRouter.HandleFunc("/background", controller.BackgroundReadURL).Methods("GET")
}
