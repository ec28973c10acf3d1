package routes

import (
	"github.com/gorilla/mux"

	"github.com/Frodemaneskold/greenup/controllers"
)

// RegisterActionRoutes sets up the legacy action endpoint under /api/actions.
func RegisterActionRoutes(r *mux.Router, controller *controllers.ActionController) {
	actionRouter := r.PathPrefix("/api/actions").Subrouter()

	actionRouter.HandleFunc("", controller.LogAction).Methods("POST")
}
