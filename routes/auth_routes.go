package routes

import (
	"github.com/gorilla/mux"

	"github.com/Frodemaneskold/greenup/controllers"
)

// RegisterAuthRoutes sets up the legacy auth endpoints under /api/auth.
func RegisterAuthRoutes(r *mux.Router, controller *controllers.AuthController) {
	authRouter := r.PathPrefix("/api/auth").Subrouter()

	authRouter.HandleFunc("/register", controller.Register).Methods("POST")
	authRouter.HandleFunc("/login", controller.Login).Methods("POST")
	authRouter.HandleFunc("/me", controller.Me).Methods("GET")
}
