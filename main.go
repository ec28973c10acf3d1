package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"

	"github.com/Frodemaneskold/greenup/controllers"
	"github.com/Frodemaneskold/greenup/routes"
	"github.com/Frodemaneskold/greenup/services"
	"github.com/Frodemaneskold/greenup/socket"
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	log := logrus.New()
	if getEnvBool("DEBUG", false) {
		log.SetLevel(logrus.DebugLevel)
	}

	// Initialize AWS-backed services
	log.Info("Loading AWS configuration...")
	awsCfg, err := services.LoadAWSConfig(context.Background())
	if err != nil {
		log.WithError(err).Fatal("Failed to load AWS config")
	}
	dynamoService := services.NewDynamoService(awsCfg, log)
	accountService := &services.AccountService{Dynamo: dynamoService}
	uploadService := services.NewUploadService(awsCfg, getEnv("S3_BUCKET_NAME", "greenup-uploads"))
	tokenService := &services.TokenService{
		Secret: []byte(getEnv("JWT_SECRET", "change-this-secret")),
		TTL:    time.Duration(getEnvInt("JWT_TTL_HOURS", 168)) * time.Hour,
	}

	// Socket hub for competition rooms
	hub := socket.NewHub(log)
	go func() {
		if err := hub.Serve(); err != nil {
			log.WithError(err).Error("socket hub stopped")
		}
	}()
	defer hub.Close()

	// Controllers
	authController := controllers.NewAuthController(accountService, tokenService, log)
	actionController := controllers.NewActionController(authController, accountService, hub, log)
	uploadController := controllers.NewUploadController(authController, uploadService, log)

	// Initialize the router
	r := mux.NewRouter()

	r.HandleFunc("/health", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	}).Methods("GET")

	routes.RegisterAuthRoutes(r, authController)
	routes.RegisterActionRoutes(r, actionController)
	routes.RegisterUploadRoutes(r, uploadController)
	r.PathPrefix("/socket.io/").Handler(hub.Handler())

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   getEnvSlice("ALLOWED_ORIGINS", "*"),
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	}).Handler(r)

	port := getEnv("PORT", "8080")
	if err := serve(":"+port, corsHandler, log); err != nil {
		log.WithError(err).Fatal("server failed")
	}
}

// serve runs the HTTP server until SIGINT or SIGTERM, then drains in-flight
// requests before returning.
func serve(addr string, handler http.Handler, log *logrus.Logger) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	shutdownErr := make(chan error)

	go func() {
		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
		s := <-shutdown
		log.WithField("signal", s.String()).Info("shutting down server")

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		shutdownErr <- srv.Shutdown(ctx)
	}()

	log.WithField("addr", addr).Info("starting server")
	err := srv.ListenAndServe()
	if !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return <-shutdownErr
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvSlice(key, fallback string) []string {
	value := os.Getenv(key)
	if value == "" {
		value = fallback
	}
	parts := strings.Split(value, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
