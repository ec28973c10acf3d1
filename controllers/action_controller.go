package controllers

import (
	"encoding/json"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/Frodemaneskold/greenup/services"
	"github.com/Frodemaneskold/greenup/socket"
)

// ActionController records CO2 credits against the legacy aggregate counter
// and tells competition rooms their leaderboards are stale.
type ActionController struct {
	Auth     *AuthController
	Accounts *services.AccountService
	Hub      *socket.Hub
	Log      *logrus.Logger
}

// NewActionController creates a new instance of ActionController.
func NewActionController(auth *AuthController, accounts *services.AccountService, hub *socket.Hub, log *logrus.Logger) *ActionController {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &ActionController{Auth: auth, Accounts: accounts, Hub: hub, Log: log}
}

type logActionRequest struct {
	CO2SavedKg     float64  `json:"co2_saved_kg"`
	CompetitionIDs []string `json:"competition_ids"`
}

// LogAction adds saved kilograms to the caller's aggregate counter and
// notifies the competition rooms the caller names.
func (c *ActionController) LogAction(w http.ResponseWriter, r *http.Request) {
	claims, ok := c.Auth.Authenticate(w, r)
	if !ok {
		return
	}

	var req logActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	if req.CO2SavedKg <= 0 {
		http.Error(w, "co2_saved_kg must be positive", http.StatusBadRequest)
		return
	}

	total, err := c.Accounts.AddCO2(r.Context(), claims.Subject, req.CO2SavedKg)
	if err != nil {
		c.Log.WithError(err).Error("add CO2 failed")
		http.Error(w, "Failed to record action", http.StatusInternalServerError)
		return
	}

	for _, competitionID := range req.CompetitionIDs {
		c.Hub.BroadcastLeaderboardDirty(competitionID)
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"total_co2_saved": total,
	})
}
