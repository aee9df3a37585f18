package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/Lllllllleong/taxfilingflow/internal/services"
)

var (
	apiInstance *services.FilingAPIFunction
	once        sync.Once
	initErr     error
)

func init() {
	// --- Set up structured logging ---
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Register the HTTP function with the framework.
	// "HandleFilingAPI" is the entry point name configured in GCP.
	functions.HTTP("HandleFilingAPI", handleFilingAPI)
}

// main is required by the Go Functions Framework.
func main() {}

// handleFilingAPI is the HTTP handler for the filing API service.
func handleFilingAPI(w http.ResponseWriter, r *http.Request) {
	// Use sync.Once for robust, one-time initialization of clients.
	once.Do(func() {
		apiInstance, initErr = services.NewFilingAPI(context.Background())
	})
	if initErr != nil {
		slog.Error("Critical: FilingAPI initialization failed", "error", initErr)
		http.Error(w, "Internal Server Error: failed to initialize service", http.StatusInternalServerError)
		return
	}

	apiInstance.ServeHTTP(w, r)
}
