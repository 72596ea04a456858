package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	cloudevents "github.com/cloudevents/sdk-go/v2"

	"github.com/Lllllllleong/pdfassetmigrator/internal/models"
	"github.com/Lllllllleong/pdfassetmigrator/internal/services"
)

var (
	compressorInstance *services.PDFCompressorFunction
	once               sync.Once
	initErr            error
)

func init() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	functions.HTTP("CompressPDFAssets", compressPDFAssets)
	functions.CloudEvent("CompressPDFAssetsOnSchedule", compressPDFAssetsOnSchedule)
}

// main is required by the Go Functions Framework.
func main() {}

// instance lazily builds the compressor from the environment. Clients are
// reused across invocations of the same instance.
func instance() (*services.PDFCompressorFunction, error) {
	once.Do(func() {
		cfg := services.DefaultConfig()
		if initErr = cfg.ApplyEnv(); initErr != nil {
			return
		}
		compressorInstance, initErr = services.NewPDFCompressor(context.Background(), cfg)
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
	}
	return compressorInstance, initErr
}

// compressPDFAssets runs one batch on an HTTP request. The body is an
// optional RunRequest.
func compressPDFAssets(w http.ResponseWriter, r *http.Request) {
	req, err := decodeRunRequest(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, models.RunResponse{Status: "error", Error: err.Error()})
		return
	}

	f, err := instance()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, models.RunResponse{Status: "error", Error: "initialization failed"})
		return
	}

	rep, err := f.Process(r.Context(), req)
	resp := rep.Response()
	if err != nil {
		resp.Status = "error"
		resp.Error = err.Error()
		writeJSON(w, http.StatusInternalServerError, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// compressPDFAssetsOnSchedule runs one batch from a Pub/Sub message, as
// published by Cloud Scheduler. The message data is an optional RunRequest.
func compressPDFAssetsOnSchedule(ctx context.Context, e cloudevents.Event) error {
	f, err := instance()
	if err != nil {
		return err
	}

	var msg models.PubSubMessage
	if err := json.Unmarshal(e.Data(), &msg); err != nil {
		slog.Error("Failed to unmarshal event data", "error", err, "data", string(e.Data()))
		return fmt.Errorf("json.Unmarshal: %w", err)
	}

	var req models.RunRequest
	if len(msg.Message.Data) > 0 {
		if err := json.Unmarshal(msg.Message.Data, &req); err != nil {
			slog.Error("Failed to unmarshal run request", "error", err)
			return fmt.Errorf("failed to parse run request: %w", err)
		}
	}

	_, err = f.Process(ctx, req)
	return err
}

func decodeRunRequest(body io.Reader) (models.RunRequest, error) {
	var req models.RunRequest
	if body == nil {
		return req, nil
	}
	err := json.NewDecoder(body).Decode(&req)
	if err != nil && !errors.Is(err, io.EOF) {
		return req, fmt.Errorf("invalid request body: %w", err)
	}
	if req.RecordLimit < 0 {
		return req, fmt.Errorf("recordLimit must not be negative, got %d", req.RecordLimit)
	}
	return req, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to write response", "error", err)
	}
}
