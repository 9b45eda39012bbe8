// Package visit persists finalized intake summaries into the hospital
// feedback table over its REST API.
package visit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Raikerian/go-voice-intake/internal/config"
	"github.com/Raikerian/go-voice-intake/internal/notes"
)

// Summary carries everything a finalized session contributes to the
// patient feedback table.
type Summary struct {
	SessionID   string
	PatientID   string
	SOAP        notes.SOAP
	Observation string // working notes at finalize time
	Severe      bool
}

// Writer records finalized visit summaries.
type Writer interface {
	WriteSummary(ctx context.Context, summary Summary) error
}

// feedbackRow is the insert payload for POST /table/{table}.
type feedbackRow struct {
	PatientID    int    `json:"patient_id"`
	Treatment    string `json:"treatment"`
	Feedback     string `json:"feedback"`
	Datetime     string `json:"datetime"`
	IsSevere     string `json:"is_severe"` // stored as "true"/"false"
	FeedbackType string `json:"feedback_type"`
}

type httpWriter struct {
	logger   *zap.Logger
	cfg      *config.VisitConfig
	client   *http.Client
	location *time.Location
}

// NewWriter creates a Writer backed by the configured feedback endpoint.
// An empty base URL disables writing entirely.
func NewWriter(logger *zap.Logger, cfg *config.Config) Writer {
	location, err := time.LoadLocation("America/Toronto")
	if err != nil {
		logger.Warn("Failed to load Eastern timezone, using local time", zap.Error(err))
		location = time.Local
	}

	if cfg.Visit.BaseURL == "" {
		logger.Info("Visit writer disabled, no base URL configured")
	}

	return &httpWriter{
		logger:   logger,
		cfg:      &cfg.Visit,
		client:   &http.Client{Timeout: cfg.Visit.Timeout()},
		location: location,
	}
}

func (w *httpWriter) WriteSummary(ctx context.Context, summary Summary) error {
	if w.cfg.BaseURL == "" {
		w.logger.Debug("Visit writer disabled, skipping summary",
			zap.String("session_id", summary.SessionID))

		return nil
	}

	row := feedbackRow{
		PatientID:    parsePatientID(summary.PatientID),
		Treatment:    treatmentText(summary.SOAP.Plan),
		Feedback:     composeFeedback(summary),
		Datetime:     time.Now().In(w.location).Format("2006-01-02 15:04:05"),
		IsSevere:     strconv.FormatBool(summary.Severe),
		FeedbackType: "soap_summary",
	}

	body, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("failed to encode feedback row: %w", err)
	}

	url := strings.TrimRight(w.cfg.BaseURL, "/") + "/table/" + w.cfg.Table

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build feedback request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if w.cfg.APIKey != "" {
		req.Header.Set("apikey", w.cfg.APIKey)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to post visit summary: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("visit endpoint returned status %d", resp.StatusCode)
	}

	w.logger.Info("Visit summary recorded",
		zap.String("session_id", summary.SessionID),
		zap.String("patient_id", summary.PatientID),
		zap.Int("status", resp.StatusCode))

	return nil
}

// composeFeedback builds a concise feedback block for downstream
// analytics. The plan is excluded, it lands in the treatment column.
func composeFeedback(summary Summary) string {
	var parts []string
	if s := strings.TrimSpace(summary.SOAP.Subjective); s != "" {
		parts = append(parts, "Subjective: "+s)
	}
	if o := strings.TrimSpace(summary.SOAP.Objective); o != "" {
		parts = append(parts, "Objective: "+o)
	}
	if a := strings.TrimSpace(summary.SOAP.Assessment); a != "" {
		parts = append(parts, "Assessment: "+a)
	}
	if obs := strings.TrimSpace(summary.Observation); obs != "" {
		parts = append(parts, "Observation: "+obs)
	}

	if len(parts) == 0 {
		return "SOAP summary generated"
	}

	return strings.Join(parts, "\n\n")
}

func treatmentText(plan string) string {
	if trimmed := strings.TrimSpace(plan); trimmed != "" {
		return trimmed
	}

	return "Awaiting physician plan"
}

// parsePatientID converts the session's patient identifier into the
// integer column type, zero when absent or non-numeric.
func parsePatientID(id string) int {
	n, err := strconv.Atoi(strings.TrimSpace(id))
	if err != nil {
		return 0
	}

	return n
}
