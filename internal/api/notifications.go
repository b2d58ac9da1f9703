package api

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/shaharia-lab/pushcast/internal/notification"
)

type sendNotificationRequest struct {
	SenderName  string `json:"senderName"`
	Title       string `json:"title"`
	Body        string `json:"body"`
	ImageBase64 string `json:"imageBase64"`
	TargetID    string `json:"targetId"`
	ActionType  string `json:"actionType"`
}

type sendNotificationResponse struct {
	Message string `json:"message"`
	*notification.Report
}

type messageResponse struct {
	Message string `json:"message"`
}

func (s *Server) handleSendNotification(w http.ResponseWriter, r *http.Request) {
	var req sendNotificationRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var image []byte
	if req.ImageBase64 != "" {
		decoded, err := decodeImage(req.ImageBase64)
		if err != nil {
			s.logger.Warn("ignoring undecodable image", "error", err)
		} else {
			image = decoded
		}
	}

	report, err := s.notificationSvc.Send(r.Context(), notification.Request{
		SenderName:  req.SenderName,
		Title:       req.Title,
		Body:        req.Body,
		Image:       image,
		Target:      req.TargetID,
		ActionStyle: req.ActionType,
	})
	if err != nil {
		s.writeServiceError(w, err, "failed to send notification")
		return
	}
	writeJSON(w, http.StatusOK, sendNotificationResponse{Message: report.Summary(), Report: report})
}

func (s *Server) handleBroadcastTest(w http.ResponseWriter, r *http.Request) {
	report, err := s.notificationSvc.BroadcastTest(r.Context())
	if err != nil {
		s.writeServiceError(w, err, "failed to send test broadcast")
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: fmt.Sprintf("Sent test to %d users.", report.Attempted)})
}

// handleTriggerPush broadcasts the scheduled reminder. The secret is passed as
// the ?secret= query parameter.
func (s *Server) handleTriggerPush(w http.ResponseWriter, r *http.Request) {
	if !s.triggerLimiter.Allow() {
		w.Header().Set("Retry-After", "10")
		writeError(w, http.StatusTooManyRequests, "too many trigger requests")
		return
	}

	report, err := s.notificationSvc.Trigger(r.Context(), r.URL.Query().Get("secret"))
	if err != nil {
		s.writeServiceError(w, err, "failed to trigger reminder")
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: fmt.Sprintf("Triggered for %d users.", report.Attempted)})
}

// decodeImage decodes standard or unpadded base64, with or without a
// "data:<type>;base64," prefix.
func decodeImage(s string) ([]byte, error) {
	if strings.HasPrefix(s, "data:") {
		i := strings.Index(s, ",")
		if i < 0 {
			return nil, errors.New("malformed data URL")
		}
		s = s[i+1:]
	}
	s = strings.TrimSpace(s)
	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	b, err := base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}
	return b, nil
}
