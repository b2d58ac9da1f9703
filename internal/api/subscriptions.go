package api

import (
	"bytes"
	"encoding/json"
	"net/http"
)

// subscribeRequest accepts either {"subscription": {...}, "name": "..."} or a
// bare PushSubscription object.
type subscribeRequest struct {
	Subscription json.RawMessage `json:"subscription"`
	Name         string          `json:"name"`
	Endpoint     string          `json:"endpoint"`
}

type pushSubscription struct {
	Endpoint string `json:"endpoint"`
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	var raw json.RawMessage
	if err := s.decodeJSON(w, r, &raw); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req subscribeRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		writeError(w, http.StatusBadRequest, errInvalidJSONBody)
		return
	}

	payload, endpoint := raw, req.Endpoint
	if len(req.Subscription) > 0 && !bytes.Equal(req.Subscription, []byte("null")) {
		var ps pushSubscription
		if err := json.Unmarshal(req.Subscription, &ps); err != nil {
			writeError(w, http.StatusBadRequest, "subscription must be a JSON object")
			return
		}
		payload, endpoint = req.Subscription, ps.Endpoint
	}

	if _, err := s.subscriptionSvc.Register(r.Context(), endpoint, payload, req.Name); err != nil {
		s.writeServiceError(w, err, "failed to save subscription")
		return
	}
	writeJSON(w, http.StatusCreated, struct{}{})
}

type unsubscribeRequest struct {
	Endpoint     string            `json:"endpoint"`
	Subscription *pushSubscription `json:"subscription"`
}

func (s *Server) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	var req unsubscribeRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	endpoint := req.Endpoint
	if endpoint == "" && req.Subscription != nil {
		endpoint = req.Subscription.Endpoint
	}
	if err := s.subscriptionSvc.Unregister(r.Context(), endpoint); err != nil {
		s.writeServiceError(w, err, "failed to remove subscription")
		return
	}
	writeJSON(w, http.StatusOK, struct{}{})
}

func (s *Server) handleListSubscribers(w http.ResponseWriter, r *http.Request) {
	recipients, err := s.subscriptionSvc.ListAll(r.Context())
	if err != nil {
		s.writeServiceError(w, err, "failed to list subscribers")
		return
	}
	writeJSON(w, http.StatusOK, recipients)
}

func (s *Server) handleVAPIDPublicKey(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"publicKey": s.notificationSvc.VAPIDPublicKey()})
}
