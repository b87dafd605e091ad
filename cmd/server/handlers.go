package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	mbconfig "github.com/thenexusengine/tne_medbridge/internal/config"
	"github.com/thenexusengine/tne_medbridge/internal/mediation"
	"github.com/thenexusengine/tne_medbridge/pkg/logger"
)

// loadRequest is the body of POST /v1/load
type loadRequest struct {
	PlacementID        string `json:"placement_id"`
	PartnerPlacementID string `json:"partner_placement_id"`
	Format             string `json:"format"`
	BannerHeight       *int   `json:"banner_height,omitempty"`
	BidPayload         string `json:"bid_payload"`
}

// loadResponse is the body of a successful load
type loadResponse struct {
	HandleID    string            `json:"handle_id"`
	PlacementID string            `json:"placement_id"`
	Format      string            `json:"format"`
	Details     map[string]string `json:"details"`
}

// handleRequest identifies one loaded ad in show/invalidate/event calls
type handleRequest struct {
	HandleID string `json:"handle_id"`
}

// eventRequest drives render-host events back into the partner ad object
type eventRequest struct {
	HandleID string `json:"handle_id"`
	Event    string `json:"event"`
	Amount   int    `json:"amount,omitempty"`
	Currency string `json:"currency,omitempty"`
}

// consentRequest is the body of POST /v1/consent
type consentRequest struct {
	GDPRConsent   string `json:"gdpr_consent"`
	USPrivacy     string `json:"us_privacy"`
	MixedAudience bool   `json:"mixed_audience"`
}

// errorBody is the JSON error envelope
type errorBody struct {
	Error struct {
		Code        string `json:"code"`
		Message     string `json:"message"`
		PartnerCode int    `json:"partner_code,omitempty"`
	} `json:"error"`
}

// renderHostAd is the surface the event endpoint needs from an ad object
type renderHostAd interface {
	NotifyClick()
	NotifyDismissed()
	NotifyReward(amount int, currency string)
}

func (s *Server) loadHandler(w http.ResponseWriter, r *http.Request) {
	var req loadRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return
	}
	if req.PlacementID == "" || req.PartnerPlacementID == "" {
		writeBadRequest(w, "placement_id and partner_placement_id are required")
		return
	}

	adReq := mediation.AdRequest{
		PlacementID:        req.PlacementID,
		PartnerPlacementID: req.PartnerPlacementID,
		Format:             mediation.AdFormat(req.Format),
		BannerHeight:       req.BannerHeight,
		BidPayload:         req.BidPayload,
	}

	// The handle id is minted up front so display events carry it
	id := generateHandleID()
	handle, err := s.adapter.Load(r.Context(), adReq, newEventLogger(id, req.PlacementID))
	if err != nil {
		writeAdError(w, err)
		return
	}

	s.registerHandle(id, handle)
	writeJSON(w, http.StatusOK, loadResponse{
		HandleID:    id,
		PlacementID: handle.Request.PlacementID,
		Format:      string(handle.Request.Format),
		Details:     handle.Details,
	})
}

func (s *Server) showHandler(w http.ResponseWriter, r *http.Request) {
	var req handleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return
	}

	handle := s.lookupHandle(req.HandleID)
	if err := s.adapter.Show(r.Context(), handle); err != nil {
		writeAdError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"shown": true})
}

func (s *Server) invalidateHandler(w http.ResponseWriter, r *http.Request) {
	var req handleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return
	}

	handle := s.lookupHandle(req.HandleID)
	if err := s.adapter.Invalidate(handle); err != nil {
		writeAdError(w, err)
		return
	}

	s.removeHandle(req.HandleID)
	writeJSON(w, http.StatusOK, map[string]bool{"invalidated": true})
}

func (s *Server) eventHandler(w http.ResponseWriter, r *http.Request) {
	var req eventRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return
	}

	handle := s.lookupHandle(req.HandleID)
	if handle == nil {
		writeAdError(w, mediation.NewAdError(mediation.ErrorCodeAdNotFound, "unknown ad handle"))
		return
	}
	ad, ok := handle.Ad.(renderHostAd)
	if !ok {
		writeAdError(w, mediation.NewAdError(mediation.ErrorCodeWrongResource,
			fmt.Sprintf("ad object is %T", handle.Ad)))
		return
	}

	switch req.Event {
	case "click":
		ad.NotifyClick()
	case "dismiss":
		ad.NotifyDismissed()
	case "reward":
		ad.NotifyReward(req.Amount, req.Currency)
	default:
		writeBadRequest(w, fmt.Sprintf("unknown event %q", req.Event))
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"delivered": true})
}

func (s *Server) tokenHandler(w http.ResponseWriter, r *http.Request) {
	token, err := s.adapter.BidderToken(r.Context())
	if err != nil {
		writeAdError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (s *Server) consentHandler(w http.ResponseWriter, r *http.Request) {
	var req consentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return
	}

	s.adapter.SetConsent(mediation.ConsentSignals{
		GDPRConsent:   req.GDPRConsent,
		USPrivacy:     req.USPrivacy,
		MixedAudience: req.MixedAudience,
	})
	writeJSON(w, http.StatusOK, map[string]bool{"updated": true})
}

func (s *Server) testModeHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		return
	}

	s.adapter.SetTestMode(req.Enabled)
	logger.Log.Info().Bool("enabled", req.Enabled).Msg("Test mode changed")
	writeJSON(w, http.StatusOK, map[string]bool{"test_mode": req.Enabled})
}

// breakerHandler returns circuit breaker stats for the partner client
func (s *Server) breakerHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"vantage": s.partner.BreakerStats(),
	})
}

// decodeJSON reads a size-capped JSON body, writing the error response
// itself on failure
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, mbconfig.DefaultMaxBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Log.Error().Err(err).Msg("failed to encode response")
	}
}

func writeBadRequest(w http.ResponseWriter, message string) {
	var body errorBody
	body.Error.Code = "BAD_REQUEST"
	body.Error.Message = message
	writeJSON(w, http.StatusBadRequest, body)
}

// writeAdError maps a classified adapter error onto an HTTP response
func writeAdError(w http.ResponseWriter, err error) {
	var ae *mediation.AdError
	if !errors.As(err, &ae) {
		ae = &mediation.AdError{Code: mediation.ErrorCodePartner, Message: err.Error()}
	}

	var body errorBody
	body.Error.Code = string(ae.Code)
	body.Error.Message = ae.Message
	body.Error.PartnerCode = ae.PartnerCode
	writeJSON(w, statusForCode(ae.Code), body)
}

// statusForCode maps mediation error codes to HTTP statuses
func statusForCode(code mediation.ErrorCode) int {
	switch code {
	case mediation.ErrorCodeAdNotFound, mediation.ErrorCodeNoFill:
		return http.StatusNotFound
	case mediation.ErrorCodeWrongResource, mediation.ErrorCodeUnsupportedFormat:
		return http.StatusBadRequest
	case mediation.ErrorCodeShowInProgress, mediation.ErrorCodeAdNotReady:
		return http.StatusConflict
	case mediation.ErrorCodeRateLimited:
		return http.StatusTooManyRequests
	case mediation.ErrorCodeTimeout:
		return http.StatusGatewayTimeout
	case mediation.ErrorCodeInitFailure:
		return http.StatusServiceUnavailable
	}
	return http.StatusBadGateway
}
