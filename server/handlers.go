package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/rushteam/dropfeed/core"
	"github.com/rushteam/dropfeed/engine"
)

// refreshRequest 是 POST /api/v1/feed/refresh 的请求体。
type refreshRequest struct {
	Trigger           string   `json:"trigger" validate:"required,oneof=manual onboarding_completed scheduled"`
	UserIDs           []string `json:"user_ids" validate:"required_if=Trigger onboarding_completed,max=1000,dive,required,max=128"`
	ForceRegeneration bool     `json:"force_regeneration"`
}

type errorBody struct {
	Error apiError `json:"error"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type acceptedBody struct {
	Status  string `json:"status"`
	Trigger string `json:"trigger"`
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	logger := zerolog.Ctx(r.Context())

	var req refreshRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_JSON", "request body is not valid JSON")
		return
	}
	if err := s.validate.Struct(&req); err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", validationMessage(err))
		return
	}

	trigger := engine.Trigger{
		Kind:              engine.TriggerKind(req.Trigger),
		UserIDs:           req.UserIDs,
		ForceRegeneration: req.ForceRegeneration,
	}

	// async=true 时立即返回 202，批处理在后台运行，结果只写日志与指标
	if async, _ := strconv.ParseBool(r.URL.Query().Get("async")); async {
		ctx := logger.WithContext(context.WithoutCancel(s.baseCtx))
		go func() {
			if _, err := s.refresher.Run(ctx, trigger); err != nil {
				logger.Error().Err(err).Str("trigger", req.Trigger).Msg("async refresh failed")
			}
		}()
		respondJSON(w, http.StatusAccepted, acceptedBody{Status: "accepted", Trigger: req.Trigger})
		return
	}

	res, err := s.refresher.Run(r.Context(), trigger)
	if err != nil {
		if errors.Is(err, engine.ErrInvalidTrigger) {
			respondError(w, http.StatusBadRequest, "INVALID_TRIGGER", err.Error())
			return
		}
		logger.Error().Err(err).Str("trigger", req.Trigger).Msg("refresh failed")
		respondError(w, http.StatusServiceUnavailable, "BATCH_FAILED", "refresh batch failed")
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == "" || len(userID) > 128 {
		respondError(w, http.StatusBadRequest, "INVALID_USER_ID", "invalid user id")
		return
	}

	feed, err := s.feeds.Read(r.Context(), userID)
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Str("user_id", userID).Msg("feed read failed")
		status := http.StatusInternalServerError
		if core.IsCandidateFetchFailure(err) {
			status = http.StatusServiceUnavailable
		}
		respondError(w, status, "FEED_UNAVAILABLE", "feed is temporarily unavailable")
		return
	}
	respondJSON(w, http.StatusOK, feed)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health(r.Context()); err != nil {
			zerolog.Ctx(r.Context()).Warn().Err(err).Msg("health check failed")
			respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	data, err := json.Marshal(body)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorBody{Error: apiError{Code: code, Message: message}})
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	fe := verrs[0]
	if fe.Param() != "" {
		return fe.Field() + ": failed " + fe.Tag() + "=" + fe.Param()
	}
	return fe.Field() + ": failed " + fe.Tag()
}
