package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/dj-pearson/gym-unity-edge/internal/monitor"
	"github.com/dj-pearson/gym-unity-edge/internal/ratelimit"
)

// handleRateLimit serves explicit rate-limit decisions for callers that gate
// their own work (login flows, bulk jobs, exports).
func (s *Server) handleRateLimit(w http.ResponseWriter, r *http.Request) {
	var req ratelimit.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	if req.Identifier == "" {
		req.Identifier = clientIP(r)
	}
	if req.LimitType == "" {
		s.respondError(w, http.StatusBadRequest, "limitType is required")
		return
	}

	decision, err := s.doLimitWrapped(r.Context(), req)
	if errors.Is(err, ratelimit.ErrUnknownLimitType) {
		// Caller named a policy that does not exist; their mistake, not ours.
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		s.logger.Error("rate limit request failed",
			"limit_type", req.LimitType,
			"action", req.Action,
			"error", err,
		)
		s.respondError(w, http.StatusInternalServerError, "rate limit unavailable")
		return
	}

	writeRateHeaders(w, decision)
	if !decision.Allowed {
		w.Header().Set("Retry-After", fmt.Sprintf("%d", decision.RetryAfter))
		s.respondJSON(w, http.StatusTooManyRequests, decision)
		return
	}
	s.respondJSON(w, http.StatusOK, decision)
}

// handleHealth reports store reachability and recent query quality.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status, summary := s.monitor.Health(r.Context())

	code := http.StatusOK
	if status == monitor.StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	s.respondJSON(w, code, healthResponse{Status: status, Summary: summary})
}

// limitWrapped counts one request against a key, recording the store call in
// the monitor.
func (s *Server) limitWrapped(ctx context.Context, key ratelimit.Key) (ratelimit.Decision, error) {
	var decision ratelimit.Decision
	_, err := s.monitor.Wrap(ctx, monitor.Op{
		Label:     "rate limit increment",
		Table:     "rate_limits",
		Operation: monitor.OpUpsert,
		CallerID:  key.Identifier,
	}, func(ctx context.Context) (int, error) {
		var err error
		decision, err = s.limiter.Increment(ctx, key)
		return 1, err
	})
	return decision, err
}

func (s *Server) doLimitWrapped(ctx context.Context, req ratelimit.Request) (ratelimit.Decision, error) {
	var decision ratelimit.Decision
	_, err := s.monitor.Wrap(ctx, monitor.Op{
		Label:     "rate limit " + string(req.Action),
		Table:     "rate_limits",
		Operation: monitor.OpUpsert,
		CallerID:  req.Identifier,
	}, func(ctx context.Context) (int, error) {
		var err error
		decision, err = s.limiter.Do(ctx, req)
		return 1, err
	})
	return decision, err
}

func ratelimitKey(limitType, identifier, endpoint string) ratelimit.Key {
	return ratelimit.Key{LimitType: limitType, Identifier: identifier, Endpoint: endpoint}
}

func writeRateHeaders(w http.ResponseWriter, d ratelimit.Decision) {
	w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", d.Limit))
	w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", d.Remaining))
	w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", d.ResetAt.Unix()))
}

type healthResponse struct {
	Status  monitor.Status  `json:"status"`
	Summary monitor.Summary `json:"summary"`
}
