package server

import (
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/dj-pearson/gym-unity-edge/internal/config"
	"github.com/dj-pearson/gym-unity-edge/internal/signature"
	"github.com/dj-pearson/gym-unity-edge/internal/validate"
)

// Default signature headers per provider family.
const (
	headerStripe           = "Stripe-Signature"
	headerMailgunSignature = "X-Mailgun-Signature"
	headerMailgunTimestamp = "X-Mailgun-Timestamp"
	headerMailgunToken     = "X-Mailgun-Token"
	headerPostmark         = "X-Postmark-Signature"
	headerTwilio           = "X-Twilio-Signature"
	headerGeneric          = "X-Signature"
)

// verificationFailed is the only message callers see on a rejected webhook.
// Format errors, mismatches, and stale timestamps must be indistinguishable
// from outside; the detail goes to the log.
const verificationFailed = "webhook verification failed"

type endpoint struct {
	path      string
	provider  string
	secret    string
	header    string
	verifier  signature.Verifier
	allowList *signature.AllowList
	schema    validate.Schema
	hasSchema bool
	limitType string
	maxBody   int64
	validator *validate.Validator
}

func (s *Server) buildEndpoint(hook *config.WebhookConfig, secrets *config.Secrets, schemas Schemas) (*endpoint, error) {
	secret, err := secrets.Get(hook.SecretRef)
	if err != nil {
		return nil, err
	}

	verifier, defaultHeader, err := verifierFor(hook)
	if err != nil {
		return nil, err
	}

	header := hook.Header
	if header == "" {
		header = defaultHeader
	}

	maxBody := hook.MaxBodyBytes
	if maxBody == 0 {
		maxBody = s.cfg.MaxBodyBytes
	}

	ep := &endpoint{
		path:      hook.Path,
		provider:  hook.Provider,
		secret:    secret,
		header:    header,
		verifier:  verifier,
		schema:    nil,
		limitType: hook.RateLimit,
		maxBody:   maxBody,
		validator: validate.New(validate.UnknownStrip),
	}

	if len(hook.AllowedIPs) > 0 {
		ep.allowList = signature.NewAllowList(hook.AllowedIPs)
	}

	if hook.Schema != "" {
		schema, ok := schemas[hook.Schema]
		if !ok {
			return nil, fmt.Errorf("unknown schema %q", hook.Schema)
		}
		ep.schema = schema
		ep.hasSchema = true
	}

	return ep, nil
}

func verifierFor(hook *config.WebhookConfig) (signature.Verifier, string, error) {
	switch hook.Provider {
	case "stripe":
		return &signature.StripeVerifier{Tolerance: hook.Tolerance}, headerStripe, nil
	case "mailgun":
		return &signature.TokenVerifier{Tolerance: hook.Tolerance}, headerMailgunSignature, nil
	case "postmark":
		return &signature.PlainVerifier{}, headerPostmark, nil
	case "twilio":
		return &signature.LegacyVerifier{}, headerTwilio, nil
	case "generic":
		return &signature.GenericVerifier{
			Name:      "generic",
			Algorithm: signature.Algorithm(hook.Algorithm),
			Encoding:  signature.Encoding(hook.Encoding),
			Prefix:    hook.Prefix,
		}, headerGeneric, nil
	}
	return nil, "", fmt.Errorf("unknown provider %q", hook.Provider)
}

// handleWebhook runs the ingress pipeline: source gate, signature, rate
// limit, security scan, schema validation.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetReqID(ctx)

	ep, ok := s.endpoints[r.URL.Path]
	if !ok {
		s.respondError(w, http.StatusNotFound, "endpoint not found")
		return
	}

	if ep.allowList != nil && !ep.allowList.Contains(clientIP(r)) {
		s.logger.Warn("webhook source address rejected",
			"path", ep.path,
			"remote_addr", r.RemoteAddr,
			"request_id", requestID,
		)
		s.respondError(w, http.StatusUnauthorized, verificationFailed)
		return
	}

	limitedReader := io.LimitReader(r.Body, ep.maxBody+1)
	body, err := io.ReadAll(limitedReader)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to read request body")
		return
	}
	if int64(len(body)) > ep.maxBody {
		s.respondError(w, http.StatusRequestEntityTooLarge, "payload too large")
		return
	}

	result := ep.verifier.Verify(s.signatureRequest(r, ep, body), ep.secret)
	if !result.Valid {
		s.logger.Warn("webhook signature rejected",
			"path", ep.path,
			"provider", result.Provider,
			"reason", result.Error,
			"request_id", requestID,
		)
		s.respondError(w, http.StatusUnauthorized, verificationFailed)
		return
	}

	if ep.limitType != "" && !s.enforceLimit(w, r, ep) {
		return
	}

	payload, parseErr := validate.ParseJSON(body)
	if ep.hasSchema && parseErr != nil {
		s.respondError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}

	if parseErr == nil {
		scan := validate.Scan(payload)
		if !scan.Safe {
			// Attack indicator, not a data-quality issue.
			s.logger.Warn("webhook payload failed security scan",
				"path", ep.path,
				"threats", len(scan.Threats),
				"first_path", scan.Threats[0].Path,
				"first_type", scan.Threats[0].Type,
				"request_id", requestID,
			)
			s.respondError(w, http.StatusBadRequest, "invalid input")
			return
		}
	}

	if ep.hasSchema {
		vr := ep.validator.Validate(payload, ep.schema)
		if !vr.Valid {
			s.respondJSON(w, http.StatusBadRequest, validationErrorResponse{
				Error:   "Validation failed",
				Details: vr.Errors,
			})
			return
		}
	}

	s.logger.Info("webhook accepted",
		"path", ep.path,
		"provider", ep.provider,
		"request_id", requestID,
	)
	s.respondJSON(w, http.StatusAccepted, webhookResponse{Received: true, RequestID: requestID})
}

// signatureRequest assembles the provider-specific verification inputs.
func (s *Server) signatureRequest(r *http.Request, ep *endpoint, body []byte) signature.Request {
	req := signature.Request{
		Payload:   body,
		Signature: r.Header.Get(ep.header),
	}

	switch ep.provider {
	case "mailgun":
		req.Timestamp = r.Header.Get(headerMailgunTimestamp)
		req.Token = r.Header.Get(headerMailgunToken)
	case "twilio":
		req.URL = requestURL(r)
		req.Params = formParams(body)
	}
	return req
}

func (s *Server) enforceLimit(w http.ResponseWriter, r *http.Request, ep *endpoint) bool {
	key := ratelimitKey(ep.limitType, clientIP(r), ep.path)

	decision, err := s.limitWrapped(r.Context(), key)
	if err != nil {
		// Fail open: losing the counter store must not take down ingress.
		s.logger.Error("rate limit check failed", "path", ep.path, "error", err)
		return true
	}

	writeRateHeaders(w, decision)
	if !decision.Allowed {
		w.Header().Set("Retry-After", fmt.Sprintf("%d", decision.RetryAfter))
		s.respondError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return false
	}
	return true
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func requestURL(r *http.Request) string {
	scheme := "https"
	if r.TLS == nil {
		scheme = "http"
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}

// formParams decodes a form-encoded body. The body has already been read for
// the size check, so it is parsed directly rather than through ParseForm.
func formParams(body []byte) map[string]string {
	values, err := url.ParseQuery(string(body))
	if err != nil {
		return nil
	}
	params := make(map[string]string, len(values))
	for key, vs := range values {
		if len(vs) > 0 {
			params[key] = vs[0]
		}
	}
	return params
}

type webhookResponse struct {
	Received  bool   `json:"received"`
	RequestID string `json:"requestId,omitempty"`
}

type validationErrorResponse struct {
	Error   string                `json:"error"`
	Details []validate.FieldError `json:"details"`
}
