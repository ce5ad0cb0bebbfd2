package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/tidwall/gjson"

	"nofomo/internal/engine"
	"nofomo/internal/service"
	"nofomo/internal/storage"
)

// DecisionResponse is the 200 body of POST /decision.
type DecisionResponse struct {
	Decision  engine.Decision `json:"decision"`
	RequestID string          `json:"requestId"`
}

// DecisionLogResponse is the 200 body of GET /decision-log.
type DecisionLogResponse struct {
	Count     int             `json:"count"`
	Items     []storage.Entry `json:"items"`
	RequestID string          `json:"requestId"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"log":       s.svc.Stats(),
		"requestId": RequestIDFrom(c),
	})
}

func (s *Server) handleDecision(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, s.opts.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			abortWithError(c, http.StatusRequestEntityTooLarge, CodePayloadTooLarge, "request body too large", "")
			return
		}
		abortWithError(c, http.StatusBadRequest, CodeInvalidJSON, "could not read request body", err.Error())
		return
	}

	req, vErr := parseDecisionRequest(body)
	if vErr != nil {
		abortWithError(c, http.StatusBadRequest, vErr.Code, vErr.Message, vErr.Field)
		return
	}
	req.RequestID = RequestIDFrom(c)

	decision, err := s.svc.Decide(c.Request.Context(), req)
	if err != nil {
		var ve *engine.ValidationError
		if errors.As(err, &ve) {
			abortWithError(c, http.StatusBadRequest, ve.Code, ve.Message, ve.Field)
			return
		}
		s.logger.Error().Err(err).Str("request_id", req.RequestID).Msg("decide failed")
		abortWithError(c, http.StatusInternalServerError, CodeInternal, "internal error", "")
		return
	}

	c.JSON(http.StatusOK, DecisionResponse{Decision: decision, RequestID: req.RequestID})
}

// parseDecisionRequest accepts any JSON object. symbol and direction are
// validated downstream; marketData (or its alias marketSnapshot) must be an
// object when present, but its fields never fail to decode.
func parseDecisionRequest(body []byte) (service.DecideRequest, *engine.ValidationError) {
	if !gjson.ValidBytes(body) {
		return service.DecideRequest{}, &engine.ValidationError{Code: CodeInvalidJSON, Message: "request body is not valid JSON"}
	}
	doc := gjson.ParseBytes(body)
	if !doc.IsObject() {
		return service.DecideRequest{}, &engine.ValidationError{Code: CodeInvalidJSON, Message: "request body must be a JSON object"}
	}

	req := service.DecideRequest{
		Symbol:    textField(doc.Get("symbol")),
		Direction: textField(doc.Get("direction")),
	}

	market := doc.Get("marketData")
	if !market.Exists() || market.Type == gjson.Null {
		market = doc.Get("marketSnapshot")
	}
	if market.Exists() && market.Type != gjson.Null {
		if !market.IsObject() {
			return service.DecideRequest{}, &engine.ValidationError{
				Code:    CodeInvalidMarketData,
				Field:   "marketData",
				Message: "marketData must be a JSON object",
			}
		}
		req.Snapshot = decodeSnapshot(market)
	}
	return req, nil
}

// textField returns strings as-is and any other non-null value verbatim so
// that a wrong type surfaces as an invalid value rather than a missing one.
func textField(r gjson.Result) string {
	switch r.Type {
	case gjson.String:
		return r.Str
	case gjson.Null:
		return ""
	default:
		return r.Raw
	}
}

func decodeSnapshot(market gjson.Result) engine.MarketSnapshot {
	var snap engine.MarketSnapshot
	_ = snap.Price.UnmarshalJSON([]byte(market.Get("price").Raw))
	_ = snap.Change24h.UnmarshalJSON([]byte(market.Get("change24h").Raw))
	_ = snap.FearGreedIndex.UnmarshalJSON([]byte(market.Get("fearGreedIndex").Raw))

	if raw := market.Get("sentiment"); raw.IsObject() {
		var sentiment engine.Sentiment
		if err := json.Unmarshal([]byte(raw.Raw), &sentiment); err == nil {
			snap.Sentiment = &sentiment
		}
	}
	return snap
}

func (s *Server) handleDecisionLog(c *gin.Context) {
	limit := storage.DefaultReadLimit
	if raw, ok := c.GetQuery("limit"); ok {
		n, err := strconv.Atoi(raw)
		if err != nil || n < storage.MinReadLimit || n > storage.MaxReadLimit {
			abortWithError(c, http.StatusBadRequest, CodeInvalidLimit,
				"limit must be an integer between "+strconv.Itoa(storage.MinReadLimit)+" and "+strconv.Itoa(storage.MaxReadLimit),
				raw)
			return
		}
		limit = n
	}

	entries, err := s.svc.ListDecisions(c.Request.Context(), limit)
	if err != nil {
		s.logger.Error().Err(err).Str("request_id", RequestIDFrom(c)).Msg("read decision log failed")
		abortWithError(c, http.StatusServiceUnavailable, CodeLogUnavailable, "decision log unavailable", "")
		return
	}
	if entries == nil {
		entries = []storage.Entry{}
	}

	c.JSON(http.StatusOK, DecisionLogResponse{Count: len(entries), Items: entries, RequestID: RequestIDFrom(c)})
}
