package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"ambubot/internal/logging"
	"ambubot/internal/usecase"
)

const (
	correlationHeader = "X-Correlation-Id"
	maxBodyBytes      = 64 << 10
)

type QueryUseCase interface {
	Query(ctx context.Context, in usecase.QueryInput) (usecase.QueryOutput, error)
}

type LocationUseCase interface {
	Locate(ctx context.Context, in usecase.LocationInput) (usecase.LocationOutput, error)
}

type queryRequest struct {
	UserName string `json:"user_name"`
	Text     string `json:"text"`
	Bot      bool   `json:"bot"`
}

type locationRequest struct {
	Text string `json:"text"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
	Text   string `json:"text"`
}

// Handler routes API Gateway proxy events to the intake and location use
// cases.
type Handler struct {
	query    QueryUseCase
	location LocationUseCase
	logger   *slog.Logger
}

func NewHandler(q QueryUseCase, l LocationUseCase, logger *slog.Logger) (*Handler, error) {
	if q == nil {
		return nil, errors.New("handler: query use case must not be nil")
	}
	if l == nil {
		return nil, errors.New("handler: location use case must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{query: q, location: l, logger: logger}, nil
}

func (h *Handler) Handle(ctx context.Context, event events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	correlationID := headerValue(event.Headers, correlationHeader)
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	ctx = logging.WithCorrelationID(ctx, correlationID)

	path := strings.TrimRight(event.Path, "/")
	if event.HTTPMethod != http.MethodPost {
		return h.jsonResponse(correlationID, http.StatusMethodNotAllowed,
			errorResponse{Error: "METHOD_NOT_ALLOWED", Text: usecase.FallbackText}), nil
	}

	body, err := requestBody(event)
	if err != nil {
		return h.errorResponse(ctx, correlationID, &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: "invalid_body", Err: err}), nil
	}

	switch path {
	case "/query":
		var req queryRequest
		if err := decodeBody(body, &req); err != nil {
			return h.errorResponse(ctx, correlationID, &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: "invalid_json", Err: err}), nil
		}
		out, err := h.query.Query(ctx, usecase.QueryInput{UserName: req.UserName, Text: req.Text, Bot: req.Bot})
		if err != nil {
			return h.errorResponse(ctx, correlationID, err), nil
		}
		return h.jsonResponse(correlationID, http.StatusOK, out), nil

	case "/location":
		var req locationRequest
		if err := decodeBody(body, &req); err != nil {
			return h.errorResponse(ctx, correlationID, &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: "invalid_json", Err: err}), nil
		}
		out, err := h.location.Locate(ctx, usecase.LocationInput{Text: req.Text})
		if err != nil {
			return h.errorResponse(ctx, correlationID, err), nil
		}
		return h.jsonResponse(correlationID, http.StatusOK, out), nil

	default:
		return h.jsonResponse(correlationID, http.StatusNotFound,
			errorResponse{Error: "NOT_FOUND", Text: usecase.FallbackText}), nil
	}
}

func (h *Handler) errorResponse(ctx context.Context, correlationID string, err error) events.APIGatewayProxyResponse {
	ue := usecase.AsError(err)
	status := ue.Code.HTTPStatus()
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(ctx, "request failed", "code", ue.Code, "reason", ue.Reason, "err", ue.Err)
	} else {
		h.logger.WarnContext(ctx, "request rejected", "code", ue.Code, "reason", ue.Reason, "err", ue.Err)
	}
	text := ue.Code.UserText()
	if ue.Reason == "invalid_json" || ue.Reason == "invalid_body" {
		text = usecase.FallbackText
	}
	return h.jsonResponse(correlationID, status, errorResponse{Error: string(ue.Code), Reason: ue.Reason, Text: text})
}

func (h *Handler) jsonResponse(correlationID string, status int, v any) events.APIGatewayProxyResponse {
	body, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		body = []byte(`{"error":"INTERNAL_ERROR","text":"` + usecase.FallbackText + `"}`)
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers: map[string]string{
			"Content-Type":    "application/json",
			correlationHeader: correlationID,
		},
		Body: string(body),
	}
}

func requestBody(event events.APIGatewayProxyRequest) ([]byte, error) {
	if !event.IsBase64Encoded {
		return []byte(event.Body), nil
	}
	return base64.StdEncoding.DecodeString(event.Body)
}

func decodeBody(body []byte, v any) error {
	if len(body) > maxBodyBytes {
		return errors.New("request body too large")
	}
	return json.Unmarshal(body, v)
}

// headerValue looks a header up case-insensitively; API Gateway passes them
// through as sent.
func headerValue(headers map[string]string, name string) string {
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
