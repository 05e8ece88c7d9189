// -----
// Tool Dispatcher - strict argument decoding, credit accounting, and the
// response envelope shared by every catalog tool
// -----

package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/venator/internal/common"
	"github.com/ternarybob/venator/internal/models"
	"github.com/ternarybob/venator/internal/services/metrics"
	"github.com/ternarybob/venator/internal/services/workerpool"
)

// Handler executes one tool against decoded arguments.
type Handler func(ctx context.Context, args json.RawMessage) (interface{}, error)

// ErrorBody is the sanitized error payload in a failed envelope.
type ErrorBody struct {
	Kind          models.ErrorKind `json:"kind"`
	Message       string           `json:"message"`
	Reason        string           `json:"reason,omitempty"`
	StatusCode    int              `json:"status_code,omitempty"`
	Attempts      int              `json:"attempts,omitempty"`
	CorrelationID string           `json:"correlation_id,omitempty"`
}

// Envelope is the uniform tool response payload.
type Envelope struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     *ErrorBody  `json:"error,omitempty"`
	Truncated bool        `json:"truncated,omitempty"`
	Credits   int         `json:"credits_remaining"`
}

// truncatable lets results signal partial completion to the envelope.
type truncatable interface {
	WasTruncated() bool
}

// Dispatcher routes tool invocations: charge credits, decode strictly,
// run on the worker pool, wrap the outcome.
type Dispatcher struct {
	credits  *Ledger
	pool     *workerpool.Pool
	validate *validator.Validate
	metrics  *metrics.Metrics
	logger   arbor.ILogger
	handlers map[string]Handler
}

// NewDispatcher creates the dispatcher.
func NewDispatcher(credits *Ledger, pool *workerpool.Pool, m *metrics.Metrics, logger arbor.ILogger) *Dispatcher {
	validate := validator.New()
	// Report violations by their JSON parameter name, not the Go field.
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return field.Name
		}
		return name
	})
	return &Dispatcher{
		credits:  credits,
		pool:     pool,
		validate: validate,
		metrics:  m,
		logger:   logger,
		handlers: make(map[string]Handler),
	}
}

// Register binds a tool name to its handler.
func (d *Dispatcher) Register(name string, h Handler) {
	d.handlers[name] = h
}

// Credits exposes the ledger for status reporting.
func (d *Dispatcher) Credits() *Ledger {
	return d.credits
}

// Dispatch runs one tool invocation end to end and always returns an
// envelope; transport-level errors never escape to the MCP layer.
func (d *Dispatcher) Dispatch(ctx context.Context, tool string, args json.RawMessage) *Envelope {
	start := time.Now()
	defer func() {
		d.metrics.RecordTool(tool, time.Since(start).Seconds())
	}()

	handler, ok := d.handlers[tool]
	if !ok {
		return d.failure(tool, models.NewError(models.KindInvalidArgument, "unknown tool %q", tool), 0)
	}

	cost, err := d.credits.Charge(tool)
	if err != nil {
		return d.failure(tool, err, 0)
	}

	result, err := d.pool.Run(ctx, func(taskCtx context.Context) (interface{}, error) {
		return handler(taskCtx, args)
	})
	if err != nil {
		if refundable(err) {
			d.credits.Refund(cost)
		}
		return d.failure(tool, err, cost)
	}

	env := &Envelope{Success: true, Data: result, Credits: d.credits.Balance()}
	if t, ok := result.(truncatable); ok {
		env.Truncated = t.WasTruncated()
	}
	return env
}

// refundable reports whether the failure was on our side rather than a
// policy rejection or upstream refusal.
func refundable(err error) bool {
	switch models.KindOf(err) {
	case models.KindInternal, models.KindWorkerCrashed, models.KindQueueOverflow, models.KindCorruptArtifact:
		return true
	default:
		return false
	}
}

func (d *Dispatcher) failure(tool string, err error, cost int) *Envelope {
	e := models.AsError(err)
	body := &ErrorBody{
		Kind:       e.Kind,
		Message:    e.Message,
		Reason:     e.Reason,
		StatusCode: e.StatusCode,
		Attempts:   e.Attempts,
	}
	// Internal failures are sanitized: correlation id out, details to logs.
	if e.Kind == models.KindInternal || e.Kind == models.KindWorkerCrashed {
		body.CorrelationID = common.NewCorrelationID()
		body.Message = "internal error"
		d.logger.Error().
			Str("tool", tool).
			Str("correlation_id", body.CorrelationID).
			Err(err).
			Msg("Tool failed internally")
	} else {
		d.logger.Warn().
			Str("tool", tool).
			Str("kind", string(e.Kind)).
			Str("message", e.Message).
			Msg("Tool rejected")
	}

	d.metrics.RecordError(string(e.Kind))
	return &Envelope{Success: false, Error: body, Credits: d.credits.Balance()}
}

// DecodeArgs strictly decodes raw JSON into the schema struct: unknown
// fields are UnknownField errors, range violations are OutOfRange.
func (d *Dispatcher) DecodeArgs(raw json.RawMessage, into interface{}) error {
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(into); err != nil {
		if strings.Contains(err.Error(), "unknown field") {
			return models.WrapError(models.KindUnknownField, err, "unrecognized parameter")
		}
		return models.WrapError(models.KindInvalidArgument, err, "malformed arguments")
	}

	if err := d.validate.Struct(into); err != nil {
		var verr validator.ValidationErrors
		if ok := asValidationErrors(err, &verr); ok && len(verr) > 0 {
			f := verr[0]
			switch f.Tag() {
			case "min", "max":
				return models.NewError(models.KindOutOfRange, "parameter %s out of range", jsonName(f))
			case "required":
				return models.NewError(models.KindInvalidArgument, "parameter %s is required", jsonName(f))
			default:
				return models.NewError(models.KindInvalidArgument, "parameter %s is invalid", jsonName(f))
			}
		}
		return models.WrapError(models.KindInvalidArgument, err, "invalid arguments")
	}
	return nil
}

func asValidationErrors(err error, target *validator.ValidationErrors) bool {
	verr, ok := err.(validator.ValidationErrors)
	if ok {
		*target = verr
	}
	return ok
}

func jsonName(f validator.FieldError) string {
	return f.Field()
}
