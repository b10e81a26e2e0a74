package generate

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"

	"bookproxy/internal/errs"
)

const (
	DefaultMaxTokens = 1024
	MaxPromptChars   = 100000
)

var validate *validator.Validate

func init() {
	validate = validator.New()

	if err := validate.RegisterValidation("content", validateContent); err != nil {
		panic("registering content validation: " + err.Error())
	}
}

// validateContent rejects message content that is null, an empty string or an empty block list.
func validateContent(fl validator.FieldLevel) bool {
	raw, ok := fl.Field().Interface().(json.RawMessage)
	if !ok {
		return false
	}

	switch string(bytes.TrimSpace(raw)) {
	case "", "null", `""`, "[]":
		return false
	default:
		return true
	}
}

type Message struct {
	Role    string          `json:"role" validate:"required,oneof=user assistant"`
	Content json.RawMessage `json:"content" validate:"content"`
}

// Request is either the legacy single prompt or a full message list.
type Request struct {
	Prompt      string          `json:"prompt" validate:"required_without=Messages,max=100000"`
	Messages    []Message       `json:"messages" validate:"required_without=Prompt,dive"`
	System      json.RawMessage `json:"system,omitempty"`
	Model       string          `json:"model" validate:"max=200"`
	MaxTokens   int             `json:"max_tokens" validate:"gte=0,lte=8192"`
	Temperature *float64        `json:"temperature,omitempty" validate:"omitempty,gte=0,lte=1"`
}

// DecodeRequest reads and validates a generation request body.
func DecodeRequest(r io.Reader) (*Request, error) {
	var req Request

	dec := json.NewDecoder(r)
	if err := dec.Decode(&req); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return nil, errs.Validation("request body is too large")
		}

		return nil, errs.Validation("request body must be a JSON object")
	}

	if err := validateStruct(&req); err != nil {
		return nil, err
	}

	if strings.TrimSpace(req.Prompt) == "" && len(req.Messages) == 0 {
		return nil, errs.Validation("prompt or messages is required")
	}

	return &req, nil
}

func validateStruct(req *Request) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}

	var ves validator.ValidationErrors
	if !errors.As(err, &ves) {
		return errs.Validation("invalid request")
	}

	messages := make([]string, 0, len(ves))
	for _, fe := range ves {
		if m := fieldMessage(fe); !slices.Contains(messages, m) {
			messages = append(messages, m)
		}
	}

	return errs.Validation("%s", strings.Join(messages, "; "))
}

func fieldMessage(fe validator.FieldError) string {
	field := jsonName(fe.Namespace())

	switch fe.Tag() {
	case "required", "required_without":
		if fe.Field() == "Prompt" || fe.Field() == "Messages" {
			return "prompt or messages is required"
		}
		return field + " is required"
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	case "max":
		if fe.Field() == "Prompt" {
			return fmt.Sprintf("prompt must be at most %d characters", MaxPromptChars)
		}
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "gte", "lte":
		if fe.Field() == "MaxTokens" {
			return "max_tokens must be between 1 and 8192"
		}
		return field + " is out of range"
	case "content":
		return field + " must not be empty"
	default:
		return field + " is invalid"
	}
}

var jsonNames = strings.NewReplacer(
	"Request.", "",
	"Messages", "messages",
	"Role", "role",
	"Content", "content",
	"MaxTokens", "max_tokens",
	"Model", "model",
	"Temperature", "temperature",
	"Prompt", "prompt",
)

func jsonName(namespace string) string {
	return jsonNames.Replace(namespace)
}
