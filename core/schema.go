package core

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jdelaire/dirtylaunderer/internal/store"
)

// MaxPayloadBytes bounds request bodies on the function endpoints.
const MaxPayloadBytes = 64 << 10

// Config function actions.
const (
	ActionGetGroupConfig    = "get_group_config"
	ActionUpdateGroupConfig = "update_group_config"
	ActionGetProxyConfig    = "get_proxy_config"
	ActionUpdateProxyConfig = "update_proxy_config"
	ActionGetUserConsent    = "get_user_consent"
	ActionSetUserConsent    = "set_user_consent"
)

// RequestError is a client error whose message is safe to return.
type RequestError struct {
	Msg string
}

func (e *RequestError) Error() string { return e.Msg }

func badRequest(format string, args ...any) error {
	return &RequestError{Msg: fmt.Sprintf(format, args...)}
}

// FlexID is an identifier sent either as a JSON string or number.
type FlexID string

func (f *FlexID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*f = FlexID(n.String())
	return nil
}

// Missing reports whether the identifier is absent or zero.
func (f FlexID) Missing() bool {
	return f == "" || f == "0"
}

// Int64 returns the identifier as an integer when it is numeric.
func (f FlexID) Int64() (int64, bool) {
	n, err := strconv.ParseInt(string(f), 10, 64)
	return n, err == nil
}

// ConfigRequest is the JSON envelope of the config function.
type ConfigRequest struct {
	Action     string          `json:"action"`
	ChatID     FlexID          `json:"chat_id"`
	UserID     FlexID          `json:"user_id"`
	Config     json.RawMessage `json:"config"`
	HasConsent *bool           `json:"has_consent"`
}

// Consent returns the requested consent state, defaulting to true.
func (r *ConfigRequest) Consent() bool {
	return r.HasConsent == nil || *r.HasConsent
}

// GroupConfig decodes the config field of update_group_config.
func (r *ConfigRequest) GroupConfig() (store.GroupConfig, error) {
	var cfg store.GroupConfig
	if err := json.Unmarshal(r.Config, &cfg); err != nil {
		return store.GroupConfig{}, badRequest("Invalid config: %v", err)
	}
	return cfg, nil
}

// ProxyConfig decodes the config field of update_proxy_config.
func (r *ConfigRequest) ProxyConfig() (map[string][]string, error) {
	var cfg map[string][]string
	if err := json.Unmarshal(r.Config, &cfg); err != nil {
		return nil, badRequest("Invalid config: %v", err)
	}
	return cfg, nil
}

// ValidateConfigRequest decodes a config function request and checks that
// the fields its action needs are present.
func ValidateConfigRequest(data []byte) (*ConfigRequest, error) {
	if len(data) > MaxPayloadBytes {
		return nil, badRequest("Payload exceeds %d byte limit", MaxPayloadBytes)
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, badRequest("No JSON data provided")
	}

	var req ConfigRequest
	if err := json.Unmarshal(trimmed, &req); err != nil {
		var syntaxErr *json.SyntaxError
		if errors.As(err, &syntaxErr) {
			return nil, badRequest("No JSON data provided")
		}
		return nil, badRequest("Invalid request: %v", err)
	}

	switch req.Action {
	case "":
		return nil, badRequest("No action specified")
	case ActionGetGroupConfig:
		if req.ChatID.Missing() {
			return nil, badRequest("No chat_id provided")
		}
	case ActionUpdateGroupConfig:
		if req.ChatID.Missing() || emptyConfig(req.Config) {
			return nil, badRequest("Missing chat_id or config")
		}
	case ActionGetProxyConfig:
	case ActionUpdateProxyConfig:
		if emptyConfig(req.Config) {
			return nil, badRequest("No config provided")
		}
	case ActionGetUserConsent, ActionSetUserConsent:
		if req.UserID.Missing() {
			return nil, badRequest("No user_id provided")
		}
	default:
		return nil, badRequest("Unknown action: %s", req.Action)
	}

	return &req, nil
}

func emptyConfig(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	return s == "" || s == "null" || s == "{}"
}
