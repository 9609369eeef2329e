// Package audit writes append-only JSON audit events for security-relevant
// actions. Entries share the obs log stream but carry type "audit" so they
// can be filtered out downstream.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"tallybooks.org/internal/auth"
	"tallybooks.org/internal/obs"
)

type requestIDKey struct{}

// WithRequestID attaches the request identifier to the context so audit
// entries can be correlated with access logs.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// event is the wire form of one audit line.
type event struct {
	TS        string         `json:"ts"`
	Type      string         `json:"type"`
	Event     string         `json:"event"`
	RequestID string         `json:"request_id,omitempty"`
	ActorID   string         `json:"actor_id,omitempty"`
	ActorRole string         `json:"actor_role,omitempty"`
	Fields    map[string]any `json:"fields"`
}

// LogEvent writes one audit entry enriched with the request id and acting
// identity found on the context.
func LogEvent(ctx context.Context, name string, fields map[string]any) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("event name is required")
	}
	evt := event{
		TS:     time.Now().UTC().Format(time.RFC3339Nano),
		Type:   "audit",
		Event:  name,
		Fields: map[string]any{},
	}
	if ctx != nil {
		if rid, ok := ctx.Value(requestIDKey{}).(string); ok {
			evt.RequestID = rid
		}
		if ident, ok := auth.IdentityFromContext(ctx); ok {
			evt.ActorID = ident.ID
			evt.ActorRole = ident.Role
		}
	}
	for k, v := range fields {
		evt.Fields[k] = v
	}

	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	obs.Logger().Println(string(data))
	return nil
}
