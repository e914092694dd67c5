package outbox

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

const (
	cloudEventsVersion = "1.0"
	typeSuffix         = ".v1"
	ContentType        = "application/cloudevents+json"
)

var ErrMalformedEvent = errors.New("outbox: malformed cloud event")

type cloudEvent struct {
	SpecVersion     string          `json:"specversion"`
	ID              string          `json:"id"`
	Type            string          `json:"type"`
	Source          string          `json:"source"`
	Subject         string          `json:"subject,omitempty"`
	Time            time.Time       `json:"time"`
	DataContentType string          `json:"datacontenttype"`
	Data            json.RawMessage `json:"data"`
	TraceParent     string          `json:"traceparent,omitempty"`
}

// EncodeCloudEvent wraps a record in a structured-mode CloudEvents envelope. The record
// id is kept as the event id so consumers can deduplicate redeliveries.
func EncodeCloudEvent(rec EventRecord, source string) ([]byte, error) {
	if !json.Valid(rec.Payload) {
		return nil, ErrMalformedEvent
	}
	evt := cloudEvent{
		SpecVersion:     cloudEventsVersion,
		ID:              rec.ID,
		Type:            rec.Name + typeSuffix,
		Source:          source,
		Subject:         rec.Aggregate,
		Time:            rec.OccurredAt.UTC(),
		DataContentType: "application/json",
		Data:            rec.Payload,
		TraceParent:     rec.Headers["traceparent"],
	}
	return json.Marshal(evt)
}

// DecodeCloudEvent is the inverse of EncodeCloudEvent.
func DecodeCloudEvent(raw []byte) (EventRecord, error) {
	var evt cloudEvent
	if err := json.Unmarshal(raw, &evt); err != nil {
		return EventRecord{}, errors.Join(ErrMalformedEvent, err)
	}
	if evt.ID == "" || evt.Type == "" {
		return EventRecord{}, ErrMalformedEvent
	}
	rec := EventRecord{
		ID:         evt.ID,
		Name:       strings.TrimSuffix(evt.Type, typeSuffix),
		Payload:    []byte(evt.Data),
		OccurredAt: evt.Time,
		Aggregate:  evt.Subject,
		Headers:    map[string]string{},
	}
	if evt.TraceParent != "" {
		rec.Headers["traceparent"] = evt.TraceParent
	}
	return rec, nil
}
