package domain

import (
	"encoding/json"
	"net/url"
	"slices"
	"strings"

	perr "rangeload/internal/platform/errors"

	"github.com/aws/aws-lambda-go/events"
)

// Event is the trigger payload: an S3 notification, optionally carrying
// the continuation fields of an earlier invocation. Unknown top level
// fields survive a ParseEvent / MarshalJSON round trip
type Event struct {
	Records    []events.S3EventRecord
	Offset     int64
	RowCount   int64
	Fieldnames []string
	JobID      string

	raw map[string]json.RawMessage
}

const (
	keyRecords    = "Records"
	keyOffset     = "offset"
	keyRowCount   = "row_count"
	keyFieldnames = "fieldnames"
	keyJobID      = "job_id"
)

// ParseEvent decodes a trigger payload
func ParseEvent(b []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(b, &e); err != nil {
		if _, ok := perr.As(err); ok {
			return Event{}, err
		}
		return Event{}, perr.Wrap(err, perr.ErrorCodeJSON, "invalid event")
	}
	return e, nil
}

// UnmarshalJSON keeps every top level field and decodes the known ones
func (e *Event) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return perr.Wrap(err, perr.ErrorCodeJSON, "invalid event")
	}
	out := Event{raw: raw}
	fields := []struct {
		key string
		dst any
	}{
		{keyRecords, &out.Records},
		{keyOffset, &out.Offset},
		{keyRowCount, &out.RowCount},
		{keyFieldnames, &out.Fieldnames},
		{keyJobID, &out.JobID},
	}
	for _, f := range fields {
		v, ok := raw[f.key]
		if !ok || string(v) == "null" {
			continue
		}
		if err := json.Unmarshal(v, f.dst); err != nil {
			return perr.WithField(perr.Wrapf(err, perr.ErrorCodeJSON, "invalid event field %s", f.key), f.key)
		}
	}
	*e = out
	return nil
}

// MarshalJSON writes the preserved fields overlaid with the current values
func (e Event) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(e.raw)+5)
	for k, v := range e.raw {
		out[k] = v
	}
	if _, kept := e.raw[keyRecords]; !kept {
		out[keyRecords] = e.Records
	}
	out[keyOffset] = e.Offset
	out[keyRowCount] = e.RowCount
	if e.Fieldnames != nil {
		out[keyFieldnames] = e.Fieldnames
	}
	if e.JobID != "" {
		out[keyJobID] = e.JobID
	}
	return json.Marshal(out)
}

// Target resolves the source object: the latest record by event time wins
func (e Event) Target() (ObjectRef, error) {
	if len(e.Records) == 0 {
		return ObjectRef{}, perr.WithField(perr.New(perr.ErrorCodeValidation, "event has no records"), keyRecords)
	}
	// ties go to the later record in the payload
	latest := e.Records[0]
	for _, r := range e.Records[1:] {
		if !r.EventTime.Before(latest.EventTime) {
			latest = r
		}
	}
	key := latest.S3.Object.URLDecodedKey
	if key == "" {
		key = latest.S3.Object.Key
	}
	return ObjectRef{Bucket: latest.S3.Bucket.Name, Key: key}, nil
}

// Resume reconstructs the resume state the event carries
func (e Event) Resume() (ResumeState, error) {
	ref, err := e.Target()
	if err != nil {
		return ResumeState{}, err
	}
	return ResumeState{Object: ref, Offset: e.Offset, RowCount: e.RowCount, Fieldnames: e.Fieldnames}, nil
}

// Continue returns a copy of e carrying st, ready to be dispatched
func (e Event) Continue(st ResumeState) Event {
	next := e
	next.Offset = st.Offset
	next.RowCount = st.RowCount
	next.Fieldnames = slices.Clone(st.Fieldnames)
	return next
}

// NewObjectEvent builds a trigger for one object, as S3 would
func NewObjectEvent(ref ObjectRef) Event {
	var r events.S3EventRecord
	r.EventSource = "aws:s3"
	r.EventName = "ObjectCreated:Put"
	r.S3.Bucket.Name = ref.Bucket
	// notification keys are form encoded
	r.S3.Object.Key = strings.ReplaceAll(url.QueryEscape(ref.Key), "%2F", "/")
	r.S3.Object.URLDecodedKey = ref.Key
	return Event{Records: []events.S3EventRecord{r}}
}
