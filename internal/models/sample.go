package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TimestampLayout is the text layout samples are stored and exchanged with
const TimestampLayout = "2006-01-02 15:04:05"

// Declared sensor ranges, inclusive on both ends
const (
	MotionMin = -32768
	MotionMax = 32767
	PulseMin  = 0
	PulseMax  = 300
)

// Sample is one persisted sensor observation. Only Label ever changes after insert.
type Sample struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	AX        float64   `json:"ax"`
	AY        float64   `json:"ay"`
	AZ        float64   `json:"az"`
	GX        float64   `json:"gx"`
	GY        float64   `json:"gy"`
	GZ        float64   `json:"gz"`
	Pulse     float64   `json:"pulse"`
	Label     *int      `json:"label"` // nil until reviewed
}

// MarshalJSON writes the timestamp in the storage layout
func (s Sample) MarshalJSON() ([]byte, error) {
	type alias Sample
	return json.Marshal(struct {
		alias
		Timestamp string `json:"timestamp"`
	}{
		alias:     alias(s),
		Timestamp: FormatTimestamp(s.Timestamp),
	})
}

// Labeled reports whether the sample carries a 0/1 label
func (s Sample) Labeled() bool {
	return s.Label != nil && (*s.Label == 0 || *s.Label == 1)
}

// Reading is a parsed sample that has not been persisted yet
type Reading struct {
	Timestamp time.Time
	AX, AY, AZ float64
	GX, GY, GZ float64
	Pulse      float64
}

// Record converts the reading into the ingestion wire schema
func (r Reading) Record() IngestRecord {
	ts := FormatTimestamp(r.Timestamp)
	num := func(v float64) *Number { n := Number(v); return &n }
	return IngestRecord{
		Timestamp: &ts,
		AX:        num(r.AX),
		AY:        num(r.AY),
		AZ:        num(r.AZ),
		GX:        num(r.GX),
		GY:        num(r.GY),
		GZ:        num(r.GZ),
		Pulse:     num(r.Pulse),
	}
}

// Number is a float that also accepts numeric strings on decode
type Number float64

// UnmarshalJSON accepts 12, 12.5 and "12.5"
func (n *Number) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if unq, err := strconv.Unquote(raw); err == nil {
		raw = strings.TrimSpace(unq)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("not a number: %s", string(data))
	}
	*n = Number(v)
	return nil
}

// IngestRecord is the ingestion request schema. Pointer fields distinguish
// "missing" from zero.
type IngestRecord struct {
	Timestamp *string `json:"timestamp" validate:"required"`
	AX        *Number `json:"ax" validate:"required,gte=-32768,lte=32767"`
	AY        *Number `json:"ay" validate:"required,gte=-32768,lte=32767"`
	AZ        *Number `json:"az" validate:"required,gte=-32768,lte=32767"`
	GX        *Number `json:"gx" validate:"required,gte=-32768,lte=32767"`
	GY        *Number `json:"gy" validate:"required,gte=-32768,lte=32767"`
	GZ        *Number `json:"gz" validate:"required,gte=-32768,lte=32767"`
	Pulse     *Number `json:"pulse" validate:"required,gte=0,lte=300"`
}

// LabelRequest labels a single sample
type LabelRequest struct {
	ID    *int64 `json:"id" binding:"required"`
	Label *int   `json:"label" binding:"required"`
}

// BatchLabelRequest labels a set of samples
type BatchLabelRequest struct {
	IDs   []int64 `json:"ids"`
	Label *int    `json:"label" binding:"required"`
}

// RangeLabelRequest labels every sample between Start and End inclusive
type RangeLabelRequest struct {
	Start string `json:"start" binding:"required"`
	End   string `json:"end" binding:"required"`
	Label *int   `json:"label" binding:"required"`
}

// LabelStats summarizes labeling progress
type LabelStats struct {
	Total     int `json:"total" db:"total"`
	Unlabeled int `json:"unlabeled" db:"unlabeled"`
	Positive  int `json:"positive" db:"positive"`
	Negative  int `json:"negative" db:"negative"`
}

// FormatTimestamp renders t in TimestampLayout
func FormatTimestamp(t time.Time) string {
	return t.Format(TimestampLayout)
}

// ParseTimestamp accepts TimestampLayout and RFC 3339, truncated to the second
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	t, err := time.ParseInLocation(TimestampLayout, s, time.Local)
	if err != nil {
		t, err = time.Parse(time.RFC3339, s)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
		}
		t = t.In(time.Local)
	}
	return t.Truncate(time.Second), nil
}
