// Package link turns raw notification payloads from the wearable into
// readings and hands them to the delivery queue.
package link

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"drink-detector/internal/models"
)

// FieldCount is the number of ';'-separated fields in a payload:
// timestamp;ax;ay;az;gx;gy;gz;pulse
const FieldCount = 8

var fieldNames = [FieldCount]string{"timestamp", "ax", "ay", "az", "gx", "gy", "gz", "pulse"}

// Parse decodes one payload. The device clock is not trusted, so the
// leading timestamp field is discarded and receivedAt is used instead.
func Parse(payload []byte, receivedAt time.Time) (models.Reading, error) {
	text := string(bytes.TrimSpace(payload))
	parts := strings.Split(text, ";")
	if len(parts) != FieldCount {
		return models.Reading{}, &models.ValidationError{
			Reason: fmt.Sprintf("expected %d fields, got %d", FieldCount, len(parts)),
		}
	}

	var values [FieldCount]float64
	for i := 1; i < FieldCount; i++ {
		v, err := strconv.ParseFloat(strings.TrimSpace(parts[i]), 64)
		if err != nil {
			return models.Reading{}, &models.ValidationError{
				Field:  fieldNames[i],
				Reason: fmt.Sprintf("not a number: %q", parts[i]),
			}
		}
		values[i] = v
	}

	return models.Reading{
		Timestamp: receivedAt.Truncate(time.Second),
		AX:        values[1],
		AY:        values[2],
		AZ:        values[3],
		GX:        values[4],
		GY:        values[5],
		GZ:        values[6],
		Pulse:     values[7],
	}, nil
}
