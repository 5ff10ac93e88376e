package dsp

import (
	"fmt"

	"drink-detector/internal/config"
	"drink-detector/internal/models"
)

// Motion channel indexes into Conditioned.Channels
const (
	AX = iota
	AY
	AZ
	GX
	GY
	GZ
	NumChannels
)

// ChannelNames lists the motion channels in index order
var ChannelNames = [NumChannels]string{"ax", "ay", "az", "gx", "gy", "gz"}

// Conditioned pairs a raw sample with its filtered motion channels
type Conditioned struct {
	Sample   models.Sample
	Channels [NumChannels]float64
}

// Conditioner low-pass filters every motion channel of a session
type Conditioner struct {
	b, a []float64
}

// NewConditioner designs the filter described by the pipeline config
func NewConditioner(cfg config.PipelineConfig) (*Conditioner, error) {
	b, a, err := Butterworth(cfg.FilterOrder, cfg.Cutoff, cfg.SamplingRate)
	if err != nil {
		return nil, fmt.Errorf("failed to design low-pass filter: %w", err)
	}
	return &Conditioner{b: b, a: a}, nil
}

// Coefficients returns copies of the filter transfer function
func (c *Conditioner) Coefficients() (b, a []float64) {
	return append([]float64(nil), c.b...), append([]float64(nil), c.a...)
}

// Condition filters the whole ordered session at once; the backward pass
// needs the complete signal. Timestamp, pulse and label are left untouched.
func (c *Conditioner) Condition(samples []models.Sample) ([]Conditioned, error) {
	out := make([]Conditioned, len(samples))
	for i, s := range samples {
		out[i].Sample = s
	}
	if len(samples) == 0 {
		return out, nil
	}

	raw := make([]float64, len(samples))
	for ch := 0; ch < NumChannels; ch++ {
		for i, s := range samples {
			raw[i] = channel(s, ch)
		}
		filtered, err := FiltFilt(c.b, c.a, raw)
		if err != nil {
			return nil, fmt.Errorf("failed to filter %s: %w", ChannelNames[ch], err)
		}
		for i, v := range filtered {
			out[i].Channels[ch] = v
		}
	}

	return out, nil
}

func channel(s models.Sample, ch int) float64 {
	switch ch {
	case AX:
		return s.AX
	case AY:
		return s.AY
	case AZ:
		return s.AZ
	case GX:
		return s.GX
	case GY:
		return s.GY
	default:
		return s.GZ
	}
}
