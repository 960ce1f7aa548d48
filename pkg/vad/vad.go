// Package vad implements per-frame voice activity detection.
//
// Classification combines RMS energy against an adaptive noise floor
// with a zero-crossing-rate band check. The detector keeps two running
// counters: sustained speech duration (used to gate barge-in while the
// agent is speaking) and the current silence run (used to endpoint an
// utterance for batch transcription vendors). It never mutates session
// state itself; callers read the counters and decide.
package vad

import (
	"math"
	"time"

	"github.com/vocaliq/go-vocaliq/pkg/audio"
)

// Config tunes the detector. Zero values fall back to defaults.
type Config struct {
	// EnergyThreshold is the initial RMS threshold, normalized to
	// int16 full scale.
	EnergyThreshold float64

	// ZCRMin and ZCRMax bound the zero-crossing-rate band considered
	// speech-like. Hiss sits above the band, hum below it.
	ZCRMin float64
	ZCRMax float64

	// AdaptationRate is the exponential smoothing factor applied to
	// the noise floor during silence. Zero disables adaptation.
	AdaptationRate float64
}

// DefaultConfig returns the thresholds used in production.
func DefaultConfig() Config {
	return Config{
		EnergyThreshold: 0.01,
		ZCRMin:          0.02,
		ZCRMax:          0.5,
		AdaptationRate:  0.1,
	}
}

// Detector classifies frames as speech or silence. Not safe for
// concurrent use; each consumer of an audio stream owns one.
type Detector struct {
	cfg        Config
	threshold  float64
	noiseFloor float64

	speechRun  time.Duration
	silenceRun time.Duration
}

// New creates a detector with the given configuration.
func New(cfg Config) *Detector {
	def := DefaultConfig()
	if cfg.EnergyThreshold <= 0 {
		cfg.EnergyThreshold = def.EnergyThreshold
	}
	if cfg.ZCRMax <= 0 {
		cfg.ZCRMin = def.ZCRMin
		cfg.ZCRMax = def.ZCRMax
	}
	return &Detector{cfg: cfg, threshold: cfg.EnergyThreshold}
}

// Process classifies one frame and updates the running counters.
// Returns true if the frame contains speech.
func (d *Detector) Process(f audio.Frame) bool {
	speech := d.classify(f.Samples)
	dur := f.Duration()

	if speech {
		d.speechRun += dur
		d.silenceRun = 0
	} else {
		d.silenceRun += dur
		d.speechRun = 0
		d.adapt(f.Samples)
	}
	return speech
}

// SpeechRun returns the duration of uninterrupted speech ending at
// the last processed frame. Resets to zero on any silent frame.
func (d *Detector) SpeechRun() time.Duration {
	return d.speechRun
}

// SilenceRun returns the duration of uninterrupted silence ending at
// the last processed frame.
func (d *Detector) SilenceRun() time.Duration {
	return d.silenceRun
}

// Reset clears both counters, e.g. when a new utterance begins.
func (d *Detector) Reset() {
	d.speechRun = 0
	d.silenceRun = 0
}

func (d *Detector) classify(samples []int16) bool {
	if len(samples) == 0 {
		return false
	}
	if rms(samples) > d.threshold {
		return true
	}
	// Low-energy but speech-like ZCR still counts: quiet fricatives
	// carry most of their evidence in the crossing rate.
	zcr := zeroCrossingRate(samples)
	return zcr > d.cfg.ZCRMin && zcr < d.cfg.ZCRMax && rms(samples) > d.threshold/2
}

// adapt raises or lowers the energy threshold toward twice the
// ambient noise floor, measured only during silence.
func (d *Detector) adapt(samples []int16) {
	if d.cfg.AdaptationRate <= 0 || len(samples) == 0 {
		return
	}
	level := rms(samples)
	d.noiseFloor = d.cfg.AdaptationRate*level + (1-d.cfg.AdaptationRate)*d.noiseFloor
	d.threshold = math.Max(d.cfg.EnergyThreshold, d.noiseFloor*2)
}

func rms(samples []int16) float64 {
	var sum float64
	for _, s := range samples {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum/float64(len(samples))) / 32767.0
}

func zeroCrossingRate(samples []int16) float64 {
	if len(samples) < 2 {
		return 0
	}
	crossings := 0
	for i := 1; i < len(samples); i++ {
		if (samples[i-1] >= 0) != (samples[i] >= 0) {
			crossings++
		}
	}
	return float64(crossings) / float64(len(samples))
}
