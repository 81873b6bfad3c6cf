package vitals

import (
	"errors"
	"log/slog"

	"github.com/soocke/pulse-cam-go/config"
)

// Pipeline turns a full signal window into one reading: CHROM pulse then
// spectral BPM, with SpO2 computed independently from the raw channels.
type Pipeline struct {
	pulse    *PulseExtractor
	analyzer *FrequencyAnalyzer
	spo2     SpO2Estimator
	fps      float64
	logger   *slog.Logger
}

// NewPipeline builds the estimator chain described by cfg.
func NewPipeline(cfg *config.Config, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		pulse:    PulseExtractorFromConfig(cfg),
		analyzer: NewFrequencyAnalyzer(cfg.MinBPM, cfg.MaxBPM),
		fps:      float64(cfg.TargetFPS),
		logger:   loggerOr(logger),
	}
}

// Estimate implements Estimator. A window that is not ready yields a
// reading with zero BPM.
func (p *Pipeline) Estimate(window []ColorSample) VitalsReading {
	var at int64
	if len(window) > 0 {
		at = window[len(window)-1].TimestampMillis
	}
	fs := SampleRate(window, p.fps)
	pulse, err := p.pulse.Extract(window, fs)
	if err != nil {
		if !errors.Is(err, ErrWindowNotFull) {
			p.logger.Debug("pulse extraction", "error", err)
		}
		return VitalsReading{AtMillis: at}
	}
	return VitalsReading{
		BPM:      p.analyzer.EstimateBPM(pulse, fs),
		SpO2:     p.spo2.Estimate(window),
		AtMillis: at,
	}
}
