package strategy

import "signal_bot/internal/modules/config"

func NewFromConfig(cfg *config.Config) (*Scorer, error) {
	w := cfg.Scoring.Weights
	return NewScorer(Config{
		Weights: NewWeights(
			Weight{DetectorMomentum, w.Momentum},
			Weight{DetectorVolume, w.Volume},
			Weight{DetectorPattern, w.Pattern},
			Weight{DetectorTrend, w.Trend},
			Weight{DetectorMicro, w.Micro},
		),
		MinScore: cfg.Scoring.MinScore,
		StopLoss: cfg.Trading.StopLoss,
	})
}
