package scoring

// Built-in engine domains. Each can be overridden by a YAML profile in
// the engine config directory.
const (
	EngineToxicity       = "toxicity"
	EnginePrivacy        = "privacy"
	EngineFairness       = "fairness"
	EngineExplainability = "explainability"
	EngineDataQuality    = "data_quality"
)

func defaultThresholds() []VerdictThreshold {
	return []VerdictThreshold{
		{Label: VerdictPass, MinScore: 80},
		{Label: VerdictWarn, MinScore: 60},
		{Label: VerdictFail, MinScore: 0},
	}
}

// DefaultConfigs returns the built-in scoring configurations keyed by
// engine type. Every returned config passes Validate.
func DefaultConfigs() map[string]EngineConfig {
	return map[string]EngineConfig{
		EngineToxicity: {
			EngineType:    EngineToxicity,
			SchemaVersion: "1.0.0",
			MetricWeights: []MetricWeight{
				{Key: "hate_speech", Weight: 0.3},
				{Key: "harassment", Weight: 0.25},
				{Key: "profanity", Weight: 0.2},
				{Key: "violence", Weight: 0.15},
				{Key: "self_harm", Weight: 0.1},
			},
			VerdictThresholds:   defaultThresholds(),
			ComplianceThreshold: 80,
		},
		EnginePrivacy: {
			EngineType:    EnginePrivacy,
			SchemaVersion: "1.0.0",
			MetricWeights: []MetricWeight{
				{Key: "pii_leakage", Weight: 0.35},
				{Key: "data_minimization", Weight: 0.25},
				{Key: "consent_compliance", Weight: 0.2},
				{Key: "retention_policy", Weight: 0.2},
			},
			VerdictThresholds:   defaultThresholds(),
			ComplianceThreshold: 80,
		},
		EngineFairness: {
			EngineType:    EngineFairness,
			SchemaVersion: "1.0.0",
			MetricWeights: []MetricWeight{
				{Key: "demographic_parity", Weight: 0.3},
				{Key: "equalized_odds", Weight: 0.3},
				{Key: "calibration", Weight: 0.2},
				{Key: "representation", Weight: 0.2},
			},
			VerdictThresholds:   defaultThresholds(),
			ComplianceThreshold: 80,
		},
		EngineExplainability: {
			EngineType:    EngineExplainability,
			SchemaVersion: "1.0.0",
			MetricWeights: []MetricWeight{
				{Key: "feature_attribution", Weight: 0.4},
				{Key: "decision_transparency", Weight: 0.35},
				{Key: "documentation_quality", Weight: 0.25},
			},
			VerdictThresholds:   defaultThresholds(),
			ComplianceThreshold: 80,
		},
		EngineDataQuality: {
			EngineType:    EngineDataQuality,
			SchemaVersion: "1.0.0",
			MetricWeights: []MetricWeight{
				{Key: "completeness", Weight: 0.3},
				{Key: "accuracy", Weight: 0.3},
				{Key: "consistency", Weight: 0.2},
				{Key: "timeliness", Weight: 0.2},
			},
			VerdictThresholds:   defaultThresholds(),
			ComplianceThreshold: 80,
		},
	}
}
