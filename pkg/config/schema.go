package config

import (
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const engineSchemaURL = "https://unifiedaai.schemas.local/config/engine.schema.json"

// engineSchemaJSON is the shape contract for engine config profiles.
// Structural invariants that need arithmetic (weight sums, threshold
// ordering) are enforced by scoring.EngineConfig.Validate afterwards.
const engineSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["schema_version", "metric_weights", "verdict_thresholds"],
  "properties": {
    "schema_version": {"type": "string", "minLength": 1},
    "engine_type": {"type": "string", "minLength": 1},
    "metric_weights": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["key", "weight"],
        "properties": {
          "key": {"type": "string", "minLength": 1},
          "weight": {"type": "number", "exclusiveMinimum": 0}
        }
      }
    },
    "verdict_thresholds": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["label", "min_score"],
        "properties": {
          "label": {"type": "string", "minLength": 1},
          "min_score": {"type": "number", "minimum": 0, "maximum": 100}
        }
      }
    },
    "compliance_threshold": {"type": "number", "minimum": 0, "maximum": 100}
  }
}`

var (
	engineSchemaOnce sync.Once
	engineSchema     *jsonschema.Schema
	engineSchemaErr  error
)

func compiledEngineSchema() (*jsonschema.Schema, error) {
	engineSchemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		if err := c.AddResource(engineSchemaURL, strings.NewReader(engineSchemaJSON)); err != nil {
			engineSchemaErr = fmt.Errorf("config: engine schema load failed: %w", err)
			return
		}
		engineSchema, engineSchemaErr = c.Compile(engineSchemaURL)
	})
	return engineSchema, engineSchemaErr
}
