package web

import (
	"encoding/json"
	"fmt"

	"github.com/xeipuuv/gojsonschema"

	"github.com/glowdesk/reflow/pkg/models"
)

// Step-config JSON schemas, keyed by step kind. Schema validation runs on
// the write path so the executor only ever sees structurally valid configs;
// graph-level checks (dangling edges, config/kind match) run afterwards in
// models.Workflow.Validate.
var stepConfigSchemas = map[models.StepKind]string{
	models.StepSendSMS: `{
		"type": "object",
		"properties": {
			"template": {"type": "string", "minLength": 1}
		},
		"required": ["template"]
	}`,
	models.StepSendEmail: `{
		"type": "object",
		"properties": {
			"subject":  {"type": "string", "minLength": 1},
			"template": {"type": "string", "minLength": 1}
		},
		"required": ["subject", "template"]
	}`,
	models.StepAddTag: `{
		"type": "object",
		"properties": {
			"tag": {"type": "string", "minLength": 1}
		},
		"required": ["tag"]
	}`,
	models.StepRemoveTag: `{
		"type": "object",
		"properties": {
			"tag":  {"type": "string", "minLength": 1},
			"mode": {"type": "string", "enum": ["single", "all"]}
		},
		"required": ["tag"]
	}`,
	models.StepDelay: `{
		"type": "object",
		"properties": {
			"value": {"type": "integer", "minimum": 0},
			"unit":  {"type": "string"}
		},
		"required": ["value"]
	}`,
	models.StepConditional: `{
		"type": "object",
		"properties": {
			"condition": {
				"type": "object",
				"properties": {
					"field":    {"type": "string", "minLength": 1},
					"operator": {"type": "string", "minLength": 1},
					"value":    {"type": "string"}
				},
				"required": ["field", "operator"]
			},
			"on_true":  {"type": "string"},
			"on_false": {"type": "string"}
		},
		"required": ["condition"]
	}`,
}

// validateStepConfigs schema-checks every step's config payload.
func validateStepConfigs(steps []*models.Step) error {
	for _, step := range steps {
		schema, ok := stepConfigSchemas[step.Kind]
		if !ok {
			return fmt.Errorf("step %s: unknown kind %q", step.ID, step.Kind)
		}

		config := stepConfigPayload(step)
		if config == nil {
			return fmt.Errorf("step %s: missing %s config", step.ID, step.Kind)
		}

		raw, err := json.Marshal(config)
		if err != nil {
			return fmt.Errorf("step %s: %w", step.ID, err)
		}

		result, err := gojsonschema.Validate(
			gojsonschema.NewStringLoader(schema),
			gojsonschema.NewBytesLoader(raw),
		)
		if err != nil {
			return fmt.Errorf("step %s: %w", step.ID, err)
		}

		if !result.Valid() {
			return fmt.Errorf("step %s: %s", step.ID, result.Errors()[0].String())
		}
	}

	return nil
}

func stepConfigPayload(step *models.Step) any {
	switch step.Kind {
	case models.StepSendSMS:
		if step.SendSMS != nil {
			return step.SendSMS
		}
	case models.StepSendEmail:
		if step.SendEmail != nil {
			return step.SendEmail
		}
	case models.StepAddTag:
		if step.AddTag != nil {
			return step.AddTag
		}
	case models.StepRemoveTag:
		if step.RemoveTag != nil {
			return step.RemoveTag
		}
	case models.StepDelay:
		if step.Delay != nil {
			return step.Delay
		}
	case models.StepConditional:
		if step.Conditional != nil {
			return step.Conditional
		}
	}

	return nil
}
