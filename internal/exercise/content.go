package exercise

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// ContentSchema is the JSON Schema every exercise content document must
// satisfy. Unknown properties are allowed; generated exercises carry extra
// sections the grader does not read.
const ContentSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["questions"],
  "properties": {
    "questions": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "question", "expected_answer_points"],
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "question": {"type": "string"},
          "expected_answer_points": {
            "type": "array",
            "items": {"type": "string"}
          }
        }
      }
    }
  }
}`

const contentSchemaURL = "schema://exercise-content.json"

var (
	compiledOnce sync.Once
	compiled     *jsonschema.Schema
	compileErr   error
)

func contentSchema() (*jsonschema.Schema, error) {
	compiledOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(ContentSchema))
		if err != nil {
			compileErr = fmt.Errorf("exercise: parse content schema: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource(contentSchemaURL, doc); err != nil {
			compileErr = fmt.Errorf("exercise: add content schema: %w", err)
			return
		}
		compiled, compileErr = c.Compile(contentSchemaURL)
	})
	return compiled, compileErr
}

// ValidateContent checks a content document decoded with
// [jsonschema.UnmarshalJSON] against [ContentSchema].
func ValidateContent(doc any) error {
	sch, err := contentSchema()
	if err != nil {
		return err
	}
	if err := sch.Validate(doc); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidContent, err)
	}
	return nil
}

// ParseContent validates raw JSON content and returns its questions.
func ParseContent(raw []byte) ([]Question, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidContent, err)
	}
	if err := ValidateContent(doc); err != nil {
		return nil, err
	}

	var content struct {
		Questions []Question `json:"questions"`
	}
	if err := json.Unmarshal(raw, &content); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidContent, err)
	}
	for i := range content.Questions {
		if content.Questions[i].ExpectedAnswerPoints == nil {
			content.Questions[i].ExpectedAnswerPoints = []string{}
		}
	}
	return content.Questions, nil
}

// questionsFrom validates a document decoded from YAML. It is re-encoded as
// JSON first so both file formats go through the same validation path.
func questionsFrom(doc any) ([]Question, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidContent, err)
	}
	return ParseContent(raw)
}
