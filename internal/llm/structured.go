package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/ppiankov/terminus/internal/model"
)

// Schema is a decoded response that can check its own required fields
type Schema interface {
	Validate() error
}

// CompleteStructured sends one completion and decodes the reply into out.
//
// Transport and provider failures come back as *model.ProviderError.
// A reply that is not a JSON object, carries unknown fields, or fails
// out.Validate comes back as *model.SchemaViolationError. There are no
// retries; callers decide what a failure means for their step.
func CompleteStructured(ctx context.Context, p Provider, req CompletionRequest, out Schema) error {
	resp, err := p.Complete(ctx, req)
	if err != nil {
		return model.NewProviderError(p.Name(), err)
	}

	raw := ExtractJSON(resp.Content)
	if raw == "" {
		return &model.SchemaViolationError{
			Schema: req.SchemaName,
			Raw:    resp.Content,
			Err:    fmt.Errorf("no JSON object in reply"),
		}
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return &model.SchemaViolationError{Schema: req.SchemaName, Raw: resp.Content, Err: err}
	}
	if err := out.Validate(); err != nil {
		return &model.SchemaViolationError{Schema: req.SchemaName, Raw: resp.Content, Err: err}
	}
	return nil
}
