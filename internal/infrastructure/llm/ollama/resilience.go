package ollama

import (
	"context"

	"github.com/kirillkom/biomed-literature-assistant/internal/infrastructure/resilience"
)

// call posts through the executor and tags retryable failures as temporary.
func (c *Client) call(ctx context.Context, operation, path string, payload any, out any) error {
	var err error
	if c.executor == nil {
		err = c.postJSON(ctx, path, payload, out, operation)
	} else {
		err = c.executor.Execute(ctx, "ollama."+operation, func(callCtx context.Context) error {
			return c.postJSON(callCtx, path, payload, out, operation)
		}, resilience.ClassifyHTTPError)
	}
	return resilience.WrapTemporary("ollama "+operation, err, nil)
}
