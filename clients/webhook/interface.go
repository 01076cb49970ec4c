package webhook

import (
	"context"

	"fltr/pipeline"
)

// Publisher forwards finished reports to an external service.
type Publisher interface {
	Publish(ctx context.Context, report *pipeline.Report) error
}
