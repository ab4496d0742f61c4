package points

import (
	"context"

	"smartbin-scan/internal/model"
)

type summaryFetcher interface {
	Summary(ctx context.Context) (model.Summary, error)
}

type pointsApplier interface {
	ApplyPoints(u Update) (int, bool)
}

// Hydrate fetches the authoritative points summary once and merges it into
// the cached user. Called at boot when a valid credential is present.
func Hydrate(ctx context.Context, api summaryFetcher, sess pointsApplier) error {
	summary, err := api.Summary(ctx)
	if err != nil {
		return err
	}

	sess.ApplyPoints(FromSummary(summary))
	return nil
}
