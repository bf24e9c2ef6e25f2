package providers

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/ogulcanaydogan/gluco-guardian/pkg/dedup"
	"github.com/ogulcanaydogan/gluco-guardian/pkg/model"
)

func newRestClient(o options, baseURL string, timeout time.Duration) *resty.Client {
	var c *resty.Client
	if o.httpClient != nil {
		c = resty.NewWithClient(o.httpClient)
	} else {
		c = resty.New()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return c.
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
}

// recordNew drops candidates already stored for the owner around the
// candidates' time span and records the rest.
func recordNew(ctx context.Context, store Store, rec Recorder, ownerID string, candidates []model.Reading) (int, error) {
	if len(candidates) == 0 {
		return 0, nil
	}

	start, end := candidates[0].Timestamp, candidates[0].Timestamp
	for _, r := range candidates[1:] {
		if r.Timestamp.Before(start) {
			start = r.Timestamp
		}
		if r.Timestamp.After(end) {
			end = r.Timestamp
		}
	}

	existing, err := store.FindReadings(ctx, model.ReadingFilter{
		OwnerID: ownerID,
		Start:   start.Add(-time.Second),
		End:     end.Add(time.Second),
	})
	if err != nil {
		return 0, fmt.Errorf("load existing readings: %w", err)
	}

	fresh := dedup.Filter(candidates, existing)
	if len(fresh) == 0 {
		return 0, nil
	}
	return rec.Record(ctx, ownerID, fresh)
}
