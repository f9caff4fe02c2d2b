package smoke

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"sync"
	"sync/atomic"
	"time"
)

// submitScores posts submissions concurrently using a worker pool.
func submitScores(ctx context.Context, config *Config, sessionID string, subs []Submission, stats *Stats) error {
	log.Printf("📤 Submitting %d scores with %d workers...", len(subs), config.Workers)

	client := newHTTPClient(config.Timeout, config.AdminToken)
	target := fmt.Sprintf("%s/sessions/%s/scores", config.BaseURL, url.PathEscape(sessionID))

	var (
		submitted int64
		accepted  int64
		high      int64
		failed    int64
	)

	var lastReport atomic.Int64
	reportInterval := time.Second

	subChan := make(chan Submission, config.Workers*WorkerChannelMultiplier)
	var wg sync.WaitGroup

	for i := 0; i < config.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			for sub := range subChan {
				if ctx.Err() != nil {
					return
				}
				res, err := submitSingle(ctx, client, target, sub)
				atomic.AddInt64(&submitted, 1)
				switch {
				case err != nil:
					atomic.AddInt64(&failed, 1)
					if config.Verbose {
						log.Printf("⚠️  Failed to submit for %s: %v", sub.Player, err)
					}
				default:
					if res.Accepted {
						atomic.AddInt64(&accepted, 1)
					}
					if res.IsHighScore {
						atomic.AddInt64(&high, 1)
					}
				}

				now := time.Now().UnixNano()
				last := lastReport.Load()
				if time.Duration(now-last) >= reportInterval && lastReport.CompareAndSwap(last, now) {
					log.Printf("📊 Progress: %d/%d submitted (accepted: %d, high: %d, failed: %d)",
						atomic.LoadInt64(&submitted), len(subs),
						atomic.LoadInt64(&accepted), atomic.LoadInt64(&high), atomic.LoadInt64(&failed))
				}
			}
		}()
	}

	go func() {
		defer close(subChan)
		for _, sub := range subs {
			select {
			case <-ctx.Done():
				return
			case subChan <- sub:
			}
		}
	}()

	wg.Wait()

	stats.Submitted = int(atomic.LoadInt64(&submitted))
	stats.Accepted = int(atomic.LoadInt64(&accepted))
	stats.HighScores = int(atomic.LoadInt64(&high))
	stats.Failed = int(atomic.LoadInt64(&failed))

	log.Printf(`✅ Score submission completed:
   Accepted: %d
   High scores: %d
   Failed: %d
`, stats.Accepted, stats.HighScores, stats.Failed)

	if stats.Failed > 0 {
		return fmt.Errorf("%d submissions failed", stats.Failed)
	}
	return ctx.Err()
}

// submitSingle posts one score.
func submitSingle(ctx context.Context, client *HTTPClient, target string, sub Submission) (SubmitResult, error) {
	resp, err := client.Post(ctx, target, sub)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("request failed: %w", err)
	}
	var res SubmitResult
	if err := decodeResponse(resp, StatusOK, &res); err != nil {
		return SubmitResult{}, err
	}
	return res, nil
}
