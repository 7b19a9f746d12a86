package echoed

import (
	"fmt"
	"time"

	"github.com/adhocore/gronx"

	"github.com/tgrady18/EchoedSDK/pkg/logger"
)

// startSyncScheduler runs a periodic tag sync on the configured cron
// expression. The loop computes the next tick and sleeps until then, so
// full cron syntax is supported.
func (s *SDK) startSyncScheduler(cronExpr string) error {
	if !gronx.IsValid(cronExpr) {
		return fmt.Errorf("invalid sync cron expression: %q", cronExpr)
	}

	logger.InfoCF("echoed", "Tag sync scheduler started", map[string]any{"cron": cronExpr})

	go func() {
		for {
			next, err := gronx.NextTickAfter(cronExpr, time.Now(), false)
			if err != nil {
				logger.ErrorCF("echoed", "Computing next sync tick failed",
					map[string]any{"cron": cronExpr, "error": err.Error()})
				select {
				case <-time.After(30 * time.Second):
					continue
				case <-s.ctx.Done():
					return
				}
			}

			select {
			case <-time.After(time.Until(next)):
				s.SyncTags()
			case <-s.ctx.Done():
				return
			}
		}
	}()

	return nil
}
