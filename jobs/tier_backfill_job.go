package jobs

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/anjiri1684/peptide_shop/logger"
	"github.com/anjiri1684/peptide_shop/services"
)

const backfillTimeout = 2 * time.Minute

// BackfillReferralTiers resolves tiers of users created before tiers were stored,
// batch records per run. Settlement resolves them lazily too; the job only
// keeps the backlog from lingering.
func BackfillReferralTiers(referrals *services.ReferralService, batch int) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), backfillTimeout)
		defer cancel()

		n, err := referrals.ResolvePending(ctx, batch)
		if err != nil {
			logger.Log.Error("referral tier backfill failed", zap.Error(err))
			return
		}
		if n > 0 {
			logger.Log.Info("referral tiers backfilled", zap.Int("users", n))
		}
	}
}
