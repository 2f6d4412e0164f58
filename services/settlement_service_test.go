package services

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	config "github.com/anjiri1684/peptide_shop/configs"
	"github.com/anjiri1684/peptide_shop/models"
)

func TestSettleTwoHopPayout(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, rootID, "root", nil)
	env.register(t, 2001, "partner", ref(rootID))
	env.register(t, 3001, "buyer", ref(2001))

	credits, err := env.settlement.Settle(context.Background(), 3001, 10000)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if len(credits) != 2 {
		t.Fatalf("got %d credits, want 2", len(credits))
	}
	if credits[0].TelegramID != 2001 || !credits[0].Amount.Equal(decimal.NewFromInt(4000)) {
		t.Errorf("first credit %+v", credits[0])
	}
	if credits[1].TelegramID != rootID || !credits[1].Amount.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("second credit %+v", credits[1])
	}
	if credits[0].Text == "" || credits[1].Text == "" {
		t.Error("credits carry no notification text")
	}

	env.assertBalance(t, 2001, "4000")
	env.assertBalance(t, rootID, "1000")
	env.assertBalance(t, 3001, "0")
}

func TestSettleDirectRootPayout(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, rootID, "root", nil)
	env.register(t, 2001, "direct", ref(rootID))

	// A direct invitee of the root is a tier-2 partner; its purchases pay the root 50%.
	credits, err := env.settlement.Settle(context.Background(), 2001, 5000)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if len(credits) != 1 || credits[0].TelegramID != rootID {
		t.Fatalf("credits = %+v", credits)
	}
	env.assertBalance(t, rootID, "2500")
	env.assertBalance(t, 2001, "0")
}

func TestSettleNoCommission(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T, env *testEnv)
	}{
		{
			name: "no referrer",
			setup: func(t *testing.T, env *testEnv) {
				env.register(t, 3001, "buyer", nil)
			},
		},
		{
			name: "tier-0 inviter",
			setup: func(t *testing.T, env *testEnv) {
				env.register(t, rootID, "root", nil)
				env.register(t, 2001, "partner", ref(rootID))
				env.register(t, 2500, "customer", ref(2001))
				env.register(t, 3001, "buyer", ref(2500))
			},
		},
		{
			name: "referrer record missing",
			setup: func(t *testing.T, env *testEnv) {
				env.register(t, 3001, "buyer", ref(424242))
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			tt.setup(t, env)

			credits, err := env.settlement.Settle(context.Background(), 3001, 10000)
			if err != nil {
				t.Fatalf("settle: %v", err)
			}
			if len(credits) != 0 {
				t.Fatalf("credits = %+v, want none", credits)
			}

			var total decimal.Decimal
			var users []models.User
			env.db.Find(&users)
			for _, u := range users {
				total = total.Add(u.Balance)
			}
			if !total.IsZero() {
				t.Fatalf("balances changed, total %s", total)
			}
		})
	}
}

func TestSettlePartialWhenUpstreamMissing(t *testing.T) {
	env := newTestEnv(t)
	partner := models.User{TelegramID: 2001, ReferrerID: ref(7777), ReferralTier: models.TierPartner, TierResolved: true}
	if err := env.db.Create(&partner).Error; err != nil {
		t.Fatalf("insert partner: %v", err)
	}
	env.register(t, 3001, "buyer", ref(2001))

	credits, err := env.settlement.Settle(context.Background(), 3001, 10000)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if len(credits) != 1 || credits[0].TelegramID != 2001 {
		t.Fatalf("credits = %+v", credits)
	}
	env.assertBalance(t, 2001, "4000")
}

func TestSettleBackfillsLegacyInviter(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, rootID, "root", nil)
	env.insertLegacyUser(t, 2001, ref(rootID))
	env.register(t, 3001, "buyer", ref(2001))

	credits, err := env.settlement.Settle(context.Background(), 3001, 10000)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if len(credits) != 2 {
		t.Fatalf("credits = %+v", credits)
	}
	if u := env.user(t, 2001); !u.TierResolved || u.ReferralTier != models.TierPartner {
		t.Errorf("inviter not backfilled: tier %d resolved %v", u.ReferralTier, u.TierResolved)
	}
}

func TestSettleConcurrentCreditsSameReferrer(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, rootID, "root", nil)
	env.register(t, 2001, "partner", ref(rootID))

	const buyers = 10
	for i := int64(0); i < buyers; i++ {
		env.register(t, 3000+i, "", ref(2001))
	}

	var wg sync.WaitGroup
	errs := make(chan error, buyers)
	for i := int64(0); i < buyers; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			if _, err := env.settlement.Settle(context.Background(), id, 1000); err != nil {
				errs <- err
			}
		}(3000 + i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("settle: %v", err)
	}

	env.assertBalance(t, 2001, "4000")
	env.assertBalance(t, rootID, "1000")
}

func TestSettleUsesInjectedRates(t *testing.T) {
	rates := config.CommissionSchedule{
		SecondTierDirect: decimal.RequireFromString("0.25"),
		SecondTierRoot:   decimal.RequireFromString("0.05"),
		FirstTierDirect:  decimal.RequireFromString("0.3"),
	}
	env := newTestEnvWithRates(t, rates)
	env.register(t, rootID, "root", nil)
	env.register(t, 2001, "partner", ref(rootID))
	env.register(t, 3001, "buyer", ref(2001))

	if _, err := env.settlement.Settle(context.Background(), 3001, 4701); err != nil {
		t.Fatalf("settle: %v", err)
	}
	env.assertBalance(t, 2001, "1175.25")
	env.assertBalance(t, rootID, "235.05")

	if _, err := env.settlement.Settle(context.Background(), 2001, 1000); err != nil {
		t.Fatalf("settle: %v", err)
	}
	env.assertBalance(t, rootID, "535.05")
}

func TestSettleCreditsRootRegisteredBeforeConfigured(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	unconfigured := NewReferralService(env.db, nil, env.clock.Now)
	if _, err := unconfigured.Register(ctx, rootID, "root", nil); err != nil {
		t.Fatalf("register root: %v", err)
	}
	env.register(t, 2001, "partner", ref(rootID))
	env.register(t, 3001, "buyer", ref(2001))
	env.register(t, 2002, "direct", ref(rootID))

	credits, err := env.settlement.Settle(ctx, 3001, 10000)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if len(credits) != 2 {
		t.Fatalf("credits = %+v, want partner and root", credits)
	}

	credits, err = env.settlement.Settle(ctx, 2002, 5000)
	if err != nil {
		t.Fatalf("settle direct: %v", err)
	}
	if len(credits) != 1 || credits[0].TelegramID != rootID {
		t.Fatalf("direct credits = %+v", credits)
	}

	env.assertBalance(t, 2001, "4000")
	env.assertBalance(t, rootID, "3500")
}
