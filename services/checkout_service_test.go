package services

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestCheckoutCreatesPayment(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.register(t, 3001, "@buyer", nil)
	for i := 0; i < 6; i++ {
		if _, err := env.buckets.Add(ctx, 3001, 3); err != nil {
			t.Fatalf("add: %v", err)
		}
	}

	invoice, err := env.checkout.Checkout(ctx, 3001, "  Kazan, Baumana 5  ")
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if invoice.Amount != 24000 || invoice.PayNum != 1 {
		t.Fatalf("invoice = %+v", invoice)
	}
	if !strings.Contains(invoice.Link, "sum=24000") {
		t.Errorf("link = %q", invoice.Link)
	}

	payment, err := env.ledger.Get(ctx, invoice.PayNum)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if payment.Closed || payment.Address != "Kazan, Baumana 5" || payment.Amount != 24000 {
		t.Errorf("payment = %+v", payment)
	}
	if payment.Username == nil || *payment.Username != "buyer" {
		t.Errorf("username = %v", payment.Username)
	}

	// The bucket is only cleared by a confirmed payment.
	if view, _ := env.buckets.View(ctx, 3001); view.Count != 6 {
		t.Errorf("bucket after checkout = %+v", view)
	}
}

func TestCheckoutRejects(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.register(t, 3001, "buyer", nil)

	if _, err := env.checkout.Checkout(ctx, 3001, "Kazan, Baumana 5"); !errors.Is(err, ErrEmptyBucket) {
		t.Errorf("empty bucket: %v", err)
	}
	if _, err := env.checkout.Checkout(ctx, 3001, "  "); err == nil {
		t.Error("blank address accepted")
	}
	if _, err := env.checkout.Checkout(ctx, 4242, "Kazan, Baumana 5"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("unknown user: %v", err)
	}

	var count int64
	env.db.Table("payments").Count(&count)
	if count != 0 {
		t.Errorf("rejected checkouts created %d payments", count)
	}
}
