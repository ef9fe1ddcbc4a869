package ratex_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Abraxas-365/examforge/pkg/errx"
	"github.com/Abraxas-365/examforge/pkg/ratex"
)

func TestWaitEnforcesInterval(t *testing.T) {
	l := ratex.New(ratex.WithInterval(50 * time.Millisecond))

	if err := l.Wait(context.Background()); err != nil {
		t.Fatalf("first wait: %v", err)
	}

	start := time.Now()
	if err := l.Wait(context.Background()); err != nil {
		t.Fatalf("second wait: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Errorf("second call not paced, waited only %v", elapsed)
	}
}

func TestWaitRespectsContextCancellation(t *testing.T) {
	l := ratex.New(ratex.WithInterval(5 * time.Second))
	_ = l.Wait(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := l.Wait(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestReportFailureArmsCooldownForThrottling(t *testing.T) {
	l := ratex.New(
		ratex.WithInterval(time.Millisecond),
		ratex.WithCooldown(time.Hour, time.Hour),
	)

	l.ReportFailure(errx.New("rate limit exceeded", errx.TypeRateLimit))
	if !l.CoolingDown() {
		t.Fatal("expected cooldown after rate limit error")
	}

	l.ReportSuccess()
	if l.CoolingDown() {
		t.Error("expected cooldown cleared after success")
	}
}

func TestReportFailureIgnoresNonThrottlingErrors(t *testing.T) {
	l := ratex.New(ratex.WithCooldown(time.Hour, time.Hour))

	l.ReportFailure(errx.New("bad payload", errx.TypeValidation))
	if l.CoolingDown() {
		t.Error("validation error must not arm cooldown")
	}

	l.ReportFailure(errors.New("plain error"))
	if l.CoolingDown() {
		t.Error("untyped error must not arm cooldown")
	}
}

func TestUnavailableArmsCooldown(t *testing.T) {
	l := ratex.New(ratex.WithCooldown(time.Hour, time.Hour))

	l.ReportFailure(errx.New("model overloaded", errx.TypeUnavailable))
	if !l.CoolingDown() {
		t.Error("overload error must arm cooldown")
	}
}
