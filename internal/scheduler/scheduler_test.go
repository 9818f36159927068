package scheduler

import (
	"context"
	"testing"
	"time"
)

// --- Cron Tests ---

func TestNextAfter(t *testing.T) {
	from := time.Date(2026, 3, 10, 12, 30, 0, 0, time.UTC)

	cases := []struct {
		expr string
		want time.Time
	}{
		{"*/5 * * * *", time.Date(2026, 3, 10, 12, 35, 0, 0, time.UTC)},
		{"0 * * * *", time.Date(2026, 3, 10, 13, 0, 0, 0, time.UTC)},
		{"0 0 * * *", time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC)},
		{"0 9 * * 1", time.Date(2026, 3, 16, 9, 0, 0, 0, time.UTC)}, // следующий понедельник
	}

	for _, c := range cases {
		got, err := NextAfter(c.expr, from)
		if err != nil {
			t.Fatalf("NextAfter(%q): unexpected error: %v", c.expr, err)
		}
		if !got.Equal(c.want) {
			t.Errorf("NextAfter(%q) = %v, want %v", c.expr, got, c.want)
		}
	}
}

func TestNextAfter_Invalid(t *testing.T) {
	if _, err := NextAfter("not a cron", time.Now()); err == nil {
		t.Error("expected error for invalid expression")
	}
}

func TestValidateCronExpr(t *testing.T) {
	valid := []string{"* * * * *", "*/10 * * * *", "0 0 1 * *", "30 8 * * 1-5"}
	for _, expr := range valid {
		if err := ValidateCronExpr(expr); err != nil {
			t.Errorf("ValidateCronExpr(%q): unexpected error: %v", expr, err)
		}
	}

	invalid := []string{"", "* * *", "61 * * * *", "@nope", "* * * * * *"}
	for _, expr := range invalid {
		if err := ValidateCronExpr(expr); err == nil {
			t.Errorf("ValidateCronExpr(%q): expected error", expr)
		}
	}
}

// --- Scheduler Tests ---

type countingRunner struct {
	ch chan struct{}
}

func (r *countingRunner) Cycle(_ context.Context) error {
	select {
	case r.ch <- struct{}{}:
	default:
	}
	return nil
}

func TestNew_InvalidExpr(t *testing.T) {
	_, err := New(Config{Runner: &countingRunner{}, CronExpr: "bogus"})
	if err == nil {
		t.Error("expected error for invalid cron expression")
	}
}

func TestNew_ValidExpr(t *testing.T) {
	s, err := New(Config{Runner: &countingRunner{}, CronExpr: "*/5 * * * *"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.String() != "scheduler(*/5 * * * *)" {
		t.Errorf("unexpected string: %s", s.String())
	}
}

func TestScheduler_RunsOnSchedule(t *testing.T) {
	runner := &countingRunner{ch: make(chan struct{}, 1)}

	// Каждую минуту — ближайшее срабатывание не дальше 60 секунд,
	// но ждать его в тесте нельзя; проверяем только запуск/останов
	s, err := New(Config{Runner: runner, CronExpr: "* * * * *"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := s.Start(ctx); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	// Stop должен вернуть управление, не дожидаясь срабатывания
	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop should not block until the next tick")
	}
}
