package reconcile

import (
	"context"
	"testing"
	"time"

	"otengine/models"
)

func TestStartRunsCatchUp(t *testing.T) {
	h := newHarness(t, func(o *Options) {
		o.Now = func() time.Time { return at(4, 10, 0) }
		o.Schedule = "@every 1h"
	})
	sess := h.open(t, h.employee, models.OTLateDeparture, at(2, 18, 0))

	ctx, cancel := context.WithCancel(context.Background())
	if err := h.sched.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	cancel()
	h.sched.Stop()

	assertAutoClosed(t, h.store.Session(sess.SessionID))
	if err := h.sched.Start(context.Background()); err != nil {
		t.Fatalf("restart after stop: %v", err)
	}
	h.sched.Stop()
}

func TestStartRejectsBadSchedule(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.Schedule = "every hour please" })
	if err := h.sched.Start(context.Background()); err == nil {
		h.sched.Stop()
		t.Fatalf("expected an invalid schedule error")
	}
}

func TestStartTwiceFails(t *testing.T) {
	h := newHarness(t, nil)
	if err := h.sched.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer h.sched.Stop()
	if err := h.sched.Start(context.Background()); err == nil {
		t.Fatalf("expected second start to fail")
	}
}
