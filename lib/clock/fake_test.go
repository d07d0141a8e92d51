// Copyright 2026 The Kiro Switch Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"testing"
	"time"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestFakeNowStandsStill(t *testing.T) {
	fake := Fake(epoch)
	if got := fake.Now(); !got.Equal(epoch) {
		t.Fatalf("Now() = %v, want %v", got, epoch)
	}
	fake.Advance(3 * time.Second)
	if got, want := fake.Now(), epoch.Add(3*time.Second); !got.Equal(want) {
		t.Errorf("Now() after Advance = %v, want %v", got, want)
	}
}

func TestFakeAfterFiresAtDeadline(t *testing.T) {
	fake := Fake(epoch)
	channel := fake.After(time.Second)

	fake.Advance(999 * time.Millisecond)
	select {
	case <-channel:
		t.Fatal("After fired before its deadline")
	default:
	}

	fake.Advance(time.Millisecond)
	select {
	case fired := <-channel:
		if want := epoch.Add(time.Second); !fired.Equal(want) {
			t.Errorf("fired at %v, want %v", fired, want)
		}
	default:
		t.Fatal("After did not fire at its deadline")
	}
	if count := fake.PendingCount(); count != 0 {
		t.Errorf("PendingCount() = %d after firing, want 0", count)
	}
}

func TestFakeAfterNonPositive(t *testing.T) {
	fake := Fake(epoch)
	select {
	case <-fake.After(0):
	default:
		t.Fatal("After(0) should be ready immediately")
	}
	if count := fake.PendingCount(); count != 0 {
		t.Errorf("PendingCount() = %d, want 0", count)
	}
}

func TestFakeSleepWithWaitForTimers(t *testing.T) {
	fake := Fake(epoch)
	done := make(chan struct{})
	go func() {
		fake.Sleep(500 * time.Millisecond)
		close(done)
	}()

	fake.WaitForTimers(1)
	fake.Advance(500 * time.Millisecond)

	select {
	case <-done:
	case <-time.After(5 * time.Second): //nolint:realclock test hang prevention
		t.Fatal("Sleep did not return after Advance")
	}
}

func TestFakeAdvanceReleasesDueWaits(t *testing.T) {
	fake := Fake(epoch)
	late := fake.After(2 * time.Second)
	early := fake.After(time.Second)
	untouched := fake.After(time.Minute)

	fake.Advance(5 * time.Second)

	for name, channel := range map[string]<-chan time.Time{"early": early, "late": late} {
		select {
		case <-channel:
		default:
			t.Errorf("%s wait not released", name)
		}
	}
	select {
	case <-untouched:
		t.Error("wait beyond the advance was released")
	default:
	}
	if count := fake.PendingCount(); count != 1 {
		t.Errorf("PendingCount() = %d, want 1", count)
	}
}
