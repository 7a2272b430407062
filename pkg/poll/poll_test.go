package poll

import (
	"errors"
	"testing"
)

func TestUntilImmediateSuccess(t *testing.T) {
	corrections := 0
	attempts, err := Until(func() (int, int) { return 8, 8 }, Options{
		MaxAttempts: 30,
		Correct:     func() { corrections++ },
	})
	if err != nil {
		t.Fatalf("expected immediate success, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", attempts)
	}
	if corrections != 0 {
		t.Errorf("expected no corrective actions on first-check success, got %d", corrections)
	}
}

func TestUntilSucceedsOnFinalAttempt(t *testing.T) {
	// satisfied counts [1,2,3] across attempts 1..3 with required=3
	seq := []int{1, 2, 3}
	i := 0
	attempts, err := Until(func() (int, int) {
		s := seq[i]
		i++
		return s, 3
	}, Options{MaxAttempts: 3})
	if err != nil {
		t.Fatalf("expected success on final attempt, got %v", err)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

func TestUntilThresholdExceeded(t *testing.T) {
	checks := 0
	corrections := 0
	_, err := Until(func() (int, int) {
		checks++
		return 5, 8
	}, Options{
		MaxAttempts: 30,
		Correct:     func() { corrections++ },
	})
	if err == nil {
		t.Fatal("expected threshold error")
	}
	var terr *ThresholdError
	if !errors.As(err, &terr) {
		t.Fatalf("expected *ThresholdError, got %T", err)
	}
	if checks != 30 {
		t.Errorf("expected exactly 30 checks, got %d", checks)
	}
	// corrective action runs before attempts 2..30
	if corrections != 29 {
		t.Errorf("expected 29 corrective actions, got %d", corrections)
	}
	if terr.Satisfied != 5 || terr.Required != 8 || terr.Attempts != 30 {
		t.Errorf("unexpected threshold diagnostics: %+v", terr)
	}
}

func TestUntilPassiveWait(t *testing.T) {
	// no corrective action set; engine should still retry
	seq := []int{0, 1, 2}
	i := 0
	attempts, err := Until(func() (int, int) {
		s := seq[i]
		i++
		return s, 2
	}, Options{MaxAttempts: 5})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}
