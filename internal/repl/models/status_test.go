package models_test

import (
	"errors"
	"testing"

	"github.com/willibrandon/pgmesh/internal/repl/models"
)

// =============================================================================
// Status Order Tests
// =============================================================================

func TestAllStatuses_Order(t *testing.T) {
	want := []models.Status{
		models.StatusNone,
		models.StatusInit,
		models.StatusSyncSchema,
		models.StatusSlots,
		models.StatusCatchup,
		models.StatusConnectBack,
		models.StatusReady,
	}

	got := models.AllStatuses()
	if len(got) != len(want) {
		t.Fatalf("len(AllStatuses()) = %d; want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("AllStatuses()[%d] = %q; want %q", i, got[i], want[i])
		}
	}
}

func TestStatus_Rank(t *testing.T) {
	for i, status := range models.AllStatuses() {
		if got := status.Rank(); got != i {
			t.Errorf("%s.Rank() = %d; want %d", status, got, i)
		}
	}

	if got := models.Status("bogus").Rank(); got != -1 {
		t.Errorf("Status(\"bogus\").Rank() = %d; want -1", got)
	}
}

func TestStatus_IsValid(t *testing.T) {
	for _, status := range models.AllStatuses() {
		if !status.IsValid() {
			t.Errorf("%s.IsValid() = false; want true", status)
		}
	}

	if models.Status("").IsValid() {
		t.Error("Status(\"\").IsValid() = true; want false")
	}
	if models.Status("initialized").IsValid() {
		t.Error("Status(\"initialized\").IsValid() = true; want false")
	}
}

// =============================================================================
// Resumable Tests
// =============================================================================

func TestStatus_Resumable(t *testing.T) {
	tests := []struct {
		status models.Status
		want   bool
	}{
		{models.StatusNone, false},
		{models.StatusInit, true},
		{models.StatusSyncSchema, false},
		{models.StatusSlots, true},
		{models.StatusCatchup, true},
		{models.StatusConnectBack, true},
		{models.StatusReady, false},
		{models.Status("bogus"), false},
	}

	for _, tt := range tests {
		if got := tt.status.Resumable(); got != tt.want {
			t.Errorf("%s.Resumable() = %v; want %v", tt.status, got, tt.want)
		}
	}
}

// =============================================================================
// Transition Tests
// =============================================================================

func TestStatus_ValidateTransition_Forward(t *testing.T) {
	all := models.AllStatuses()
	for i, from := range all {
		for _, to := range all[i+1:] {
			if err := from.ValidateTransition(to); err != nil {
				t.Errorf("ValidateTransition(%s -> %s) = %v; want nil", from, to, err)
			}
		}
	}
}

func TestStatus_ValidateTransition_Backward(t *testing.T) {
	err := models.StatusReady.ValidateTransition(models.StatusInit)
	if !errors.Is(err, models.ErrStatusWentBackward) {
		t.Errorf("ValidateTransition(ready -> init) = %v; want ErrStatusWentBackward", err)
	}
}

func TestStatus_ValidateTransition_Same(t *testing.T) {
	err := models.StatusCatchup.ValidateTransition(models.StatusCatchup)
	if !errors.Is(err, models.ErrStatusWentBackward) {
		t.Errorf("ValidateTransition(catchup -> catchup) = %v; want ErrStatusWentBackward", err)
	}
}

func TestStatus_ValidateTransition_Invalid(t *testing.T) {
	if err := models.Status("bogus").ValidateTransition(models.StatusReady); !errors.Is(err, models.ErrInvalidStatus) {
		t.Errorf("ValidateTransition from invalid = %v; want ErrInvalidStatus", err)
	}
	if err := models.StatusInit.ValidateTransition(models.Status("bogus")); !errors.Is(err, models.ErrInvalidStatus) {
		t.Errorf("ValidateTransition to invalid = %v; want ErrInvalidStatus", err)
	}
}
