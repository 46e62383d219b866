package tokening

import (
	"testing"
	"time"

	"github.com/itskum47/judgeforge/internal/model"
)

func ptr(d time.Duration) *time.Duration { return &d }
func iptr(i int) *int                    { return &i }

// TestUSACOTokenAccrual reproduces §8 S3 literally.
func TestUSACOTokenAccrual(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	contestPolicy := model.TokenPolicy{
		Mode:        model.TokenModeFinite,
		GenInitial:  1,
		GenNumber:   1,
		GenInterval: 900 * time.Second,
		GenMax:      iptr(2),
		MinInterval: 300 * time.Second,
	}
	taskPolicy := model.TokenPolicy{Mode: model.TokenModeInfinite}

	// At t0: available=1, next_gen=t0+900, unlock=nil.
	avail, err := TokensAvailable(contestPolicy, taskPolicy, t0, nil, nil, t0)
	if err != nil {
		t.Fatalf("TokensAvailable: %v", err)
	}
	if avail.Available != 1 {
		t.Fatalf("at t0: Available = %d, want 1", avail.Available)
	}
	if avail.NextGenTime == nil || !avail.NextGenTime.Equal(t0.Add(900*time.Second)) {
		t.Fatalf("at t0: NextGenTime = %v, want %v", avail.NextGenTime, t0.Add(900*time.Second))
	}
	if avail.UnlockTime != nil {
		t.Fatalf("at t0: UnlockTime = %v, want nil", avail.UnlockTime)
	}

	// Play a token at t0+60.
	played := t0.Add(60 * time.Second)
	contestHistory := []time.Time{played}

	// At t0+61: available=0, next_gen=t0+900, unlock=t0+360.
	now := t0.Add(61 * time.Second)
	avail, err = TokensAvailable(contestPolicy, taskPolicy, t0, contestHistory, nil, now)
	if err != nil {
		t.Fatalf("TokensAvailable: %v", err)
	}
	if avail.Available != 0 {
		t.Fatalf("at t0+61: Available = %d, want 0", avail.Available)
	}
	if avail.NextGenTime == nil || !avail.NextGenTime.Equal(t0.Add(900*time.Second)) {
		t.Fatalf("at t0+61: NextGenTime = %v, want %v", avail.NextGenTime, t0.Add(900*time.Second))
	}
	wantUnlock := played.Add(300 * time.Second)
	if avail.UnlockTime == nil || !avail.UnlockTime.Equal(wantUnlock) {
		t.Fatalf("at t0+61: UnlockTime = %v, want %v", avail.UnlockTime, wantUnlock)
	}

	// At t0+900: available=1, next_gen=t0+1800 (cap gen_max=2 reached at t0+1800), unlock=nil.
	now = t0.Add(900 * time.Second)
	avail, err = TokensAvailable(contestPolicy, taskPolicy, t0, contestHistory, nil, now)
	if err != nil {
		t.Fatalf("TokensAvailable: %v", err)
	}
	if avail.Available != 1 {
		t.Fatalf("at t0+900: Available = %d, want 1", avail.Available)
	}
	if avail.NextGenTime == nil || !avail.NextGenTime.Equal(t0.Add(1800*time.Second)) {
		t.Fatalf("at t0+900: NextGenTime = %v, want %v", avail.NextGenTime, t0.Add(1800*time.Second))
	}
	if avail.UnlockTime != nil {
		t.Fatalf("at t0+900: UnlockTime = %v, want nil", avail.UnlockTime)
	}
}

func TestDisabledModeYieldsZero(t *testing.T) {
	t0 := time.Now().Truncate(time.Second)
	avail, err := TokensAvailable(
		model.TokenPolicy{Mode: model.TokenModeDisabled},
		model.TokenPolicy{Mode: model.TokenModeDisabled},
		t0, nil, nil, t0)
	if err != nil {
		t.Fatalf("TokensAvailable: %v", err)
	}
	if avail.Available != 0 {
		t.Fatalf("Available = %d, want 0", avail.Available)
	}
}

func TestBothInfinite(t *testing.T) {
	t0 := time.Now().Truncate(time.Second)
	avail, err := TokensAvailable(
		model.TokenPolicy{Mode: model.TokenModeInfinite},
		model.TokenPolicy{Mode: model.TokenModeInfinite},
		t0, nil, nil, t0)
	if err != nil {
		t.Fatalf("TokensAvailable: %v", err)
	}
	if avail.Available != -1 {
		t.Fatalf("Available = %d, want -1 (infinite)", avail.Available)
	}
}

func TestMaxNumberCap(t *testing.T) {
	t0 := time.Now().Truncate(time.Second)
	policy := model.TokenPolicy{
		Mode:        model.TokenModeFinite,
		GenInitial:  5,
		GenNumber:   1,
		GenInterval: time.Hour,
		MaxNumber:   iptr(2),
	}
	history := []time.Time{t0.Add(time.Minute), t0.Add(2 * time.Minute)}
	avail, err := TokensAvailable(policy, model.TokenPolicy{Mode: model.TokenModeInfinite}, t0, history, nil, t0.Add(3*time.Minute))
	if err != nil {
		t.Fatalf("TokensAvailable: %v", err)
	}
	if avail.Available != 0 {
		t.Fatalf("Available = %d, want 0 (max_number %d reached after %d plays)", avail.Available, 2, len(history))
	}
	if avail.NextGenTime != nil {
		t.Fatalf("NextGenTime = %v, want nil once max_number is reached", avail.NextGenTime)
	}
}
