package policy

import (
	"errors"
	"math"
	"math/rand"
	"testing"
)

func TestUniform_Range(t *testing.T) {
	policy, err := NewUniform(9, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("Failed to create uniform policy: %v", err)
	}

	for i := 0; i < 1000; i++ {
		action := policy.SelectAction()
		if action < 0 || action >= 9 {
			t.Fatalf("Action %d out of range [0, 8]", action)
		}
	}
}

func TestUniform_MultipleSelections(t *testing.T) {
	policy, err := NewUniform(9, nil)
	if err != nil {
		t.Fatalf("Failed to create uniform policy: %v", err)
	}

	actionSet := make(map[int]bool)
	for i := 0; i < 100; i++ {
		actionSet[policy.SelectAction()] = true
	}

	// Should have at least 2 different actions (highly probable)
	if len(actionSet) < 2 {
		t.Errorf("Expected multiple different actions, got only %d unique actions", len(actionSet))
	}
}

func TestUniform_InvalidActionSpace(t *testing.T) {
	if _, err := NewUniform(0, nil); err == nil {
		t.Error("Expected error for empty action space")
	}
}

func TestEpsilonGreedy_ExploreSkipsInference(t *testing.T) {
	policy, err := NewEpsilonGreedy(4, 1.0, 0.1, 0.5, rand.New(rand.NewSource(2)))
	if err != nil {
		t.Fatalf("Failed to create policy: %v", err)
	}

	for i := 0; i < 200; i++ {
		action, err := policy.Select(func() (int, error) {
			t.Fatal("greedy called on explore branch")
			return 0, nil
		})
		if err != nil {
			t.Fatalf("Select failed: %v", err)
		}
		if action < 0 || action >= 4 {
			t.Fatalf("Action %d out of range", action)
		}
	}
}

func TestEpsilonGreedy_ExploitUsesGreedy(t *testing.T) {
	policy, err := NewEpsilonGreedy(4, 0, 0, 0.5, rand.New(rand.NewSource(3)))
	if err != nil {
		t.Fatalf("Failed to create policy: %v", err)
	}

	calls := 0
	for i := 0; i < 50; i++ {
		action, err := policy.Select(func() (int, error) {
			calls++
			return 2, nil
		})
		if err != nil {
			t.Fatalf("Select failed: %v", err)
		}
		if action != 2 {
			t.Fatalf("Expected greedy action 2, got %d", action)
		}
	}
	if calls != 50 {
		t.Errorf("Expected 50 greedy calls, got %d", calls)
	}
}

func TestEpsilonGreedy_GreedyErrors(t *testing.T) {
	policy, err := NewEpsilonGreedy(3, 0, 0, 1, nil)
	if err != nil {
		t.Fatalf("Failed to create policy: %v", err)
	}

	boom := errors.New("boom")
	if _, err := policy.Select(func() (int, error) { return 0, boom }); !errors.Is(err, boom) {
		t.Errorf("Expected greedy error to propagate, got %v", err)
	}
	if _, err := policy.Select(func() (int, error) { return 3, nil }); err == nil {
		t.Error("Expected error for out of range greedy action")
	}
}

func TestEpsilonGreedy_DecaySequence(t *testing.T) {
	policy, err := NewEpsilonGreedy(2, 1.0, 0.1, 0.5, nil)
	if err != nil {
		t.Fatalf("Failed to create policy: %v", err)
	}

	want := []float64{1.0, 0.5, 0.25, 0.125, 0.1, 0.1}
	for i, w := range want {
		if got := policy.Epsilon(); math.Abs(got-w) > 1e-12 {
			t.Fatalf("step %d: epsilon = %g, want %g", i, got, w)
		}
		policy.Decay()
	}
}

func TestEpsilonGreedy_NonIncreasing(t *testing.T) {
	policy, err := NewEpsilonGreedy(2, 0.9, 0.05, 0.97, nil)
	if err != nil {
		t.Fatalf("Failed to create policy: %v", err)
	}

	prev := policy.Epsilon()
	for i := 0; i < 500; i++ {
		policy.Decay()
		cur := policy.Epsilon()
		if cur > prev {
			t.Fatalf("epsilon increased from %g to %g", prev, cur)
		}
		if cur < 0.05 {
			t.Fatalf("epsilon %g dropped below floor", cur)
		}
		prev = cur
	}
	if prev != 0.05 {
		t.Errorf("Expected epsilon to settle at floor, got %g", prev)
	}
}

func TestEpsilonGreedy_InvalidParameters(t *testing.T) {
	cases := []struct {
		name              string
		start, min, decay float64
	}{
		{"start above one", 1.5, 0.1, 0.5},
		{"min above start", 0.2, 0.3, 0.5},
		{"negative min", 0.2, -0.1, 0.5},
		{"zero decay", 1, 0.1, 0},
		{"decay above one", 1, 0.1, 1.1},
	}
	for _, tc := range cases {
		if _, err := NewEpsilonGreedy(2, tc.start, tc.min, tc.decay, nil); err == nil {
			t.Errorf("%s: expected error", tc.name)
		}
	}
}
