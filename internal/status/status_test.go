package status

import "testing"

func TestValidTransitions(t *testing.T) {
	tests := []struct {
		from Status
		to   Status
	}{
		{Sending, Sent},
		{Sending, Failed},
		{Sent, Delivered},
		{Sent, Received},
		{Delivered, Received},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			if !CanTransition(tt.from, tt.to) {
				t.Errorf("CanTransition(%s, %s) = false, want true", tt.from, tt.to)
			}
		})
	}
}

func TestInvalidTransitions(t *testing.T) {
	tests := []struct {
		from Status
		to   Status
	}{
		{Sent, Sending},
		{Failed, Sent},
		{Received, Delivered},
		{Sending, Delivered},
		{Delivered, Sending},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			if CanTransition(tt.from, tt.to) {
				t.Errorf("CanTransition(%s, %s) = true, want false", tt.from, tt.to)
			}
		})
	}
}

// TestSameStatusAllowed covers platforms redelivering webhook events: the
// resulting no-op status update must not be rejected as an illegal move.
func TestSameStatusAllowed(t *testing.T) {
	for _, s := range []Status{Sending, Sent, Delivered, Received, Failed} {
		if !CanTransition(s, s) {
			t.Errorf("CanTransition(%s, %s) = false, want true", s, s)
		}
	}
}

func TestValid(t *testing.T) {
	for _, s := range []Status{Sending, Sent, Delivered, Received, Failed} {
		if !Valid(s) {
			t.Errorf("Valid(%s) = false", s)
		}
	}
	if Valid("queued") {
		t.Error(`Valid("queued") = true, want false`)
	}
}
