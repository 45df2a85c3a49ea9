package bridge

import "testing"

func TestStateTransitions(t *testing.T) {
	cases := []struct {
		from, to State
		want     bool
	}{
		{StateConnecting, StateActive, true},
		{StateConnecting, StateClosing, true},
		{StateConnecting, StateClosed, true},
		{StateActive, StateClosing, true},
		{StateClosing, StateClosed, true},
		{StateActive, StateConnecting, false},
		{StateActive, StateClosed, false},
		{StateClosed, StateActive, false},
		{StateClosed, StateClosing, false},
		{StateClosing, StateActive, false},
	}
	for _, tc := range cases {
		if got := canTransition(tc.from, tc.to); got != tc.want {
			t.Errorf("canTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}
