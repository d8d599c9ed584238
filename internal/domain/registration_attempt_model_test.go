package domain

import "testing"

func TestSubnetOf(t *testing.T) {
	cases := []struct {
		ip   string
		want string
	}{
		{"203.0.113.57", "203.0.113.0/24"},
		{"203.0.113.0", "203.0.113.0/24"},
		{" 10.1.2.3 ", "10.1.2.0/24"},
		{"2001:db8::1", ""},
		{"not-an-ip", ""},
		{"", ""},
	}

	for _, tc := range cases {
		if got := SubnetOf(tc.ip); got != tc.want {
			t.Fatalf("SubnetOf(%q) = %q, want %q", tc.ip, got, tc.want)
		}
	}
}
