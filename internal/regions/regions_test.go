package regions

import "testing"

func TestNormalize(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"GA", "Georgia"},
		{"ga", "Georgia"},
		{" NV ", "Nevada"},
		{"N. Carolina", "North Carolina"},
		{"Washington D.C.", "District of Columbia"},
		{"Georgia", "Georgia"},
		{"Guam", "Guam"},
	}
	for _, c := range cases {
		if got := Normalize(c.in); got != c.want {
			t.Fatalf("Normalize(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
