package textutil

import "testing"

func TestSanitizeText(t *testing.T) {
	cases := []struct {
		name  string
		input string
		limit int
		want  string
	}{
		{name: "strips tags", input: `<b>Leave at door</b><script>alert(1)</script>`, want: "Leave at door"},
		{name: "keeps entities readable", input: "Tom &amp; Jerry", want: "Tom & Jerry"},
		{name: "drops control chars", input: "ring\x07 bell\n twice", want: "ring bell\n twice"},
		{name: "caps length", input: "abcdef", limit: 3, want: "abc"},
		{name: "trims", input: "  spaced  ", want: "spaced"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeText(tc.input, tc.limit); got != tc.want {
				t.Fatalf("SanitizeText(%q) = %q, want %q", tc.input, got, tc.want)
			}
		})
	}
}
