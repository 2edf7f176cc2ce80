package store

import "testing"

func TestPageTokenRoundTrip(t *testing.T) {
	cases := []PageToken{
		{LastTs: 0, LastSeq: 0},
		{LastTs: 1731021, LastSeq: 7},
		{LastTs: -5, LastSeq: 3},
	}
	for _, tok := range cases {
		s := FormatPageToken(tok)
		got, err := ParsePageToken(s)
		if err != nil {
			t.Fatalf("ParsePageToken(%q): %v", s, err)
		}
		if got != tok {
			t.Errorf("round trip mismatch: want %+v got %+v", tok, got)
		}
	}
}

func TestParsePageTokenMalformed(t *testing.T) {
	for _, s := range []string{"", "abc", "1_", "_1", "1_2_3x"} {
		if _, err := ParsePageToken(s); err == nil {
			t.Errorf("expected error parsing %q", s)
		}
	}
}
