package economy

import "testing"

func TestDecodeSymbols(t *testing.T) {
	cases := []struct {
		seq  string
		want rune
		ok   bool
	}{
		{".-", 'A', true},
		{"--", 'M', true},
		{"...", 'S', true},
		{"---", 'O', true},
		{" -.-. ", 'C', true},
		{".-.-.-", 0, false},
		{"", 0, false},
		{"x", 0, false},
	}
	for _, c := range cases {
		got, ok := DecodeSymbols(c.seq)
		if ok != c.ok || (ok && got != c.want) {
			t.Errorf("DecodeSymbols(%q) = %q, %v; want %q, %v", c.seq, got, ok, c.want, c.ok)
		}
	}
}

func TestAdvanceCipher(t *testing.T) {
	const word = "AM"

	t.Run("full solve", func(t *testing.T) {
		next, matched := advanceCipher(word, 0, ".-")
		if !matched || next != 1 {
			t.Fatalf("first letter: next=%d matched=%v", next, matched)
		}
		next, matched = advanceCipher(word, next, "--")
		if !matched || next != len(word) {
			t.Fatalf("second letter: next=%d matched=%v", next, matched)
		}
	})

	t.Run("wrong letter resets", func(t *testing.T) {
		next, matched := advanceCipher(word, 1, "...")
		if matched || next != 0 {
			t.Fatalf("next=%d matched=%v, want reset", next, matched)
		}
	})

	t.Run("undecodable resets", func(t *testing.T) {
		next, matched := advanceCipher(word, 1, "......")
		if matched || next != 0 {
			t.Fatalf("next=%d matched=%v, want reset", next, matched)
		}
	})

	t.Run("out of range progress resets", func(t *testing.T) {
		next, matched := advanceCipher(word, 99, ".-")
		if matched || next != 0 {
			t.Fatalf("next=%d matched=%v, want reset", next, matched)
		}
	})
}
