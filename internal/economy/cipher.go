package economy

import "strings"

// morseTable maps a finished dot/dash sequence to its letter. The engine
// never interprets press timings; clients submit the finished sequence for
// one letter at a time.
var morseTable = map[string]rune{
	".-":   'A',
	"-...": 'B',
	"-.-.": 'C',
	"-..":  'D',
	".":    'E',
	"..-.": 'F',
	"--.":  'G',
	"....": 'H',
	"..":   'I',
	".---": 'J',
	"-.-":  'K',
	".-..": 'L',
	"--":   'M',
	"-.":   'N',
	"---":  'O',
	".--.": 'P',
	"--.-": 'Q',
	".-.":  'R',
	"...":  'S',
	"-":    'T',
	"..-":  'U',
	"...-": 'V',
	".--":  'W',
	"-..-": 'X',
	"-.--": 'Y',
	"--..": 'Z',
}

// DecodeSymbols resolves one dot/dash sequence to a letter.
func DecodeSymbols(seq string) (rune, bool) {
	r, ok := morseTable[strings.TrimSpace(seq)]
	return r, ok
}

// advanceCipher matches a decoded letter against position progress of the
// secret word. A wrong letter (or an undecodable sequence) resets progress
// to zero; a match advances it.
func advanceCipher(word string, progress int, seq string) (next int, matched bool) {
	if progress < 0 || progress >= len(word) {
		return 0, false
	}
	letter, ok := DecodeSymbols(seq)
	if !ok || letter != rune(word[progress]) {
		return 0, false
	}
	return progress + 1, true
}
