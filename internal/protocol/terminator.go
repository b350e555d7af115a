package protocol

import "strings"

// DecodeTerminator turns the escape sequences \r, \n, \t and \\ into the
// bytes they stand for. Any other backslash is kept literally.
func DecodeTerminator(s string) []byte {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 == len(s) {
			out = append(out, c)
			continue
		}
		switch s[i+1] {
		case 'r':
			out = append(out, '\r')
		case 'n':
			out = append(out, '\n')
		case 't':
			out = append(out, '\t')
		case '\\':
			out = append(out, '\\')
		default:
			out = append(out, c)
			continue
		}
		i++
	}
	return out
}

var terminatorEscaper = strings.NewReplacer(
	`\`, `\\`,
	"\r", `\r`,
	"\n", `\n`,
	"\t", `\t`,
)

// EncodeTerminator is the inverse of DecodeTerminator.
func EncodeTerminator(b []byte) string {
	return terminatorEscaper.Replace(string(b))
}
