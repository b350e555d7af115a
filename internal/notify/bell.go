package notify

import (
	"io"
	"os"
)

// Bell beeps by writing BEL to a terminal.
type Bell struct {
	W io.Writer // nil means os.Stderr
}

func (b Bell) Beep() error {
	w := b.W
	if w == nil {
		w = os.Stderr
	}
	_, err := io.WriteString(w, "\a")
	return err
}
