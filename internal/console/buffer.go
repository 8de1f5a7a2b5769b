package console

import "strings"

// Buffer accumulates input lines into complete statements. A statement is
// complete at a semicolon outside quotes and comments. A line starting
// with "." while nothing is pending is a dot-command on its own.
type Buffer struct {
	pending string
}

// Feed appends a line and returns the statements it completes, trimmed
// and without their terminating semicolon.
func (b *Buffer) Feed(line string) []string {
	if b.pending == "" {
		if trimmed := strings.TrimSpace(line); strings.HasPrefix(trimmed, ".") {
			return []string{trimmed}
		}
	}
	b.pending += line + "\n"

	var stmts []string
	start := 0
	var quote byte
	inComment := false
	text := b.pending
	for i := 0; i < len(text); i++ {
		ch := text[i]
		switch {
		case inComment:
			if ch == '\n' {
				inComment = false
			}
		case quote != 0:
			if ch == quote {
				quote = 0
			}
		case ch == '\'' || ch == '"' || ch == '`':
			quote = ch
		case ch == '[':
			quote = ']'
		case ch == '-' && i+1 < len(text) && text[i+1] == '-':
			inComment = true
		case ch == ';':
			if stmt := strings.TrimSpace(text[start:i]); stmt != "" {
				stmts = append(stmts, stmt)
			}
			start = i + 1
		}
	}

	b.pending = text[start:]
	if strings.TrimSpace(b.pending) == "" {
		b.pending = ""
	}
	return stmts
}

// Pending reports whether an incomplete statement is buffered.
func (b *Buffer) Pending() bool {
	return b.pending != ""
}

// Flush returns the incomplete statement, if any, and empties the buffer.
func (b *Buffer) Flush() string {
	rest := strings.TrimSpace(b.pending)
	b.pending = ""
	return rest
}

// Reset discards any incomplete statement.
func (b *Buffer) Reset() {
	b.pending = ""
}
