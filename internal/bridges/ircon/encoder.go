package ircon

import "bytes"

// Wire protocol tokens.
const (
	tokenSeparator  = ':'
	tokenTerminator = ','
	frameTerminator = '\n'
)

// deleteFrame is sent verbatim on every delete, whatever the prior state.
var deleteFrame = []byte("mode:-,\n")

// DeleteFrame returns a copy of the bytes transmitted for a delete.
func DeleteFrame() []byte {
	return bytes.Clone(deleteFrame)
}

// Encoder turns written rows into command frames.
//
// For each recognised column in row order a non-empty value first updates
// the cache, then "<column>:<cached value>," is appended whether or not the
// cache changed. Unrecognised and null columns produce nothing. The frame
// always ends with a single newline, so a row with no recognised columns
// encodes to "\n".
type Encoder struct {
	Match MatchMode
}

// Encode applies row to cache and returns the resulting frame. It reports
// whether any cached value changed.
func (e Encoder) Encode(cache *StateCache, row Row) (frame []byte, changed bool) {
	var buf bytes.Buffer
	for _, f := range row {
		if !f.Value.Valid {
			continue
		}
		a, ok := e.Match.lookup(f.Name)
		if !ok {
			continue
		}

		if cache.Set(a, f.Value.String) {
			changed = true
		}

		buf.WriteString(f.Name)
		buf.WriteByte(tokenSeparator)
		buf.WriteString(cache.Get(a))
		buf.WriteByte(tokenTerminator)
	}
	buf.WriteByte(frameTerminator)
	return buf.Bytes(), changed
}
