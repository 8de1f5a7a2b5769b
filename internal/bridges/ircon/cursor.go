package ircon

// Cursor materialises the single synthetic row a scan produces.
//
// It is a two-valued state machine: armed after Init, exhausted after the
// first Next. The zero value is exhausted.
type Cursor struct {
	share *Share
	armed bool
}

// NewCursor returns an exhausted cursor reading from share.
func NewCursor(share *Share) *Cursor {
	return &Cursor{share: share}
}

// Init arms the cursor so the next call to Next yields a row.
func (c *Cursor) Init() {
	c.armed = true
}

// Exhausted reports whether Next would return ErrEndOfData.
func (c *Cursor) Exhausted() bool {
	return !c.armed
}

// Next returns the current device state as one row with the requested
// columns, then exhausts the cursor. Columns are matched to attributes
// exactly; any other name is filled with Sentinel. Once exhausted Next
// returns ErrEndOfData until Init is called again.
func (c *Cursor) Next(columns []string) (Row, error) {
	if !c.armed || c.share == nil {
		return nil, ErrEndOfData
	}

	state := c.share.State()
	row := make(Row, len(columns))
	for i, name := range columns {
		value := Sentinel
		if a, ok := LookupAttribute(name); ok {
			value = state.Get(a)
		}
		row[i] = NewField(name, value)
	}

	c.armed = false
	return row, nil
}
