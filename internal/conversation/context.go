package conversation

// Context is the slot-filling map stored with a session. Unknown keys are
// preserved so older sessions survive flow changes; the engine itself only
// reads and writes through the accessors below.
type Context map[string]string

const (
	keyTests        = "tests"
	keyArea         = "area"
	keySelectedDate = "selected_date"
	keySelectedSlot = "selected_slot"
)

// Clone returns a copy that is safe to mutate. A nil context clones to an empty one.
func (c Context) Clone() Context {
	out := make(Context, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

func (c Context) Tests() string        { return c[keyTests] }
func (c Context) Area() string         { return c[keyArea] }
func (c Context) SelectedDate() string { return c[keySelectedDate] }
func (c Context) SelectedSlot() string { return c[keySelectedSlot] }

func (c Context) WithTests(v string) Context        { return c.with(keyTests, v) }
func (c Context) WithArea(v string) Context         { return c.with(keyArea, v) }
func (c Context) WithSelectedDate(v string) Context { return c.with(keySelectedDate, v) }
func (c Context) WithSelectedSlot(v string) Context { return c.with(keySelectedSlot, v) }

func (c Context) with(key, value string) Context {
	out := c.Clone()
	out[key] = value
	return out
}
