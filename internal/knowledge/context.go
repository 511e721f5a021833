package knowledge

const (
	KeyLastStudent = "lastMentionedStudent"
	KeyLastProject = "lastMentionedProject"
	// KeyKnownTopics is seeded from long-term memory when a session starts.
	KeyKnownTopics = "known_topics"
)

// Context is the conversational key/value state a rule can read and extend.
// Values are never modified in place; With returns a copy.
type Context map[string]string

func (c Context) Get(key string) string { return c[key] }

func (c Context) Clone() Context {
	out := make(Context, len(c)+1)
	for k, v := range c {
		out[k] = v
	}
	return out
}

// With returns a copy of c with key set to value.
func (c Context) With(key, value string) Context {
	out := c.Clone()
	out[key] = value
	return out
}
