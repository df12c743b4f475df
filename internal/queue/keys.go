package queue

// keys builds queue key names. The queue name is a hash tag so every key of
// one queue lands in the same cluster slot.
type keys struct {
	base string
}

func newKeys(prefix, name string) keys {
	if name == "" {
		name = "default"
	}
	return keys{base: prefix + "queue:{" + name + "}:"}
}

func (k keys) pending() string      { return k.base + "pending" }
func (k keys) delayed() string      { return k.base + "delayed" }
func (k keys) active() string       { return k.base + "active" }
func (k keys) jobPrefix() string    { return k.base + "job:" }
func (k keys) job(id string) string { return k.jobPrefix() + id }
