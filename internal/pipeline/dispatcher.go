package pipeline

// Dispatcher selects, per file, every registered parser whose CanParse
// reports true. A single file may be claimed by several parsers (a generic
// JSON parser and a Terraform-plan parser both match *.json); all of them
// run and their streams merge downstream.
type Dispatcher struct {
	parsers []Parser
}

// NewDispatcher builds a dispatcher over the given parser plug-ins.
func NewDispatcher(parsers []Parser) *Dispatcher {
	return &Dispatcher{parsers: parsers}
}

// Register appends a parser; registration order is preserved and parsers
// run in it, which keeps per-file emission order deterministic.
func (d *Dispatcher) Register(p Parser) {
	d.parsers = append(d.parsers, p)
}

// ParsersFor returns the parsers claiming path, in registration order.
func (d *Dispatcher) ParsersFor(path string) []Parser {
	var matched []Parser
	for _, p := range d.parsers {
		if p.CanParse(path) {
			matched = append(matched, p)
		}
	}
	return matched
}

// Parsers returns all registered parsers.
func (d *Dispatcher) Parsers() []Parser {
	return d.parsers
}
