package client

import (
	"sync"

	"github.com/grafana/cqlclient/pkg/driver"
)

// Prepared is a named, engine-compiled query template. It is shared by
// pointer: registering a new statement under the same name does not
// invalidate existing holders.
type Prepared struct {
	name   string
	handle *driver.PreparedQuery
}

func newPrepared(name string, handle *driver.PreparedQuery) *Prepared {
	return &Prepared{name: name, handle: handle}
}

func (p *Prepared) Name() string  { return p.name }
func (p *Prepared) Query() string { return p.handle.Query }

// Bind returns a new statement executing p with the given placeholder values.
func (p *Prepared) Bind(args ...interface{}) *Statement {
	s := NewStatement(p.handle.Query, args...)
	s.prepared = p
	return s
}

// registry maps names to prepared statements for one session.
type registry struct {
	mu         sync.RWMutex
	statements map[string]*Prepared
}

func newRegistry() *registry {
	return &registry{statements: map[string]*Prepared{}}
}

func (r *registry) put(p *Prepared) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statements[p.name] = p
}

func (r *registry) get(name string) (*Prepared, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.statements[name]
	return p, ok
}

func (r *registry) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.statements)
}
