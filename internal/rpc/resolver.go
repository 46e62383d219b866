package rpc

import "fmt"

// ServiceCoord identifies one addressable endpoint: a service name plus the
// shard number of that service instance. (name, shard) is globally unique
// (see GLOSSARY: "Shard").
type ServiceCoord struct {
	Name  string
	Shard int
}

func (c ServiceCoord) String() string {
	return fmt.Sprintf("%s-%d", c.Name, c.Shard)
}

// Address is a resolved (host, port) pair.
type Address struct {
	Host string
	Port int
}

func (a Address) String() string {
	return fmt.Sprintf("%s:%d", a.Host, a.Port)
}

// Resolver maps a ServiceCoord to its Address via static configuration.
// A resolver failure is a fatal configuration error at startup and a
// connection refusal at runtime (§4.1).
type Resolver struct {
	table map[ServiceCoord]Address
}

// NewResolver builds a Resolver from a fixed address table.
func NewResolver(table map[ServiceCoord]Address) *Resolver {
	cp := make(map[ServiceCoord]Address, len(table))
	for k, v := range table {
		cp[k] = v
	}
	return &Resolver{table: cp}
}

// Resolve returns the Address for coord, or an error if it is not
// configured.
func (r *Resolver) Resolve(coord ServiceCoord) (Address, error) {
	addr, ok := r.table[coord]
	if !ok {
		return Address{}, fmt.Errorf("rpc: no configured endpoint for %s", coord)
	}
	return addr, nil
}

// ShardCount returns how many shards are configured for a service name.
func (r *Resolver) ShardCount(name string) int {
	count := 0
	for coord := range r.table {
		if coord.Name == name {
			count++
		}
	}
	return count
}
