// Package cli maps command lines onto compassh operations.
package cli

// Action is one requested operation. The set of actions is closed: every
// variant is declared in this file and handled by App.Run.
type Action interface {
	action()
}

// List shows tunnel status. An empty Tunnel lists every tunnel.
type List struct {
	Tunnel string
}

// Start brings tunnels up. No names means every tunnel.
type Start struct {
	Tunnels []string
}

// Stop shuts tunnels down. No names means every tunnel.
type Stop struct {
	Tunnels []string
}

// Restart stops then starts tunnels. No names means every tunnel.
type Restart struct {
	Tunnels []string
}

// ShowProfile prints a tunnel's dedicated SSH profile.
type ShowProfile struct {
	Tunnel string
}

// ListHosts prints the address override table.
type ListHosts struct{}

// AddHost sets an address override.
type AddHost struct {
	Host string
	Addr string
}

// RemoveHost deletes an address override.
type RemoveHost struct {
	Host string
}

// ListPatterns prints the routing rules in match order.
type ListPatterns struct{}

// Resolve prints the routing decision for a host without starting anything.
type Resolve struct {
	Host string
}

// Proxy relays stdin/stdout to Host:Port, tunneling when a rule matches.
type Proxy struct {
	Host string
	Port int
}

func (List) action()         {}
func (Start) action()        {}
func (Stop) action()         {}
func (Restart) action()      {}
func (ShowProfile) action()  {}
func (ListHosts) action()    {}
func (AddHost) action()      {}
func (RemoveHost) action()   {}
func (ListPatterns) action() {}
func (Resolve) action()      {}
func (Proxy) action()        {}
