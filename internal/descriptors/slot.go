// Package descriptors builds the file-descriptor table handed to a guest
// module and the TLS stream/listener types backing its network slots.
package descriptors

import "net/url"

// Kind identifies the shape a Slot provisions into a File.
type Kind int

const (
	KindNull Kind = iota
	KindStdin
	KindStdout
	KindStderr
	KindListen
	KindConnect
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindStdin:
		return "stdin"
	case KindStdout:
		return "stdout"
	case KindStderr:
		return "stderr"
	case KindListen:
		return "listen"
	case KindConnect:
		return "connect"
	default:
		return "unknown"
	}
}

// Slot describes one descriptor to provision. It is a flat struct rather
// than an interface hierarchy: only the fields relevant to Kind are read.
type Slot struct {
	Name    string
	Kind    Kind
	Addr    string // "host:port" for Listen/Connect
	TLS     bool   // wrap the connection in TLS
}

// EnvVar is an ordered environment variable pair. A slice (not a map)
// preserves insertion order without a second ordering index.
type EnvVar struct {
	Name  string
	Value string
}

// Config is the provisioning input: the steward URL (nil selects
// self-signed identity), process arguments, environment, and descriptor
// slots in table order.
type Config struct {
	Steward *url.URL
	Args    []string
	Env     []EnvVar
	Files   []Slot
}
