package memory

// Kind identifies which side of the host/accelerator boundary a memory block
// is reachable from.
type Kind int

const (
	// KindInvalid marks a pointer not registered under any kind.
	KindInvalid Kind = iota
	// KindAccelerator is memory reachable only from the accelerator.
	KindAccelerator
	// KindHost is memory reachable only from the host.
	KindHost
	// KindAccessible is memory reachable from both host and accelerator.
	KindAccessible

	numKinds
)

// kinds lists the valid kinds in classification order.
var kinds = [...]Kind{KindAccelerator, KindHost, KindAccessible}

func (k Kind) String() string {
	switch k {
	case KindAccelerator:
		return "accelerator"
	case KindHost:
		return "host"
	case KindAccessible:
		return "accessible"
	default:
		return "invalid"
	}
}

func (k Kind) valid() bool {
	return k == KindAccelerator || k == KindHost || k == KindAccessible
}
