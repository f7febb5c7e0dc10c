package transport

import (
	"fmt"
	"net"
	"sync/atomic"
)

var connSeq atomic.Uint64

// ConnID builds a process-unique label for a connection from its kind and
// remote address. It is used for logging and registry keys.
func ConnID(kind Kind, addr net.Addr) string {
	n := connSeq.Add(1)
	if addr == nil {
		return fmt.Sprintf("%s:unknown#%d", kind, n)
	}
	return fmt.Sprintf("%s:%s#%d", kind, addr.String(), n)
}
