package batch

import "errors"

// ErrUnsupported is recorded for operations whose endpoints do not form a
// legal copy (memory to memory, or a file range without a handle).
var ErrUnsupported = errors.New("unsupported copy operation")

// Endpoint is one side of a copy. The only implementations are FileRange and
// Memory.
type Endpoint interface {
	endpoint()
}

// FileRange addresses Length bytes of a file starting at Offset. Length is
// only consulted when the range is a copy source.
type FileRange struct {
	Handle *Handle
	Offset int64
	Length int64
}

// Memory is a caller-owned byte region. The engine never copies or retains
// it past batch completion.
type Memory struct {
	Data []byte
}

func (FileRange) endpoint() {}
func (Memory) endpoint()    {}

// File is shorthand for a FileRange literal.
func File(h *Handle, offset, length int64) FileRange {
	return FileRange{Handle: h, Offset: offset, Length: length}
}

// Mem is shorthand for a Memory literal.
func Mem(b []byte) Memory {
	return Memory{Data: b}
}

// Op is a single copy between two endpoints.
type Op struct {
	Src   Endpoint
	Dst   Endpoint
	Flags uint32 // reserved
}

// Route identifies which raw I/O request an Op turns into.
type Route int

const (
	RouteInvalid Route = iota
	RouteCopy          // file -> file
	RouteRead          // file -> memory
	RouteWrite         // memory -> file
)

func (r Route) String() string {
	switch r {
	case RouteCopy:
		return "copy"
	case RouteRead:
		return "read"
	case RouteWrite:
		return "write"
	default:
		return "invalid"
	}
}

// Route classifies the op by its (source, destination) pair.
func (o Op) Route() Route {
	switch src := o.Src.(type) {
	case FileRange:
		if src.Handle == nil {
			return RouteInvalid
		}
		switch dst := o.Dst.(type) {
		case FileRange:
			if dst.Handle != nil {
				return RouteCopy
			}
		case Memory:
			return RouteRead
		}
	case Memory:
		if dst, ok := o.Dst.(FileRange); ok && dst.Handle != nil {
			return RouteWrite
		}
	}
	return RouteInvalid
}
