package session

//go:generate enumer -type=FilterKind -output=filterkind_string.go

// FilterKind is the per-entry admission predicate applied before entries
// reach a caller (spec §4.1/§4.2).
type FilterKind int

const (
	// FilterPositive admits only entries with status == 0.
	FilterPositive FilterKind = iota
	// FilterNegative admits only entries with status != 0.
	FilterNegative
	// FilterAll admits everything except terminal acks carrying no body.
	FilterAll
	// FilterAllWithAck admits every entry, including terminal acks.
	FilterAllWithAck
)

//go:generate enumer -type=CheckerKind -output=checkerkind_string.go

// CheckerKind is the terminal-outcome predicate evaluated over the set of
// delivered entries once an async result completes (spec §4.1/§4.2).
type CheckerKind int

const (
	// CheckerNoCheck always reports success.
	CheckerNoCheck CheckerKind = iota
	// CheckerAtLeastOne requires >=1 entry with status 0.
	CheckerAtLeastOne
	// CheckerAll requires every configured group to have returned >=1
	// success.
	CheckerAll
	// CheckerQuorum requires more than half of the configured groups to
	// have returned a success.
	CheckerQuorum
)

// ExceptionPolicy is a bitset of exception-raising points (at start, at
// wait, at get, at iterator end). A Session carries one in its Exceptions
// field, but no operation in this module reads it: a terminal failure is
// reported the same way whichever bits are set.
type ExceptionPolicy uint32

const (
	ExceptionAtStart ExceptionPolicy = 1 << iota
	ExceptionAtWait
	ExceptionAtGet
	ExceptionAtIteratorEnd
	// ExceptionNone is the empty set.
	ExceptionNone ExceptionPolicy = 0
)

func (p ExceptionPolicy) Has(bit ExceptionPolicy) bool { return p&bit != 0 }
