package session

import (
	"github.com/meshkv/meshkv/asyncresult"
	"github.com/meshkv/meshkv/internal/errs"
)

// applyPolicy wraps raw into a new Result that applies s.Filter per entry
// (spec §4.1/§4.2: filter sits at the handler/subscriber boundary) and
// s.Checker at completion (grouping successes by source group id, spec
// §4.2's "checker runs at completion time by counting successful entries
// grouped by source group id").
func (s *Session) applyPolicy(raw *asyncresult.Result) *asyncresult.Result {
	out := asyncresult.New()
	successByGroup := map[interface{}]int{}
	anySuccess := false
	var firstErr error

	raw.Subscribe(asyncresult.Subscriber{
		OnEntry: func(e asyncresult.Entry) {
			if e.Err == nil {
				anySuccess = true
				successByGroup[e.Source]++
			} else if firstErr == nil {
				firstErr = e.Err
			}
			if s.admit(e) {
				out.Process(e)
			}
		},
		OnFinal: func(err error) {
			if err == nil {
				err = s.checkerError(anySuccess, successByGroup, firstErr)
			}
			out.Complete(err)
		},
	})

	return out
}

// admit applies s.Filter to a single entry.
func (s *Session) admit(e asyncresult.Entry) bool {
	switch s.Filter {
	case FilterPositive:
		return e.Err == nil
	case FilterNegative:
		return e.Err != nil
	case FilterAll:
		return e.Data != nil || e.Err != nil
	case FilterAllWithAck:
		return true
	default:
		return true
	}
}

// checkerError evaluates s.Checker over the accumulated per-group success
// counts, returning nil on success or the terminal error to propagate.
func (s *Session) checkerError(anySuccess bool, successByGroup map[interface{}]int, firstErr error) error {
	switch s.Checker {
	case CheckerNoCheck:
		return nil
	case CheckerAtLeastOne:
		if anySuccess {
			return nil
		}
	case CheckerAll:
		if len(s.Groups) == 0 {
			return nil
		}
		ok := true
		for _, g := range s.Groups {
			if successByGroup[g] == 0 {
				ok = false
				break
			}
		}
		if ok {
			return nil
		}
	case CheckerQuorum:
		needed := len(s.Groups)/2 + 1
		succeeded := 0
		for _, g := range s.Groups {
			if successByGroup[g] > 0 {
				succeeded++
			}
		}
		if succeeded >= needed {
			return nil
		}
	}
	if firstErr != nil {
		return firstErr
	}
	return errs.New(errs.NotFound, "no successful replies")
}
