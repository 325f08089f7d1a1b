package task

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"reflect"
)

// Fingerprint is a structural digest of a Spec, used to decide whether two
// specs bound to the same ID are duplicates (keep one) or a conflict (error).
type Fingerprint string

// Fingerprint computes the structural digest of the spec: the callable
// identity plus every argument's kind and content.
//
// Named callables digest by name, so registered functions fingerprint stably
// across processes. Anonymous callables digest by function pointer, so two
// independently created closures never deduplicate even when behaviorally
// identical. Literals digest by their Go-syntax rendering; values whose
// rendering is unstable (e.g. maps with multiple keys) may fail to
// deduplicate, which is safe: the merge then reports a conflict rather than
// silently dropping a spec.
func (s *Spec) Fingerprint() Fingerprint {
	h := sha256.New()

	if s.FuncName != "" {
		fmt.Fprintf(h, "name:%s\n", s.FuncName)
	} else if s.Func != nil {
		fmt.Fprintf(h, "ptr:%x\n", reflect.ValueOf(s.Func).Pointer())
	} else {
		fmt.Fprint(h, "value\n")
	}

	for _, a := range s.Args {
		if a.IsRef() {
			fmt.Fprintf(h, "ref:%s\n", a.Ref())
		} else {
			fmt.Fprintf(h, "lit:%T:%#v\n", a.Value(), a.Value())
		}
	}

	return Fingerprint(hex.EncodeToString(h.Sum(nil)))
}
