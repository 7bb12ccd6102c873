// Package circuit isolates operations that keep failing.
//
// A Breaker tracks one circuit per key. Keys come from MakeKey, which
// combines the operation name with the parameters that identify its target
// (working directory, model, provider), so a broken repository does not
// stop calls against a healthy one:
//
//	key := circuit.MakeKey("review", params)
//	if d := breaker.CanExecute(key); !d.Allowed {
//	    return d.Err(key) // *circuit.OpenError
//	}
//	if err := call(); err != nil {
//	    breaker.RecordFailure(key, err)
//	    return err
//	}
//	breaker.RecordSuccess(key)
//
// Circuits without recent failures hold no state. Entries are created by the
// first failure and deleted when their failures decay, when a half-open
// trial succeeds, or when FailureWindow passes without a new failure.
package circuit
