package procpool

// The parent and its worker children speak a stream of msgpack-encoded
// messages over the child's stdin/stdout: one request per task, one response
// per request, in order. Values that msgpack cannot represent never enter the
// stream; both sides pre-marshal and convert failures into transfer errors.

type request struct {
	ID   string `msgpack:"id"`
	Name string `msgpack:"name"`
	Args []any  `msgpack:"args"`
}

type response struct {
	ID     string `msgpack:"id"`
	Value  any    `msgpack:"value"`
	Failed bool   `msgpack:"failed"`
	// Transfer distinguishes "could not cross the boundary" from "the
	// callable returned an error".
	Transfer bool   `msgpack:"transfer"`
	ErrMsg   string `msgpack:"err_msg"`
}
