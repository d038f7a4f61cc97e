package typing

// Unit is the empty result of effectful fp-go pipelines.
type Unit = struct{}
