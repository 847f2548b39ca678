package compiler

// Preprocess is a pass-through stage: it exists as a pipeline seam but
// performs no macro expansion or file inclusion. The lexer turns each
// `#`-prefixed line into a single PREPROCESSOR token and Parse drops
// those tokens, so such lines have no effect.
func Preprocess(src string) string {
	return src
}
