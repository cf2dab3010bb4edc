package types

// Source selects where registry reads and writes are routed.
type Source string

const (
	SourceMock    Source = "mock"
	SourceProd    Source = "prod"
	SourceStaging Source = "staging"
)

// ParseSource maps a request header value onto a Source. Anything
// unrecognized (including the empty string) means mock.
func ParseSource(s string) Source {
	switch Source(s) {
	case SourceProd:
		return SourceProd
	case SourceStaging:
		return SourceStaging
	}
	return SourceMock
}

// Remote reports whether the source routes through the proxy adapter.
func (s Source) Remote() bool {
	return s == SourceProd || s == SourceStaging
}
