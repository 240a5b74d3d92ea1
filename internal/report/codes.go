package report

// Well-known finding codes shared between adapters and the evaluator.
const (
	// CodeAdapterFailure is the synthetic finding emitted when a tool exits
	// non-zero without any parseable output.
	CodeAdapterFailure = "ADAPTER_FAILURE"

	// CodeCoverageTotal carries the total coverage percentage in its payload.
	CodeCoverageTotal = "COVERAGE_TOTAL"

	// CodeAPIBreaking and CodeAPIMinor are emitted by the API diff
	// classifier for surface deltas.
	CodeAPIBreaking = "API_BREAKING_CHANGE"
	CodeAPIMinor    = "API_MINOR_CHANGE"

	// CodeUnparseableSource marks a file whose API impact could not be
	// determined and was classified breaking by default.
	CodeUnparseableSource = "API_UNPARSEABLE_SOURCE"
)
