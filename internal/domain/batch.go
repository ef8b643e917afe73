package domain

// BatchStatus tags a BatchResponse.
type BatchStatus string

const (
	BatchSuccess        BatchStatus = "success"
	BatchPartialFailure BatchStatus = "partial_failure"
	BatchError          BatchStatus = "error"
)

// OrderFailure is one rejected order within a batch.
type OrderFailure struct {
	// Index is the position of the order within the submitted batch, or -1
	// when the exchange did not report one.
	Index  int
	Reason string
}

// BatchResponse is the decoded result of one batch submission. Exactly one
// of the following holds:
//
//	Success:        IDs set, Failures empty, Reason empty
//	PartialFailure: Failures non-empty (IDs may be empty)
//	Error:          Reason set, no IDs
type BatchResponse struct {
	Status   BatchStatus
	IDs      []string
	Failures []OrderFailure
	Reason   string
}

// NewBatchResponse tags ids and failures as Success or PartialFailure.
func NewBatchResponse(ids []string, failures []OrderFailure) BatchResponse {
	if len(failures) == 0 {
		return BatchResponse{Status: BatchSuccess, IDs: ids}
	}
	return BatchResponse{Status: BatchPartialFailure, IDs: ids, Failures: failures}
}

// BatchErrorResponse builds an Error-tagged response.
func BatchErrorResponse(reason string) BatchResponse {
	return BatchResponse{Status: BatchError, Reason: reason}
}

// CancelResult is the exchange's answer to a bulk cancellation.
type CancelResult struct {
	Canceled    []string
	NotCanceled map[string]string
}
