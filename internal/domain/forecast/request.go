package forecast

// PredictionRequest is one prediction input as received from a client
type PredictionRequest struct {
	ProductID int64
	UnitPrice float64
	OrderDate string
	// Quantity is required by the calendar schema only
	Quantity *int64
}

// PredictionResult is a single prediction and the features that produced it
type PredictionResult struct {
	PredictedValue float64
	Features       FeatureVector
}
