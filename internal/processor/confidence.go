package processor

const (
	recognitionWeight = 0.7
	validationWeight  = 0.3
)

// Aggregate combines raw recognition confidence with the validation
// confidence into the final score in [0,1].
func Aggregate(recognitionConfidences []float64, validationConfidence float64) float64 {
	recognitionScore := 0.0
	if len(recognitionConfidences) > 0 {
		total := 0.0
		for _, c := range recognitionConfidences {
			total += c
		}
		recognitionScore = total / float64(len(recognitionConfidences))
	}
	return clamp01(recognitionScore*recognitionWeight + validationConfidence*validationWeight)
}

// RecognitionConfidences flattens the token confidences of blocks in order
func RecognitionConfidences(blocks []TextBlock) []float64 {
	n := 0
	for _, b := range blocks {
		n += len(b.TokenConfidences)
	}
	out := make([]float64, 0, n)
	for _, b := range blocks {
		out = append(out, b.TokenConfidences...)
	}
	return out
}
