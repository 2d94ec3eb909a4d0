package types

import "fmt"

// FeatureCount is the number of values in a transaction feature vector.
const FeatureCount = 30

// FeatureNames lists the feature columns in vector order.
var FeatureNames = func() [FeatureCount]string {
	var names [FeatureCount]string
	names[0] = "Time"
	for i := 1; i <= 28; i++ {
		names[i] = fmt.Sprintf("V%d", i)
	}
	names[FeatureCount-1] = "Amount"
	return names
}()

// TransactionFeatures is the fixed-order feature vector [Time, V1..V28, Amount].
type TransactionFeatures [FeatureCount]float64

// Slice returns a copy of the features as a slice.
func (f TransactionFeatures) Slice() []float64 {
	out := make([]float64, FeatureCount)
	copy(out, f[:])
	return out
}

// FeatureIndex returns the vector position of a named feature.
func FeatureIndex(name string) (int, bool) {
	for i, n := range FeatureNames {
		if n == name {
			return i, true
		}
	}
	return -1, false
}
