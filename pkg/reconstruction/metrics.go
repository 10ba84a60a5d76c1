package reconstruction

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// ValidationMetrics compares a reconstruction with the array it was cut from.
type ValidationMetrics struct {
	// RMSE is the root mean square difference. Lower is better.
	RMSE float64

	// MaxAbsError is the largest absolute difference of a single element.
	MaxAbsError float64

	// SSIM is the global structural similarity index, in [-1, 1] with 1
	// meaning identical.
	SSIM float64

	// MI approximates the mutual information between the two arrays under a
	// Gaussian model. Higher means more information preserved.
	MI float64

	// EntropyDiff is the absolute difference of the Shannon entropies (bits)
	// of the two value histograms.
	EntropyDiff float64
}

// CompareArrays computes all metrics between original and reconstructed
// values. Both slices must have the same length.
func CompareArrays(original, reconstructed []float64) ValidationMetrics {
	if len(original) != len(reconstructed) || len(original) == 0 {
		return ValidationMetrics{}
	}
	return ValidationMetrics{
		RMSE:        calculateRMSE(original, reconstructed),
		MaxAbsError: floats.Distance(original, reconstructed, math.Inf(1)),
		SSIM:        calculateSSIM(original, reconstructed),
		MI:          calculateMutualInformation(original, reconstructed),
		EntropyDiff: math.Abs(calculateEntropy(original) - calculateEntropy(reconstructed)),
	}
}

// calculateRMSE computes the root mean square error
func calculateRMSE(original, reconstructed []float64) float64 {
	return floats.Distance(original, reconstructed, 2) / math.Sqrt(float64(len(original)))
}

// calculateSSIM computes the Structural Similarity Index over the whole array
func calculateSSIM(original, reconstructed []float64) float64 {
	const (
		dynamicRange = 1.0
		k1           = 0.01
		k2           = 0.03
	)
	c1 := (k1 * dynamicRange) * (k1 * dynamicRange)
	c2 := (k2 * dynamicRange) * (k2 * dynamicRange)

	muX := stat.Mean(original, nil)
	muY := stat.Mean(reconstructed, nil)
	var sigmaX, sigmaY, sigmaXY float64
	if len(original) > 1 {
		sigmaX = stat.Variance(original, nil)
		sigmaY = stat.Variance(reconstructed, nil)
		sigmaXY = stat.Covariance(original, reconstructed, nil)
	}

	num := (2*muX*muY + c1) * (2*sigmaXY + c2)
	den := (muX*muX + muY*muY + c1) * (sigmaX + sigmaY + c2)
	return num / den
}

// calculateMutualInformation uses MI = 0.5 * log(var(X) var(Y) / det(cov)).
// Identical or perfectly correlated inputs have a singular covariance, up to
// rounding, and are reported as +Inf.
func calculateMutualInformation(original, reconstructed []float64) float64 {
	if len(original) < 2 {
		return 0
	}
	varX := stat.Variance(original, nil)
	varY := stat.Variance(reconstructed, nil)
	if varX == 0 || varY == 0 {
		return 0
	}
	cov := stat.Covariance(original, reconstructed, nil)
	det := varX*varY - cov*cov
	if det <= 1e-12*varX*varY {
		return math.Inf(1)
	}
	return 0.5 * math.Log(varX*varY/det)
}

const entropyBins = 256

// calculateEntropy computes the Shannon entropy, in bits, of a 256-bin
// histogram of data
func calculateEntropy(data []float64) float64 {
	lo, hi := floats.Min(data), floats.Max(data)
	if hi <= lo {
		return 0
	}
	hist := make([]float64, entropyBins)
	binWidth := (hi - lo) / entropyBins
	for _, v := range data {
		bin := min(int((v-lo)/binWidth), entropyBins-1)
		hist[bin]++
	}
	floats.Scale(1/float64(len(data)), hist)
	return stat.Entropy(hist) / math.Ln2
}
