// Package targets lists the lensed galaxies observed by the TEMPLATES
// Early Release Science program.
package targets

// Names returns the program's target names in their conventional order.
func Names() []string {
	return []string{"SGAS1723+34", "SGAS1226+21", "SPT2147-50", "SPT0418-47"}
}

// Redshifts returns the redshift of each target, keyed by Names.
// The SPT redshifts are known to fewer digits.
func Redshifts() map[string]float64 {
	names := Names()
	z := []float64{1.3293, 2.9252, 3.76, 4.22}

	out := make(map[string]float64, len(names))
	for i, name := range names {
		out[name] = z[i]
	}
	return out
}
