package env

// nepers per decibel.
const neperPerDB = 1.0 / 8.685889638065035

// ThorpAttenuationDBPerKm returns the Thorp volume-attenuation estimate
// in dB/km for the given frequency in Hz. Valid for roughly 100 Hz to
// 50 kHz; the relaxation terms dominate in the sonar band.
func ThorpAttenuationDBPerKm(freqHz float64) float64 {
	f := freqHz / 1000.0 // kHz
	f2 := f * f
	return 0.11*f2/(1+f2) + 44*f2/(4100+f2) + 2.75e-4*f2 + 0.003
}

// VolumeAttenuation returns the volume-attenuation coefficient in Np/m
// for the given frequency in Hz, suitable for exponential decay over an
// arc-length step. Depth dependence is not modeled; the argument is
// accepted so the signature matches the evaluation interface.
func (e Environment) VolumeAttenuation(freqHz, depth float64) float64 {
	_ = depth
	return ThorpAttenuationDBPerKm(freqHz) * neperPerDB / 1000.0
}

