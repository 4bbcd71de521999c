package views

// Stream identifies one of the per-session CSV exports. The model's
// CSVHeader() writes the header; SchemaColumns is the reference the
// recording stage validates against before opening a file.
type Stream int

const (
	StreamEuler Stream = iota
	StreamDiagnostics
	StreamSamples
)

var streamNames = map[Stream]string{
	StreamEuler:       "euler_angles",
	StreamDiagnostics: "diagnostics",
	StreamSamples:     "samples",
}

func (s Stream) String() string {
	if n, ok := streamNames[s]; ok {
		return n
	}
	return "unknown"
}

// FileName is the export's name inside a session directory.
func (s Stream) FileName() string {
	return s.String() + ".csv"
}

// SchemaColumns is the canonical column list of each export.
var SchemaColumns = map[Stream][]string{
	StreamEuler: {"Timestamp", "Roll", "Pitch", "Yaw"},
	StreamDiagnostics: {
		"index", "timestamp",
		"q_w", "q_x", "q_y", "q_z",
		"roll", "pitch", "yaw",
		"acceleration_error", "accelerometer_ignored", "acceleration_recovery_trigger",
		"magnetic_error", "magnetometer_ignored", "magnetic_recovery_trigger",
		"initialising", "angular_rate_recovery", "acceleration_recovery", "magnetic_recovery",
	},
	// same layout the replay tooling reads
	StreamSamples: {
		"timestamp",
		"gyro_x", "gyro_y", "gyro_z",
		"accel_x", "accel_y", "accel_z",
		"mag_x", "mag_y", "mag_z",
	},
}

// MatchesSchema reports whether header is exactly the schema of s.
func MatchesSchema(s Stream, header []string) bool {
	want, ok := SchemaColumns[s]
	if !ok || len(want) != len(header) {
		return false
	}
	for i := range want {
		if want[i] != header[i] {
			return false
		}
	}
	return true
}
