package models

// OutputBundle holds the rendered artifacts for one version of a creation.
// Empty paths mean the artifact was not produced.
type OutputBundle struct {
	ContentFile string `json:"abc_file"`
	ScoreFile   string `json:"score_file,omitempty"`
	AudioFile   string `json:"audio_file,omitempty"`
	MIDIFile    string `json:"midi_file,omitempty"`
}
