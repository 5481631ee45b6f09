package pdfmu

// EmptyResult is returned by operations that have nothing to report.
type EmptyResult struct{}

// VersionResult is the result of UpdateVersion.
type VersionResult struct {
	// Version of the output document, or of the input when it was left
	// unchanged.
	Version string `json:"version"`
	// Changed is false when no output was written.
	Changed bool `json:"changed"`
}

// SignatureResult describes one signature field of an inspected document.
type SignatureResult struct {
	Name     string `json:"name"`
	Signed   bool   `json:"signed"`
	Filter   string `json:"filter,omitempty"`
	Reason   string `json:"reason,omitempty"`
	Location string `json:"location,omitempty"`
	Contact  string `json:"contact,omitempty"`
	Date     string `json:"date,omitempty"`
}

// InspectResult is the result of Inspect.
type InspectResult struct {
	Version    string            `json:"version"`
	Header     string            `json:"header"`
	Size       int64             `json:"size"`
	Encrypted  bool              `json:"encrypted"`
	Properties map[string]string `json:"properties"`
	Signatures []SignatureResult `json:"signatures"`
}
