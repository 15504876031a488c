package download

// Request is one scheduled download. It does not change once the run
// has started.
type Request struct {
	ID        string `json:"id"`
	URL       string `json:"url"`
	Name      string `json:"name"`
	ChunkSize int    `json:"chunk_size"`
}

// Outcome is the terminal result of one Request. Err is nil on
// success, in which case Path and Bytes describe the stored file.
type Outcome struct {
	ID    string `json:"id"`
	URL   string `json:"url"`
	Path  string `json:"path,omitempty"`
	Bytes int64  `json:"bytes"`
	Kind  Kind   `json:"kind"`
	Err   error  `json:"-"`
}

// OK reports whether the download succeeded.
func (o Outcome) OK() bool { return o.Err == nil }

// Message is the failure text, or "" on success.
func (o Outcome) Message() string {
	if o.Err == nil {
		return ""
	}

	return o.Err.Error()
}

// Summarize counts successes and failures.
func Summarize(outs []Outcome) (succeeded, failed int) {
	for _, o := range outs {
		if o.OK() {
			succeeded++
			continue
		}
		failed++
	}

	return succeeded, failed
}
