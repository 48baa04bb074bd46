package uploaduser

// Result holds the access key of the upload user. SecretAccessKey is only
// set when the key was created by this call.
type Result struct {
	SecretAccessKey *string `json:"SecretAccessKey,omitempty"`
	AccessKeyId     string  `json:"AccessKeyId"`
	UserName        string  `json:"UserName"`
	PolicyResource  string  `json:"PolicyResource"`
}

// OutputSuccess represents successful JSON output format.
type OutputSuccess struct {
	Data Result `json:"data"`
}

// OutputError represents error JSON output format.
type OutputError struct {
	Error string `json:"error"`
}
