package internal

// Version is reported by the CLI and the index endpoint.
const Version = "0.3.0"
