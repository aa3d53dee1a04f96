package ports

// IngestServer is an inbound transport that feeds messages into the pipeline
type IngestServer interface {
	// Start starts accepting inbound messages
	Start() error

	// Stop stops the server
	Stop() error
}
