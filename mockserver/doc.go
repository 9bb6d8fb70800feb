// Package mockserver provides an in-memory fake of the archival service
// for tests and local development.
//
// The server speaks the same REST surface as the real service: a root
// document listing resources, paginated archive, upload and notification
// collections, the user resource and API token issuance. Requests are
// authenticated with the same signature scheme the client uses, checked
// by bigstash.Verifier against keybackend.Accounts. Tokens issued
// through POST /tokens/ are accepted at once and rejected again when
// revoked.
//
// # Processing
//
// Once an upload is marked uploaded, every GET of it advances processing.
// After ProcessingPolls reads the upload reaches completed, or error when
// an object is missing from the configured object store or FailProcessing
// is set:
//
//	store, _ := blobstore.NewLocal(dir)
//	srv := mockserver.New(mockserver.Config{
//	    Keys:    map[string]string{"AHBFEXAMPLE": "12039898FADEXAMPLE"},
//	    Users:   map[string]string{"user@example.com": "secret"},
//	    Objects: store,
//	})
//	http.ListenAndServe(":8000", srv.Router())
//
// Responses carry Last-Modified and honour If-Modified-Since on uploads,
// answering 304 when nothing changed.
package mockserver
