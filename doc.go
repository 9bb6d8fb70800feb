// Package bigstash is a client for the BigStash archival storage API.
//
// The package covers the request-level protocol spoken by the service:
// HMAC request signing, base URL resolution and default headers, response
// decoding with error classification, typed resources and cursor-based
// pagination of list endpoints.
//
// # Key Components
//
//   - Signer: builds the "Authorization: Signature ..." header for a request
//   - Verifier: checks that header on the receiving side (used by mockserver)
//   - Session: resolves paths against the base URL and stamps default headers
//   - Client: the per-endpoint API (archives, uploads, user, notifications)
//   - List: a lazily fetched, resumable sequence over a "next" cursor
//
// # Example Usage
//
//	client, err := bigstash.New(&bigstash.Config{
//		BaseURL: bigstash.DefaultBaseURL,
//		Key:     key,
//		Secret:  secret,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	archives, err := client.GetArchives(ctx)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	it := archives.Iter()
//	for it.Next(ctx) {
//		fmt.Println(it.Value().Key, it.Value().Title)
//	}
//	if err := it.Err(); err != nil {
//		log.Fatal(err)
//	}
//
// Building manifests lives in the manifest package, the upload workflow in
// the upload package and object storage transfers in the blobstore package.
package bigstash
