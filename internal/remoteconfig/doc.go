// Package remoteconfig implements the read-modify-write protocol of the Firebase Remote Config
// REST API, guarded by HTTP conditional requests.
//
// A Store is bound to a single project's template endpoint. Reads return the template together
// with its opaque version token (the ETag); writes send that token back in If-Match and the
// server refuses them once the template has moved on:
//
//	res, err := store.Read(ctx)
//	if err != nil {
//		return err
//	}
//	res.Document["parameters"] = params
//	_, err = store.Update(ctx, res.Document, res.Version)
//	if errors.Is(err, remoteconfig.ErrVersionConflict) {
//		// someone else wrote in between: read again and reapply
//	}
//
// The store never retries and holds no state besides its endpoint, so one instance can be shared
// by concurrent goroutines. Conflict detection for concurrent writers is left to the server.
//
// # Collaborators
//
// Credentials come from a TokenProvider and bytes move through a Transport. Both are interfaces
// so callers can plug in oauth2 token sources and HTTP clients (see the tokensource and
// httptransport packages) or test doubles.
package remoteconfig
