// Package http provides the HTTP transport used to talk to the archive.
//
// This package handles:
//   - Connection reuse across the many small archive requests
//   - Form-encoded POSTs (the MAST invoke and bundle endpoints)
//   - Retry with exponential backoff on 5xx and transport errors
//   - Token authorization once a session has logged in
//
// # Usage
//
//	client := http.NewClient(Options{
//	    Timeout:       10 * time.Minute,
//	    RetryAttempts: 5,
//	})
//
//	body, err := client.PostForm(ctx, invokeURL, url.Values{"request": {payload}})
//	defer body.Close()
//
//	client.SetToken(token) // later requests carry "Authorization: token ..."
package http
