// Package transport moves marshaled compound requests to an SMB2 server and
// hands back their responses.
//
// A Transport owns the message id sequence and the credit window of one
// session. Send blocks until the whole compound response arrived; Submit
// registers the request and returns immediately so a caller can keep
// several compounds in flight and wait for whichever completes first.
//
// When the underlying connection is lost and re-established while a request
// is outstanding, the request fails with *ReconnectedError. The caller is
// expected to rebuild the request from scratch; message ids and handles of
// the failed attempt are never reused.
package transport
