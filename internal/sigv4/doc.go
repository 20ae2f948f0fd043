// Package sigv4 implements AWS Signature Version 4 request signing.
//
// Signer computes the canonical request for an *http.Request and attaches
// the signature either as an Authorization header or as presigned query
// parameters. The Output of a header signature seeds a ChunkSigner, which
// signs the frames and trailers of an aws-chunked body. DeferredSigner
// hands that chunk signer from the code that signed the request to the
// code streaming the body, once per attempt.
package sigv4
