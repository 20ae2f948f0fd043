// Package chunked encodes request bodies as signed aws-chunked streams.
package chunked
