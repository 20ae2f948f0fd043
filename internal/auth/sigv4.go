package auth

import (
	"context"
	"fmt"
	"net/http"

	"github.com/vyrodovalexey/avasdk/internal/identity"
	"github.com/vyrodovalexey/avasdk/internal/sigv4"
)

// SigV4Signer adapts sigv4.Signer to the Signer interface. For signed
// streaming payloads it hands the seeded chunk signer to the deferred
// sender in the signing properties.
type SigV4Signer struct {
	signer *sigv4.Signer
}

// NewSigV4Signer creates the adapter.
func NewSigV4Signer(signer *sigv4.Signer) *SigV4Signer {
	if signer == nil {
		signer = sigv4.NewSigner()
	}
	return &SigV4Signer{signer: signer}
}

// SigV4Scheme returns the sigv4 scheme backed by signer.
func SigV4Scheme(signer *sigv4.Signer) Scheme {
	return NewScheme(SchemeSigV4, NewSigV4Signer(signer))
}

// SignRequest implements Signer.
func (s *SigV4Signer) SignRequest(_ context.Context, req *http.Request, id *identity.Identity, props *SigningProperties) error {
	if props == nil {
		props = &SigningProperties{}
	}
	out, err := s.signer.Sign(req, &sigv4.Params{
		Identity: id,
		Region:   props.Region,
		Service:  props.Service,
		Time:     props.Time,
		Payload:  props.Payload,
		Settings: props.Settings,
	})
	if err != nil {
		return NewAuthErrorWithCause(SchemeSigV4, "sign", err)
	}

	if props.Payload.IsStreamingSigned() {
		if props.Deferred == nil {
			return NewAuthErrorWithCause(SchemeSigV4, "sign",
				fmt.Errorf("streaming payload %s requires a deferred signer", props.Payload))
		}
		if err := props.Deferred.Send(out.ChunkSigner()); err != nil {
			return NewAuthErrorWithCause(SchemeSigV4, "handoff", err)
		}
	}
	return nil
}
