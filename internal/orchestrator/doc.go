// Package orchestrator runs the attempt loop that turns a serialized
// request into a signed, guarded and retried exchange.
//
// A Client owns the identity caches, the auth scheme registry and the
// retry strategy, so every invocation made through it shares them:
//
//	client, err := orchestrator.New(orchestrator.Options{
//		Resolvers: auth.ResolverMap{auth.SchemeSigV4: identity.NewEnvResolver()},
//	})
//	out, err := client.Invoke(ctx, &orchestrator.Operation{
//		Name:        "PutObject",
//		Service:     "s3",
//		AuthOptions: []auth.SchemeID{auth.SchemeSigV4},
//	}, &orchestrator.Input{Method: http.MethodPut, URL: u, Body: data})
//
// Each attempt builds a fresh request, negotiates auth, signs, wraps the
// bodies in stream guards, dispatches through the transport, then
// classifies the outcome and asks the strategy whether to go again.
package orchestrator
