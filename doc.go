// Package authflow is an embeddable account-authentication and
// session-lifecycle engine: email-verified registration, per-user token-pair
// minting and validation, Redis-backed revocation, and OTP issuance with
// cooldowns and attempt ceilings.
//
// The engine is transport-agnostic. It consumes a UserStore (credential
// persistence), a Mailer (OTP delivery), and a Redis client (revocation cache
// and attempt counters); an HTTP or gRPC layer on top owns request parsing,
// token transport, and status-code mapping via KindOf.
//
// Construction goes through the Builder:
//
//	engine, err := authflow.New().
//		WithRedis(client).
//		WithUserStore(store).
//		WithMailer(mailer).
//		Build()
//	if err != nil {
//		// ...
//	}
//	defer engine.Close()
//
// The injected Redis client's lifecycle belongs to the process entry point;
// the engine never opens or closes connections itself.
//
// Each user signs tokens with their own opaque key pair: the public half
// covers access tokens, the private half covers refresh tokens. Validation
// fails closed when the revocation cache is unreachable.
package authflow
