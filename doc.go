// Package keylio is a framework-agnostic authentication toolkit providing
// credential-based sign-up/sign-in, session issuance, session retrieval and
// sign-out over a pluggable data-access layer.
//
// # Architecture
//
// Adapter: translates a provider-neutral query model (Where filters,
// pagination, sorting) into a store's native dialect. Two dialects ship with
// the module: a relational one on GORM (adapters/gorm) and a document one on
// the MongoDB driver (adapters/mongo); adapters/memory is a
// zero-infrastructure store for tests and prototypes.
//
// Session strategies: "jwt" encodes the session entirely in a signed,
// client-held token; the server stores nothing and sign-out can only drop
// the cookie, not revoke a distributed token. "database" persists a session
// row referenced by an opaque token; sign-out deletes the row.
//
// Client: the single entry point binding a normalized configuration to
// behavior. Configuration is merged with secure defaults once at
// construction and immutable afterwards; a missing session secret fails
// construction.
//
// # Basic Usage
//
//	db, _ := gorm.Open(sqlite.Open("auth.db"), nil)
//	adapter := gormadapter.New(db, nil)
//
//	client, err := keylio.New(keylio.Config{
//	    Adapter: adapter,
//	    Session: keylio.SessionOptions{
//	        Strategy: keylio.StrategyDatabase,
//	        Secret:   os.Getenv("AUTH_SECRET"),
//	    },
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	http.Handle("/api/auth/", http.StripPrefix("/api/auth", client.Handler()))
//
// Or call the client directly from any framework:
//
//	jar := keylio.NewResponseCookieJar(w, r)
//	result, err := client.SignIn(ctx, keylio.SignInput{
//	    Type:        keylio.MethodCredentials,
//	    Credentials: &keylio.CredentialsData{Email: email, Password: password},
//	}, jar)
//
// Every failure carries a stable code (see AuthError); oAuth and phoneOTP
// inputs fail with PROVIDER_NOT_IMPLEMENTED by contract.
package keylio
