// Command tokengen mints a session token for an identity, for testing the
// websocket and API endpoints by hand.
//
// Usage:
//
//	tokengen -identity alice [-ttl 1h] [-secret s3cret]
//
// When -secret is omitted, TOKEN_SECRET from the environment (or .env) is
// used.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/eldtechnologies/parley/internal/config"
	"github.com/eldtechnologies/parley/internal/token"
)

func main() {
	identity := flag.String("identity", "", "identity to bind the token to")
	ttl := flag.Duration("ttl", 0, "token lifetime (default 15m)")
	secret := flag.String("secret", "", "signing secret (default: TOKEN_SECRET from environment)")
	flag.Parse()

	if *identity == "" {
		fmt.Fprintln(os.Stderr, "error: -identity is required")
		flag.Usage()
		os.Exit(1)
	}

	signingKey := []byte(*secret)
	if len(signingKey) == 0 {
		signingKey = config.Load().TokenSecret
	}

	tok, err := token.NewIssuer(signingKey).Issue(*identity, *ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(tok)
}
