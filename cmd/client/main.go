// Command client performs one integrity verification exchange against
// a running server and prints the decision.
//
// # Usage
//
//	go run ./cmd/client --server=http://localhost:8080 \
//	    --merkle-root=<64 hex> --signer-fingerprint=<64 hex> \
//	    --version=1.0.0 --variant=release
//
// Exit code 0 means the payload was verified, 1 means the server made a
// negative decision, 2 means the exchange could not be completed.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/anchorpq/anchorpq/client"
	"github.com/anchorpq/anchorpq/cmd/common"
	"github.com/anchorpq/anchorpq/crypto"
	"github.com/anchorpq/anchorpq/protocol"
)

func main() {
	var (
		serverURL    = flag.String("server", "http://localhost:8080", "verification server URL")
		merkleRoot   = flag.String("merkle-root", "", "artifact merkle root (64 hex chars)")
		version      = flag.String("version", "", "artifact version")
		variant      = flag.String("variant", "release", "build variant (release, debug, beta)")
		signerFP     = flag.String("signer-fingerprint", "", "signer certificate fingerprint (64 hex chars)")
		parameterSet = flag.String("parameter-set", "ML-KEM-768", "ML-KEM parameter set")
		timeout      = flag.Duration("timeout", 30*time.Second, "overall exchange timeout")
		logJSON      = flag.Bool("log-json", false, "log in JSON")
		logDebug     = flag.Bool("log-debug", false, "log debug messages")
	)
	flag.Parse()

	log := common.NewLogger(*logJSON, *logDebug)

	payload, err := protocol.NewIntegrityPayload(*merkleRoot, *version, protocol.Variant(*variant), *signerFP)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid payload: %v\n", err)
		os.Exit(2)
	}

	set, err := crypto.ParseParameterSet(*parameterSet)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid parameter set: %v\n", err)
		os.Exit(2)
	}

	cfg := protocol.DefaultConfig()
	cfg.ParameterSet = set

	c, err := client.NewClient(*serverURL, cfg, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Client setup failed: %v\n", err)
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	resp, err := c.Verify(ctx, payload)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Verification exchange failed: %v\n", err)
		os.Exit(2)
	}

	fmt.Printf("verified=%v reason=%s serverTime=%d\n", resp.Verified, resp.ReasonCode, resp.ServerTime)
	if !resp.Verified {
		os.Exit(1)
	}
}
