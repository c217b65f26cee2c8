package main

import (
	"flag"
	"fmt"
	"log"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"stealth-backend/internal/stealth"
)

// Recovers the one-time key of a release from its encryptedStealthKey.
func main() {
	viewingKeyHex := flag.String("viewing-key", "", "viewing private key (hex)")
	blobHex := flag.String("blob", "", "encryptedStealthKey from the release (hex)")
	expect := flag.String("expect", "", "optional stealth address to check against")
	flag.Parse()

	if *viewingKeyHex == "" || *blobHex == "" {
		flag.Usage()
		log.Fatal("both -viewing-key and -blob are required")
	}

	viewingKey, err := crypto.HexToECDSA(strings.TrimPrefix(*viewingKeyHex, "0x"))
	if err != nil {
		log.Fatalf("Invalid viewing key: %v", err)
	}
	blob, err := hexutil.Decode(*blobHex)
	if err != nil {
		log.Fatalf("Invalid blob: %v", err)
	}

	key, err := stealth.RecoverStealthKey(viewingKey, blob)
	if err != nil {
		log.Fatalf("❌ Failed to recover stealth key: %v", err)
	}
	addr := crypto.PubkeyToAddress(key.PublicKey)

	fmt.Printf("📋 Stealth address: %s\n", addr.Hex())
	fmt.Printf("🔑 Private key:     %s\n", hexutil.Encode(crypto.FromECDSA(key)))

	if *expect != "" {
		if !common.IsHexAddress(*expect) || common.HexToAddress(*expect) != addr {
			log.Fatalf("❌ Address mismatch: expected %s", *expect)
		}
		fmt.Println("✅ Address matches release")
	}
}
