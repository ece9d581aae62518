// Command keytool seals a wallet private key into the encrypted key file
// read by pairbot's wallet.encrypted_key_path, and checks existing files.
//
//	PAIRBOT_WALLET_PRIVATE_KEY=... PAIRBOT_WALLET_KEY_PASSWORD=... keytool -out key.json
//	PAIRBOT_WALLET_KEY_PASSWORD=... keytool -check key.json
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/alanyoungcy/pairbot/internal/crypto"
)

func main() {
	out := flag.String("out", "", "write the encrypted key file here")
	check := flag.String("check", "", "decrypt this key file and print its address")
	chainID := flag.Int64("chain-id", 137, "chain id used to derive the signer")
	flag.Parse()

	_ = godotenv.Load()
	password := strings.TrimSpace(os.Getenv("PAIRBOT_WALLET_KEY_PASSWORD"))
	if password == "" {
		fatal("PAIRBOT_WALLET_KEY_PASSWORD must be set")
	}

	switch {
	case *check != "":
		key, err := crypto.LoadKey(crypto.KeyConfig{EncryptedKeyPath: *check, KeyPassword: password})
		if err != nil {
			fatal(err.Error())
		}
		printAddress(key, *chainID)
	case *out != "":
		raw := strings.TrimSpace(os.Getenv("PAIRBOT_WALLET_PRIVATE_KEY"))
		key, err := crypto.LoadKey(crypto.KeyConfig{RawPrivateKey: raw})
		if err != nil {
			fatal(err.Error())
		}
		data, err := crypto.EncryptKey(key, password)
		if err != nil {
			fatal(err.Error())
		}
		if err := os.WriteFile(*out, data, 0o600); err != nil {
			fatal(err.Error())
		}
		printAddress(key, *chainID)
		fmt.Printf("wrote %s\n", *out)
	default:
		flag.Usage()
		os.Exit(2)
	}
}

func printAddress(key string, chainID int64) {
	signer, err := crypto.NewSigner(key, chainID)
	if err != nil {
		fatal(err.Error())
	}
	fmt.Printf("address %s\n", signer.Address().Hex())
}

func fatal(msg string) {
	fmt.Fprintf(os.Stderr, "keytool: %s\n", msg)
	os.Exit(1)
}
