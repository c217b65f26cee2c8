package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/pquerna/otp/totp"
	"golang.org/x/crypto/bcrypt"
)

// Prints admin login material: a TOTP secret (new or from ADMIN_TOTP_SECRET),
// the current code, and optionally a bcrypt hash of -password.
func main() {
	issuer := flag.String("issuer", "Stealth Settlement", "TOTP issuer shown in authenticator apps")
	account := flag.String("account", "admin", "TOTP account name")
	password := flag.String("password", "", "admin password to hash for admin.passwordHash")
	flag.Parse()

	secret := os.Getenv("ADMIN_TOTP_SECRET")
	if secret == "" {
		key, err := totp.Generate(totp.GenerateOpts{Issuer: *issuer, AccountName: *account})
		if err != nil {
			fmt.Printf("Error generating TOTP secret: %v\n", err)
			os.Exit(1)
		}
		secret = key.Secret()
		fmt.Printf("🔑 New secret: %s\n", secret)
		fmt.Printf("📱 Provisioning URI: %s\n", key.URL())
	} else {
		fmt.Printf("Secret: %s\n", secret)
	}

	code, err := totp.GenerateCode(secret, time.Now())
	if err != nil {
		fmt.Printf("Error generating TOTP code: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Current TOTP Code: %s\n", code)
	fmt.Printf("Valid for: ~30 seconds\n")

	if *password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(*password), bcrypt.DefaultCost)
		if err != nil {
			fmt.Printf("Error hashing password: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Password hash: %s\n", hash)
	}
}
