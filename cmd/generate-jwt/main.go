package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/ethereum/go-ethereum/common"

	"stealth-backend/internal/config"
	"stealth-backend/internal/handlers"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	address := flag.String("address", "0x742d35Cc6634C0532925a3b0F26750C66d78EB66", "wallet address to issue the token for")
	admin := flag.Bool("admin", false, "issue an admin token for admin.username instead")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if *admin {
		if cfg.Admin.JWTSecret == "" {
			log.Fatal("admin.jwtSecret (ADMIN_JWT_SECRET) is not set")
		}
		token, err := handlers.NewAdminAuthHandler(cfg.Admin).IssueAdminToken(cfg.Admin.Username)
		if err != nil {
			log.Fatalf("Error generating token: %v", err)
		}
		fmt.Println("Admin Token:")
		fmt.Println(token)
		fmt.Printf("  Username: %s\n", cfg.Admin.Username)
		return
	}

	if !common.IsHexAddress(*address) {
		log.Fatalf("Invalid address: %s", *address)
	}

	user := common.HexToAddress(*address)
	token, expiresAt, err := handlers.NewJWTManager(cfg.JWT).Issue(user)
	if err != nil {
		log.Fatalf("Error generating token: %v", err)
	}

	fmt.Println("============================================================")
	fmt.Println("JWT Token Generated for Testing")
	fmt.Println("============================================================")
	fmt.Println()
	fmt.Println("Token:")
	fmt.Println(token)
	fmt.Println()
	fmt.Printf("  User Address: %s\n", user.Hex())
	fmt.Printf("  Expires: %s\n", expiresAt)
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Printf("  curl -H 'Authorization: Bearer %s' http://localhost:%d/api/my/intents\n", token, cfg.Server.Port)
}
