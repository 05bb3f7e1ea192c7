package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"oracle-backend/internal/middleware"

	"github.com/golang-jwt/jwt/v5"
)

// generate-jwt mints an operator token for the read-only admin API.
func main() {
	var (
		subject  = flag.String("subject", "ops", "token subject")
		role     = flag.String("role", "operator", "token role (operator or admin)")
		validity = flag.Duration("validity", 24*time.Hour, "token lifetime")
	)
	flag.Parse()

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		log.Fatal("JWT_SECRET environment variable is required")
	}

	now := time.Now()
	claims := middleware.OperatorClaims{
		Role: *role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(*validity)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    "otp-oracle",
			Subject:   *subject,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(secret))
	if err != nil {
		log.Fatalf("Failed to sign token: %v", err)
	}

	fmt.Println("============================================================")
	fmt.Printf("Subject:  %s\n", *subject)
	fmt.Printf("Role:     %s\n", *role)
	fmt.Printf("Expires:  %s\n", now.Add(*validity).Format(time.RFC3339))
	fmt.Println("============================================================")
	fmt.Println(tokenString)
}
